package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"datetime_nexus/internal/shared/types"
)

const (
	DefaultHost        = "127.0.0.1"
	DefaultPort        = 9090
	DefaultBacklog     = 1
	DefaultQuitKeyword = "quit"
	DefaultMaxPayload  = 1024
	DefaultTimeout     = 5
)

// Default returns the configuration used when no ini file is present.
func Default() *types.Config {
	return &types.Config{
		CommonConf: types.CommonConf{Host: DefaultHost, Port: DefaultPort},
		ServerConf: types.ServerConf{
			Backlog:      DefaultBacklog,
			QuitKeyword:  DefaultQuitKeyword,
			WriteTimeout: DefaultTimeout,
		},
		ClientConf: types.ClientConf{
			DialTimeout: DefaultTimeout,
			ReadTimeout: DefaultTimeout,
			MaxPayload:  DefaultMaxPayload,
		},
		LogConf: types.LogConf{Level: "info"},
	}
}

// LoadIni 加载 datetime.ini, 文件不存在时保留默认值。
// Values found in the file override cfg, then the environment overrides both.
func LoadIni(cfg *types.Config, fileName string) error {
	iniFile, err := ini.LooseLoad(fileName)
	if err != nil {
		return err
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return fmt.Errorf("failed to map %s: %w", fileName, err)
	}
	overrideFromEnvString(&cfg.CommonConf.Host, "DATETIME_HOST")
	overrideFromEnvInt(&cfg.CommonConf.Port, "DATETIME_PORT")
	overrideFromEnvString(&cfg.LogConf.Level, "DATETIME_LOG_LEVEL")
	overrideFromEnvString(&cfg.ClientConf.Socks5Proxy, "DATETIME_SOCKS5_PROXY")
	return Validate(cfg)
}

// Load is Default followed by LoadIni.
func Load(fileName string) (*types.Config, error) {
	cfg := Default()
	if err := LoadIni(cfg, fileName); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the binaries cannot run with and clamps the backlog.
func Validate(cfg *types.Config) error {
	var errs []error
	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", cfg.Port))
	}
	if cfg.WebPort < 0 || cfg.WebPort > 65535 {
		errs = append(errs, fmt.Errorf("web_port %d out of range", cfg.WebPort))
	}
	if cfg.WriteTimeout < 0 || cfg.DialTimeout < 0 || cfg.ReadTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if cfg.MaxPayload < 1 {
		errs = append(errs, fmt.Errorf("max_payload %d must be at least 1", cfg.MaxPayload))
	}
	if cfg.Backlog < 1 {
		cfg.Backlog = 1
	}
	cfg.QuitKeyword = strings.TrimSpace(cfg.QuitKeyword)
	if cfg.QuitKeyword == "" {
		cfg.QuitKeyword = DefaultQuitKeyword
	}
	return errors.Join(errs...)
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}

func overrideFromEnvString(target *string, envName string) {
	if envValue, ok := os.LookupEnv(envName); ok {
		*target = envValue
	}
}
