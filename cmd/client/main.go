package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"datetime_nexus/internal/client"
	"datetime_nexus/internal/datetime"
	"datetime_nexus/internal/shared/config"
	"datetime_nexus/internal/shared/logger"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run performs one exchange and returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("client", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configDir := flags.String("configdir", "configs", "Path to config directory")
	host := flags.String("host", "", "Server host, overrides the config file")
	port := flags.Int("port", -1, "Server port, overrides the config file")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	iniPath := filepath.Join(*configDir, "datetime.ini")
	cfg, err := config.Load(iniPath)
	if err != nil {
		fmt.Fprintf(stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		return 1
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port >= 0 {
		cfg.Port = *port
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "Fatal: Invalid configuration: %v\n", err)
		return 1
	}
	if err := logger.InitWithWriter(cfg.LogConf, stderr); err != nil {
		fmt.Fprintf(stderr, "Fatal: Failed to initialize logger: %v\n", err)
		return 1
	}

	c, err := client.New(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create client")
		return 1
	}

	text, err := c.FetchTime(context.Background())
	if err != nil {
		logger.Error().Err(err).Str("server", cfg.Address()).Msg("Failed to fetch server time")
		return 1
	}
	if !datetime.Valid(text) {
		logger.Warn().Str("payload", text).Msg("Server reply is not a timestamp")
	}
	fmt.Fprintln(stdout, "Server date & time:", text)
	return 0
}
