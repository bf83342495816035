package types

import "time"

// CommonConf holds the endpoint shared by the server and the client.
type CommonConf struct {
	Host string `ini:"host"`
	Port int    `ini:"port"`
}

// ServerConf holds server-only settings.
type ServerConf struct {
	Backlog      int    `ini:"backlog"`
	QuitKeyword  string `ini:"quit_keyword"`
	WriteTimeout int    `ini:"write_timeout"` // seconds, 0 disables the deadline
	WebPort      int    `ini:"web_port"`      // status feed, 0 disables it
}

// ClientConf holds client-only settings.
type ClientConf struct {
	DialTimeout int    `ini:"dial_timeout"` // seconds
	ReadTimeout int    `ini:"read_timeout"` // seconds
	MaxPayload  int    `ini:"max_payload"`
	Socks5Proxy string `ini:"socks5_proxy"` // host:port, empty dials directly
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
}

// Config is the unified configuration of both binaries.
type Config struct {
	CommonConf `ini:"common"`
	ServerConf `ini:"server"`
	ClientConf `ini:"client"`
	LogConf    `ini:"log"`
}

// Address returns host:port of the server endpoint.
func (c *Config) Address() string {
	return JoinHostPort(c.Host, c.Port)
}

func (c ServerConf) WriteDeadline() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}

func (c ClientConf) DialDeadline() time.Duration {
	return time.Duration(c.DialTimeout) * time.Second
}

func (c ClientConf) ReadDeadline() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Second
}
