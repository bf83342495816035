package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/net/proxy"

	"datetime_nexus/internal/shared/logger"
	"datetime_nexus/internal/shared/types"
)

var (
	ErrPayloadTooLarge = errors.New("payload exceeds max_payload")
	ErrInvalidEncoding = errors.New("payload is not valid UTF-8")
)

// Client performs one-shot exchanges with the date server.
type Client struct {
	address  string
	cfg      types.ClientConf
	dialer   proxy.ContextDialer
	viaProxy bool
	logger   zerolog.Logger
}

// New builds a client for cfg's endpoint. When socks5_proxy is set the
// connection is tunnelled through that proxy.
func New(cfg *types.Config) (*Client, error) {
	direct := &net.Dialer{Timeout: cfg.DialDeadline()}
	c := &Client{
		address: cfg.Address(),
		cfg:     cfg.ClientConf,
		dialer:  direct,
		logger:  logger.WithComponent("client"),
	}
	if cfg.Socks5Proxy == "" {
		return c, nil
	}

	d, err := proxy.SOCKS5("tcp", cfg.Socks5Proxy, nil, direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer for %s: %w", cfg.Socks5Proxy, err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 dialer for %s does not support contexts", cfg.Socks5Proxy)
	}
	c.dialer = cd
	c.viaProxy = true
	return c, nil
}

// FetchTime connects, reads until the server closes the stream and returns
// the received text.
func (c *Client) FetchTime(ctx context.Context) (string, error) {
	c.logger.Debug().Str("server", c.address).Bool("socks5", c.viaProxy).Msg("Connecting")
	conn, err := c.dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return "", fmt.Errorf("failed to connect to %s: %w", c.address, err)
	}
	defer conn.Close()

	if d := c.cfg.ReadDeadline(); d > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(d))
	}
	data, err := readAll(conn, c.cfg.MaxPayload)
	if err != nil {
		return "", fmt.Errorf("failed to read from %s: %w", c.address, err)
	}
	if !utf8.Valid(data) {
		return "", ErrInvalidEncoding
	}
	c.logger.Debug().Int("bytes", len(data)).Msg("Received payload")
	return string(data), nil
}

// readAll reads r to EOF, failing once more than limit bytes arrive.
func readAll(r io.Reader, limit int) ([]byte, error) {
	if limit < 1 {
		limit = 1
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(data) > limit {
		return nil, ErrPayloadTooLarge
	}
	return data, nil
}
