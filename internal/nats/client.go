// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

// Package nats wraps the NATS connection used for configuration change
// events.
package nats

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/halcyonrmm/halcyon/internal/pkg/logger"
)

// Config holds NATS client configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string
	// Name identifies this client to the server.
	Name string
	// Token for token authentication.
	Token string
	// Username and Password for basic authentication.
	Username string
	Password string
	// TLSConfig enables TLS when non-nil.
	TLSConfig *tls.Config
	// MaxReconnects caps reconnect attempts (-1 for infinite).
	MaxReconnects int
	// ReconnectWait is the delay between reconnect attempts.
	ReconnectWait time.Duration
	// Timeout is the connection timeout.
	Timeout time.Duration
	// PingInterval is how often to ping the server.
	PingInterval time.Duration
	// MaxPingsOut is the max outstanding pings before the connection is
	// declared stale.
	MaxPingsOut int

	// JetStreamEnabled controls whether the durable event stream is used.
	JetStreamEnabled bool
	// JetStreamDomain is the JetStream domain (empty = default).
	JetStreamDomain string
}

// DefaultConfig returns a default NATS configuration.
func DefaultConfig() Config {
	return Config{
		URL:              "nats://localhost:4222",
		Name:             "halcyon-server",
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
		Timeout:          5 * time.Second,
		PingInterval:     2 * time.Minute,
		MaxPingsOut:      3,
		JetStreamEnabled: true,
	}
}

// Client wraps a NATS connection with reconnect logging and health checks.
type Client struct {
	conn   *nats.Conn
	config Config
	logger *logger.Logger
	mu     sync.RWMutex
}

// NewClient creates a client; call Connect before using it.
func NewClient(config Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		config: config,
		logger: log.Named("nats"),
	}
}

// Connect establishes the connection. Calling Connect on a connected
// client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}

	opts := []nats.Option{
		nats.Name(c.config.Name),
		nats.MaxReconnects(c.config.MaxReconnects),
		nats.ReconnectWait(c.config.ReconnectWait),
		nats.Timeout(c.config.Timeout),
		nats.PingInterval(c.config.PingInterval),
		nats.MaxPingsOutstanding(c.config.MaxPingsOut),
	}

	if c.config.Token != "" {
		opts = append(opts, nats.Token(c.config.Token))
	} else if c.config.Username != "" {
		opts = append(opts, nats.UserInfo(c.config.Username, c.config.Password))
	}
	if c.config.TLSConfig != nil {
		opts = append(opts, nats.Secure(c.config.TLSConfig))
	}

	opts = append(opts,
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			c.logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			c.logger.Info("nats connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			if sub != nil {
				c.logger.Error("nats error", "subject", sub.Subject, "error", err)
			} else {
				c.logger.Error("nats error", "error", err)
			}
		}),
	)

	conn, err := nats.Connect(c.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}

	c.conn = conn
	c.logger.Info("connected to nats",
		"url", conn.ConnectedUrl(),
		"server_name", conn.ConnectedServerName())
	return nil
}

// Close closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Conn returns the underlying connection, or nil before Connect.
func (c *Client) Conn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// IsConnected reports whether the connection is live.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Health verifies the connection by flushing it.
func (c *Client) Health(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return fmt.Errorf("nats client not connected")
	}
	if !c.conn.IsConnected() {
		return fmt.Errorf("nats connection is not active")
	}
	if err := c.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush failed: %w", err)
	}
	return nil
}

// Publish publishes a message to a subject.
func (c *Client) Publish(subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}
	return conn.Publish(subject, data)
}

// Subscribe subscribes to a subject.
func (c *Client) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return nil, fmt.Errorf("not connected")
	}
	return conn.Subscribe(subject, handler)
}

// QueueSubscribe subscribes to a subject with a queue group.
func (c *Client) QueueSubscribe(subject, queue string, handler nats.MsgHandler) (*nats.Subscription, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return nil, fmt.Errorf("not connected")
	}
	return conn.QueueSubscribe(subject, queue, handler)
}

// Flush flushes the connection buffer.
func (c *Client) Flush() error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}
	return conn.Flush()
}
