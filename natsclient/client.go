// Package natsclient wraps the NATS connection used by the optional NATS
// gateway, with reconnect handling and connection status reporting.
package natsclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/logtest/errors"
	"github.com/c360/logtest/pkg/retry"
)

// Client manages one NATS connection for the service lifetime.
type Client struct {
	url    string
	logger *slog.Logger

	// Connection options
	clientName    string
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	mu   sync.RWMutex
	conn *nats.Conn
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithName sets the client name advertised to the server.
func WithName(name string) ClientOption {
	return func(c *Client) { c.clientName = name }
}

// WithReconnect tunes automatic reconnection. maxReconnects < 0 means
// reconnect forever.
func WithReconnect(maxReconnects int, wait time.Duration) ClientOption {
	return func(c *Client) {
		c.maxReconnects = maxReconnects
		c.reconnectWait = wait
	}
}

// WithTimeout sets the initial connect timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.timeout = timeout }
}

// NewClient creates a NATS client for url. The connection is established
// by Connect, not here.
func NewClient(url string, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		url:           url,
		logger:        logger.With("component", "natsclient"),
		clientName:    "logtest",
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the connection, retrying transient failures with
// backoff so a service start can ride out a briefly unavailable broker.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := retry.DoWithResult(ctx, retry.Quick(), func() (*nats.Conn, error) {
		return nats.Connect(c.url,
			nats.Name(c.clientName),
			nats.MaxReconnects(c.maxReconnects),
			nats.ReconnectWait(c.reconnectWait),
			nats.Timeout(c.timeout),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				c.logger.Warn("nats disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				c.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
			}),
		)
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "Connect", "connect to "+c.url)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.logger.Info("nats connected", "url", conn.ConnectedUrl())
	return nil
}

// Conn returns the live connection, or nil before Connect/after Close.
func (c *Client) Conn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// IsConnected reports whether the connection is currently usable.
func (c *Client) IsConnected() bool {
	conn := c.Conn()
	return conn != nil && conn.IsConnected()
}

// Close drains in-flight subscriptions and releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- conn.Drain() }()

	select {
	case err := <-done:
		if err != nil {
			conn.Close()
			return errors.WrapTransient(err, "Client", "Close", "drain connection")
		}
	case <-time.After(c.drainTimeout):
		conn.Close()
		return errors.WrapTransient(errors.ErrShutdownTimeout, "Client", "Close", "drain connection")
	}

	c.logger.Info("nats connection closed")
	return nil
}
