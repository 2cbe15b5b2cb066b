// Package server implements the client-facing socket listener. Clients
// connect over TCP or a unix socket and exchange newline-delimited JSON
// frames, one request and one response per line, keeping the connection
// open across exchanges.
package server

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/c360/logtest/errors"
	"github.com/c360/logtest/metric"
	"github.com/c360/logtest/pipeline"
	"github.com/c360/logtest/pkg/retry"
	"github.com/c360/logtest/pkg/worker"
)

// Config carries the listener settings.
type Config struct {
	// Network is "tcp" or "unix".
	Network string

	// Address is the bind address (host:port or socket path).
	Address string

	// Workers is the number of concurrent connection handlers.
	Workers int

	// QueueSize bounds connections waiting for a free worker.
	QueueSize int

	// MaxFrameBytes bounds one request frame. Oversized frames close the
	// connection since the stream can no longer be trusted.
	MaxFrameBytes int
}

// Listener accepts client connections and dispatches them to a worker
// pool. The accept step itself is serialized; everything after acceptance
// runs independently per connection.
type Listener struct {
	cfg     Config
	orch    *pipeline.Orchestrator
	logger  *slog.Logger
	metrics *metric.Metrics

	ln       net.Listener
	acceptMu sync.Mutex
	pool     *worker.Pool[net.Conn]

	cancel context.CancelFunc
	done   chan struct{}
	fatal  chan error
}

// NewListener creates a listener dispatching requests to orch. metrics
// may be nil.
func NewListener(cfg Config, orch *pipeline.Orchestrator, logger *slog.Logger, metrics *metric.Metrics) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = 64 * 1024
	}
	return &Listener{
		cfg:     cfg,
		orch:    orch,
		logger:  logger.With("component", "listener"),
		metrics: metrics,
		fatal:   make(chan error, 1),
	}
}

// Initialize validates the listener configuration.
func (l *Listener) Initialize() error {
	if l.orch == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Listener", "Initialize", "validate orchestrator")
	}
	switch l.cfg.Network {
	case "tcp", "unix":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Listener", "Initialize", "validate network "+l.cfg.Network)
	}
	if l.cfg.Address == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Listener", "Initialize", "validate address")
	}
	return nil
}

// Start binds the endpoint and launches the accept loop.
func (l *Listener) Start(ctx context.Context) error {
	if l.done != nil {
		return errors.Wrap(errors.ErrAlreadyStarted, "Listener", "Start", "launch accept loop")
	}

	if l.cfg.Network == "unix" {
		// A stale socket file from an unclean shutdown blocks the bind.
		_ = os.Remove(l.cfg.Address)
	}

	ln, err := net.Listen(l.cfg.Network, l.cfg.Address)
	if err != nil {
		return errors.WrapFatal(err, "Listener", "Start", "bind "+l.cfg.Network+" endpoint")
	}
	l.ln = ln

	l.pool = worker.NewPool(l.cfg.Workers, l.cfg.QueueSize, l.handleConn)
	ctx, l.cancel = context.WithCancel(ctx)
	if err := l.pool.Start(ctx); err != nil {
		_ = ln.Close()
		return errors.Wrap(err, "Listener", "Start", "start worker pool")
	}

	l.done = make(chan struct{})
	go l.acceptLoop(ctx)

	l.logger.Info("listener started",
		"network", l.cfg.Network,
		"address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, useful when the config asked for an
// ephemeral port.
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Fatal delivers the error that killed the accept loop, if one ever does.
func (l *Listener) Fatal() <-chan error {
	return l.fatal
}

// Stop closes the endpoint and drains the worker pool.
func (l *Listener) Stop(timeout time.Duration) error {
	if l.done == nil {
		return nil
	}

	l.cancel()
	if err := l.ln.Close(); err != nil {
		l.logger.Warn("endpoint close failed", "error", err)
	}

	select {
	case <-l.done:
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrShutdownTimeout, "Listener", "Stop", "wait for accept loop")
	}

	if err := l.pool.Stop(timeout); err != nil {
		return errors.WrapTransient(err, "Listener", "Stop", "drain worker pool")
	}
	l.logger.Info("listener stopped")
	return nil
}

// accept performs one serialized accept. The underlying accept call is
// not assumed reentrant, so only one is ever in flight.
func (l *Listener) accept() (net.Conn, error) {
	l.acceptMu.Lock()
	defer l.acceptMu.Unlock()
	return l.ln.Accept()
}

func (l *Listener) acceptLoop(ctx context.Context) {
	defer close(l.done)

	for {
		conn, err := retry.DoWithResult(ctx, retry.Quick(), func() (net.Conn, error) {
			c, err := l.accept()
			if err != nil && isClosedErr(err) {
				return nil, retry.NonRetryable(err)
			}
			return c, err
		})
		if err != nil {
			if ctx.Err() != nil || isClosedErr(err) {
				return
			}
			// Accept failed past all retries; the service cannot take
			// new clients and must surface that, not spin.
			l.logger.Error("accept failed persistently", "error", err)
			select {
			case l.fatal <- errors.WrapFatal(err, "Listener", "acceptLoop", "accept connection"):
			default:
			}
			return
		}

		if l.metrics != nil {
			l.metrics.ConnectionsTotal.Inc()
		}

		if err := l.pool.Submit(conn); err != nil {
			l.logger.Warn("connection rejected", "error", err, "remote", conn.RemoteAddr())
			writeResponse(conn, &pipeline.Response{
				Status:   pipeline.StatusInvalidRequest,
				Messages: []string{"server busy, try again later"},
			})
			_ = conn.Close()
		}
	}
}

func isClosedErr(err error) bool {
	return stderrors.Is(err, net.ErrClosed)
}
