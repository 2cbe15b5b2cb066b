// Package nats exposes the log-test operation over NATS request-reply.
// Each request message carries one request frame; the reply carries the
// response frame. The gateway shares the session store and orchestrator
// with the socket listener, so tokens work across transports.
package nats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/logtest/errors"
	"github.com/c360/logtest/metric"
	"github.com/c360/logtest/natsclient"
	"github.com/c360/logtest/pipeline"
)

// Config carries the NATS gateway settings.
type Config struct {
	// Subject to serve request-reply on.
	Subject string

	// Queue is the queue group name so multiple instances share load.
	Queue string
}

// Gateway answers log-test requests on a NATS subject.
type Gateway struct {
	cfg     Config
	client  *natsclient.Client
	orch    *pipeline.Orchestrator
	logger  *slog.Logger
	metrics *metric.Metrics

	sub *nats.Subscription
}

// NewGateway creates a NATS gateway. metrics may be nil.
func NewGateway(cfg Config, client *natsclient.Client, orch *pipeline.Orchestrator, logger *slog.Logger, metrics *metric.Metrics) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Queue == "" {
		cfg.Queue = "logtest"
	}
	return &Gateway{
		cfg:     cfg,
		client:  client,
		orch:    orch,
		logger:  logger.With("component", "nats-gateway"),
		metrics: metrics,
	}
}

// Initialize validates the gateway configuration.
func (g *Gateway) Initialize() error {
	if g.client == nil || g.orch == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Gateway", "Initialize", "validate dependencies")
	}
	if g.cfg.Subject == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Gateway", "Initialize", "validate subject")
	}
	return nil
}

// Start subscribes to the configured subject.
func (g *Gateway) Start(_ context.Context) error {
	conn := g.client.Conn()
	if conn == nil {
		return errors.WrapTransient(errors.ErrNoConnection, "Gateway", "Start", "acquire nats connection")
	}

	sub, err := conn.QueueSubscribe(g.cfg.Subject, g.cfg.Queue, g.handle)
	if err != nil {
		return errors.WrapTransient(err, "Gateway", "Start", "subscribe to "+g.cfg.Subject)
	}
	g.sub = sub

	g.logger.Info("nats gateway started", "subject", g.cfg.Subject, "queue", g.cfg.Queue)
	return nil
}

// Stop unsubscribes from the subject.
func (g *Gateway) Stop(_ time.Duration) error {
	if g.sub == nil {
		return nil
	}
	if err := g.sub.Unsubscribe(); err != nil {
		return errors.WrapTransient(err, "Gateway", "Stop", "unsubscribe")
	}
	g.sub = nil
	g.logger.Info("nats gateway stopped")
	return nil
}

func (g *Gateway) handle(msg *nats.Msg) {
	var req pipeline.Request
	var resp *pipeline.Response

	if err := json.Unmarshal(msg.Data, &req); err != nil {
		resp = &pipeline.Response{
			Status:   pipeline.StatusInvalidRequest,
			Messages: []string{"malformed request: " + err.Error()},
		}
	} else {
		resp = g.orch.Handle(&req)
	}

	if g.metrics != nil {
		g.metrics.RequestsTotal.WithLabelValues("nats", resp.Status).Inc()
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		g.logger.Error("response marshal failed", "error", err)
		return
	}
	if err := msg.Respond(payload); err != nil {
		g.logger.Warn("reply failed", "subject", msg.Subject, "error", err)
	}
}
