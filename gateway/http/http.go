// Package http exposes the log-test operation over HTTP: a POST endpoint
// carrying one request frame per call, and a websocket endpoint carrying
// the same framed protocol for interactive rule-testing UIs. Both share
// the session store and orchestrator with the socket listener.
package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/logtest/errors"
	"github.com/c360/logtest/metric"
	"github.com/c360/logtest/pipeline"
)

// Config carries the HTTP gateway settings.
type Config struct {
	// Addr is the bind address, e.g. ":8080".
	Addr string

	// MaxRequestBytes bounds one request body or websocket frame.
	MaxRequestBytes int64
}

// Gateway serves the log-test protocol over HTTP and websocket.
type Gateway struct {
	cfg     Config
	orch    *pipeline.Orchestrator
	logger  *slog.Logger
	metrics *metric.Metrics

	server   *http.Server
	upgrader websocket.Upgrader
	done     chan struct{}
}

// NewGateway creates an HTTP gateway. metrics may be nil.
func NewGateway(cfg Config, orch *pipeline.Orchestrator, logger *slog.Logger, metrics *metric.Metrics) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = 64 * 1024
	}
	return &Gateway{
		cfg:     cfg,
		orch:    orch,
		logger:  logger.With("component", "http-gateway"),
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Initialize validates the gateway configuration.
func (g *Gateway) Initialize() error {
	if g.orch == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Gateway", "Initialize", "validate orchestrator")
	}
	if g.cfg.Addr == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Gateway", "Initialize", "validate bind address")
	}
	return nil
}

// Start binds the HTTP endpoint and serves until Stop. Binding happens
// synchronously so a dead port is reported here, not swallowed by the
// serve goroutine.
func (g *Gateway) Start(_ context.Context) error {
	if g.server != nil {
		return errors.Wrap(errors.ErrAlreadyStarted, "Gateway", "Start", "bind endpoint")
	}

	ln, err := net.Listen("tcp", g.cfg.Addr)
	if err != nil {
		return errors.WrapFatal(err, "Gateway", "Start", "bind "+g.cfg.Addr)
	}

	g.server = &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.done = make(chan struct{})

	go func() {
		defer close(g.done)
		if err := g.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			g.logger.Error("http gateway failed", "error", err)
		}
	}()

	g.logger.Info("http gateway started", "addr", ln.Addr().String())
	return nil
}

// Stop shuts the HTTP server down gracefully.
func (g *Gateway) Stop(timeout time.Duration) error {
	if g.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := g.server.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Gateway", "Stop", "shut down http server")
	}
	<-g.done
	g.logger.Info("http gateway stopped")
	return nil
}

// Handler returns the gateway's mux for tests and embedding.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/logtest", g.handlePost)
	mux.HandleFunc("/v1/logtest/ws", g.handleWebsocket)
	return mux
}

func (g *Gateway) handlePost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, g.cfg.MaxRequestBytes+1))
	if err != nil {
		g.writeResponse(w, http.StatusBadRequest, &pipeline.Response{
			Status:   pipeline.StatusInvalidRequest,
			Messages: []string{"failed to read request body"},
		})
		return
	}
	if int64(len(body)) > g.cfg.MaxRequestBytes {
		g.writeResponse(w, http.StatusRequestEntityTooLarge, &pipeline.Response{
			Status:   pipeline.StatusInvalidRequest,
			Messages: []string{"request body exceeds maximum size"},
		})
		return
	}

	var req pipeline.Request
	if err := json.Unmarshal(body, &req); err != nil {
		g.writeResponse(w, http.StatusBadRequest, &pipeline.Response{
			Status:   pipeline.StatusInvalidRequest,
			Messages: []string{"malformed request: " + err.Error()},
		})
		return
	}

	resp := g.orch.Handle(&req)
	g.writeResponse(w, statusCode(resp.Status), resp)
}

func (g *Gateway) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(g.cfg.MaxRequestBytes)

	if g.metrics != nil {
		g.metrics.ConnectionsActive.Inc()
		g.metrics.ConnectionsTotal.Inc()
		defer g.metrics.ConnectionsActive.Dec()
	}

	for {
		var req pipeline.Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Debug("websocket read failed", "error", err)
			}
			return
		}

		resp := g.orch.Handle(&req)
		if g.metrics != nil {
			g.metrics.RequestsTotal.WithLabelValues("websocket", resp.Status).Inc()
		}
		if err := conn.WriteJSON(resp); err != nil {
			g.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
}

func (g *Gateway) writeResponse(w http.ResponseWriter, code int, resp *pipeline.Response) {
	if g.metrics != nil {
		g.metrics.RequestsTotal.WithLabelValues("http", resp.Status).Inc()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_, _ = w.Write(payload)
}

// statusCode maps protocol statuses onto HTTP codes. Processing outcomes
// stay 200 so clients read the protocol status; only request-shape
// problems surface as HTTP errors.
func statusCode(status string) int {
	switch status {
	case pipeline.StatusInvalidRequest:
		return http.StatusBadRequest
	case pipeline.StatusSessionExpired:
		return http.StatusGone
	default:
		return http.StatusOK
	}
}
