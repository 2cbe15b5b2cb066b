package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/logtest/errors"
	"github.com/c360/logtest/metric"
)

// ReaperConfig controls idle-session eviction.
type ReaperConfig struct {
	// Interval between sweep cycles.
	Interval time.Duration

	// Timeout is how long a session may sit idle before eviction.
	Timeout time.Duration
}

// Reaper periodically evicts sessions idle past the configured timeout.
// Busy sessions are skipped for the cycle and re-evaluated on the next
// one; an idle session only gets more idle, so eviction is never starved.
type Reaper struct {
	store   *Store
	cfg     ReaperConfig
	logger  *slog.Logger
	metrics *metric.Metrics

	cancel context.CancelFunc
	done   chan struct{}
}

// NewReaper creates a reaper over the given store. metrics may be nil.
func NewReaper(store *Store, cfg ReaperConfig, logger *slog.Logger, metrics *metric.Metrics) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		store:   store,
		cfg:     cfg,
		logger:  logger.With("component", "reaper"),
		metrics: metrics,
	}
}

// Initialize validates the reaper configuration.
func (r *Reaper) Initialize() error {
	if r.store == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Reaper", "Initialize", "validate store")
	}
	if r.cfg.Interval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Reaper", "Initialize", "validate sweep interval")
	}
	if r.cfg.Timeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Reaper", "Initialize", "validate session timeout")
	}
	return nil
}

// Start launches the sweep loop. It returns immediately; the loop runs
// until the context is cancelled or Stop is called.
func (r *Reaper) Start(ctx context.Context) error {
	if r.done != nil {
		return errors.Wrap(errors.ErrAlreadyStarted, "Reaper", "Start", "launch sweep loop")
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go r.run(ctx)

	r.logger.Info("reaper started",
		"interval", r.cfg.Interval,
		"timeout", r.cfg.Timeout)
	return nil
}

// Stop cancels the sweep loop and waits up to timeout for it to exit.
func (r *Reaper) Stop(timeout time.Duration) error {
	if r.done == nil {
		return nil
	}
	r.cancel()

	select {
	case <-r.done:
		r.logger.Info("reaper stopped")
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrShutdownTimeout, "Reaper", "Stop", "wait for sweep loop")
	}
}

func (r *Reaper) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(time.Now())
		}
	}
}

// Sweep runs one eviction cycle against the store. Exposed so tests can
// drive cycles without waiting on the ticker.
func (r *Reaper) Sweep(now time.Time) {
	evicted := 0
	skipped := 0

	for _, token := range r.store.SnapshotTokens() {
		sess, ok := r.store.Get(token)
		if !ok {
			continue // removed since the snapshot
		}
		if sess.IdleFor(now) < r.cfg.Timeout {
			continue
		}

		// A busy session is mid-request; leave it for the next cycle.
		if !sess.TryLock() {
			skipped++
			continue
		}

		// Re-check under the lock: the request that held the session may
		// have refreshed the timestamp just before releasing it.
		if sess.IdleFor(now) >= r.cfg.Timeout {
			r.store.Remove(token)
			evicted++
			if r.metrics != nil {
				r.metrics.SessionsExpired.Inc()
			}
			r.logger.Info("session expired", "token", token, "idle", sess.IdleFor(now))
		}
		sess.Unlock()
	}

	if r.metrics != nil {
		r.metrics.ReaperSweeps.Inc()
	}
	if evicted > 0 || skipped > 0 {
		r.logger.Debug("sweep complete", "evicted", evicted, "skipped", skipped)
	}
}
