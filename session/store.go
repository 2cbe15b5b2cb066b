package session

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/c360/logtest/engine"
	"github.com/c360/logtest/errors"
	"github.com/c360/logtest/metric"
)

// StoreConfig carries the per-session defaults the store applies when
// allocating new sessions.
type StoreConfig struct {
	HistorySize int
	Accumulator AccumulatorConfig
}

// Store is the process-wide session registry. It is the only place
// sessions are created, resolved, or removed, and is safe for concurrent
// use by request workers and the reaper.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	defaults *engine.Ruleset
	cfg      StoreConfig
	logger   *slog.Logger
	metrics  *metric.Metrics
}

// NewStore creates a session store sharing the given default ruleset
// across sessions that do not supply their own. metrics may be nil.
func NewStore(defaults *engine.Ruleset, cfg StoreConfig, logger *slog.Logger, metrics *metric.Metrics) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 64
	}
	return &Store{
		sessions: make(map[string]*Session),
		defaults: defaults,
		cfg:      cfg,
		logger:   logger.With("component", "session-store"),
		metrics:  metrics,
	}
}

// Create allocates and registers a new session. An empty or already-taken
// token is replaced with a fresh server-issued one. A non-nil override
// ruleset makes the session private; nil shares the default.
func (s *Store) Create(token string, override *engine.Ruleset) (*Session, error) {
	ruleset := s.defaults
	private := false
	if override != nil {
		ruleset = override
		private = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if token == "" || s.sessions[token] != nil {
		for {
			token = uuid.NewString()
			if s.sessions[token] == nil {
				break
			}
		}
	}

	sess, err := newSession(token, ruleset, private, s.cfg.HistorySize, s.cfg.Accumulator)
	if err != nil {
		return nil, errors.Wrap(err, "Store", "Create", "allocate session")
	}
	s.sessions[token] = sess

	if s.metrics != nil {
		s.metrics.SessionsCreated.Inc()
		s.metrics.SessionsActive.Set(float64(len(s.sessions)))
	}
	s.logger.Info("session created", "token", token, "private_ruleset", private)

	return sess, nil
}

// Get resolves a token without refreshing its activity timestamp. The
// caller touches the session only after a request succeeds, so failed
// requests do not keep a session alive.
func (s *Store) Get(token string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[token]
	return sess, ok
}

// Touch refreshes the activity timestamp for token, if registered.
func (s *Store) Touch(token string) bool {
	sess, ok := s.Get(token)
	if !ok {
		return false
	}
	sess.Touch()
	return true
}

// Remove deletes the session and marks it removed so in-flight holders
// observe the expiry. Removing an absent token is a no-op returning false.
func (s *Store) Remove(token string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[token]
	if ok {
		delete(s.sessions, token)
	}
	active := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return false
	}

	sess.markRemoved()
	if s.metrics != nil {
		s.metrics.SessionsActive.Set(float64(active))
	}
	s.logger.Info("session removed", "token", token)
	return true
}

// SnapshotTokens returns the current token set. The reaper iterates the
// snapshot so the store is never locked for a whole sweep.
func (s *Store) SnapshotTokens() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens := make([]string, 0, len(s.sessions))
	for token := range s.sessions {
		tokens = append(tokens, token)
	}
	return tokens
}

// Len returns the number of registered sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
