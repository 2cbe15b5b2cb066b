// Package session owns the per-client state of the log-testing service:
// the session bundle itself, the thread-safe store registering sessions by
// token, and the reaper that evicts idle sessions.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/logtest/engine"
	"github.com/c360/logtest/pkg/ring"
)

// Session is one client's private analysis state. All mutable stores are
// reachable only while holding the session mutex; the activity timestamp
// and the removed flag are atomics so the reaper can inspect them without
// contending with an in-flight request.
type Session struct {
	Token   string
	Created time.Time

	mu           sync.Mutex
	lastActivity atomic.Int64 // unix nanoseconds
	removed      atomic.Bool

	ruleset *engine.Ruleset
	private bool // session-supplied ruleset rather than the shared default

	history *ring.Ring[*engine.Event]
	fts     *ftsStore
	acc     *accumulator
}

func newSession(token string, ruleset *engine.Ruleset, private bool, historySize int, accCfg AccumulatorConfig) (*Session, error) {
	history, err := ring.New[*engine.Event](historySize)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s := &Session{
		Token:   token,
		Created: now,
		ruleset: ruleset,
		private: private,
		history: history,
		fts:     newFTSStore(),
		acc:     newAccumulator(accCfg, now),
	}
	s.lastActivity.Store(now.UnixNano())
	return s, nil
}

// Lock acquires the session for exclusive use by one orchestration run.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session.
func (s *Session) Unlock() { s.mu.Unlock() }

// TryLock acquires the session only if it is not busy. The reaper uses it
// so eviction never blocks behind an in-flight request.
func (s *Session) TryLock() bool { return s.mu.TryLock() }

// Touch refreshes the activity timestamp.
func (s *Session) Touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the time of the last successful request.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// IdleFor returns how long the session has been without activity.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity())
}

// Removed reports whether the session has been deleted from its store. A
// caller that resolved the session before removal must treat it as expired.
func (s *Session) Removed() bool { return s.removed.Load() }

func (s *Session) markRemoved() { s.removed.Store(true) }

// Ruleset returns the session's compiled decoder/rule/list bundle.
func (s *Session) Ruleset() *engine.Ruleset { return s.ruleset }

// PrivateRuleset reports whether the session compiled its own override
// ruleset instead of sharing the default.
func (s *Session) PrivateRuleset() bool { return s.private }

// History returns the session's rolling event window.
func (s *Session) History() *ring.Ring[*engine.Event] { return s.history }

// FirstTimeSeen records a fingerprint in the session's dedup store and
// reports whether it was new. Caller must hold the session lock.
func (s *Session) FirstTimeSeen(fingerprint string) bool {
	return s.fts.Observe(fingerprint)
}

// Accumulate records a correlation key. Caller must hold the session lock.
func (s *Session) Accumulate(key string, now time.Time) (int, time.Time) {
	return s.acc.Record(key, now)
}
