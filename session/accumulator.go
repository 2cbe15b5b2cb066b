package session

import (
	"time"
)

// AccumulatorConfig controls per-session correlation bookkeeping.
type AccumulatorConfig struct {
	// PurgeLookups triggers a sweep after this many recorded lookups
	// since the last purge. Zero disables the count trigger.
	PurgeLookups int

	// PurgeInterval triggers a sweep once this much time has passed since
	// the last purge. Zero disables the time trigger.
	PurgeInterval time.Duration

	// Window is how long an entry stays relevant. Entries whose first
	// observation is older than the window are dropped on sweep.
	Window time.Duration
}

type accEntry struct {
	count     int
	firstSeen time.Time
}

// accumulator is the per-session correlation store mapping a correlation
// key to its hit count and first observation. Access is serialized by the
// owning session's mutex.
type accumulator struct {
	cfg       AccumulatorConfig
	entries   map[string]*accEntry
	lookups   int
	lastPurge time.Time
}

func newAccumulator(cfg AccumulatorConfig, now time.Time) *accumulator {
	return &accumulator{
		cfg:       cfg,
		entries:   make(map[string]*accEntry),
		lastPurge: now,
	}
}

// Record looks up or creates the entry for key, increments its count, and
// runs a sweep if either purge trigger fires. It returns the accumulated
// count and the first observation time for the key.
func (a *accumulator) Record(key string, now time.Time) (int, time.Time) {
	entry, ok := a.entries[key]
	if !ok {
		entry = &accEntry{firstSeen: now}
		a.entries[key] = entry
	}
	entry.count++
	a.lookups++

	a.maybePurge(now)

	return entry.count, entry.firstSeen
}

// maybePurge sweeps stale entries when the lookup count or the elapsed
// time since the last purge crosses its threshold. When both thresholds
// are crossed at once a single sweep runs and both baselines reset.
func (a *accumulator) maybePurge(now time.Time) {
	countDue := a.cfg.PurgeLookups > 0 && a.lookups >= a.cfg.PurgeLookups
	timeDue := a.cfg.PurgeInterval > 0 && now.Sub(a.lastPurge) >= a.cfg.PurgeInterval
	if !countDue && !timeDue {
		return
	}

	cutoff := now.Add(-a.cfg.Window)
	for key, entry := range a.entries {
		if entry.firstSeen.Before(cutoff) {
			delete(a.entries, key)
		}
	}

	a.lookups = 0
	a.lastPurge = now
}

// Len returns the number of live entries.
func (a *accumulator) Len() int {
	return len(a.entries)
}
