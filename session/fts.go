package session

// ftsStore is the per-session first-time-seen set. Fingerprints are only
// ever added; the set is destroyed with its session, never purged on its
// own. Access is serialized by the owning session's mutex.
type ftsStore struct {
	seen map[string]struct{}
}

func newFTSStore() *ftsStore {
	return &ftsStore{seen: make(map[string]struct{})}
}

// Observe records a fingerprint and reports whether this is its first
// appearance in the session.
func (s *ftsStore) Observe(fingerprint string) bool {
	if _, ok := s.seen[fingerprint]; ok {
		return false
	}
	s.seen[fingerprint] = struct{}{}
	return true
}

// Len returns the number of distinct fingerprints observed.
func (s *ftsStore) Len() int {
	return len(s.seen)
}
