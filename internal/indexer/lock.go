package indexer

import "sync"

// documentLocks provides non-blocking per-document lock semantics so two
// runs never replace the same chunk set concurrently.
type documentLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// tryAcquire attempts to lock documentID without blocking.
// Returns true if the lock was acquired, false if another run holds it.
func (l *documentLocks) tryAcquire(documentID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]struct{})
	}
	if _, busy := l.held[documentID]; busy {
		return false
	}
	l.held[documentID] = struct{}{}
	return true
}

// release unlocks documentID.
// Must only be called by the run that acquired it.
func (l *documentLocks) release(documentID string) {
	l.mu.Lock()
	delete(l.held, documentID)
	l.mu.Unlock()
}
