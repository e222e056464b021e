package service

import (
	"sync"

	"github.com/google/uuid"
)

// leadLocks serializes the score→classify→match pipeline per lead.
// Concurrent recalculation of the same lead must not interleave, or two
// writers could both read the same stale previous state and double-fire a
// threshold workflow. Different leads lock independently.
type leadLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*leadLock
}

type leadLock struct {
	mu   sync.Mutex
	refs int
}

func newLeadLocks() *leadLocks {
	return &leadLocks{locks: make(map[uuid.UUID]*leadLock)}
}

// Acquire blocks until the lead's lock is held and returns the release
// function. Lock entries are reference counted so the map does not grow
// with every lead ever scored.
func (l *leadLocks) Acquire(leadID uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.locks[leadID]
	if !ok {
		entry = &leadLock{}
		l.locks[leadID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, leadID)
		}
		l.mu.Unlock()
	}
}
