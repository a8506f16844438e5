package resubmission

import (
	"sync"

	"github.com/google/uuid"
)

// claimLocks enforces per-claim mutual exclusion: at most one resubmission
// cycle may be active per claim identifier. TryAcquire never blocks; a
// second caller gets false and must surface ConcurrentResubmissionError.
type claimLocks struct {
	mu   sync.Mutex
	held map[uuid.UUID]struct{}
}

func newClaimLocks() *claimLocks {
	return &claimLocks{held: make(map[uuid.UUID]struct{})}
}

func (l *claimLocks) TryAcquire(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[id]; ok {
		return false
	}
	l.held[id] = struct{}{}
	return true
}

func (l *claimLocks) Release(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, id)
}

func (l *claimLocks) Held(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[id]
	return ok
}
