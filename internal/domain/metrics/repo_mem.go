package metrics

import (
	"context"
	"sync"
)

// MemoryEventRepo is a thread-safe in-memory EventRepository. Appends are
// independent inserts so concurrent writers never race on shared counters.
type MemoryEventRepo struct {
	mu     sync.RWMutex
	events []AttemptEvent
}

func NewMemoryEventRepo() *MemoryEventRepo {
	return &MemoryEventRepo{}
}

func (m *MemoryEventRepo) Append(_ context.Context, ev AttemptEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *MemoryEventRepo) List(_ context.Context, f Filter) ([]AttemptEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []AttemptEvent
	for _, ev := range m.events {
		if f.PayerCode != "" && ev.PayerCode != f.PayerCode {
			continue
		}
		if f.Category != "" && ev.Category != f.Category {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
