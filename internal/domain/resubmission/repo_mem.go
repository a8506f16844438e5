package resubmission

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryAttemptRepo is a thread-safe in-memory AttemptRepository.
type MemoryAttemptRepo struct {
	mu       sync.RWMutex
	attempts map[uuid.UUID]*Attempt
}

func NewMemoryAttemptRepo() *MemoryAttemptRepo {
	return &MemoryAttemptRepo{attempts: make(map[uuid.UUID]*Attempt)}
}

func (m *MemoryAttemptRepo) Create(_ context.Context, a *Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	cp := *a
	m.attempts[a.ID] = &cp
	return nil
}

func (m *MemoryAttemptRepo) Complete(_ context.Context, id uuid.UUID, outcome Outcome, rawCode, rawMessage string, recovered float64, latencyMS int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return ErrAttemptNotFound
	}
	now := time.Now()
	a.Outcome = outcome
	a.RawResponseCode = rawCode
	a.RawResponseMessage = rawMessage
	a.RecoveredAmount = recovered
	a.Latency = time.Duration(latencyMS) * time.Millisecond
	a.CompletedAt = &now
	return nil
}

func (m *MemoryAttemptRepo) SetOutcome(_ context.Context, id uuid.UUID, outcome Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return ErrAttemptNotFound
	}
	a.Outcome = outcome
	return nil
}

func (m *MemoryAttemptRepo) ListByClaim(_ context.Context, claimID uuid.UUID) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Attempt
	for _, a := range m.attempts {
		if a.ClaimID == claimID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *MemoryAttemptRepo) LastNumber(_ context.Context, claimID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	last := 0
	for _, a := range m.attempts {
		if a.ClaimID == claimID && a.Number > last {
			last = a.Number
		}
	}
	return last, nil
}

func (m *MemoryAttemptRepo) ListInFlight(_ context.Context) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Attempt
	for _, a := range m.attempts {
		if a.Outcome.InFlight() {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// MemoryReviewQueue is a thread-safe in-memory ReviewQueueRepository.
type MemoryReviewQueue struct {
	mu    sync.RWMutex
	items []*ReviewItem
}

func NewMemoryReviewQueue() *MemoryReviewQueue {
	return &MemoryReviewQueue{}
}

func (m *MemoryReviewQueue) Add(_ context.Context, item *ReviewItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	m.items = append(m.items, item)
	return nil
}

func (m *MemoryReviewQueue) List(_ context.Context, limit, offset int) ([]*ReviewItem, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := len(m.items)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	out := make([]*ReviewItem, end-offset)
	copy(out, m.items[offset:end])
	return out, total, nil
}
