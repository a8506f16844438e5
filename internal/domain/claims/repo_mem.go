package claims

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is a thread-safe in-memory Repository used by tests and the
// sandbox mode of the server.
type MemoryRepo struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Claim
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[uuid.UUID]*Claim)}
}

func (m *MemoryRepo) Create(_ context.Context, c *Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	m.items[c.ID] = c.Clone()
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (m *MemoryRepo) UpdateStatus(_ context.Context, id uuid.UUID, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryRepo) UpdateRejection(_ context.Context, id uuid.UUID, code, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	c.RejectionCode = code
	c.RejectionMessage = message
	c.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryRepo) ListByStatus(_ context.Context, status Status, limit, offset int) ([]*Claim, int, error) {
	return m.list(func(c *Claim) bool { return c.Status == status }, limit, offset)
}

func (m *MemoryRepo) ListByPayer(_ context.Context, payerCode string, limit, offset int) ([]*Claim, int, error) {
	return m.list(func(c *Claim) bool { return c.PayerCode == payerCode }, limit, offset)
}

func (m *MemoryRepo) list(match func(*Claim) bool, limit, offset int) ([]*Claim, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []*Claim
	for _, c := range m.items {
		if match(c) {
			all = append(all, c.Clone())
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}
