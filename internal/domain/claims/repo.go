package claims

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a claim does not exist.
var ErrNotFound = errors.New("claim not found")

type Repository interface {
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	UpdateRejection(ctx context.Context, id uuid.UUID, code, message string) error
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Claim, int, error)
	ListByPayer(ctx context.Context, payerCode string, limit, offset int) ([]*Claim, int, error)
}
