package claims

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Service owns claim intake and reads. Claims enter the engine from the
// upstream billing workflow already rejected; the service checks the
// structural invariants before accepting them.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, c *Claim) error {
	if c.PayerCode == "" {
		return fmt.Errorf("payer_code is required")
	}
	if c.PatientRef == "" {
		return fmt.Errorf("patient_ref is required")
	}
	if len(c.Items) == 0 {
		return fmt.Errorf("at least one claim item is required")
	}
	for _, it := range c.Items {
		if err := it.Validate(); err != nil {
			return err
		}
	}
	if c.Status == "" {
		c.Status = StatusRejected
	}
	if !ValidStatus(c.Status) {
		return fmt.Errorf("invalid claim status: %s", c.Status)
	}
	if c.Status == StatusRejected && c.RejectionCode == "" {
		return fmt.Errorf("rejection_code is required for rejected claims")
	}
	if c.TotalAmount == 0 {
		c.TotalAmount = c.SumItems()
	}
	return s.repo.Create(ctx, c)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Claim, int, error) {
	if !ValidStatus(status) {
		return nil, 0, fmt.Errorf("invalid claim status: %s", status)
	}
	return s.repo.ListByStatus(ctx, status, limit, offset)
}

func (s *Service) ListByPayer(ctx context.Context, payerCode string, limit, offset int) ([]*Claim, int, error) {
	if payerCode == "" {
		return nil, 0, fmt.Errorf("payer_code is required")
	}
	return s.repo.ListByPayer(ctx, payerCode, limit, offset)
}
