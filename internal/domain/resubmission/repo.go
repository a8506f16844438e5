package resubmission

import (
	"context"

	"github.com/google/uuid"
)

// AttemptRepository persists resubmission attempts. Attempts are created
// before the external call and advanced to a terminal outcome exactly once.
type AttemptRepository interface {
	Create(ctx context.Context, a *Attempt) error
	Complete(ctx context.Context, id uuid.UUID, outcome Outcome, rawCode, rawMessage string, recovered float64, latencyMS int64) error
	SetOutcome(ctx context.Context, id uuid.UUID, outcome Outcome) error
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]Attempt, error)
	LastNumber(ctx context.Context, claimID uuid.UUID) (int, error)
	// ListInFlight returns attempts stuck in a non-terminal outcome; the
	// recovery sweep reconciles them against the gateway.
	ListInFlight(ctx context.Context) ([]Attempt, error)
}

// ReviewQueueRepository is the manual-review hand-off for terminal
// non-retryable outcomes.
type ReviewQueueRepository interface {
	Add(ctx context.Context, item *ReviewItem) error
	List(ctx context.Context, limit, offset int) ([]*ReviewItem, int, error)
}
