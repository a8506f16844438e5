package resubmission

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotRejected is returned when a claim is handed to the engine in any
// status other than rejected.
var ErrNotRejected = errors.New("claim is not in rejected status")

// ErrAttemptNotFound is returned for lookups of unknown attempts.
var ErrAttemptNotFound = errors.New("attempt not found")

// ConcurrentResubmissionError rejects a second resubmission request for a
// claim whose previous request has not reached a terminal status. Callers
// must poll GetStatus instead of retrying.
type ConcurrentResubmissionError struct {
	ClaimID uuid.UUID
}

func (e *ConcurrentResubmissionError) Error() string {
	return fmt.Sprintf("claim %s already has a resubmission in flight", e.ClaimID)
}
