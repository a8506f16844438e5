// Package resubmission owns the attempt lifecycle for rejected claims:
// classify, correct, validate, submit, retry with backoff, and track every
// attempt until the claim is approved or abandoned.
package resubmission

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the state of one resubmission attempt.
type Outcome string

const (
	// OutcomePending is recorded before the backoff wait.
	OutcomePending Outcome = "pending"
	// OutcomeSubmitting is recorded immediately before the gateway call, so
	// a crash mid-flight leaves an auditable record for the recovery sweep.
	OutcomeSubmitting Outcome = "submitting"
	// OutcomeAwaitingResponse covers the window between submission and the
	// gateway's terminal answer.
	OutcomeAwaitingResponse Outcome = "awaiting_response"
	OutcomeApproved         Outcome = "approved"
	OutcomeRejectedAgain    Outcome = "rejected_again"
	OutcomeTransientError   Outcome = "transient_error"
	OutcomeAbandoned        Outcome = "abandoned"
)

// InFlight reports whether the outcome is non-terminal for its attempt.
func (o Outcome) InFlight() bool {
	return o == OutcomePending || o == OutcomeSubmitting || o == OutcomeAwaitingResponse
}

// Attempt maps to the resubmission_attempt table. Numbers are 1-based and
// strictly increasing per claim. Records are written before the external call
// completes and only ever move forward in outcome.
type Attempt struct {
	ID                 uuid.UUID     `db:"id" json:"id"`
	ClaimID            uuid.UUID     `db:"claim_id" json:"claim_id"`
	Number             int           `db:"number" json:"number"`
	IdempotencyKey     uuid.UUID     `db:"idempotency_key" json:"idempotency_key"`
	Outcome            Outcome       `db:"outcome" json:"outcome"`
	RawResponseCode    string        `db:"raw_response_code" json:"raw_response_code,omitempty"`
	RawResponseMessage string        `db:"raw_response_message" json:"raw_response_message,omitempty"`
	RecoveredAmount    float64       `db:"recovered_amount" json:"recovered_amount,omitempty"`
	Latency            time.Duration `db:"latency_ms" json:"latency_ms"`
	StartedAt          time.Time     `db:"started_at" json:"started_at"`
	CompletedAt        *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
}

// Handle is returned by SubmitForResubmission; the terminal outcome is
// observed via GetStatus.
type Handle struct {
	ClaimID    uuid.UUID `json:"claim_id"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// ClaimStatus is the read-model served by GetStatus.
type ClaimStatus struct {
	ClaimID  uuid.UUID `json:"claim_id"`
	Status   string    `json:"status"`
	Attempts []Attempt `json:"attempts"`
}

// ReviewKind says why a claim landed in the manual-review queue.
type ReviewKind string

const (
	ReviewUncorrectable   ReviewKind = "uncorrectable"
	ReviewUnresolvedField ReviewKind = "unresolved_field"
	ReviewInvalid         ReviewKind = "validation_invalid"
	ReviewNeedsSignOff    ReviewKind = "needs_review"
	ReviewExhausted       ReviewKind = "retries_exhausted"
	ReviewCancelled       ReviewKind = "cancelled"
)

// ReviewItem maps to the review_queue table. Terminal non-retryable outcomes
// carry the full context the back office needs: raw payer response and the
// complete attempt history.
type ReviewItem struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	ClaimID    uuid.UUID  `db:"claim_id" json:"claim_id"`
	Kind       ReviewKind `db:"kind" json:"kind"`
	RawCode    string     `db:"raw_code" json:"raw_code,omitempty"`
	RawMessage string     `db:"raw_message" json:"raw_message,omitempty"`
	Detail     string     `db:"detail" json:"detail"`
	Attempts   []Attempt  `json:"attempts,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}
