package claims

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle status of a claim. A claim becomes immutable once
// it reaches StatusSubmitted; corrections always produce a new CorrectedClaim
// value rather than editing the original.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusSubmitted   Status = "submitted"
	StatusRejected    Status = "rejected"
	StatusCorrected   Status = "corrected"
	StatusResubmitted Status = "resubmitted"
	StatusApproved    Status = "approved"
	StatusAbandoned   Status = "abandoned"
)

// Terminal reports whether the status ends the resubmission lifecycle.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusAbandoned
}

var validStatuses = map[Status]bool{
	StatusDraft: true, StatusSubmitted: true, StatusRejected: true,
	StatusCorrected: true, StatusResubmitted: true, StatusApproved: true,
	StatusAbandoned: true,
}

// ValidStatus reports whether s is a known claim status.
func ValidStatus(s Status) bool { return validStatuses[s] }

// Item is a single billable line on a claim.
type Item struct {
	Sequence    int     `db:"sequence" json:"sequence"`
	ServiceCode string  `db:"service_code" json:"service_code"`
	Quantity    int     `db:"quantity" json:"quantity"`
	UnitPrice   float64 `db:"unit_price" json:"unit_price"`
}

// LineTotal is quantity times unit price.
func (it Item) LineTotal() float64 {
	return float64(it.Quantity) * it.UnitPrice
}

// Validate checks the item-level invariants.
func (it Item) Validate() error {
	if it.ServiceCode == "" {
		return fmt.Errorf("item %d: service_code is required", it.Sequence)
	}
	if it.Quantity <= 0 {
		return fmt.Errorf("item %d: quantity must be positive, got %d", it.Sequence, it.Quantity)
	}
	if it.UnitPrice < 0 {
		return fmt.Errorf("item %d: unit_price must not be negative, got %f", it.Sequence, it.UnitPrice)
	}
	return nil
}

// Claim maps to the claim table. PatientRef and ProviderRef are opaque
// identifiers owned by the upstream claim workflow; Attributes carries the
// payer-facing fields (authorization numbers, diagnosis codes, place of
// service) that correction strategies target by name.
type Claim struct {
	ID               uuid.UUID         `db:"id" json:"id"`
	PayerCode        string            `db:"payer_code" json:"payer_code"`
	PatientRef       string            `db:"patient_ref" json:"patient_ref"`
	ProviderRef      string            `db:"provider_ref" json:"provider_ref"`
	Items            []Item            `json:"items"`
	TotalAmount      float64           `db:"total_amount" json:"total_amount"`
	Status           Status            `db:"status" json:"status"`
	RejectionCode    string            `db:"rejection_code" json:"rejection_code,omitempty"`
	RejectionMessage string            `db:"rejection_message" json:"rejection_message,omitempty"`
	Attributes       map[string]string `json:"attributes,omitempty"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy. Correction and validation operate on copies so
// the stored claim is never mutated in place.
func (c *Claim) Clone() *Claim {
	cp := *c
	cp.Items = make([]Item, len(c.Items))
	copy(cp.Items, c.Items)
	cp.Attributes = make(map[string]string, len(c.Attributes))
	for k, v := range c.Attributes {
		cp.Attributes[k] = v
	}
	return &cp
}

// SumItems returns the sum of all line totals.
func (c *Claim) SumItems() float64 {
	var sum float64
	for _, it := range c.Items {
		sum += it.LineTotal()
	}
	return sum
}

// TotalTolerance is the rounding slack allowed between the claim total and
// the sum of its line totals, in currency units.
const TotalTolerance = 0.01

// TotalConsistent reports whether TotalAmount matches the line totals within
// TotalTolerance.
func (c *Claim) TotalConsistent() bool {
	return math.Abs(c.TotalAmount-c.SumItems()) <= TotalTolerance
}

// CorrectedClaim is the immutable output of applying a correction strategy to
// a rejected claim. Payload holds the full corrected claim value; the original
// claim is left untouched.
type CorrectedClaim struct {
	BaseClaimID uuid.UUID `json:"base_claim_id"`
	Payload     Claim     `json:"payload"`
	Category    string    `json:"category"`
	CorrectedAt time.Time `json:"corrected_at"`
}
