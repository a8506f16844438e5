// Package validation revalidates corrected claims before resubmission.
// Structural rules decide Valid vs Invalid; the externally-supplied
// confidence score decides Valid vs NeedsReview.
package validation

import (
	"context"
	"fmt"

	"github.com/revcycle/revcycle/internal/domain/claims"
)

// Outcome is the validator's verdict.
type Outcome string

const (
	// OutcomeValid clears the claim for resubmission.
	OutcomeValid Outcome = "valid"
	// OutcomeInvalid means a structural rule is violated; terminal for this
	// resubmission cycle and never counted as an attempt.
	OutcomeInvalid Outcome = "invalid"
	// OutcomeNeedsReview means the claim is structurally fine but the
	// confidence score is below the configured threshold; human sign-off
	// required before submission.
	OutcomeNeedsReview Outcome = "needs_review"
)

// Result carries the verdict plus the violated rules for OutcomeInvalid.
type Result struct {
	Outcome Outcome  `json:"outcome"`
	Reasons []string `json:"reasons,omitempty"`
}

// ConfidenceScore is the opaque output of the external AI-validation
// collaborator. Score is in [0, 1].
type ConfidenceScore struct {
	Score   float64 `json:"score"`
	ModelID string  `json:"model_id,omitempty"`
}

// Scorer is the external confidence-scoring collaborator. It may be slow or
// unavailable; callers degrade a failure to OutcomeNeedsReview rather than
// aborting the pipeline.
type Scorer interface {
	Score(ctx context.Context, corrected *claims.CorrectedClaim) (ConfidenceScore, error)
}

// Validator checks corrected claims for submit-readiness.
type Validator struct {
	minConfidence float64
}

func NewValidator(minConfidence float64) *Validator {
	return &Validator{minConfidence: minConfidence}
}

// MinConfidence returns the configured threshold.
func (v *Validator) MinConfidence() float64 { return v.minConfidence }

// Validate applies structural checks, then the confidence gate. The override
// flag skips the gate only; structural failures are never overridable.
func (v *Validator) Validate(corrected *claims.CorrectedClaim, confidence ConfidenceScore, override bool) Result {
	if reasons := structuralReasons(&corrected.Payload); len(reasons) > 0 {
		return Result{Outcome: OutcomeInvalid, Reasons: reasons}
	}
	if !override && confidence.Score < v.minConfidence {
		return Result{Outcome: OutcomeNeedsReview, Reasons: []string{
			fmt.Sprintf("confidence %.2f below threshold %.2f", confidence.Score, v.minConfidence),
		}}
	}
	return Result{Outcome: OutcomeValid}
}

func structuralReasons(c *claims.Claim) []string {
	var reasons []string
	if len(c.Items) == 0 {
		reasons = append(reasons, "claim has no items")
	}
	for _, it := range c.Items {
		if err := it.Validate(); err != nil {
			reasons = append(reasons, err.Error())
		}
	}
	if !c.TotalConsistent() {
		reasons = append(reasons, fmt.Sprintf(
			"total_amount %.2f does not match sum of line totals %.2f",
			c.TotalAmount, c.SumItems()))
	}
	return reasons
}
