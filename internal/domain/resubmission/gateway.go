package resubmission

import (
	"context"

	"github.com/google/uuid"

	"github.com/revcycle/revcycle/internal/domain/claims"
)

// GatewayOutcome is the clearinghouse's answer to one submission.
type GatewayOutcome string

const (
	GatewayApproved GatewayOutcome = "approved"
	GatewayRejected GatewayOutcome = "rejected"
	// GatewayTransient covers network failures, 5xx-equivalents and
	// timeouts: the submission may or may not have reached the payer.
	GatewayTransient GatewayOutcome = "transient"
	// GatewayUnknown is only returned by Status when the gateway has no
	// record of the idempotency key: the submission never arrived.
	GatewayUnknown GatewayOutcome = "unknown"
)

// Payload is the corrected claim as handed to the clearinghouse. The
// idempotency key is unique per attempt so a network-level retry by the
// gateway itself cannot double-submit.
type Payload struct {
	ClaimID        uuid.UUID    `json:"claim_id"`
	IdempotencyKey uuid.UUID    `json:"idempotency_key"`
	PayerCode      string       `json:"payer_code"`
	Claim          claims.Claim `json:"claim"`
}

// GatewayResponse is the terminal answer for one submission.
type GatewayResponse struct {
	Outcome    GatewayOutcome `json:"outcome"`
	RawCode    string         `json:"raw_code,omitempty"`
	RawMessage string         `json:"raw_message,omitempty"`
	PaidAmount float64        `json:"paid_amount,omitempty"`
}

// SubmissionGateway is the external payer/clearinghouse boundary. Submit
// blocks until the gateway answers or ctx expires; transport errors are
// treated as transient by the orchestrator. Status lets the recovery sweep
// reconcile attempts whose answer was lost mid-flight.
type SubmissionGateway interface {
	Submit(ctx context.Context, payload Payload) (GatewayResponse, error)
	Status(ctx context.Context, idempotencyKey uuid.UUID) (GatewayResponse, error)
}
