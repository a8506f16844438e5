package payer

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/revcycle/revcycle/internal/domain/claims"
	"github.com/revcycle/revcycle/internal/domain/resubmission"
	"github.com/revcycle/revcycle/internal/domain/validation"
)

// SandboxGateway is an in-process clearinghouse for development. It approves
// every submission and remembers responses by idempotency key so the recovery
// sweep behaves like it would against a real gateway.
type SandboxGateway struct {
	mu        sync.Mutex
	responses map[uuid.UUID]resubmission.GatewayResponse
}

func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{responses: make(map[uuid.UUID]resubmission.GatewayResponse)}
}

func (g *SandboxGateway) Submit(_ context.Context, payload resubmission.Payload) (resubmission.GatewayResponse, error) {
	resp := resubmission.GatewayResponse{
		Outcome:    resubmission.GatewayApproved,
		PaidAmount: payload.Claim.TotalAmount,
	}
	g.mu.Lock()
	g.responses[payload.IdempotencyKey] = resp
	g.mu.Unlock()
	return resp, nil
}

func (g *SandboxGateway) Status(_ context.Context, idempotencyKey uuid.UUID) (resubmission.GatewayResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if resp, ok := g.responses[idempotencyKey]; ok {
		return resp, nil
	}
	return resubmission.GatewayResponse{Outcome: resubmission.GatewayUnknown}, nil
}

// SandboxScorer returns a fixed confidence for every corrected claim.
type SandboxScorer struct {
	Confidence float64
}

func (s SandboxScorer) Score(_ context.Context, _ *claims.CorrectedClaim) (validation.ConfidenceScore, error) {
	return validation.ConfidenceScore{Score: s.Confidence, ModelID: "sandbox"}, nil
}
