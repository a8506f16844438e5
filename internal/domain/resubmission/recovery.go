package resubmission

import (
	"context"
	"time"

	"github.com/revcycle/revcycle/internal/domain/claims"
	"github.com/revcycle/revcycle/internal/domain/metrics"
)

// RecoverInFlight reconciles attempts left in a non-terminal outcome by a
// crash or shutdown mid-flight. Each dangling attempt is resolved by asking
// the gateway what actually happened under its idempotency key, never by
// guessing.
func (o *Orchestrator) RecoverInFlight(ctx context.Context) error {
	dangling, err := o.attempts.ListInFlight(ctx)
	if err != nil {
		return err
	}
	for _, a := range dangling {
		o.reconcileAttempt(ctx, a)
	}
	return nil
}

func (o *Orchestrator) reconcileAttempt(ctx context.Context, a Attempt) {
	log := o.log.With().
		Str("claim_id", a.ClaimID.String()).
		Int("attempt", a.Number).
		Str("stale_outcome", string(a.Outcome)).
		Logger()

	if o.locks.Held(a.ClaimID) {
		// An active cycle owns this claim; it will resolve its own attempt.
		return
	}

	sctx, cancel := context.WithTimeout(ctx, o.cfg.SubmitTimeout)
	resp, err := o.gateway.Status(sctx, a.IdempotencyKey)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("recovery: gateway status unavailable, will retry next sweep")
		return
	}

	claim, err := o.claims.GetByID(ctx, a.ClaimID)
	if err != nil {
		log.Error().Err(err).Msg("recovery: load claim")
		return
	}

	switch resp.Outcome {
	case GatewayApproved:
		if err := o.attempts.Complete(ctx, a.ID, OutcomeApproved, resp.RawCode, resp.RawMessage, resp.PaidAmount, 0); err != nil {
			log.Error().Err(err).Msg("recovery: complete attempt")
			return
		}
		o.approve(ctx, claim, a.Number, resp)
		log.Info().Msg("recovery: attempt resolved approved")

	case GatewayRejected:
		if err := o.attempts.Complete(ctx, a.ID, OutcomeRejectedAgain, resp.RawCode, resp.RawMessage, 0, 0); err != nil {
			log.Error().Err(err).Msg("recovery: complete attempt")
			return
		}
		o.emitEvent(ctx, claim, a.Number, metrics.OutcomeRejectedAgain, 0)
		_ = o.claims.UpdateRejection(ctx, claim.ID, resp.RawCode, resp.RawMessage)
		_ = o.claims.UpdateStatus(ctx, claim.ID, claims.StatusRejected)
		log.Info().Msg("recovery: attempt resolved rejected, claim requeued for correction")

	case GatewayUnknown:
		// Submission never reached the payer; the attempt was consumed by
		// the crash but no answer will ever come.
		if err := o.attempts.Complete(ctx, a.ID, OutcomeTransientError, "", "no record at gateway", 0, 0); err != nil {
			log.Error().Err(err).Msg("recovery: complete attempt")
			return
		}
		o.emitEvent(ctx, claim, a.Number, metrics.OutcomeTransient, 0)
		_ = o.claims.UpdateStatus(ctx, claim.ID, claims.StatusRejected)
		log.Info().Msg("recovery: attempt unknown at gateway, marked transient")

	default:
		log.Info().Msg("recovery: gateway still processing, leaving attempt in flight")
	}
}

// StartRecoverySweep runs RecoverInFlight once at startup and then on every
// interval tick until Stop is called.
func (o *Orchestrator) StartRecoverySweep(interval time.Duration) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx := context.Background()
		if err := o.RecoverInFlight(ctx); err != nil {
			o.log.Error().Err(err).Msg("recovery sweep failed")
		}
		for {
			select {
			case <-o.stop:
				return
			case <-o.clock.After(interval):
				if err := o.RecoverInFlight(ctx); err != nil {
					o.log.Error().Err(err).Msg("recovery sweep failed")
				}
			}
		}
	}()
}
