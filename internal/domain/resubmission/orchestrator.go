package resubmission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/revcycle/revcycle/internal/domain/claims"
	"github.com/revcycle/revcycle/internal/domain/correction"
	"github.com/revcycle/revcycle/internal/domain/metrics"
	"github.com/revcycle/revcycle/internal/domain/rejection"
	"github.com/revcycle/revcycle/internal/domain/validation"
)

// Config holds the orchestrator's tuning knobs.
type Config struct {
	MaxAttempts      int           // submission attempts per claim before abandoning
	WorkerCount      int           // bounded concurrency for in-flight submissions
	SubmitTimeout    time.Duration // hard cap on one gateway call
	ScoreTimeout     time.Duration // hard cap on the confidence scorer
	LookupRetryLimit int           // retries for unresolved field lookups
	QueueSize        int
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 30 * time.Second
	}
	if c.ScoreTimeout <= 0 {
		c.ScoreTimeout = 10 * time.Second
	}
	if c.LookupRetryLimit <= 0 {
		c.LookupRetryLimit = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
}

// Orchestrator drives rejected claims through classify, correct, validate,
// submit and retry until a terminal status, guaranteeing at most one active
// resubmission cycle per claim.
type Orchestrator struct {
	cfg        Config
	claims     claims.Repository
	attempts   AttemptRepository
	review     ReviewQueueRepository
	classifier *rejection.Classifier
	corrector  *correction.Corrector
	lookup     correction.FieldLookup
	validator  *validation.Validator
	scorer     validation.Scorer
	gateway    SubmissionGateway
	agg        *metrics.Aggregator
	backoff    *Backoff
	clock      Clock
	log        zerolog.Logger

	locks *claimLocks
	queue chan job

	cancelMu  sync.Mutex
	cancelled map[uuid.UUID]chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Claims     claims.Repository
	Attempts   AttemptRepository
	Review     ReviewQueueRepository
	Classifier *rejection.Classifier
	Corrector  *correction.Corrector
	Lookup     correction.FieldLookup
	Validator  *validation.Validator
	Scorer     validation.Scorer
	Gateway    SubmissionGateway
	Metrics    *metrics.Aggregator
	Backoff    *Backoff
	Clock      Clock
	Logger     zerolog.Logger
}

func NewOrchestrator(cfg Config, deps Deps) *Orchestrator {
	cfg.applyDefaults()
	clock := deps.Clock
	if clock == nil {
		clock = RealClock()
	}
	backoff := deps.Backoff
	if backoff == nil {
		backoff = NewBackoff(time.Second, time.Minute, 0.2)
	}
	return &Orchestrator{
		cfg:        cfg,
		claims:     deps.Claims,
		attempts:   deps.Attempts,
		review:     deps.Review,
		classifier: deps.Classifier,
		corrector:  deps.Corrector,
		lookup:     deps.Lookup,
		validator:  deps.Validator,
		scorer:     deps.Scorer,
		gateway:    deps.Gateway,
		agg:        deps.Metrics,
		backoff:    backoff,
		clock:      clock,
		log:        deps.Logger,
		locks:      newClaimLocks(),
		queue:      make(chan job, cfg.QueueSize),
		cancelled:  make(map[uuid.UUID]chan struct{}),
		stop:       make(chan struct{}),
	}
}

// Start launches the worker pool.
func (o *Orchestrator) Start() {
	o.startOnce.Do(func() {
		for i := 0; i < o.cfg.WorkerCount; i++ {
			o.wg.Add(1)
			go o.worker(i)
		}
	})
}

// Stop shuts the pool down and waits for in-flight cycles to finish. Claims
// still queued at shutdown never ran, so their locks are released here; they
// can be resubmitted after the next start.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stop) })
	o.wg.Wait()
	for {
		select {
		case j := <-o.queue:
			o.locks.Release(j.claimID)
		default:
			return
		}
	}
}

// job is one queued unit of work for the pool.
type job struct {
	claimID  uuid.UUID
	override bool
}

func (o *Orchestrator) worker(id int) {
	defer o.wg.Done()
	for {
		select {
		case <-o.stop:
			return
		case j := <-o.queue:
			o.runCycle(j.claimID, j.override)
		}
	}
}

// SubmitForResubmission accepts a rejected claim into the engine. It returns
// immediately; the terminal outcome is observed via GetStatus. A second call
// while a cycle is active fails with ConcurrentResubmissionError.
//
// With override set, a claim held at corrected status for sign-off is also
// accepted: that is how a reviewer releases a low-confidence hold. Override
// skips the confidence gate only; structural validation still applies.
func (o *Orchestrator) SubmitForResubmission(ctx context.Context, claimID uuid.UUID, override bool) (Handle, error) {
	claim, err := o.claims.GetByID(ctx, claimID)
	if err != nil {
		return Handle{}, err
	}
	eligible := claim.Status == claims.StatusRejected ||
		(override && claim.Status == claims.StatusCorrected)
	if !eligible {
		return Handle{}, fmt.Errorf("claim %s: %w (status %s)", claimID, ErrNotRejected, claim.Status)
	}
	if !o.locks.TryAcquire(claimID) {
		return Handle{}, &ConcurrentResubmissionError{ClaimID: claimID}
	}

	select {
	case o.queue <- job{claimID: claimID, override: override}:
	default:
		o.locks.Release(claimID)
		return Handle{}, fmt.Errorf("resubmission queue full, retry later")
	}
	return Handle{ClaimID: claimID, AcceptedAt: o.clock.Now()}, nil
}

// GetStatus returns the claim status and its full attempt history. Safe to
// call while a cycle is in flight.
func (o *Orchestrator) GetStatus(ctx context.Context, claimID uuid.UUID) (*ClaimStatus, error) {
	claim, err := o.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	attempts, err := o.attempts.ListByClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	return &ClaimStatus{ClaimID: claimID, Status: string(claim.Status), Attempts: attempts}, nil
}

// Cancel withdraws a claim (e.g. a write-off). The cycle observes the signal
// before its next state transition and abandons without submitting.
func (o *Orchestrator) Cancel(claimID uuid.UUID) {
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	if ch, ok := o.cancelled[claimID]; ok {
		select {
		case <-ch:
		default:
			close(ch)
		}
	}
}

func (o *Orchestrator) registerCancel(claimID uuid.UUID) chan struct{} {
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	ch := make(chan struct{})
	o.cancelled[claimID] = ch
	return ch
}

func (o *Orchestrator) unregisterCancel(claimID uuid.UUID) {
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	delete(o.cancelled, claimID)
}

func isCancelled(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// runCycle processes one claim until a terminal-for-this-cycle outcome. The
// claim lock is held for the whole cycle.
func (o *Orchestrator) runCycle(claimID uuid.UUID, override bool) {
	defer o.locks.Release(claimID)
	cancelCh := o.registerCancel(claimID)
	defer o.unregisterCancel(claimID)

	ctx := context.Background()
	log := o.log.With().Str("claim_id", claimID.String()).Logger()

	claim, err := o.claims.GetByID(ctx, claimID)
	if err != nil {
		log.Error().Err(err).Msg("load claim for resubmission")
		return
	}

	rawCode, rawMessage := claim.RejectionCode, claim.RejectionMessage
	attemptNo, err := o.attempts.LastNumber(ctx, claimID)
	if err != nil {
		log.Error().Err(err).Msg("read last attempt number")
		return
	}

	for {
		if isCancelled(cancelCh) {
			o.abandon(ctx, claim, attemptNo, ReviewCancelled, rawCode, rawMessage, "claim withdrawn before submission")
			return
		}

		reason := o.classifier.Classify(rawCode, rawMessage, claim.PayerCode)
		log.Info().
			Str("raw_code", reason.RawCode).
			Str("category", string(reason.Category)).
			Bool("correctable", reason.Correctable).
			Msg("rejection classified")

		corrected, audit, err := o.correctWithRetry(ctx, claim, reason, cancelCh)
		if err != nil {
			o.routeCorrectionFailure(ctx, claim, reason, err)
			return
		}
		corrected.CorrectedAt = o.clock.Now().UTC()
		log.Info().Int("fields_fixed", len(audit)).Msg("claim corrected")
		if err := o.claims.UpdateStatus(ctx, claimID, claims.StatusCorrected); err != nil {
			log.Error().Err(err).Msg("mark claim corrected")
			return
		}

		score := o.scoreWithDegrade(ctx, corrected)
		result := o.validator.Validate(corrected, score, override)
		switch result.Outcome {
		case validation.OutcomeInvalid:
			o.toReview(ctx, claim, &ReviewItem{
				ClaimID: claimID, Kind: ReviewInvalid,
				RawCode: rawCode, RawMessage: rawMessage,
				Detail: fmt.Sprintf("structural validation failed: %v", result.Reasons),
			})
			return
		case validation.OutcomeNeedsReview:
			o.toReview(ctx, claim, &ReviewItem{
				ClaimID: claimID, Kind: ReviewNeedsSignOff,
				RawCode: rawCode, RawMessage: rawMessage,
				Detail: fmt.Sprintf("held for sign-off: %v", result.Reasons),
			})
			return
		}

		attemptNo++
		resp, done := o.submitAttempt(ctx, claim, corrected, attemptNo, cancelCh)
		if done {
			return
		}

		switch resp.Outcome {
		case GatewayApproved:
			o.approve(ctx, claim, attemptNo, resp)
			return

		case GatewayRejected:
			o.emitEvent(ctx, claim, attemptNo, metrics.OutcomeRejectedAgain, 0)
			if attemptNo >= o.cfg.MaxAttempts {
				o.abandon(ctx, claim, attemptNo, ReviewExhausted, resp.RawCode, resp.RawMessage,
					fmt.Sprintf("rejected again on final attempt %d", attemptNo))
				return
			}
			// Re-enter the classifier with the new raw code: a claim may
			// traverse several distinct rejection categories across its
			// resubmission history.
			rawCode, rawMessage = resp.RawCode, resp.RawMessage
			if err := o.claims.UpdateRejection(ctx, claimID, rawCode, rawMessage); err != nil {
				log.Error().Err(err).Msg("record new rejection")
			}
			if err := o.claims.UpdateStatus(ctx, claimID, claims.StatusRejected); err != nil {
				log.Error().Err(err).Msg("mark claim rejected")
			}
			claim.RejectionCode, claim.RejectionMessage = rawCode, rawMessage

		case GatewayTransient:
			o.emitEvent(ctx, claim, attemptNo, metrics.OutcomeTransient, 0)
			if attemptNo >= o.cfg.MaxAttempts {
				o.abandon(ctx, claim, attemptNo, ReviewExhausted, resp.RawCode, resp.RawMessage,
					fmt.Sprintf("transient failures exhausted %d attempts", attemptNo))
				return
			}
		}
	}
}

// correctWithRetry applies the correction strategy, retrying unresolved
// lookups a bounded number of times. Uncorrectable reasons fail immediately.
func (o *Orchestrator) correctWithRetry(ctx context.Context, claim *claims.Claim, reason rejection.Reason, cancelCh chan struct{}) (*claims.CorrectedClaim, []correction.ChangeAudit, error) {
	var lastErr error
	for try := 0; ; try++ {
		corrected, audit, err := o.corrector.Apply(ctx, claim, reason, o.lookup)
		if err == nil {
			return corrected, audit, nil
		}
		var unresolved *correction.UnresolvedFieldError
		if !errors.As(err, &unresolved) || try >= o.cfg.LookupRetryLimit {
			return nil, nil, err
		}
		lastErr = err
		select {
		case <-o.clock.After(o.backoff.Delay(try + 1)):
		case <-cancelCh:
			return nil, nil, lastErr
		case <-o.stop:
			return nil, nil, lastErr
		}
	}
}

func (o *Orchestrator) routeCorrectionFailure(ctx context.Context, claim *claims.Claim, reason rejection.Reason, err error) {
	item := &ReviewItem{
		ClaimID:    claim.ID,
		RawCode:    reason.RawCode,
		RawMessage: reason.RawMessage,
		Detail:     err.Error(),
	}
	var uncorrectable *correction.UncorrectableReasonError
	var unresolved *correction.UnresolvedFieldError
	switch {
	case errors.As(err, &uncorrectable):
		item.Kind = ReviewUncorrectable
	case errors.As(err, &unresolved):
		item.Kind = ReviewUnresolvedField
	default:
		item.Kind = ReviewUncorrectable
	}
	o.toReview(ctx, claim, item)
}

// scoreWithDegrade asks the external confidence scorer. Unavailability or
// failure degrades to a zero score, which the validator turns into
// NeedsReview; the orchestrator never crashes on scorer trouble.
func (o *Orchestrator) scoreWithDegrade(ctx context.Context, corrected *claims.CorrectedClaim) validation.ConfidenceScore {
	if o.scorer == nil {
		return validation.ConfidenceScore{}
	}
	sctx, cancel := context.WithTimeout(ctx, o.cfg.ScoreTimeout)
	defer cancel()
	score, err := o.scorer.Score(sctx, corrected)
	if err != nil {
		o.log.Warn().Err(err).Str("claim_id", corrected.BaseClaimID.String()).
			Msg("confidence scorer unavailable, degrading to review")
		return validation.ConfidenceScore{}
	}
	return score
}

// submitAttempt runs the backoff wait and one gateway call for attempt n.
// The attempt record is persisted before the external call so a crash leaves
// an auditable in-flight row. done is true when the cycle already reached a
// terminal route (cancellation) inside this step.
func (o *Orchestrator) submitAttempt(ctx context.Context, claim *claims.Claim, corrected *claims.CorrectedClaim, n int, cancelCh chan struct{}) (GatewayResponse, bool) {
	log := o.log.With().Str("claim_id", claim.ID.String()).Int("attempt", n).Logger()

	attempt := &Attempt{
		ClaimID:        claim.ID,
		Number:         n,
		IdempotencyKey: uuid.New(),
		Outcome:        OutcomePending,
		StartedAt:      o.clock.Now(),
	}
	if err := o.attempts.Create(ctx, attempt); err != nil {
		log.Error().Err(err).Msg("persist attempt")
		return GatewayResponse{Outcome: GatewayTransient, RawMessage: err.Error()}, false
	}

	select {
	case <-o.clock.After(o.backoff.Delay(n)):
	case <-cancelCh:
		_ = o.attempts.Complete(ctx, attempt.ID, OutcomeAbandoned, "", "claim withdrawn during backoff", 0, 0)
		o.abandon(ctx, claim, n, ReviewCancelled, claim.RejectionCode, claim.RejectionMessage,
			"claim withdrawn during backoff wait")
		return GatewayResponse{}, true
	case <-o.stop:
		// Leave the pending record for the recovery sweep after restart.
		return GatewayResponse{}, true
	}

	if err := o.attempts.SetOutcome(ctx, attempt.ID, OutcomeSubmitting); err != nil {
		log.Error().Err(err).Msg("mark attempt submitting")
	}
	if err := o.claims.UpdateStatus(ctx, claim.ID, claims.StatusResubmitted); err != nil {
		log.Error().Err(err).Msg("mark claim resubmitted")
	}

	payload := Payload{
		ClaimID:        claim.ID,
		IdempotencyKey: attempt.IdempotencyKey,
		PayerCode:      claim.PayerCode,
		Claim:          corrected.Payload,
	}

	start := o.clock.Now()
	if err := o.attempts.SetOutcome(ctx, attempt.ID, OutcomeAwaitingResponse); err != nil {
		log.Error().Err(err).Msg("mark attempt awaiting response")
	}

	sctx, cancel := context.WithTimeout(ctx, o.cfg.SubmitTimeout)
	resp, err := o.gateway.Submit(sctx, payload)
	cancel()
	latency := o.clock.Now().Sub(start)

	if err != nil {
		// Timeout or transport failure: absence of evidence is not evidence
		// of an answer either way, so this is transient.
		resp = GatewayResponse{Outcome: GatewayTransient, RawMessage: err.Error()}
	}

	outcome := outcomeFor(resp.Outcome)
	if err := o.attempts.Complete(ctx, attempt.ID, outcome, resp.RawCode, resp.RawMessage, resp.PaidAmount, latency.Milliseconds()); err != nil {
		log.Error().Err(err).Msg("complete attempt")
	}
	log.Info().Str("outcome", string(outcome)).Dur("latency", latency).Msg("attempt completed")
	return resp, false
}

func outcomeFor(g GatewayOutcome) Outcome {
	switch g {
	case GatewayApproved:
		return OutcomeApproved
	case GatewayRejected:
		return OutcomeRejectedAgain
	default:
		return OutcomeTransientError
	}
}

func (o *Orchestrator) approve(ctx context.Context, claim *claims.Claim, n int, resp GatewayResponse) {
	if err := o.claims.UpdateStatus(ctx, claim.ID, claims.StatusApproved); err != nil {
		o.log.Error().Err(err).Str("claim_id", claim.ID.String()).Msg("mark claim approved")
	}
	o.emitEvent(ctx, claim, n, metrics.OutcomeApproved, resp.PaidAmount)
	o.log.Info().Str("claim_id", claim.ID.String()).
		Float64("recovered", resp.PaidAmount).
		Int("attempts", n).
		Msg("claim approved")
}

// abandon ends the cycle: the claim is marked abandoned and handed to manual
// review with its full attempt history.
func (o *Orchestrator) abandon(ctx context.Context, claim *claims.Claim, n int, kind ReviewKind, rawCode, rawMessage, detail string) {
	if err := o.claims.UpdateStatus(ctx, claim.ID, claims.StatusAbandoned); err != nil {
		o.log.Error().Err(err).Str("claim_id", claim.ID.String()).Msg("mark claim abandoned")
	}
	o.emitEvent(ctx, claim, n, metrics.OutcomeAbandoned, 0)
	o.toReview(ctx, claim, &ReviewItem{
		ClaimID: claim.ID, Kind: kind,
		RawCode: rawCode, RawMessage: rawMessage, Detail: detail,
	})
	o.log.Warn().Str("claim_id", claim.ID.String()).
		Str("kind", string(kind)).
		Int("attempts", n).
		Msg("claim abandoned")
}

func (o *Orchestrator) toReview(ctx context.Context, claim *claims.Claim, item *ReviewItem) {
	attempts, err := o.attempts.ListByClaim(ctx, claim.ID)
	if err == nil {
		item.Attempts = attempts
	}
	if err := o.review.Add(ctx, item); err != nil {
		o.log.Error().Err(err).Str("claim_id", claim.ID.String()).Msg("enqueue review item")
	}
}

func (o *Orchestrator) emitEvent(ctx context.Context, claim *claims.Claim, n int, outcome string, recovered float64) {
	reason := o.classifier.Classify(claim.RejectionCode, claim.RejectionMessage, claim.PayerCode)
	ev := metrics.AttemptEvent{
		ClaimID:         claim.ID,
		PayerCode:       claim.PayerCode,
		Category:        string(reason.Category),
		AttemptNumber:   n,
		Outcome:         outcome,
		RecoveredAmount: recovered,
		Timestamp:       o.clock.Now().UTC(),
	}
	if err := o.agg.Record(ctx, ev); err != nil {
		o.log.Error().Err(err).Str("claim_id", claim.ID.String()).Msg("record metrics event")
	}
}
