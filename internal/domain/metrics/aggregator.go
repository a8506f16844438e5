// Package metrics maintains rolling resubmission counters per payer and
// rejection category. The append-only event log is the single source of
// truth; snapshots are computed from it on demand, so aggregation is
// independent of event arrival order.
package metrics

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// AttemptEvent is one orchestrator outcome, recorded exactly once per
// attempt. Events carry their own timestamp and attempt number so late or
// out-of-order delivery does not skew aggregates.
type AttemptEvent struct {
	ID              uuid.UUID `db:"id" json:"id"`
	ClaimID         uuid.UUID `db:"claim_id" json:"claim_id"`
	PayerCode       string    `db:"payer_code" json:"payer_code"`
	Category        string    `db:"category" json:"category"`
	AttemptNumber   int       `db:"attempt_number" json:"attempt_number"`
	Outcome         string    `db:"outcome" json:"outcome"`
	RecoveredAmount float64   `db:"recovered_amount" json:"recovered_amount"`
	LatencyMS       int64     `db:"latency_ms" json:"latency_ms"`
	Timestamp       time.Time `db:"ts" json:"timestamp"`
}

// Filter narrows a snapshot to one payer and/or category. Zero values match
// everything.
type Filter struct {
	PayerCode string
	Category  string
}

// Bucket aggregates one payer/category pair.
type Bucket struct {
	PayerCode      string  `json:"payer_code"`
	Category       string  `json:"category"`
	Attempts       int     `json:"attempts"`
	Successes      int     `json:"successes"`
	Failures       int     `json:"failures"`
	RecoveredTotal float64 `json:"recovered_total"`
}

// Snapshot is the aggregate view at a point in time.
type Snapshot struct {
	GeneratedAt    time.Time `json:"generated_at"`
	Buckets        []Bucket  `json:"buckets"`
	Attempts       int       `json:"attempts"`
	Successes      int       `json:"successes"`
	Failures       int       `json:"failures"`
	RecoveredTotal float64   `json:"recovered_total"`
}

// EventRepository is the append-only event log. Events are independent
// inserts; nothing is ever updated or deleted.
type EventRepository interface {
	Append(ctx context.Context, ev AttemptEvent) error
	List(ctx context.Context, f Filter) ([]AttemptEvent, error)
}

// Aggregator records attempt events and serves snapshots.
type Aggregator struct {
	events EventRepository
}

func NewAggregator(events EventRepository) *Aggregator {
	return &Aggregator{events: events}
}

// Record appends one event to the log.
func (a *Aggregator) Record(ctx context.Context, ev AttemptEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return a.events.Append(ctx, ev)
}

// Event outcomes. Approved, rejected-again and transient-error events each
// represent one submission attempt; an abandoned event is the terminal
// failure marker for the whole claim and does not add to the attempt count.
const (
	OutcomeApproved      = "approved"
	OutcomeRejectedAgain = "rejected_again"
	OutcomeTransient     = "transient_error"
	OutcomeAbandoned     = "abandoned"
)

// Snapshot recomputes aggregates from the event log. The computation is a
// commutative fold over the event set, so feeding the same events in any
// order yields identical totals.
func (a *Aggregator) Snapshot(ctx context.Context, f Filter) (*Snapshot, error) {
	events, err := a.events.List(ctx, f)
	if err != nil {
		return nil, err
	}

	type key struct{ payer, category string }
	buckets := make(map[key]*Bucket)
	snap := &Snapshot{GeneratedAt: time.Now().UTC()}

	for _, ev := range events {
		k := key{ev.PayerCode, ev.Category}
		b, ok := buckets[k]
		if !ok {
			b = &Bucket{PayerCode: ev.PayerCode, Category: ev.Category}
			buckets[k] = b
		}
		switch ev.Outcome {
		case OutcomeApproved:
			b.Attempts++
			b.Successes++
			b.RecoveredTotal += ev.RecoveredAmount
			snap.Attempts++
			snap.Successes++
			snap.RecoveredTotal += ev.RecoveredAmount
		case OutcomeRejectedAgain, OutcomeTransient:
			b.Attempts++
			snap.Attempts++
		case OutcomeAbandoned:
			b.Failures++
			snap.Failures++
		}
	}

	out := make([]Bucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PayerCode != out[j].PayerCode {
			return out[i].PayerCode < out[j].PayerCode
		}
		return out[i].Category < out[j].Category
	})
	snap.Buckets = out
	return snap, nil
}
