package resubmission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type attemptRepoPG struct{ pool *pgxpool.Pool }

func NewAttemptRepoPG(pool *pgxpool.Pool) AttemptRepository { return &attemptRepoPG{pool: pool} }

const attemptCols = `id, claim_id, number, idempotency_key, outcome,
	raw_response_code, raw_response_message, recovered_amount, latency_ms,
	started_at, completed_at`

func scanAttempt(row pgx.Row) (Attempt, error) {
	var a Attempt
	var latencyMS int64
	err := row.Scan(&a.ID, &a.ClaimID, &a.Number, &a.IdempotencyKey, &a.Outcome,
		&a.RawResponseCode, &a.RawResponseMessage, &a.RecoveredAmount, &latencyMS,
		&a.StartedAt, &a.CompletedAt)
	a.Latency = time.Duration(latencyMS) * time.Millisecond
	return a, err
}

func (r *attemptRepoPG) Create(ctx context.Context, a *Attempt) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO resubmission_attempt (id, claim_id, number, idempotency_key, outcome,
			raw_response_code, raw_response_message, recovered_amount, latency_ms, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.ClaimID, a.Number, a.IdempotencyKey, a.Outcome,
		a.RawResponseCode, a.RawResponseMessage, a.RecoveredAmount,
		a.Latency.Milliseconds(), a.StartedAt)
	return err
}

func (r *attemptRepoPG) Complete(ctx context.Context, id uuid.UUID, outcome Outcome, rawCode, rawMessage string, recovered float64, latencyMS int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE resubmission_attempt
		SET outcome = $2, raw_response_code = $3, raw_response_message = $4,
			recovered_amount = $5, latency_ms = $6, completed_at = NOW()
		WHERE id = $1`,
		id, outcome, rawCode, rawMessage, recovered, latencyMS)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAttemptNotFound
	}
	return nil
}

func (r *attemptRepoPG) SetOutcome(ctx context.Context, id uuid.UUID, outcome Outcome) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE resubmission_attempt SET outcome = $2 WHERE id = $1`, id, outcome)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAttemptNotFound
	}
	return nil
}

func (r *attemptRepoPG) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptCols+` FROM resubmission_attempt WHERE claim_id = $1 ORDER BY number`,
		claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows)
}

func (r *attemptRepoPG) LastNumber(ctx context.Context, claimID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(number), 0) FROM resubmission_attempt WHERE claim_id = $1`,
		claimID).Scan(&n)
	return n, err
}

func (r *attemptRepoPG) ListInFlight(ctx context.Context) ([]Attempt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+attemptCols+` FROM resubmission_attempt
		WHERE outcome IN ('pending', 'submitting', 'awaiting_response')
		ORDER BY started_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows)
}

func collectAttempts(rows pgx.Rows) ([]Attempt, error) {
	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type reviewQueuePG struct{ pool *pgxpool.Pool }

func NewReviewQueuePG(pool *pgxpool.Pool) ReviewQueueRepository { return &reviewQueuePG{pool: pool} }

func (r *reviewQueuePG) Add(ctx context.Context, item *ReviewItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	attempts, err := json.Marshal(item.Attempts)
	if err != nil {
		return fmt.Errorf("encode attempt history: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO review_queue (id, claim_id, kind, raw_code, raw_message, detail, attempts)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		item.ID, item.ClaimID, item.Kind, item.RawCode, item.RawMessage, item.Detail, attempts)
	return err
}

func (r *reviewQueuePG) List(ctx context.Context, limit, offset int) ([]*ReviewItem, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM review_queue`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, claim_id, kind, raw_code, raw_message, detail, attempts, created_at
		FROM review_queue ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*ReviewItem
	for rows.Next() {
		var item ReviewItem
		var attempts []byte
		if err := rows.Scan(&item.ID, &item.ClaimID, &item.Kind, &item.RawCode,
			&item.RawMessage, &item.Detail, &attempts, &item.CreatedAt); err != nil {
			return nil, 0, err
		}
		if len(attempts) > 0 {
			if err := json.Unmarshal(attempts, &item.Attempts); err != nil {
				return nil, 0, fmt.Errorf("decode attempt history: %w", err)
			}
		}
		out = append(out, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
