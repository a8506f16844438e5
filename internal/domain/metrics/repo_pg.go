package metrics

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type eventRepoPG struct{ pool *pgxpool.Pool }

func NewEventRepoPG(pool *pgxpool.Pool) EventRepository { return &eventRepoPG{pool: pool} }

func (r *eventRepoPG) Append(ctx context.Context, ev AttemptEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO attempt_event (id, claim_id, payer_code, category, attempt_number,
			outcome, recovered_amount, latency_ms, ts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		ev.ID, ev.ClaimID, ev.PayerCode, ev.Category, ev.AttemptNumber,
		ev.Outcome, ev.RecoveredAmount, ev.LatencyMS, ev.Timestamp)
	return err
}

func (r *eventRepoPG) List(ctx context.Context, f Filter) ([]AttemptEvent, error) {
	query := `SELECT id, claim_id, payer_code, category, attempt_number,
		outcome, recovered_amount, latency_ms, ts
		FROM attempt_event WHERE 1=1`
	args := []interface{}{}
	if f.PayerCode != "" {
		args = append(args, f.PayerCode)
		query += ` AND payer_code = $1`
	}
	if f.Category != "" {
		args = append(args, f.Category)
		if len(args) == 1 {
			query += ` AND category = $1`
		} else {
			query += ` AND category = $2`
		}
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttemptEvent
	for rows.Next() {
		var ev AttemptEvent
		if err := rows.Scan(&ev.ID, &ev.ClaimID, &ev.PayerCode, &ev.Category, &ev.AttemptNumber,
			&ev.Outcome, &ev.RecoveredAmount, &ev.LatencyMS, &ev.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
