package claims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const claimCols = `id, payer_code, patient_ref, provider_ref, total_amount, status, rejection_code, rejection_message, attributes, created_at, updated_at`

func (r *repoPG) scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	var attrs []byte
	err := row.Scan(&c.ID, &c.PayerCode, &c.PatientRef, &c.ProviderRef,
		&c.TotalAmount, &c.Status, &c.RejectionCode, &c.RejectionMessage,
		&attrs, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &c.Attributes); err != nil {
			return nil, fmt.Errorf("decode claim attributes: %w", err)
		}
	}
	return &c, nil
}

func (r *repoPG) Create(ctx context.Context, c *Claim) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	attrs, err := json.Marshal(c.Attributes)
	if err != nil {
		return fmt.Errorf("encode claim attributes: %w", err)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO claim (id, payer_code, patient_ref, provider_ref, total_amount, status,
			rejection_code, rejection_message, attributes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		c.ID, c.PayerCode, c.PatientRef, c.ProviderRef, c.TotalAmount, c.Status,
		c.RejectionCode, c.RejectionMessage, attrs)
	if err != nil {
		return err
	}
	for _, it := range c.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO claim_item (id, claim_id, sequence, service_code, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			uuid.New(), c.ID, it.Sequence, it.ServiceCode, it.Quantity, it.UnitPrice)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	c, err := r.scanClaim(r.pool.QueryRow(ctx,
		`SELECT `+claimCols+` FROM claim WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *repoPG) loadItems(ctx context.Context, c *Claim) error {
	rows, err := r.pool.Query(ctx, `
		SELECT sequence, service_code, quantity, unit_price
		FROM claim_item WHERE claim_id = $1 ORDER BY sequence`, c.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Sequence, &it.ServiceCode, &it.Quantity, &it.UnitPrice); err != nil {
			return err
		}
		c.Items = append(c.Items, it)
	}
	return rows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE claim SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) UpdateRejection(ctx context.Context, id uuid.UUID, code, message string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE claim SET rejection_code = $2, rejection_message = $3, updated_at = NOW()
		WHERE id = $1`, id, code, message)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Claim, int, error) {
	return r.list(ctx, `status = $1`, status, limit, offset)
}

func (r *repoPG) ListByPayer(ctx context.Context, payerCode string, limit, offset int) ([]*Claim, int, error) {
	return r.list(ctx, `payer_code = $1`, payerCode, limit, offset)
}

func (r *repoPG) list(ctx context.Context, where string, arg interface{}, limit, offset int) ([]*Claim, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM claim WHERE `+where, arg).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+claimCols+` FROM claim WHERE `+where+` ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		arg, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []*Claim
	for rows.Next() {
		c, err := r.scanClaim(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, c := range result {
		if err := r.loadItems(ctx, c); err != nil {
			return nil, 0, err
		}
	}
	return result, total, nil
}
