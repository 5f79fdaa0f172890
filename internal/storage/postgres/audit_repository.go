package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tamtam29/flashsale-app/internal/domain"
)

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// InsertBatch writes a batch of audit events in one round trip. Key conflicts
// are skipped rather than failed; a repeated event is acceptable noise.
func (r *AuditRepository) InsertBatch(ctx context.Context, events []domain.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	const stmt = `
INSERT INTO audit_events (id, sale_id, user_id, event_type, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, ev := range events {
		metadata := ev.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		batch.Queue(stmt, uuid.NewString(), ev.SaleID, ev.UserID, ev.Type, raw, ev.CreatedAt)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for range events {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert audit batch: %w", err)
		}
	}
	return nil
}

// DeleteBySale removes the audit trail for a sale and reports the count. It
// joins an ambient transaction when one is carried on the context.
func (r *AuditRepository) DeleteBySale(ctx context.Context, saleID string) (int, error) {
	const stmt = `DELETE FROM audit_events WHERE sale_id = $1`

	var (
		tag pgconn.CommandTag
		err error
	)
	if tx := txFromContext(ctx); tx != nil {
		tag, err = tx.Exec(ctx, stmt, saleID)
	} else {
		tag, err = r.pool.Exec(ctx, stmt, saleID)
	}
	if err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("delete audit events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountBySale is used by tests and the reset audit metadata.
func (r *AuditRepository) CountBySale(ctx context.Context, saleID string) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_events WHERE sale_id = $1`, saleID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return count, nil
}
