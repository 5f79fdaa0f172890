package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tamtam29/flashsale-app/internal/domain"
)

type SaleRepository struct {
	pool *pgxpool.Pool
}

func NewSaleRepository(pool *pgxpool.Pool) *SaleRepository {
	return &SaleRepository{pool: pool}
}

func (r *SaleRepository) Create(ctx context.Context, sale domain.Sale) error {
	const stmt = `
INSERT INTO sales (id, name, total_stock, starts_at, ends_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := r.exec(ctx, stmt, sale.ID, sale.Name, sale.TotalStock, sale.StartsAt, sale.EndsAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create sale: %w", err)
	}
	return nil
}

func (r *SaleRepository) GetByID(ctx context.Context, saleID string) (domain.Sale, error) {
	const query = `SELECT id, name, total_stock, starts_at, ends_at FROM sales WHERE id = $1`

	var s domain.Sale
	err := r.queryRow(ctx, query, saleID).Scan(&s.ID, &s.Name, &s.TotalStock, &s.StartsAt, &s.EndsAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Sale{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Sale{}, domain.ErrSaleNotFound
		}
		return domain.Sale{}, fmt.Errorf("get sale: %w", err)
	}
	return s, nil
}

func (r *SaleRepository) List(ctx context.Context) ([]domain.Sale, error) {
	const query = `SELECT id, name, total_stock, starts_at, ends_at FROM sales ORDER BY starts_at ASC`

	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	var sales []domain.Sale
	for rows.Next() {
		var s domain.Sale
		if err := rows.Scan(&s.ID, &s.Name, &s.TotalStock, &s.StartsAt, &s.EndsAt); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return sales, nil
}

func (r *SaleRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *SaleRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *SaleRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
