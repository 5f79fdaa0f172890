package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tamtam29/flashsale-app/internal/domain"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// Create inserts an order. A (sale_id, user_id) collision surfaces as
// domain.ErrDuplicateOrder so the worker can treat redelivery as a no-op.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	const stmt = `
INSERT INTO orders (id, sale_id, user_id, status, created_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := r.exec(ctx, stmt, order.ID, order.SaleID, order.UserID, order.Status, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateOrder
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *OrderRepository) CountConfirmed(ctx context.Context, saleID string) (int, error) {
	const query = `SELECT COUNT(*) FROM orders WHERE sale_id = $1 AND status = $2`

	var count int
	if err := r.queryRow(ctx, query, saleID, domain.OrderStatusConfirmed).Scan(&count); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("count confirmed orders: %w", err)
	}
	return count, nil
}

// ListUserIDs returns the user ids holding confirmed orders for a sale.
func (r *OrderRepository) ListUserIDs(ctx context.Context, saleID string) ([]string, error) {
	const query = `SELECT user_id FROM orders WHERE sale_id = $1 AND status = $2`

	rows, err := r.query(ctx, query, saleID, domain.OrderStatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("list order user ids: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list order user ids: %w", err)
	}
	return userIDs, nil
}

func (r *OrderRepository) FindBySaleAndUser(ctx context.Context, saleID, userID string) (*domain.Order, error) {
	const query = `
SELECT id, sale_id, user_id, status, created_at
FROM orders
WHERE sale_id = $1 AND user_id = $2`

	var o domain.Order
	err := r.queryRow(ctx, query, saleID, userID).
		Scan(&o.ID, &o.SaleID, &o.UserID, &o.Status, &o.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find order: %w", err)
	}
	return &o, nil
}

// DeleteBySale removes every order for a sale and reports how many went away.
func (r *OrderRepository) DeleteBySale(ctx context.Context, saleID string) (int, error) {
	const stmt = `DELETE FROM orders WHERE sale_id = $1`

	tag, err := r.exec(ctx, stmt, saleID)
	if err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("delete orders: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *OrderRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *OrderRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *OrderRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
