package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// ReconcileOrderStore is the durable side reconciliation reads from.
type ReconcileOrderStore interface {
	CountConfirmed(ctx context.Context, saleID string) (int, error)
	ListUserIDs(ctx context.Context, saleID string) ([]string, error)
}

// ReconcileReservationStore is the fast-path side reconciliation writes to.
type ReconcileReservationStore interface {
	SetStock(ctx context.Context, saleID string, stock int) error
	AddPurchasers(ctx context.Context, saleID string, userIDs []string) error
}

// Reconciler rebuilds reservation-store state from the order table. It runs
// before the admission service accepts traffic and is safe to re-run: stock
// is recomputed, purchaser adds are set-idempotent.
type Reconciler struct {
	sales        SaleStore
	orders       ReconcileOrderStore
	reservations ReconcileReservationStore
	logger       zerolog.Logger
}

func NewReconciler(sales SaleStore, orders ReconcileOrderStore, reservations ReconcileReservationStore, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		sales:        sales,
		orders:       orders,
		reservations: reservations,
		logger:       logger.With().Str("component", "reconciler").Logger(),
	}
}

// Run reconciles every sale. Any failure aborts the whole procedure so the
// caller can refuse to serve traffic on a store it could not rebuild.
func (r *Reconciler) Run(ctx context.Context) error {
	sales, err := r.sales.List(ctx)
	if err != nil {
		return fmt.Errorf("list sales: %w", err)
	}

	for _, sale := range sales {
		confirmed, err := r.orders.CountConfirmed(ctx, sale.ID)
		if err != nil {
			return fmt.Errorf("count confirmed orders for sale %s: %w", sale.ID, err)
		}

		// Clamp rather than propagate a negative count out of an oversold
		// durable state.
		remaining := sale.TotalStock - confirmed
		if remaining < 0 {
			remaining = 0
		}

		if err := r.reservations.SetStock(ctx, sale.ID, remaining); err != nil {
			return fmt.Errorf("set stock for sale %s: %w", sale.ID, err)
		}

		userIDs, err := r.orders.ListUserIDs(ctx, sale.ID)
		if err != nil {
			return fmt.Errorf("list purchasers for sale %s: %w", sale.ID, err)
		}
		if err := r.reservations.AddPurchasers(ctx, sale.ID, userIDs); err != nil {
			return fmt.Errorf("add purchasers for sale %s: %w", sale.ID, err)
		}

		r.logger.Debug().
			Str("saleId", sale.ID).
			Int("remaining", remaining).
			Int("confirmed", confirmed).
			Msg("reconciled sale")
	}

	r.logger.Info().Int("sales", len(sales)).Msg("reconciliation complete")
	return nil
}
