package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamtam29/flashsale-app/internal/clock"
	"github.com/tamtam29/flashsale-app/internal/domain"
)

func testSale(id string, stock int, now time.Time) domain.Sale {
	return domain.Sale{
		ID:         id,
		Name:       "Test Sale",
		TotalStock: stock,
		StartsAt:   now.Add(-time.Minute),
		EndsAt:     now.Add(time.Hour),
	}
}

type saleServiceDeps struct {
	sales        *fakeSaleStore
	orders       *fakeOrderStore
	audits       *fakeAuditStore
	reservations *fakeReservationStore
	enqueuer     *recordingEnqueuer
	audit        *recordingAudit
}

func newTestSaleService(t *testing.T, now time.Time, sales []domain.Sale, opts ...SaleServiceOption) (*SaleService, saleServiceDeps) {
	t.Helper()
	deps := saleServiceDeps{
		sales:        newFakeSaleStore(sales...),
		orders:       newFakeOrderStore(),
		audits:       newFakeAuditStore(0),
		reservations: newFakeReservationStore(),
		enqueuer:     &recordingEnqueuer{},
		audit:        &recordingAudit{},
	}
	svc := NewSaleService(
		deps.sales, deps.orders, deps.audits, deps.reservations,
		deps.enqueuer, deps.audit,
		clock.NewFixed(now), zerolog.Nop(), opts...,
	)
	return svc, deps
}

func TestSaleService_AttemptPurchase(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("grants and enqueues exactly one confirmation", func(t *testing.T) {
		svc, deps := newTestSaleService(t, now, []domain.Sale{testSale("sale-1", 5, now)})
		if err := deps.reservations.SetStock(ctx, "sale-1", 5); err != nil {
			t.Fatal(err)
		}

		result, err := svc.AttemptPurchase(ctx, "sale-1", "user-a")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !result.Success || result.Status != StatusSuccess {
			t.Fatalf("unexpected result: %+v", result)
		}
		if deps.enqueuer.count() != 1 {
			t.Fatalf("expected 1 enqueue, got %d", deps.enqueuer.count())
		}
		if got := deps.audit.eventsOfType(domain.AuditReserved); len(got) != 1 {
			t.Fatalf("expected 1 reserved audit event, got %d", len(got))
		}
		if got := deps.audit.eventsOfType(domain.AuditAttempted); len(got) != 1 {
			t.Fatalf("expected 1 attempted audit event, got %d", len(got))
		}
	})

	t.Run("sold out is terminal without enqueue", func(t *testing.T) {
		svc, deps := newTestSaleService(t, now, []domain.Sale{testSale("sale-1", 1, now)})
		if err := deps.reservations.SetStock(ctx, "sale-1", 0); err != nil {
			t.Fatal(err)
		}

		result, err := svc.AttemptPurchase(ctx, "sale-1", "user-a")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Success || result.Status != StatusSoldOut {
			t.Fatalf("unexpected result: %+v", result)
		}
		if deps.enqueuer.count() != 0 {
			t.Fatalf("expected no enqueue, got %d", deps.enqueuer.count())
		}
		if got := deps.audit.eventsOfType(domain.AuditRejectedSoldOut); len(got) != 1 {
			t.Fatalf("expected 1 sold-out audit event, got %d", len(got))
		}
	})

	t.Run("repeat attempt reports already purchased", func(t *testing.T) {
		svc, deps := newTestSaleService(t, now, []domain.Sale{testSale("sale-1", 5, now)})
		if err := deps.reservations.SetStock(ctx, "sale-1", 5); err != nil {
			t.Fatal(err)
		}

		if _, err := svc.AttemptPurchase(ctx, "sale-1", "user-a"); err != nil {
			t.Fatalf("first attempt: %v", err)
		}
		result, err := svc.AttemptPurchase(ctx, "sale-1", "user-a")
		if err != nil {
			t.Fatalf("second attempt: %v", err)
		}
		if result.Success || result.Status != StatusAlreadyPurchased {
			t.Fatalf("unexpected result: %+v", result)
		}
		if deps.enqueuer.count() != 1 {
			t.Fatalf("expected only first attempt to enqueue, got %d", deps.enqueuer.count())
		}
	})

	t.Run("duplicate wins over sold out", func(t *testing.T) {
		svc, deps := newTestSaleService(t, now, []domain.Sale{testSale("sale-1", 1, now)})
		if err := deps.reservations.SetStock(ctx, "sale-1", 1); err != nil {
			t.Fatal(err)
		}

		if _, err := svc.AttemptPurchase(ctx, "sale-1", "user-a"); err != nil {
			t.Fatalf("first attempt: %v", err)
		}
		// Stock is now zero; the winner must still be told duplicate.
		result, err := svc.AttemptPurchase(ctx, "sale-1", "user-a")
		if err != nil {
			t.Fatalf("second attempt: %v", err)
		}
		if result.Status != StatusAlreadyPurchased {
			t.Fatalf("expected %s, got %s", StatusAlreadyPurchased, result.Status)
		}
	})

	t.Run("rejects outside sale window", func(t *testing.T) {
		past := domain.Sale{
			ID:         "sale-past",
			Name:       "Past",
			TotalStock: 10,
			StartsAt:   now.Add(-3 * time.Hour),
			EndsAt:     now.Add(-time.Hour),
		}
		svc, deps := newTestSaleService(t, now, []domain.Sale{past})

		_, err := svc.AttemptPurchase(ctx, "sale-past", "user-a")
		if !errors.Is(err, domain.ErrSaleNotActive) {
			t.Fatalf("expected ErrSaleNotActive, got %v", err)
		}
		if deps.enqueuer.count() != 0 {
			t.Fatalf("expected no enqueue, got %d", deps.enqueuer.count())
		}
		if got := deps.audit.eventsOfType(domain.AuditRejectedNotActive); len(got) != 1 {
			t.Fatalf("expected 1 not-active audit event, got %d", len(got))
		}
		if got := deps.audit.eventsOfType(domain.AuditAttempted); len(got) != 0 {
			t.Fatalf("expected no attempted audit event, got %d", len(got))
		}
	})

	t.Run("window bounds are inclusive", func(t *testing.T) {
		edge := domain.Sale{
			ID:         "sale-edge",
			Name:       "Edge",
			TotalStock: 10,
			StartsAt:   now,
			EndsAt:     now,
		}
		svc, deps := newTestSaleService(t, now, []domain.Sale{edge})
		if err := deps.reservations.SetStock(ctx, "sale-edge", 10); err != nil {
			t.Fatal(err)
		}

		result, err := svc.AttemptPurchase(ctx, "sale-edge", "user-a")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Status != StatusSuccess {
			t.Fatalf("expected success at window edge, got %s", result.Status)
		}
	})

	t.Run("unknown sale is not found, not rejected", func(t *testing.T) {
		svc, _ := newTestSaleService(t, now, nil)

		_, err := svc.AttemptPurchase(ctx, "missing", "user-a")
		if !errors.Is(err, domain.ErrSaleNotFound) {
			t.Fatalf("expected ErrSaleNotFound, got %v", err)
		}
	})

	t.Run("reservation store failure surfaces as error", func(t *testing.T) {
		svc, deps := newTestSaleService(t, now, []domain.Sale{testSale("sale-1", 5, now)})
		deps.reservations.reserveErr = errors.New("redis down")

		_, err := svc.AttemptPurchase(ctx, "sale-1", "user-a")
		if err == nil {
			t.Fatal("expected error when reservation store unreachable")
		}
		if deps.enqueuer.count() != 0 {
			t.Fatalf("expected no enqueue on failure, got %d", deps.enqueuer.count())
		}
	})

	t.Run("concurrent attempts never grant more than stock", func(t *testing.T) {
		svc, deps := newTestSaleService(t, now, []domain.Sale{testSale("sale-1", 2, now)})
		if err := deps.reservations.SetStock(ctx, "sale-1", 2); err != nil {
			t.Fatal(err)
		}

		users := []string{"user-a", "user-b", "user-c"}
		results := make([]PurchaseResult, len(users))
		var wg sync.WaitGroup
		for i, user := range users {
			wg.Add(1)
			go func(i int, user string) {
				defer wg.Done()
				result, err := svc.AttemptPurchase(ctx, "sale-1", user)
				if err != nil {
					t.Errorf("attempt %s: %v", user, err)
					return
				}
				results[i] = result
			}(i, user)
		}
		wg.Wait()

		granted, soldOut := 0, 0
		for _, r := range results {
			switch r.Status {
			case StatusSuccess:
				granted++
			case StatusSoldOut:
				soldOut++
			}
		}
		if granted != 2 || soldOut != 1 {
			t.Fatalf("expected 2 grants and 1 sold out, got %d/%d", granted, soldOut)
		}
		if deps.enqueuer.count() != 2 {
			t.Fatalf("expected 2 enqueues, got %d", deps.enqueuer.count())
		}
	})
}

func TestSaleService_SaleCache(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("serves repeated lookups from cache within TTL", func(t *testing.T) {
		svc, deps := newTestSaleService(t, now, []domain.Sale{testSale("sale-1", 5, now)})
		if err := deps.reservations.SetStock(ctx, "sale-1", 5); err != nil {
			t.Fatal(err)
		}

		for i := 0; i < 5; i++ {
			if _, err := svc.AttemptPurchase(ctx, "sale-1", "user-a"); err != nil {
				t.Fatalf("attempt %d: %v", i, err)
			}
		}
		if got := deps.sales.getCount(); got != 1 {
			t.Fatalf("expected 1 durable read, got %d", got)
		}
	})

	t.Run("not-found is not cached", func(t *testing.T) {
		svc, deps := newTestSaleService(t, now, nil)

		for i := 0; i < 3; i++ {
			if _, err := svc.AttemptPurchase(ctx, "missing", "user-a"); !errors.Is(err, domain.ErrSaleNotFound) {
				t.Fatalf("expected ErrSaleNotFound, got %v", err)
			}
		}
		if got := deps.sales.getCount(); got != 3 {
			t.Fatalf("expected 3 durable reads for uncached miss, got %d", got)
		}
	})

	t.Run("reset invalidates the cache entry", func(t *testing.T) {
		svc, deps := newTestSaleService(t, now, []domain.Sale{testSale("sale-1", 5, now)})
		if err := deps.reservations.SetStock(ctx, "sale-1", 5); err != nil {
			t.Fatal(err)
		}

		if _, err := svc.AttemptPurchase(ctx, "sale-1", "user-a"); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.ResetSale(ctx, "sale-1"); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.AttemptPurchase(ctx, "sale-1", "user-b"); err != nil {
			t.Fatal(err)
		}
		// 1 for the first purchase, 1 inside reset, 1 for the post-reset
		// purchase whose cache entry was invalidated.
		if got := deps.sales.getCount(); got != 3 {
			t.Fatalf("expected 3 durable reads, got %d", got)
		}
	})
}

func TestSaleService_StatusAndLookup(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("status combines live stock and durable counts", func(t *testing.T) {
		svc, deps := newTestSaleService(t, now, []domain.Sale{testSale("sale-1", 100, now)})
		if err := deps.reservations.SetStock(ctx, "sale-1", 70); err != nil {
			t.Fatal(err)
		}
		for _, user := range []string{"u1", "u2", "u3"} {
			if err := deps.orders.Create(ctx, domain.Order{
				ID: "o-" + user, SaleID: "sale-1", UserID: user,
				Status: domain.OrderStatusConfirmed, CreatedAt: now,
			}); err != nil {
				t.Fatal(err)
			}
		}

		status, err := svc.SaleStatus(ctx, "sale-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if status.RemainingStock != 70 {
			t.Fatalf("expected remaining 70, got %d", status.RemainingStock)
		}
		if status.TotalSold != 3 {
			t.Fatalf("expected 3 sold, got %d", status.TotalSold)
		}
		if !status.SaleActive || status.Status != "ACTIVE" {
			t.Fatalf("expected active sale, got %+v", status)
		}
	})

	t.Run("user purchase lookup", func(t *testing.T) {
		svc, deps := newTestSaleService(t, now, []domain.Sale{testSale("sale-1", 10, now)})
		if err := deps.orders.Create(ctx, domain.Order{
			ID: "order-1", SaleID: "sale-1", UserID: "user-a",
			Status: domain.OrderStatusConfirmed, CreatedAt: now,
		}); err != nil {
			t.Fatal(err)
		}

		purchase, err := svc.UserPurchase(ctx, "sale-1", "user-a")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !purchase.Purchased || purchase.OrderID == nil || *purchase.OrderID != "order-1" {
			t.Fatalf("unexpected purchase: %+v", purchase)
		}

		purchase, err = svc.UserPurchase(ctx, "sale-1", "user-b")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if purchase.Purchased || purchase.OrderID != nil || purchase.Status != "NOT_PURCHASED" {
			t.Fatalf("unexpected purchase: %+v", purchase)
		}

		if _, err := svc.UserPurchase(ctx, "missing", "user-a"); !errors.Is(err, domain.ErrSaleNotFound) {
			t.Fatalf("expected ErrSaleNotFound, got %v", err)
		}
	})
}

func TestSaleService_ResetSale(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	svc, deps := newTestSaleService(t, now, []domain.Sale{testSale("sale-1", 2, now)})
	if err := deps.reservations.SetStock(ctx, "sale-1", 2); err != nil {
		t.Fatal(err)
	}
	deps.audits.count = 10

	for _, user := range []string{"user-a", "user-b"} {
		if _, err := svc.AttemptPurchase(ctx, "sale-1", user); err != nil {
			t.Fatal(err)
		}
		if err := deps.orders.Create(ctx, domain.Order{
			ID: "o-" + user, SaleID: "sale-1", UserID: user,
			Status: domain.OrderStatusConfirmed, CreatedAt: now,
		}); err != nil {
			t.Fatal(err)
		}
	}

	result, err := svc.ResetSale(ctx, "sale-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.DeletedOrders != 2 {
		t.Fatalf("expected 2 deleted orders, got %d", result.DeletedOrders)
	}
	if result.DeletedAudits != 10 {
		t.Fatalf("expected 10 deleted audits, got %d", result.DeletedAudits)
	}

	stock, err := deps.reservations.Stock(ctx, "sale-1")
	if err != nil {
		t.Fatal(err)
	}
	if stock != 2 {
		t.Fatalf("expected stock reset to 2, got %d", stock)
	}
	if deps.reservations.purchaserCount("sale-1") != 0 {
		t.Fatalf("expected purchaser set cleared")
	}

	if got := deps.audit.eventsOfType(domain.AuditAdminReset); len(got) != 1 {
		t.Fatalf("expected 1 admin-reset audit event, got %d", len(got))
	} else if got[0].metadata["deletedOrders"] != 2 {
		t.Fatalf("expected reset metadata to carry counts, got %+v", got[0].metadata)
	}

	// A previous winner can buy again after the reset.
	result2, err := svc.AttemptPurchase(ctx, "sale-1", "user-a")
	if err != nil {
		t.Fatalf("post-reset attempt: %v", err)
	}
	if result2.Status != StatusSuccess {
		t.Fatalf("expected post-reset success, got %s", result2.Status)
	}
}
