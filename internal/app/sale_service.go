package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamtam29/flashsale-app/internal/clock"
	"github.com/tamtam29/flashsale-app/internal/domain"
)

// SaleStore reads sale metadata from the durable store.
type SaleStore interface {
	GetByID(ctx context.Context, saleID string) (domain.Sale, error)
	List(ctx context.Context) ([]domain.Sale, error)
}

// OrderStore covers the durable order reads and the reset delete.
type OrderStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CountConfirmed(ctx context.Context, saleID string) (int, error)
	FindBySaleAndUser(ctx context.Context, saleID, userID string) (*domain.Order, error)
	DeleteBySale(ctx context.Context, saleID string) (int, error)
}

// AuditStore is the durable side of the audit trail touched by admin reset.
type AuditStore interface {
	DeleteBySale(ctx context.Context, saleID string) (int, error)
}

// ReservationStore is the fast-path store. TryReserve is the single
// serialization point for stock accounting; it must be atomic per sale.
type ReservationStore interface {
	TryReserve(ctx context.Context, saleID, userID string) (domain.PurchaseOutcome, error)
	Stock(ctx context.Context, saleID string) (int, error)
	SetStock(ctx context.Context, saleID string, stock int) error
	ResetSale(ctx context.Context, saleID string) error
}

// ReservationEnqueuer hands a granted reservation to the confirmation
// pipeline. It never blocks and never fails the caller.
type ReservationEnqueuer interface {
	Enqueue(saleID, userID string, issuedAt time.Time)
}

// AuditLogger is the fire-and-forget audit entry point.
type AuditLogger interface {
	LogEvent(saleID, userID string, eventType domain.AuditEventType, metadata map[string]any)
}

const defaultSaleCacheTTL = 60 * time.Second

type saleCacheEntry struct {
	sale      domain.Sale
	fetchedAt time.Time
}

// SaleService is the synchronous admission decision point plus the status,
// lookup, and reset surfaces built on the same stores.
type SaleService struct {
	sales        SaleStore
	orders       OrderStore
	audits       AuditStore
	reservations ReservationStore
	enqueuer     ReservationEnqueuer
	audit        AuditLogger
	clock        clock.Clock
	logger       zerolog.Logger

	cacheTTL time.Duration
	cacheMu  sync.Mutex
	cache    map[string]saleCacheEntry
}

type SaleServiceOption func(*SaleService)

// WithSaleCacheTTL overrides the default 60s metadata cache TTL.
func WithSaleCacheTTL(d time.Duration) SaleServiceOption {
	return func(s *SaleService) {
		if d > 0 {
			s.cacheTTL = d
		}
	}
}

func NewSaleService(
	sales SaleStore,
	orders OrderStore,
	audits AuditStore,
	reservations ReservationStore,
	enqueuer ReservationEnqueuer,
	audit AuditLogger,
	clk clock.Clock,
	logger zerolog.Logger,
	opts ...SaleServiceOption,
) *SaleService {
	svc := &SaleService{
		sales:        sales,
		orders:       orders,
		audits:       audits,
		reservations: reservations,
		enqueuer:     enqueuer,
		audit:        audit,
		clock:        clk,
		logger:       logger.With().Str("component", "sale_service").Logger(),
		cacheTTL:     defaultSaleCacheTTL,
		cache:        make(map[string]saleCacheEntry),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Purchase statuses surfaced to the transport layer.
const (
	StatusSuccess          = "SUCCESS"
	StatusSoldOut          = "SOLD_OUT"
	StatusAlreadyPurchased = "ALREADY_PURCHASED"
)

type PurchaseResult struct {
	Success bool
	Status  string
	Message string
}

// AttemptPurchase runs one admission decision: window check, atomic
// reservation, and on a grant exactly one confirmation enqueue. The
// reservation itself is authoritative; the durable order follows eventually.
func (s *SaleService) AttemptPurchase(ctx context.Context, saleID, userID string) (PurchaseResult, error) {
	sale, err := s.getSale(ctx, saleID)
	if err != nil {
		return PurchaseResult{}, err
	}

	now := s.clock.Now()
	if !sale.ActiveAt(now) {
		s.audit.LogEvent(saleID, userID, domain.AuditRejectedNotActive, map[string]any{
			"reason": "sale not active",
		})
		return PurchaseResult{}, domain.ErrSaleNotActive
	}

	s.audit.LogEvent(saleID, userID, domain.AuditAttempted, map[string]any{
		"timestamp": now.Format(time.RFC3339Nano),
	})

	outcome, err := s.reservations.TryReserve(ctx, saleID, userID)
	if err != nil {
		// Reservation-store failure is a hard failure of the request, never
		// silently a sold-out answer.
		return PurchaseResult{}, fmt.Errorf("reserve: %w", err)
	}

	switch outcome {
	case domain.OutcomeSoldOut:
		s.audit.LogEvent(saleID, userID, domain.AuditRejectedSoldOut, map[string]any{
			"reason": "no stock available",
		})
		return PurchaseResult{
			Success: false,
			Status:  StatusSoldOut,
			Message: "Sale is sold out",
		}, nil

	case domain.OutcomeDuplicate:
		s.audit.LogEvent(saleID, userID, domain.AuditRejectedDuplicate, map[string]any{
			"reason": "user already purchased",
		})
		return PurchaseResult{
			Success: false,
			Status:  StatusAlreadyPurchased,
			Message: "You have already purchased from this sale",
		}, nil

	case domain.OutcomeGranted:
		s.audit.LogEvent(saleID, userID, domain.AuditReserved, map[string]any{
			"timestamp": now.Format(time.RFC3339Nano),
		})
		s.enqueuer.Enqueue(saleID, userID, now)
		return PurchaseResult{
			Success: true,
			Status:  StatusSuccess,
			Message: "Purchase reserved successfully",
		}, nil

	default:
		return PurchaseResult{}, fmt.Errorf("unknown purchase outcome %d", outcome)
	}
}

type SaleStatus struct {
	SaleID         string
	Name           string
	RemainingStock int
	TotalSold      int
	SaleActive     bool
	StartsAt       time.Time
	EndsAt         time.Time
	Status         string
}

// SaleStatus reads one sale's aggregate state: remaining stock live from the
// reservation store, total sold from the durable order table.
func (s *SaleService) SaleStatus(ctx context.Context, saleID string) (SaleStatus, error) {
	sale, err := s.sales.GetByID(ctx, saleID)
	if err != nil {
		return SaleStatus{}, err
	}
	return s.statusFor(ctx, sale)
}

// AllSaleStatuses lists every sale with its aggregate state.
func (s *SaleService) AllSaleStatuses(ctx context.Context) ([]SaleStatus, error) {
	sales, err := s.sales.List(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]SaleStatus, 0, len(sales))
	for _, sale := range sales {
		status, err := s.statusFor(ctx, sale)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (s *SaleService) statusFor(ctx context.Context, sale domain.Sale) (SaleStatus, error) {
	remaining, err := s.reservations.Stock(ctx, sale.ID)
	if err != nil {
		return SaleStatus{}, fmt.Errorf("read stock: %w", err)
	}
	totalSold, err := s.orders.CountConfirmed(ctx, sale.ID)
	if err != nil {
		return SaleStatus{}, err
	}

	active := sale.ActiveAt(s.clock.Now())
	status := "INACTIVE"
	if active {
		status = "ACTIVE"
	}

	return SaleStatus{
		SaleID:         sale.ID,
		Name:           sale.Name,
		RemainingStock: remaining,
		TotalSold:      totalSold,
		SaleActive:     active,
		StartsAt:       sale.StartsAt,
		EndsAt:         sale.EndsAt,
		Status:         status,
	}, nil
}

type UserPurchase struct {
	Purchased bool
	OrderID   *string
	Status    string
}

// UserPurchase answers whether a user holds a durable order for a sale.
func (s *SaleService) UserPurchase(ctx context.Context, saleID, userID string) (UserPurchase, error) {
	if _, err := s.sales.GetByID(ctx, saleID); err != nil {
		return UserPurchase{}, err
	}

	order, err := s.orders.FindBySaleAndUser(ctx, saleID, userID)
	if err != nil {
		return UserPurchase{}, err
	}
	if order == nil {
		return UserPurchase{Purchased: false, Status: "NOT_PURCHASED"}, nil
	}
	return UserPurchase{Purchased: true, OrderID: &order.ID, Status: string(order.Status)}, nil
}

type ResetResult struct {
	DeletedOrders int
	DeletedAudits int
}

// ResetSale wipes every durable and fast-path trace of a sale and reseeds
// stock to the full amount. Admin/test affordance; not transactional across
// the two stores.
func (s *SaleService) ResetSale(ctx context.Context, saleID string) (ResetResult, error) {
	sale, err := s.sales.GetByID(ctx, saleID)
	if err != nil {
		return ResetResult{}, err
	}

	// The two durable deletes commit together; the reservation-store wipe
	// below is separate and not atomic with them.
	var deletedOrders, deletedAudits int
	err = s.orders.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if deletedOrders, err = s.orders.DeleteBySale(ctx, saleID); err != nil {
			return err
		}
		deletedAudits, err = s.audits.DeleteBySale(ctx, saleID)
		return err
	})
	if err != nil {
		return ResetResult{}, err
	}

	if err := s.reservations.ResetSale(ctx, saleID); err != nil {
		return ResetResult{}, err
	}
	if err := s.reservations.SetStock(ctx, saleID, sale.TotalStock); err != nil {
		return ResetResult{}, err
	}

	s.cacheMu.Lock()
	delete(s.cache, saleID)
	s.cacheMu.Unlock()

	s.audit.LogEvent(saleID, "SYSTEM", domain.AuditAdminReset, map[string]any{
		"resetAt":       s.clock.Now().Format(time.RFC3339Nano),
		"deletedOrders": deletedOrders,
		"deletedAudits": deletedAudits,
	})

	s.logger.Info().
		Str("saleId", saleID).
		Int("stock", sale.TotalStock).
		Int("deletedOrders", deletedOrders).
		Int("deletedAudits", deletedAudits).
		Msg("sale reset")

	return ResetResult{DeletedOrders: deletedOrders, DeletedAudits: deletedAudits}, nil
}

// getSale serves sale metadata from the TTL cache, falling back to the
// durable store on a miss or stale entry. A not-found sale is never cached.
func (s *SaleService) getSale(ctx context.Context, saleID string) (domain.Sale, error) {
	now := s.clock.Now()

	s.cacheMu.Lock()
	entry, ok := s.cache[saleID]
	s.cacheMu.Unlock()
	if ok && now.Sub(entry.fetchedAt) < s.cacheTTL {
		return entry.sale, nil
	}

	sale, err := s.sales.GetByID(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}

	s.cacheMu.Lock()
	s.cache[saleID] = saleCacheEntry{sale: sale, fetchedAt: now}
	s.cacheMu.Unlock()

	return sale, nil
}
