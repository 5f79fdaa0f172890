package reservation

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tamtam29/flashsale-app/internal/domain"
)

// tryReserveScript runs the whole admission decision as one atomic unit.
// The duplicate check deliberately precedes the stock check: a user who
// already holds a unit is told so even when stock is exhausted.
//
// Returns 0 = sold out, 1 = granted, 2 = duplicate.
var tryReserveScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then
  return 2
end
local stock = tonumber(redis.call('GET', KEYS[1]) or '0')
if stock <= 0 then
  return 0
end
redis.call('DECR', KEYS[1])
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

// Store holds per-sale reservation state in Redis: a remaining-stock counter
// and the set of users granted a unit. TryReserve is the only operation that
// may run on the hot path; everything else is for reconciliation, status
// reads, and admin reset.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func stockKey(saleID string) string {
	return fmt.Sprintf("sale:%s:stock", saleID)
}

func usersKey(saleID string) string {
	return fmt.Sprintf("sale:%s:users", saleID)
}

// TryReserve atomically attempts to grant one unit of saleID to userID.
// A Redis failure is returned as an error, never conflated with a sold-out
// outcome.
func (s *Store) TryReserve(ctx context.Context, saleID, userID string) (domain.PurchaseOutcome, error) {
	res, err := tryReserveScript.Run(ctx, s.client, []string{stockKey(saleID), usersKey(saleID)}, userID).Int()
	if err != nil {
		return 0, fmt.Errorf("run reserve script: %w", err)
	}

	switch res {
	case 0:
		return domain.OutcomeSoldOut, nil
	case 1:
		return domain.OutcomeGranted, nil
	case 2:
		return domain.OutcomeDuplicate, nil
	default:
		return 0, fmt.Errorf("unexpected reserve script result %d", res)
	}
}

// Stock returns the remaining stock for a sale; a missing key reads as zero.
func (s *Store) Stock(ctx context.Context, saleID string) (int, error) {
	val, err := s.client.Get(ctx, stockKey(saleID)).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("get stock: %w", err)
	}
	return val, nil
}

func (s *Store) SetStock(ctx context.Context, saleID string, stock int) error {
	if err := s.client.Set(ctx, stockKey(saleID), stock, 0).Err(); err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	return nil
}

// Purchasers lists the users granted a unit for a sale.
func (s *Store) Purchasers(ctx context.Context, saleID string) ([]string, error) {
	members, err := s.client.SMembers(ctx, usersKey(saleID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list purchasers: %w", err)
	}
	return members, nil
}

// HasPurchased reports whether userID already holds a unit of saleID.
func (s *Store) HasPurchased(ctx context.Context, saleID, userID string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, usersKey(saleID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("check purchaser: %w", err)
	}
	return ok, nil
}

// AddPurchasers bulk-adds user ids to the purchaser set during reconciliation.
// An empty slice is a no-op.
func (s *Store) AddPurchasers(ctx context.Context, saleID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(userIDs))
	for i, id := range userIDs {
		members[i] = id
	}
	if err := s.client.SAdd(ctx, usersKey(saleID), members...).Err(); err != nil {
		return fmt.Errorf("add purchasers: %w", err)
	}
	return nil
}

// ResetSale removes both reservation keys for a sale.
func (s *Store) ResetSale(ctx context.Context, saleID string) error {
	if err := s.client.Del(ctx, stockKey(saleID), usersKey(saleID)).Err(); err != nil {
		return fmt.Errorf("reset sale: %w", err)
	}
	return nil
}

// Ping reports reservation-store reachability for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
