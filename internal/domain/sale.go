package domain

import "time"

// Sale is a fixed-stock flash sale window. TotalStock is immutable after
// creation; remaining stock lives in the reservation store, not here.
type Sale struct {
	ID         string
	Name       string
	TotalStock int
	StartsAt   time.Time
	EndsAt     time.Time
}

// ActiveAt reports whether the sale window contains t, inclusive of both bounds.
func (s Sale) ActiveAt(t time.Time) bool {
	return !t.Before(s.StartsAt) && !t.After(s.EndsAt)
}

// Validate checks the fields a sale needs before it can be persisted.
func (s Sale) Validate() error {
	if s.Name == "" {
		return ErrSaleNameRequired
	}
	if s.TotalStock <= 0 {
		return ErrInvalidStock
	}
	if !s.EndsAt.After(s.StartsAt) {
		return ErrInvalidWindow
	}
	return nil
}
