package domain

import "time"

type OrderStatus string

// Only successful admissions become orders, so confirmed is the sole status
// written in normal operation.
const OrderStatusConfirmed OrderStatus = "confirmed"

// Order is the durable record of a granted reservation. At most one exists
// per (sale, user) pair; the database uniqueness constraint enforces it.
type Order struct {
	ID        string
	SaleID    string
	UserID    string
	Status    OrderStatus
	CreatedAt time.Time
}
