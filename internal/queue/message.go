package queue

import "time"

// PurchaseMessage carries one granted reservation from the admission API to
// the confirmation worker. Exactly one is published per grant.
type PurchaseMessage struct {
	SaleID    string    `json:"saleId"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// retryCountHeader carries the explicit requeue count so the retry ceiling
// does not depend on broker redelivery semantics.
const retryCountHeader = "x-retry-count"
