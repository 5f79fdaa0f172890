package domain

import "time"

type AuditEventType string

const (
	AuditAttempted         AuditEventType = "attempted"
	AuditReserved          AuditEventType = "reserved"
	AuditRejectedDuplicate AuditEventType = "rejected_duplicate"
	AuditRejectedSoldOut   AuditEventType = "rejected_sold_out"
	AuditRejectedNotActive AuditEventType = "rejected_not_active"
	AuditConfirmed         AuditEventType = "confirmed"
	AuditFailedWrite       AuditEventType = "failed_durable_write"
	AuditAdminReset        AuditEventType = "admin_reset"
)

// AuditEvent is one append-only admission-trail entry. Events are batched and
// written best-effort; they are diagnostic, never authoritative.
type AuditEvent struct {
	SaleID    string
	UserID    string
	Type      AuditEventType
	Metadata  map[string]any
	CreatedAt time.Time
}
