package models

import "time"

// Domain event actions emitted on ledger mutations.
const (
	ActionTransactionCreated = "transaction.created"
	ActionTransactionUpdated = "transaction.updated"
	ActionTransactionDeleted = "transaction.deleted"
	ActionAccountCreated     = "account.created"
	ActionAccountUpdated     = "account.updated"
	ActionAccountDeleted     = "account.deleted"
	ActionBusinessCreated    = "business.created"
	ActionBusinessUpdated    = "business.updated"
	ActionBusinessDeleted    = "business.deleted"
	ActionMemberAdded        = "member.added"
)

// DomainEvent is the record emitted to the event log after each successful
// mutation. Publishing is fire-and-forget; failure never rolls back the
// mutation that produced the event.
type DomainEvent struct {
	BusinessID string         `json:"businessId"`
	Action     string         `json:"action"`
	EntityID   string         `json:"entityId"`
	UserID     string         `json:"userId,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}
