package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

type AuditEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	EventType  string    `json:"event_type"`
	BusinessID string    `json:"business_id"`
	EntityID   string    `json:"entity_id"`
	UserID     string    `json:"user_id,omitempty"`
	Status     string    `json:"status"`
	Details    any       `json:"details,omitempty"`
}

type AuditLogger struct{}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

func (a *AuditLogger) LogMutation(action, businessID, entityID, userID string, amount decimal.Decimal) {
	event := AuditEvent{
		Timestamp:  time.Now(),
		EventType:  action,
		BusinessID: businessID,
		EntityID:   entityID,
		UserID:     userID,
		Status:     "SUCCESS",
		Details:    map[string]string{"amount": amount.String()},
	}
	a.log(event)
}

func (a *AuditLogger) LogError(action, businessID, entityID string, err error) {
	event := AuditEvent{
		Timestamp:  time.Now(),
		EventType:  action,
		BusinessID: businessID,
		EntityID:   entityID,
		Status:     "FAILED",
		Details:    map[string]string{"error": err.Error()},
	}
	a.log(event)
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
