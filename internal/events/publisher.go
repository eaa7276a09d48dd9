package events

import (
	"log"

	"github.com/bizbooks/backend/internal/models"
)

// TopicBusinessEvents is the topic all domain events are published to.
const TopicBusinessEvents = "business_events"

// Publisher delivers domain events to the event log. Publishing is
// fire-and-forget from the caller's perspective: a returned error is logged,
// never propagated into the mutation that produced the event.
type Publisher interface {
	Publish(topic string, event models.DomainEvent) error
}

// LogPublisher writes events to the process log. It is the fallback when no
// broker is configured, so local runs still surface every domain event.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(topic string, event models.DomainEvent) error {
	log.Printf("[EVENTS] %s: business=%s action=%s entity=%s", topic, event.BusinessID, event.Action, event.EntityID)
	return nil
}
