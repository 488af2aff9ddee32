package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MaxOutboxRetries is the delivery attempt ceiling before a message is
// dead-lettered.
const MaxOutboxRetries = 3

// OutboxMessage is one persisted domain event awaiting publication. Messages
// are appended in the same transaction as the aggregate write and published
// at-least-once, in created_at order per aggregate.
type OutboxMessage struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	AggregateType string          `json:"aggregateType" db:"aggregate_type"`
	AggregateID   string          `json:"aggregateId" db:"aggregate_id"`
	EventType     string          `json:"eventType" db:"event_type"`
	Payload       json.RawMessage `json:"payload" db:"payload"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	ProcessingAt  *time.Time      `json:"processingAt,omitempty" db:"processing_at"`
	PublishedAt   *time.Time      `json:"publishedAt,omitempty" db:"published_at"`
	RetryCount    int             `json:"retryCount" db:"retry_count"`
	LastError     *string         `json:"lastError,omitempty" db:"last_error"`
}

// NewOutboxMessage serializes a domain event into its outbox row.
func NewOutboxMessage(event DomainEvent) (OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return OutboxMessage{}, NewDomainError(TagOutboxPersistence, "failed to serialize %s event", event.EventType()).
			WithCause(err)
	}
	return OutboxMessage{
		ID:            event.EventID(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		EventType:     event.EventType(),
		Payload:       payload,
		CreatedAt:     event.OccurredAt(),
	}, nil
}

// DeadLettered reports whether the message has exhausted its retry budget.
func (m OutboxMessage) DeadLettered() bool {
	return m.PublishedAt == nil && m.RetryCount >= MaxOutboxRetries
}
