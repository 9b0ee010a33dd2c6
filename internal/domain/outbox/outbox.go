package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the delivery state of an outbox message. Delivered and Dead
// are terminal; Failed messages stay eligible for the next poll.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
	StatusDead      Status = "DEAD"
)

// Message is a domain event recorded in the same transaction as the
// business write it announces. Rows are never deleted; they are retained
// for audit after reaching a terminal status.
type Message struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	Status        Status
	Attempts      int
	CreatedAt     time.Time
	DeliveredAt   *time.Time
}

// NewMessage serializes payload and builds a pending message.
func NewMessage(aggregateType, aggregateID, eventType string, payload any) (*Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal outbox payload: %w", err)
	}
	return &Message{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
		Status:        StatusPending,
		CreatedAt:     time.Now(),
	}, nil
}

// Terminal reports whether the message may never be delivered again.
func (m *Message) Terminal() bool {
	return m.Status == StatusDelivered || m.Status == StatusDead
}
