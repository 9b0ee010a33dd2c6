package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Insert creates a new outbox message (typically inside the business
	// transaction).
	Insert(ctx context.Context, msg *Message) error

	// GetDeliverable returns pending and failed messages in creation
	// order, up to limit.
	GetDeliverable(ctx context.Context, limit int) ([]*Message, error)

	// MarkDelivered transitions a message to its terminal delivered state.
	MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error

	// MarkFailed records a failed attempt; dead parks the message
	// permanently.
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, dead bool) error
}
