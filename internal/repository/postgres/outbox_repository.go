package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storecraft/commerce-core/internal/domain/outbox"
)

type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *OutboxRepository) Insert(ctx context.Context, msg *outbox.Message) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, status, attempts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, []byte(msg.Payload),
		string(msg.Status), msg.Attempts, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// GetDeliverable selects pending and previously failed messages oldest
// first, skipping rows another dispatcher instance has claimed.
func (r *OutboxRepository) GetDeliverable(ctx context.Context, limit int) ([]*outbox.Message, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, aggregate_type, aggregate_id, event_type, payload, status, attempts, created_at, delivered_at
		 FROM outbox WHERE status IN ('PENDING', 'FAILED')
		 ORDER BY created_at ASC
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get deliverable outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []*outbox.Message
	for rows.Next() {
		m := &outbox.Message{}
		var payload []byte
		var status string
		if err := rows.Scan(&m.ID, &m.AggregateType, &m.AggregateID, &m.EventType, &payload, &status, &m.Attempts, &m.CreatedAt, &m.DeliveredAt); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		m.Status = outbox.Status(status)
		m.Payload = payload
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *OutboxRepository) MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox SET status = 'DELIVERED', delivered_at = $1
		 WHERE id = $2 AND status NOT IN ('DELIVERED', 'DEAD')`, deliveredAt, id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox delivered: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, dead bool) error {
	status := string(outbox.StatusFailed)
	if dead {
		status = string(outbox.StatusDead)
	}
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox SET status = $1, attempts = $2
		 WHERE id = $3 AND status NOT IN ('DELIVERED', 'DEAD')`, status, attempts, id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}
