package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/storecraft/commerce-core/internal/cache"
)

// InvalidationStream carries epoch-bump events between instances. Each
// instance consumes through its own group so every one of them sees
// every event.
const InvalidationStream = "cache:invalidation"

type StreamProducer struct {
	client *redis.Client
}

func NewStreamProducer(client *redis.Client) *StreamProducer {
	return &StreamProducer{client: client}
}

// PublishInvalidation fans an invalidation event out to remote instances.
func (p *StreamProducer) PublishInvalidation(ctx context.Context, evt cache.InvalidationEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: InvalidationStream,
		Values: map[string]any{
			"event_id":  evt.EventID.String(),
			"tenant_id": evt.TenantID,
			"namespace": evt.Namespace,
			"epoch":     evt.Epoch,
			"payload":   string(payload),
			"timestamp": time.Now().Unix(),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish invalidation event: %w", err)
	}
	return nil
}

type StreamConsumer struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client *redis.Client,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	const busyGroupMsg = "BUSYGROUP"
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XStream, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()

	if err != nil {
		if err == redis.Nil {
			// No new messages
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	return streams, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// DecodeInvalidation parses the payload field of a stream message.
func DecodeInvalidation(msg redis.XMessage) (cache.InvalidationEvent, error) {
	var evt cache.InvalidationEvent
	raw, _ := msg.Values["payload"].(string)
	if raw == "" {
		return evt, fmt.Errorf("stream message %s has no payload", msg.ID)
	}
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		return evt, fmt.Errorf("decode invalidation event %s: %w", msg.ID, err)
	}
	return evt, nil
}

// InvalidationApplier applies bump events produced by other instances.
type InvalidationApplier interface {
	ApplyRemote(ctx context.Context, evt cache.InvalidationEvent)
}

// invalidationSource is the consumer surface the loop reads from.
type invalidationSource interface {
	Read(ctx context.Context) ([]redis.XStream, error)
	Ack(ctx context.Context, messageID string) error
}

// ConsumeInvalidations reads the invalidation stream until ctx is
// canceled, applying every decoded event and acking it. Undecodable
// messages are acked and dropped; redelivery cannot fix them. Every
// process that reads epochs must run this loop, each with its own
// consumer group, or its local mirror goes stale after the first bump
// performed elsewhere.
func ConsumeInvalidations(ctx context.Context, src invalidationSource, applier InvalidationApplier, logger zerolog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		streams, err := src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error().Err(err).Msg("Failed to read from stream")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(1 * time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				evt, err := DecodeInvalidation(msg)
				if err != nil {
					logger.Error().Err(err).Str("message_id", msg.ID).Msg("Invalid invalidation message")
					ack(ctx, src, msg.ID, logger)
					continue
				}

				applier.ApplyRemote(ctx, evt)
				logger.Debug().
					Str("tenant_id", evt.TenantID).
					Str("namespace", evt.Namespace).
					Int64("epoch", evt.Epoch).
					Msg("Applied remote epoch bump")
				ack(ctx, src, msg.ID, logger)
			}
		}
	}
}

// ack logs failures; an unacked message means redelivery, worth seeing.
func ack(ctx context.Context, src invalidationSource, messageID string, logger zerolog.Logger) {
	if err := src.Ack(ctx, messageID); err != nil {
		logger.Error().Err(err).Str("message_id", messageID).Msg("Failed to ack invalidation message")
	}
}
