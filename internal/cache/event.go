package cache

import (
	"time"

	"github.com/google/uuid"
)

// InvalidationEvent announces that cached entries under a tenant
// namespace are stale. Events are immutable and delivered fire-and-forget
// to every local subscriber; remote instances receive the same event via
// the outbox/stream path.
type InvalidationEvent struct {
	EventID      uuid.UUID `json:"event_id"`
	TenantID     string    `json:"tenant_id"`
	Scope        string    `json:"scope"`
	Namespace    string    `json:"namespace"`
	AffectedKeys []string  `json:"affected_keys,omitempty"`
	Epoch        int64     `json:"epoch"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewInvalidationEvent builds an epoch-bump event for a tenant namespace.
func NewInvalidationEvent(tenantID, scope, namespace string, epoch int64) InvalidationEvent {
	return InvalidationEvent{
		EventID:    uuid.New(),
		TenantID:   tenantID,
		Scope:      scope,
		Namespace:  namespace,
		Epoch:      epoch,
		OccurredAt: time.Now(),
	}
}
