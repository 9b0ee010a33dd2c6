package controller

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storecraft/commerce-core/internal/cache"
	"github.com/storecraft/commerce-core/internal/dispatcher"
	"github.com/storecraft/commerce-core/internal/domain/outbox"
)

// OutboxWriter appends messages for the dispatcher to deliver.
type OutboxWriter interface {
	Insert(ctx context.Context, msg *outbox.Message) error
}

// CacheController exposes epoch reads and the manual invalidation hook
// operators use when a namespace needs flushing out of band.
type CacheController struct {
	registry *cache.Registry
	outbox   OutboxWriter
}

func NewCacheController(registry *cache.Registry, outboxWriter OutboxWriter) *CacheController {
	return &CacheController{registry: registry, outbox: outboxWriter}
}

// Epoch handles GET /api/v1/tenants/{tenant}/cache/{namespace}/epoch.
func (c *CacheController) Epoch(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	namespace := chi.URLParam(r, "namespace")

	epoch, err := c.registry.CurrentEpoch(r.Context(), tenantID, namespace)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EpochResponse{TenantID: tenantID, Namespace: namespace, Epoch: epoch})
}

// Bump handles POST /api/v1/tenants/{tenant}/cache/{namespace}/bump.
// The bump is appended to the outbox so the dispatcher increments the
// epoch and fans it out to every instance; a direct local bump would
// leave the rest of the fleet on the old epoch.
func (c *CacheController) Bump(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	namespace := chi.URLParam(r, "namespace")

	msg, err := dispatcher.NewInvalidationMessage(tenantID, "namespace", namespace, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := c.outbox.Insert(r.Context(), msg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, BumpResponse{TenantID: tenantID, Namespace: namespace, Status: "queued"})
}
