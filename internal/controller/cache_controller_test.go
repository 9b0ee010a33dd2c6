package controller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storecraft/commerce-core/internal/cache"
	"github.com/storecraft/commerce-core/internal/dispatcher"
	"github.com/storecraft/commerce-core/internal/infrastructure/kv"
	"github.com/storecraft/commerce-core/internal/testutil"
)

func newCacheRouter(outboxRepo *testutil.MockOutboxRepository) (*chi.Mux, *cache.Registry) {
	registry := cache.NewRegistry(kv.NewMemoryStore(), cache.NewBus(zerolog.Nop()), zerolog.Nop())
	c := NewCacheController(registry, outboxRepo)

	r := chi.NewRouter()
	r.Route("/api/v1/tenants/{tenant}", func(r chi.Router) {
		r.Get("/cache/{namespace}/epoch", c.Epoch)
		r.Post("/cache/{namespace}/bump", c.Bump)
	})
	return r, registry
}

func TestCacheController_Epoch(t *testing.T) {
	router, _ := newCacheRouter(testutil.NewMockOutboxRepository())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/t1/cache/availability/epoch", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp EpochResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "t1", resp.TenantID)
	assert.Equal(t, "availability", resp.Namespace)
	assert.Equal(t, int64(1), resp.Epoch)
}

func TestCacheController_Bump_QueuesOutboxRow(t *testing.T) {
	outboxRepo := testutil.NewMockOutboxRepository()
	router, _ := newCacheRouter(outboxRepo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/t1/cache/availability/bump", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp BumpResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp.Status)

	// The bump must travel through the outbox so the dispatcher fans it
	// out to every instance, not just this one.
	messages := outboxRepo.All()
	require.Len(t, messages, 1)
	assert.Equal(t, dispatcher.EventTypeInvalidation, messages[0].EventType)

	var payload struct {
		TenantID  string `json:"tenant_id"`
		Namespace string `json:"namespace"`
	}
	require.NoError(t, json.Unmarshal(messages[0].Payload, &payload))
	assert.Equal(t, "t1", payload.TenantID)
	assert.Equal(t, "availability", payload.Namespace)
}

func TestCacheController_Bump_DoesNotTouchEpochDirectly(t *testing.T) {
	outboxRepo := testutil.NewMockOutboxRepository()
	router, registry := newCacheRouter(outboxRepo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/t1/cache/availability/bump", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	// The increment happens in the dispatcher's handler; the endpoint
	// itself only queues the message.
	epoch, err := registry.CurrentEpoch(req.Context(), "t1", "availability")
	require.NoError(t, err)
	assert.Equal(t, int64(1), epoch)
}
