package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	stockApp "github.com/storecraft/commerce-core/internal/application/stock"
	"github.com/storecraft/commerce-core/internal/domain/stock"
)

type StockController struct {
	service *stockApp.Service
}

func NewStockController(service *stockApp.Service) *StockController {
	return &StockController{service: service}
}

// Get handles GET /api/v1/tenants/{tenant}/stock.
func (c *StockController) Get(w http.ResponseWriter, r *http.Request) {
	key := stock.Key{
		TenantID:   chi.URLParam(r, "tenant"),
		StoreID:    r.URL.Query().Get("store_id"),
		ItemID:     r.URL.Query().Get("item_id"),
		LocationID: r.URL.Query().Get("location_id"),
	}
	row, err := c.service.Get(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromStockRow(row))
}

// Create handles POST /api/v1/tenants/{tenant}/stock.
func (c *StockController) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateStockRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	row := &stock.Row{
		Key: stock.Key{
			TenantID:   chi.URLParam(r, "tenant"),
			StoreID:    req.StoreID,
			ItemID:     req.ItemID,
			LocationID: req.LocationID,
		},
		TotalQty:    req.TotalQty,
		SafetyStock: req.SafetyStock,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.service.Create(r.Context(), row); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, FromStockRow(row))
}

// Lock handles POST /api/v1/tenants/{tenant}/stock/lock.
func (c *StockController) Lock(w http.ResponseWriter, r *http.Request) {
	var req QuantityRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := c.service.Lock(r.Context(), c.key(r, req.StoreID, req.ItemID, req.LocationID), req.Qty, req.RequestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fromReservation(*res))
}

// Confirm handles POST /api/v1/tenants/{tenant}/stock/confirm.
func (c *StockController) Confirm(w http.ResponseWriter, r *http.Request) {
	c.mutation(w, r, c.service.Confirm)
}

// Release handles POST /api/v1/tenants/{tenant}/stock/release.
func (c *StockController) Release(w http.ResponseWriter, r *http.Request) {
	c.mutation(w, r, c.service.Release)
}

// Adjust handles POST /api/v1/tenants/{tenant}/stock/adjust.
func (c *StockController) Adjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustStockRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	version, err := c.service.Adjust(r.Context(),
		c.key(r, req.StoreID, req.ItemID, req.LocationID),
		req.TotalQty, req.SafetyStock, req.RequestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Version: version})
}

type mutationFn func(ctx context.Context, key stock.Key, qty int64, requestID string) (int64, error)

func (c *StockController) mutation(w http.ResponseWriter, r *http.Request, fn mutationFn) {
	var req QuantityRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	version, err := fn(r.Context(), c.key(r, req.StoreID, req.ItemID, req.LocationID), req.Qty, req.RequestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Version: version})
}

func (c *StockController) key(r *http.Request, storeID, itemID, locationID string) stock.Key {
	return stock.Key{
		TenantID:   chi.URLParam(r, "tenant"),
		StoreID:    storeID,
		ItemID:     itemID,
		LocationID: locationID,
	}
}
