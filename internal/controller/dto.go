package controller

import (
	"time"

	"github.com/storecraft/commerce-core/internal/application/order"
	stockApp "github.com/storecraft/commerce-core/internal/application/stock"
	"github.com/storecraft/commerce-core/internal/domain/stock"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (string IDs, validation tags).
// Controllers convert them to application-layer inputs before calling
// business logic.

// CreateStockRequest registers a new stock row.
type CreateStockRequest struct {
	StoreID     string `json:"store_id" validate:"required"`
	ItemID      string `json:"item_id" validate:"required"`
	LocationID  string `json:"location_id" validate:"required"`
	TotalQty    int64  `json:"total_qty" validate:"gte=0"`
	SafetyStock int64  `json:"safety_stock" validate:"gte=0"`
}

// QuantityRequest carries a lock/confirm/release amount.
type QuantityRequest struct {
	StoreID    string `json:"store_id" validate:"required"`
	ItemID     string `json:"item_id" validate:"required"`
	LocationID string `json:"location_id" validate:"required"`
	Qty        int64  `json:"qty" validate:"required,gt=0"`
	RequestID  string `json:"request_id" validate:"required"`
}

// AdjustStockRequest overwrites total and safety stock levels.
type AdjustStockRequest struct {
	StoreID     string `json:"store_id" validate:"required"`
	ItemID      string `json:"item_id" validate:"required"`
	LocationID  string `json:"location_id" validate:"required"`
	TotalQty    int64  `json:"total_qty" validate:"gte=0"`
	SafetyStock int64  `json:"safety_stock" validate:"gte=0"`
	RequestID   string `json:"request_id" validate:"required"`
}

// OrderLineRequest is one line of a submitted order.
type OrderLineRequest struct {
	ItemID     string `json:"item_id" validate:"required"`
	LocationID string `json:"location_id" validate:"required"`
	Qty        int64  `json:"qty" validate:"required,gt=0"`
}

// SubmitOrderRequest holds the input for submitting an order.
type SubmitOrderRequest struct {
	StoreID     string             `json:"store_id" validate:"required"`
	BuyerID     string             `json:"buyer_id" validate:"required"`
	SubmitToken string             `json:"submit_token" validate:"required"`
	Lines       []OrderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// --- Response DTOs ---

// StockResponse represents a stock row in API responses.
type StockResponse struct {
	TenantID    string    `json:"tenant_id"`
	StoreID     string    `json:"store_id"`
	ItemID      string    `json:"item_id"`
	LocationID  string    `json:"location_id"`
	TotalQty    int64     `json:"total_qty"`
	LockedQty   int64     `json:"locked_qty"`
	SafetyStock int64     `json:"safety_stock"`
	Available   int64     `json:"available"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MutationResponse reports the row version after a stock mutation.
type MutationResponse struct {
	Version int64 `json:"version"`
}

// ReservationResponse represents one granted line reservation.
type ReservationResponse struct {
	ItemID     string `json:"item_id"`
	LocationID string `json:"location_id"`
	GrantedQty int64  `json:"granted_qty"`
	Version    int64  `json:"version"`
}

// OrderResponse represents a submitted order.
type OrderResponse struct {
	OrderID      string                `json:"order_id"`
	Reservations []ReservationResponse `json:"reservations"`
}

// EpochResponse reports the current epoch of a cache namespace.
type EpochResponse struct {
	TenantID  string `json:"tenant_id"`
	Namespace string `json:"namespace"`
	Epoch     int64  `json:"epoch"`
}

// BumpResponse acknowledges a queued manual invalidation.
type BumpResponse struct {
	TenantID  string `json:"tenant_id"`
	Namespace string `json:"namespace"`
	Status    string `json:"status"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromStockRow converts a domain stock row to API response.
func FromStockRow(r *stock.Row) *StockResponse {
	return &StockResponse{
		TenantID:    r.TenantID,
		StoreID:     r.StoreID,
		ItemID:      r.ItemID,
		LocationID:  r.LocationID,
		TotalQty:    r.TotalQty,
		LockedQty:   r.LockedQty,
		SafetyStock: r.SafetyStock,
		Available:   r.Available(),
		Version:     r.Version,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// FromSubmitResult converts a submission result to API response.
func FromSubmitResult(res *order.SubmitResult) *OrderResponse {
	resp := &OrderResponse{OrderID: res.OrderID.String()}
	for _, r := range res.Reservations {
		resp.Reservations = append(resp.Reservations, fromReservation(r))
	}
	return resp
}

func fromReservation(r stockApp.Reservation) ReservationResponse {
	return ReservationResponse{
		ItemID:     r.Key.ItemID,
		LocationID: r.Key.LocationID,
		GrantedQty: r.GrantedQty,
		Version:    r.Version,
	}
}
