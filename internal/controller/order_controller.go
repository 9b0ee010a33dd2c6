package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storecraft/commerce-core/internal/application/order"
)

type OrderController struct {
	service *order.SubmitService
}

func NewOrderController(service *order.SubmitService) *OrderController {
	return &OrderController{service: service}
}

// Submit handles POST /api/v1/tenants/{tenant}/orders.
func (c *OrderController) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	submitReq := order.SubmitRequest{
		TenantID:    chi.URLParam(r, "tenant"),
		StoreID:     req.StoreID,
		BuyerID:     req.BuyerID,
		SubmitToken: req.SubmitToken,
	}
	for _, line := range req.Lines {
		submitReq.Lines = append(submitReq.Lines, order.Line{
			ItemID:     line.ItemID,
			LocationID: line.LocationID,
			Qty:        line.Qty,
		})
	}

	res, err := c.service.Execute(r.Context(), submitReq)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, FromSubmitResult(res))
}
