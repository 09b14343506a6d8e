package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/Jonas0119/zhzb/internal/zhzb/models"
)

type sellRequest struct {
	PointType string          `json:"pointType"`
	Amount    decimal.Decimal `json:"amount"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type buyRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type reviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// ListOrders returns active sell orders, optionally filtered by ?pointType=
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Market.ListActive(r.Context(), r.URL.Query().Get("pointType"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(orders))
}

// Sell lists points for sale
func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req sellRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.Market.Sell(r.Context(), userID, models.PointType(req.PointType), req.Amount, req.UnitPrice)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// Buy fills part or all of a sell order
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req buyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.Market.Buy(r.Context(), orderID, userID, req.Amount)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// MyOrders returns the caller's orders
func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orders, err := h.Market.MyOrders(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(orders))
}

// OrderDetail returns one of the caller's orders
func (h *Handler) OrderDetail(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	order, err := h.Market.OrderDetail(r.Context(), orderID, userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// CancelOrder withdraws an active sell order
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	released, err := h.Market.Cancel(r.Context(), orderID, userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": orderID, "released_amount": released})
}

// ReviewOrder rates a paid buy order and completes it
func (h *Handler) ReviewOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := h.Market.Review(r.Context(), orderID, userID, req.Rating, req.Comment)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
