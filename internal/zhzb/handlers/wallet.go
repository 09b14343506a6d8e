package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/Jonas0119/zhzb/internal/zhzb/models"
)

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type withdrawRequest struct {
	Amount decimal.Decimal `json:"amount"`
	CardID int64           `json:"cardId"`
}

type confirmRechargeRequest struct {
	Success bool `json:"success"`
}

type addCardRequest struct {
	CardNumber string `json:"cardNumber"`
	HolderName string `json:"holderName"`
	BankName   string `json:"bankName"`
	Phone      string `json:"phone"`
	IsDefault  bool   `json:"isDefault"`
}

// WalletInfo returns cash and point balances
func (h *Handler) WalletInfo(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	info, err := h.Wallet.Info(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// PointsBalance returns point balances
func (h *Handler) PointsBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	bal, err := h.Wallet.PointsBalance(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

// Recharge credits cash immediately
func (h *Handler) Recharge(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.Wallet.Recharge(r.Context(), userID, req.Amount)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// RequestRecharge opens a pending recharge settled by the payment gateway
func (h *Handler) RequestRecharge(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.Wallet.RequestRecharge(r.Context(), userID, req.Amount)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

// ConfirmRecharge settles a pending recharge by hand
func (h *Handler) ConfirmRecharge(w http.ResponseWriter, r *http.Request) {
	txID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req confirmRechargeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.Wallet.ConfirmRecharge(r.Context(), txID, req.Success)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Withdraw debits cash to a bank card
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.Wallet.Withdraw(r.Context(), userID, req.Amount, req.CardID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Transactions returns the caller's ledger records
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	recs, err := h.Wallet.Transactions(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(recs))
}

// ListCards returns the caller's bank cards
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	cards, err := h.Wallet.ListCards(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(cards))
}

// AddCard registers a bank card
func (h *Handler) AddCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req addCardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	card, err := h.Wallet.AddCard(r.Context(), userID, models.BankCard{
		CardNumber: req.CardNumber,
		HolderName: req.HolderName,
		BankName:   req.BankName,
		Phone:      req.Phone,
		IsDefault:  req.IsDefault,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

// DeleteCard removes a bank card
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	cardID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Wallet.DeleteCard(r.Context(), userID, cardID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
