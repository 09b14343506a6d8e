package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Jonas0119/zhzb/internal/zhzb/middleware"
	"github.com/Jonas0119/zhzb/internal/zhzb/models"
	"github.com/Jonas0119/zhzb/internal/zhzb/service"
)

const maxBodyBytes = 1 << 20

// Handler handles all HTTP requests
type Handler struct {
	Auth          *service.AuthService
	Market        *service.MarketService
	Wallet        *service.WalletService
	Admin         *service.AdminService
	Announcements *service.AnnouncementService
	JWT           *middleware.JWTConfig
	Logger        *slog.Logger
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{models.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{models.ErrInsufficientPoints, http.StatusBadRequest, "insufficient_points"},
	{models.ErrInsufficientBalance, http.StatusBadRequest, "insufficient_balance"},
	{models.ErrInsufficientRemaining, http.StatusBadRequest, "insufficient_remaining"},
	{models.ErrOrderNotAvailable, http.StatusBadRequest, "order_not_available"},
	{models.ErrOrderNotCancelable, http.StatusBadRequest, "order_not_cancelable"},
	{models.ErrInvalidOrderStatus, http.StatusBadRequest, "invalid_order_status"},
	{models.ErrNegativeBalance, http.StatusBadRequest, "negative_balance"},
	{models.ErrForbidden, http.StatusForbidden, "forbidden"},
	{models.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
	{models.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{models.ErrCardNotFound, http.StatusNotFound, "card_not_found"},
	{models.ErrAnnouncementNotFound, http.StatusNotFound, "announcement_not_found"},
	{models.ErrTransactionNotFound, http.StatusNotFound, "transaction_not_found"},
	{models.ErrUserExists, http.StatusConflict, "user_exists"},
	{models.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
}

// writeServiceError maps a service error to its HTTP status
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			writeError(w, e.status, e.code, err.Error())
			return
		}
	}
	h.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid "+name)
		return 0, false
	}
	return id, true
}

func currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return 0, false
	}
	return userID, true
}

func queryInt(r *http.Request, name string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil {
		return v
	}
	return def
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
