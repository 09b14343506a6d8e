package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/Jonas0119/zhzb/internal/zhzb/models"
)

type addPointsRequest struct {
	PointType string          `json:"pointType"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

type announcementRequest struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	IsImportant bool   `json:"isImportant"`
}

// AdminStats returns dashboard totals
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	stats, err := h.Admin.DashboardStats(r.Context(), adminID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// AdminUsers pages through users with ?page=&limit=&search=
func (h *Handler) AdminUsers(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	page, err := h.Admin.ListUsers(r.Context(), adminID,
		queryInt(r, "page", 1), queryInt(r, "limit", 20), r.URL.Query().Get("search"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// AdminAddPoints credits points to a user
func (h *Handler) AdminAddPoints(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	targetID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req addPointsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	acct, err := h.Admin.AddUserPoints(r.Context(), adminID, targetID, models.PointType(req.PointType), req.Amount, req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// AdminUpdateRole changes a user's role
func (h *Handler) AdminUpdateRole(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	targetID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.Admin.UpdateUserRole(r.Context(), adminID, targetID, req.Role)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// AdminLogs pages through the audit log
func (h *Handler) AdminLogs(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	page, err := h.Admin.AdminLogs(r.Context(), adminID, queryInt(r, "page", 1), queryInt(r, "limit", 20))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// AdminCreateAnnouncement publishes a notice
func (h *Handler) AdminCreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req announcementRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.Admin.CreateAnnouncement(r.Context(), adminID, models.Announcement{
		Title:       req.Title,
		Content:     req.Content,
		Type:        req.Type,
		Status:      req.Status,
		IsImportant: req.IsImportant,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}
