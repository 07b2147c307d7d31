package handler

import (
	"net/http"
	"strconv"

	"github.com/capitalize-ai/character-chat/internal/middleware"
	"github.com/capitalize-ai/character-chat/internal/model"
	"github.com/capitalize-ai/character-chat/internal/service"
	"github.com/capitalize-ai/character-chat/pkg/logger"
)

// ProfileHandler handles account and administration endpoints.
type ProfileHandler struct {
	service *service.ProfileService
	logger  *logger.Logger
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(svc *service.ProfileService, log *logger.Logger) *ProfileHandler {
	return &ProfileHandler{service: svc, logger: log}
}

// Me handles GET /api/v1/me
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	me, err := h.service.Me(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}

// UpdateSettings handles PUT /api/v1/me/settings
func (h *ProfileHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateSettingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	profile, err := h.service.UpdateSettings(r.Context(), middleware.GetUserID(r.Context()), &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// ListUsers handles GET /api/v1/admin/users
func (h *ProfileHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	users, err := h.service.ListUsers(r.Context(), middleware.GetUserID(r.Context()), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if users == nil {
		users = []model.Profile{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// AdminAction handles POST /api/v1/admin/users
func (h *ProfileHandler) AdminAction(w http.ResponseWriter, r *http.Request) {
	var req model.AdminAction
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	profile, err := h.service.ApplyAdminAction(r.Context(), middleware.GetUserID(r.Context()), &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
