package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/character-chat/internal/middleware"
	"github.com/capitalize-ai/character-chat/internal/model"
	"github.com/capitalize-ai/character-chat/internal/service"
	"github.com/capitalize-ai/character-chat/pkg/logger"
)

// ConversationHandler handles conversation lifecycle endpoints.
type ConversationHandler struct {
	service *service.ChatService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ChatService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  log,
	}
}

// Start handles POST /api/v1/conversations
func (h *ConversationHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.StartConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := middleware.ValidateID(req.CharacterID, "character"); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	id, err := h.service.StartConversation(ctx, userID, req.CharacterID, req.PersonaID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, &model.ConversationResponse{ConversationID: id})
}

// Ensure handles POST /api/v1/conversations/ensure
func (h *ConversationHandler) Ensure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.EnsureConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := middleware.ValidateID(req.CharacterID, "character"); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	id, character, err := h.service.EnsureConversation(ctx, userID, req.CharacterID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, &model.ConversationResponse{ConversationID: id, Character: character})
}

// Restart handles POST /api/v1/conversations/:id/restart
func (h *ConversationHandler) Restart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID, "conversation"); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req model.RestartConversationRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}
	keepPersona := req.KeepPersona == nil || *req.KeepPersona

	id, err := h.service.RestartConversation(ctx, conversationID, userID, keepPersona)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, &model.ConversationResponse{ConversationID: id})
}

// SetPersona handles PUT /api/v1/conversations/:id/persona
func (h *ConversationHandler) SetPersona(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID, "conversation"); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req model.SetPersonaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.service.SetPersona(ctx, conversationID, userID, req.PersonaID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/v1/conversations/:id
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID, "conversation"); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.service.DeleteConversation(ctx, conversationID, userID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
