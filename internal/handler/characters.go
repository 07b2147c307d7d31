package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/character-chat/internal/middleware"
	"github.com/capitalize-ai/character-chat/internal/model"
	"github.com/capitalize-ai/character-chat/internal/service"
	"github.com/capitalize-ai/character-chat/pkg/logger"
)

// CharacterHandler handles character authoring endpoints.
type CharacterHandler struct {
	service *service.CharacterService
	logger  *logger.Logger
}

// NewCharacterHandler creates a new character handler.
func NewCharacterHandler(svc *service.CharacterService, log *logger.Logger) *CharacterHandler {
	return &CharacterHandler{service: svc, logger: log}
}

// List handles GET /api/v1/characters
func (h *CharacterHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	chars, err := h.service.List(r.Context(), middleware.GetUserID(r.Context()), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if chars == nil {
		chars = []model.Character{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"characters": chars})
}

// Get handles GET /api/v1/characters/{id}
func (h *CharacterHandler) Get(w http.ResponseWriter, r *http.Request) {
	characterID := chi.URLParam(r, "id")
	if err := middleware.ValidateID(characterID, "character"); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	char, err := h.service.Get(r.Context(), middleware.GetUserID(r.Context()), characterID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, char)
}

// Create handles POST /api/v1/characters
func (h *CharacterHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateCharacterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	char, err := h.service.Create(r.Context(), middleware.GetUserID(r.Context()), &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, char)
}

// Generate handles POST /api/v1/characters/generate
func (h *CharacterHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateCharacterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	draft, err := h.service.Generate(r.Context(), middleware.GetUserID(r.Context()), &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}
