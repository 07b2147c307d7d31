package handler

import (
	"net/http"

	"github.com/capitalize-ai/character-chat/internal/middleware"
	"github.com/capitalize-ai/character-chat/internal/model"
	"github.com/capitalize-ai/character-chat/internal/service"
	"github.com/capitalize-ai/character-chat/pkg/logger"
)

// PersonaHandler handles persona endpoints.
type PersonaHandler struct {
	service *service.PersonaService
	logger  *logger.Logger
}

// NewPersonaHandler creates a new persona handler.
func NewPersonaHandler(svc *service.PersonaService, log *logger.Logger) *PersonaHandler {
	return &PersonaHandler{service: svc, logger: log}
}

// List handles GET /api/v1/personas
func (h *PersonaHandler) List(w http.ResponseWriter, r *http.Request) {
	personas, err := h.service.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if personas == nil {
		personas = []model.Persona{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"personas": personas})
}

// Create handles POST /api/v1/personas
func (h *PersonaHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreatePersonaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	persona, err := h.service.Create(r.Context(), middleware.GetUserID(r.Context()), &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, persona)
}
