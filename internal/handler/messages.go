package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/character-chat/internal/middleware"
	"github.com/capitalize-ai/character-chat/internal/model"
	"github.com/capitalize-ai/character-chat/internal/service"
	"github.com/capitalize-ai/character-chat/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	service *service.ChatService
	logger  *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(svc *service.ChatService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /api/v1/conversations/:id/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID, "conversation"); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	msgs, err := h.service.ListMessages(ctx, conversationID, userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	views := make([]model.MessageView, 0, len(msgs))
	for i := range msgs {
		m := &msgs[i]
		views = append(views, model.MessageView{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Text(),
			CreatedAt: m.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, &model.ListMessagesResponse{Messages: views})
}

// Send handles POST /api/v1/conversations/:id/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID, "conversation"); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req model.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.service.SendMessage(ctx, conversationID, userID, req.Content)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, &model.SendMessageResponse{
		AssistantText: res.AssistantText,
		UserMessage:   res.UserMessage,
		Reply:         res.Reply,
		Limit:         res.Limit,
		Used:          res.Used,
	})
}
