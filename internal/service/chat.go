package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/character-chat/internal/apperr"
	"github.com/capitalize-ai/character-chat/internal/consent"
	"github.com/capitalize-ai/character-chat/internal/entitlement"
	"github.com/capitalize-ai/character-chat/internal/model"
	"github.com/capitalize-ai/character-chat/internal/prompt"
	"github.com/capitalize-ai/character-chat/internal/quota"
	"github.com/capitalize-ai/character-chat/pkg/logger"
	"github.com/capitalize-ai/character-chat/pkg/metrics"
	"github.com/capitalize-ai/character-chat/pkg/tracing"
)

const (
	// MaxMessageChars bounds the length of an inbound user message.
	MaxMessageChars = 4000

	// DisplayHistoryLimit bounds the history returned for display.
	DisplayHistoryLimit = 200
)

// SendResult is the outcome of a successful send.
type SendResult struct {
	AssistantText string
	UserMessage   *model.Message
	Reply         *model.Message

	// Metered is true when the send counted against the daily quota.
	Metered bool
	Limit   int
	Used    int
}

// ChatService runs the message-send pipeline and conversation lifecycle.
type ChatService struct {
	store     Store
	ledger    quota.Ledger
	generator Generator
	events    EventPublisher
	logger    *logger.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewChatService creates a new chat service.
func NewChatService(
	store Store,
	ledger quota.Ledger,
	generator Generator,
	events EventPublisher,
	log *logger.Logger,
) *ChatService {
	if events == nil {
		events = NopPublisher{}
	}
	return &ChatService{
		store:     store,
		ledger:    ledger,
		generator: generator,
		events:    events,
		logger:    log.Named("chat"),
		tracer:    tracing.Tracer("character-chat/service"),
		now:       time.Now,
	}
}

// SendMessage persists the user's message, generates the character's reply
// and persists it. The user message is stored before generation starts and
// is kept when generation fails.
func (s *ChatService) SendMessage(ctx context.Context, conversationID, userID, text string) (result *SendResult, err error) {
	ctx, span := s.tracer.Start(ctx, "chat.send", trace.WithAttributes(
		attribute.String("conversation_id", conversationID),
	))
	defer func() {
		if err != nil {
			kind := string(apperr.KindOf(err))
			metrics.SendFailures.WithLabelValues(kind).Inc()
			span.SetStatus(codes.Error, kind)
		}
		span.End()
	}()

	if userID == "" {
		return nil, apperr.NotAuthenticated()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Invalid("message is empty")
	}
	if utf8.RuneCountInString(text) > MaxMessageChars {
		return nil, apperr.Invalid("message is too long")
	}

	profile, err := loadProfile(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}

	conv, err := ownedConversation(ctx, s.store, conversationID, userID)
	if err != nil {
		return nil, err
	}

	character, err := s.store.GetCharacter(ctx, conv.CharacterID)
	if err != nil {
		return nil, err
	}

	var persona *model.Persona
	if conv.PersonaID != nil {
		if persona, err = ownedPersona(ctx, s.store, *conv.PersonaID, userID); err != nil {
			return nil, err
		}
	}

	if decision := consent.MayServe(profile, character); !decision.Allowed {
		return nil, decision.Err()
	}

	result = &SendResult{}
	if !entitlement.HasExpandedAccess(entitlement.FromProfile(profile), s.now()) {
		res, err := s.ledger.TryConsume(ctx, userID, quota.DayKey(s.now()))
		if err != nil {
			return nil, apperr.StorageFailed("consume daily quota", err)
		}
		metrics.RecordQuota(res.Allowed)
		if !res.Allowed {
			return nil, apperr.LimitReached(res.Limit, res.Used)
		}
		result.Metered, result.Limit, result.Used = true, res.Limit, res.Used
	}

	log := s.logger.With(
		zap.String("conversation_id", conv.ID),
		zap.String("user_id", userID),
	)

	userMsg, err := s.store.AppendMessage(ctx, conv.ID, model.RoleUser, text)
	if err != nil {
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()
	result.UserMessage = userMsg

	history, err := s.priorMessages(ctx, conv.ID, userMsg.ID)
	if err != nil {
		return nil, err
	}

	gen, err := s.generator.Generate(ctx, prompt.Build(prompt.Input{
		Character: character,
		Persona:   persona,
		History:   history,
		UserText:  text,
	}))
	if err != nil {
		log.Warn("generation failed, user message kept", zap.String("message_id", userMsg.ID), zap.Error(err))
		s.publish(ctx, &model.ChatEvent{
			ConversationID: conv.ID,
			UserID:         userID,
			Type:           model.EventTypeGenerationFailed,
			MessageID:      userMsg.ID,
			Reason:         string(apperr.KindOf(err)),
		})
		return nil, err
	}

	reply, err := s.store.AppendMessageWithPayload(ctx, conv.ID, model.RoleAssistant, gen.Text, gen.Payload)
	if err != nil {
		log.Error("failed to store reply", zap.Error(err))
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()

	s.publish(ctx, &model.ChatEvent{
		ConversationID: conv.ID,
		UserID:         userID,
		Type:           model.EventTypeMessage,
		Role:           model.RoleAssistant,
		MessageID:      reply.ID,
	})

	log.Debug("reply stored",
		zap.String("message_id", reply.ID),
		zap.Int("tokens_out", gen.TokensOut),
		zap.Bool("metered", result.Metered),
	)

	result.AssistantText = gen.Text
	result.Reply = reply
	return result, nil
}

// priorMessages returns up to prompt.HistoryLimit messages preceding the
// given message, oldest first.
func (s *ChatService) priorMessages(ctx context.Context, conversationID, excludeID string) ([]model.Message, error) {
	recent, err := s.store.RecentMessages(ctx, conversationID, prompt.HistoryLimit+1)
	if err != nil {
		return nil, err
	}

	history := make([]model.Message, 0, len(recent))
	for _, m := range recent {
		if m.ID != excludeID {
			history = append(history, m)
		}
	}
	if len(history) > prompt.HistoryLimit {
		history = history[len(history)-prompt.HistoryLimit:]
	}
	return history, nil
}

// ListMessages returns the conversation history for display, oldest first.
func (s *ChatService) ListMessages(ctx context.Context, conversationID, userID string) ([]model.Message, error) {
	if _, err := loadProfile(ctx, s.store, userID); err != nil {
		return nil, err
	}
	conv, err := ownedConversation(ctx, s.store, conversationID, userID)
	if err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conv.ID, DisplayHistoryLimit)
}

// StartConversation creates a new conversation with a character, optionally
// bound to one of the user's personas.
func (s *ChatService) StartConversation(ctx context.Context, userID, characterID string, personaID *string) (string, error) {
	if _, err := loadProfile(ctx, s.store, userID); err != nil {
		return "", err
	}
	if _, err := visibleCharacter(ctx, s.store, characterID, userID); err != nil {
		return "", err
	}
	if personaID != nil && *personaID == "" {
		personaID = nil
	}
	if personaID != nil {
		if _, err := ownedPersona(ctx, s.store, *personaID, userID); err != nil {
			return "", err
		}
	}
	return s.create(ctx, userID, characterID, personaID)
}

func (s *ChatService) create(ctx context.Context, userID, characterID string, personaID *string) (string, error) {
	conv := &model.Conversation{
		UserID:      userID,
		CharacterID: characterID,
		PersonaID:   personaID,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return "", err
	}
	metrics.ConversationsTotal.Inc()

	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("user_id", userID),
		zap.String("character_id", characterID),
	)
	return conv.ID, nil
}

// EnsureConversation returns the user's latest conversation with a
// character, creating one on first contact.
func (s *ChatService) EnsureConversation(ctx context.Context, userID, characterID string) (string, *model.Character, error) {
	if _, err := loadProfile(ctx, s.store, userID); err != nil {
		return "", nil, err
	}
	char, err := visibleCharacter(ctx, s.store, characterID, userID)
	if err != nil {
		return "", nil, err
	}

	conv, err := s.store.LatestConversation(ctx, userID, characterID)
	switch {
	case err == nil:
		return conv.ID, char, nil
	case !apperr.Is(err, apperr.KindNotFound):
		return "", nil, err
	}

	id, err := s.create(ctx, userID, characterID, nil)
	if err != nil {
		return "", nil, err
	}
	return id, char, nil
}

// RestartConversation starts a fresh conversation with the same character
// as an existing one. The persona is carried over when keepPersona is set.
func (s *ChatService) RestartConversation(ctx context.Context, conversationID, userID string, keepPersona bool) (string, error) {
	if _, err := loadProfile(ctx, s.store, userID); err != nil {
		return "", err
	}
	conv, err := ownedConversation(ctx, s.store, conversationID, userID)
	if err != nil {
		return "", err
	}

	var personaID *string
	if keepPersona && conv.PersonaID != nil {
		id := *conv.PersonaID
		personaID = &id
	}
	return s.create(ctx, userID, conv.CharacterID, personaID)
}

// SetPersona binds a persona to a conversation, or clears it when personaID
// is nil.
func (s *ChatService) SetPersona(ctx context.Context, conversationID, userID string, personaID *string) error {
	if _, err := loadProfile(ctx, s.store, userID); err != nil {
		return err
	}
	conv, err := ownedConversation(ctx, s.store, conversationID, userID)
	if err != nil {
		return err
	}
	if personaID != nil && *personaID == "" {
		personaID = nil
	}
	if personaID != nil {
		if _, err := ownedPersona(ctx, s.store, *personaID, userID); err != nil {
			return err
		}
	}
	return s.store.SetConversationPersona(ctx, conv.ID, personaID)
}

// DeleteConversation removes a conversation and all of its messages.
func (s *ChatService) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	if _, err := loadProfile(ctx, s.store, userID); err != nil {
		return err
	}
	conv, err := ownedConversation(ctx, s.store, conversationID, userID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteConversation(ctx, conv.ID); err != nil {
		return err
	}

	s.publish(ctx, &model.ChatEvent{
		ConversationID: conv.ID,
		UserID:         userID,
		Type:           model.EventTypeDeleted,
	})
	return nil
}

// publish sends an event without failing the request.
func (s *ChatService) publish(ctx context.Context, event *model.ChatEvent) {
	event.ID = uuid.Must(uuid.NewV7()).String()
	event.CreatedAt = s.now().UTC()
	if err := s.events.PublishEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish chat event",
			zap.String("type", string(event.Type)),
			zap.String("conversation_id", event.ConversationID),
			zap.Error(err),
		)
	}
}
