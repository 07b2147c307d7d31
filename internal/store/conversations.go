package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/capitalize-ai/character-chat/internal/apperr"
	"github.com/capitalize-ai/character-chat/internal/model"
)

// messageOrder is the single ordering used for every message read.
const messageOrder = "created_at ASC, seq ASC, id ASC"

// CreateConversation stores a new conversation.
func (s *Store) CreateConversation(ctx context.Context, c *model.Conversation) error {
	if c.ID == "" {
		c.ID = newID()
	}
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return apperr.StorageFailed("create conversation", err)
	}
	return nil
}

// GetConversation returns the conversation with the given id. Ownership is
// checked by the caller.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var c model.Conversation
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&c).Error; err != nil {
		return nil, readErr("conversation", err)
	}
	return &c, nil
}

// LatestConversation returns the most recently created conversation of a
// user with a character.
func (s *Store) LatestConversation(ctx context.Context, userID, characterID string) (*model.Conversation, error) {
	var c model.Conversation
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND character_id = ?", userID, characterID).
		Order("created_at DESC").
		Take(&c).Error
	if err != nil {
		return nil, readErr("conversation", err)
	}
	return &c, nil
}

// SetConversationPersona binds or clears the persona of a conversation.
func (s *Store) SetConversationPersona(ctx context.Context, id string, personaID *string) error {
	res := s.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{"persona_id": personaID, "updated_at": s.now()})
	if res.Error != nil {
		return apperr.StorageFailed("set persona", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("conversation")
	}
	return nil
}

// DeleteConversation removes a conversation and all of its messages in one
// transaction.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	err := s.withTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("conversation")
		}
		return nil
	})

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if err != nil {
		return apperr.StorageFailed("delete conversation", err)
	}
	return nil
}

// AppendMessage adds a message after every existing message of the
// conversation.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, role model.Role, text string) (*model.Message, error) {
	return s.AppendMessageWithPayload(ctx, conversationID, role, text, nil)
}

// AppendMessageWithPayload is AppendMessage that also keeps the raw
// structured body a producer returned. The payload may be nil.
func (s *Store) AppendMessageWithPayload(ctx context.Context, conversationID string, role model.Role, text string, payload []byte) (*model.Message, error) {
	msg := &model.Message{
		ID:             newID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        text,
	}
	if len(payload) > 0 {
		msg.Payload = datatypes.JSON(payload)
	}

	err := s.withTx(ctx, func(tx *gorm.DB) error {
		createdAt := s.now().Truncate(time.Microsecond)
		msg.Seq = 1

		var last model.Message
		err := tx.Where("conversation_id = ?", conversationID).
			Order("seq DESC").
			Take(&last).Error
		switch {
		case err == nil:
			msg.Seq = last.Seq + 1
			if !createdAt.After(last.CreatedAt) {
				createdAt = last.CreatedAt.Add(time.Microsecond)
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		msg.CreatedAt = createdAt
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&model.Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", createdAt).Error
	})
	if err != nil {
		return nil, apperr.StorageFailed("append message", err)
	}
	return msg, nil
}

// RecentMessages returns the last n messages of a conversation, oldest first.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, n int) ([]model.Message, error) {
	var msgs []model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, seq DESC, id DESC").
		Limit(n).
		Find(&msgs).Error
	if err != nil {
		return nil, apperr.StorageFailed("read recent messages", err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListMessages returns the history of a conversation, oldest first. A
// positive limit keeps the newest limit messages; otherwise every message is
// returned.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	if limit > 0 {
		return s.RecentMessages(ctx, conversationID, limit)
	}

	var msgs []model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order(messageOrder).
		Find(&msgs).Error
	if err != nil {
		return nil, apperr.StorageFailed("list messages", err)
	}
	return msgs, nil
}
