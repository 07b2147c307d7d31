package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/character-chat/internal/apperr"
	"github.com/capitalize-ai/character-chat/internal/llm"
	"github.com/capitalize-ai/character-chat/internal/model"
	"github.com/capitalize-ai/character-chat/internal/quota"
)

func TestSendMessageFreeUserFirstMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.profile(t, "u1", nil)
	char := f.character(t, &model.Character{Name: "Aria", Description: "A bard."})
	conv := f.conversation(t, "u1", char.ID, nil)

	f.gen.On("Generate", mock.Anything, mock.MatchedBy(func(msgs []llm.ChatMessage) bool {
		return len(msgs) == 2 &&
			msgs[0].Role == llm.RoleSystem &&
			msgs[1] == llm.ChatMessage{Role: llm.RoleUser, Content: "hello"}
	})).Return(&llm.Generation{Text: "Well met!"}, nil).Once()

	res, err := f.chat.SendMessage(ctx, conv.ID, "u1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Well met!", res.AssistantText)
	assert.True(t, res.Metered)
	assert.Equal(t, 1, res.Used)
	assert.Equal(t, quota.FreeDailyLimit, res.Limit)

	msgs := f.messages(t, conv.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Well met!", msgs[1].Content)

	assert.Equal(t, 1, f.usage(t, "u1"))
	f.gen.AssertExpectations(t)
	f.events.AssertCalled(t, "PublishEvent", mock.Anything, mock.MatchedBy(func(e *model.ChatEvent) bool {
		return e.Type == model.EventTypeMessage && e.MessageID == msgs[1].ID
	}))
}

func TestSendMessageLimitReached(t *testing.T) {
	f := newFixture(t)
	f.profile(t, "u1", nil)
	char := f.character(t, &model.Character{})
	conv := f.conversation(t, "u1", char.ID, nil)
	f.seedUsage(t, "u1", 30)

	_, err := f.chat.SendMessage(context.Background(), conv.ID, "u1", "hello")

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindLimitReached, appErr.Kind)
	assert.Equal(t, 30, appErr.Limit)
	assert.Equal(t, 30, appErr.Used)

	assert.Empty(t, f.messages(t, conv.ID))
	assert.Equal(t, 30, f.usage(t, "u1"))
	f.gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestSendMessageMatureWithoutAge(t *testing.T) {
	f := newFixture(t)
	f.profile(t, "u1", nil)
	char := f.character(t, &model.Character{Mature: true})
	conv := f.conversation(t, "u1", char.ID, nil)

	_, err := f.chat.SendMessage(context.Background(), conv.ID, "u1", "hello")

	assert.Equal(t, apperr.KindAgeNotConfirmed, apperr.KindOf(err))
	assert.Empty(t, f.messages(t, conv.ID))
	assert.Zero(t, f.usage(t, "u1"))
	f.gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestSendMessageMatureWithoutToggle(t *testing.T) {
	f := newFixture(t)
	f.profile(t, "u1", map[string]any{"age_confirmed": true})
	char := f.character(t, &model.Character{Mature: true})
	conv := f.conversation(t, "u1", char.ID, nil)

	_, err := f.chat.SendMessage(context.Background(), conv.ID, "u1", "hello")
	assert.Equal(t, apperr.KindMatureNotEnabled, apperr.KindOf(err))
}

func TestSendMessageMatureConsentedFreeUser(t *testing.T) {
	f := newFixture(t)
	f.profile(t, "u1", map[string]any{"age_confirmed": true, "mature_enabled": true})
	char := f.character(t, &model.Character{Mature: true})
	conv := f.conversation(t, "u1", char.ID, nil)
	f.gen.On("Generate", mock.Anything, mock.Anything).Return(&llm.Generation{Text: "..."}, nil)

	_, err := f.chat.SendMessage(context.Background(), conv.ID, "u1", "hello")
	require.NoError(t, err)
	assert.Equal(t, 1, f.usage(t, "u1"))
}

func TestSendMessageTimeoutKeepsUserMessage(t *testing.T) {
	f := newFixture(t)
	f.profile(t, "u1", nil)
	char := f.character(t, &model.Character{})
	conv := f.conversation(t, "u1", char.ID, nil)

	f.gen.On("Generate", mock.Anything, mock.Anything).
		Return(nil, apperr.Wrap(apperr.KindTimeout, "the character took too long to reply", context.DeadlineExceeded))

	_, err := f.chat.SendMessage(context.Background(), conv.ID, "u1", "hello?")
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))

	msgs := f.messages(t, conv.ID)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello?", msgs[0].Content)

	f.events.AssertCalled(t, "PublishEvent", mock.Anything, mock.MatchedBy(func(e *model.ChatEvent) bool {
		return e.Type == model.EventTypeGenerationFailed && e.Reason == string(apperr.KindTimeout)
	}))
}

func TestSendMessageConcurrentLastSlot(t *testing.T) {
	f := newFixture(t)
	f.profile(t, "u1", nil)
	char := f.character(t, &model.Character{})
	conv := f.conversation(t, "u1", char.ID, nil)
	f.seedUsage(t, "u1", 29)
	f.gen.On("Generate", mock.Anything, mock.Anything).Return(&llm.Generation{Text: "ok"}, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.chat.SendMessage(context.Background(), conv.ID, "u1", fmt.Sprintf("msg %d", i))
		}(i)
	}
	wg.Wait()

	succeeded, limited := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperr.Is(err, apperr.KindLimitReached):
			limited++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, limited)
	assert.Equal(t, 30, f.usage(t, "u1"))
	assert.Len(t, f.messages(t, conv.ID), 2)
}

func TestSendMessagePremiumSkipsQuota(t *testing.T) {
	f := newFixture(t)
	f.profile(t, "u1", map[string]any{"tier": model.TierPremium})
	char := f.character(t, &model.Character{})
	conv := f.conversation(t, "u1", char.ID, nil)
	f.seedUsage(t, "u1", 30)
	f.gen.On("Generate", mock.Anything, mock.Anything).Return(&llm.Generation{Text: "ok"}, nil)

	res, err := f.chat.SendMessage(context.Background(), conv.ID, "u1", "hello")
	require.NoError(t, err)
	assert.False(t, res.Metered)
	assert.Equal(t, 30, f.usage(t, "u1"))
}

func TestSendMessageActiveTrialSkipsQuota(t *testing.T) {
	f := newFixture(t)
	f.profile(t, "u1", map[string]any{"trial_ends_at": time.Now().UTC().Add(24 * time.Hour)})
	char := f.character(t, &model.Character{})
	conv := f.conversation(t, "u1", char.ID, nil)
	f.gen.On("Generate", mock.Anything, mock.Anything).Return(&llm.Generation{Text: "ok"}, nil)

	_, err := f.chat.SendMessage(context.Background(), conv.ID, "u1", "hello")
	require.NoError(t, err)
	assert.Zero(t, f.usage(t, "u1"))
}

func TestSendMessageRejections(t *testing.T) {
	f := newFixture(t)
	f.profile(t, "owner", nil)
	f.profile(t, "other", nil)
	f.profile(t, "blocked", map[string]any{"blocked": true})
	char := f.character(t, &model.Character{})
	conv := f.conversation(t, "owner", char.ID, nil)
	blockedConv := f.conversation(t, "blocked", char.ID, nil)

	tests := []struct {
		name           string
		conversationID string
		userID         string
		text           string
		kind           apperr.Kind
	}{
		{"anonymous", conv.ID, "", "hi", apperr.KindNotAuthenticated},
		{"empty text", conv.ID, "owner", "   ", apperr.KindInvalidRequest},
		{"unknown conversation", "missing", "owner", "hi", apperr.KindNotFound},
		{"not the owner", conv.ID, "other", "hi", apperr.KindNotAllowed},
		{"blocked user", blockedConv.ID, "blocked", "hi", apperr.KindBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.chat.SendMessage(context.Background(), tt.conversationID, tt.userID, tt.text)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
	assert.Empty(t, f.messages(t, conv.ID))
	f.gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestSendMessagePersonaOwnedByAnotherUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.profile(t, "u1", nil)
	char := f.character(t, &model.Character{})
	foreign := &model.Persona{UserID: "u2", Name: "Thief"}
	require.NoError(t, f.store.CreatePersona(ctx, foreign))
	conv := f.conversation(t, "u1", char.ID, &foreign.ID)

	_, err := f.chat.SendMessage(ctx, conv.ID, "u1", "hi")
	assert.Equal(t, apperr.KindNotAllowed, apperr.KindOf(err))
}

func TestSendMessageBuildsPromptFromHistoryAndPersona(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.profile(t, "u1", nil)
	char := f.character(t, &model.Character{})
	persona := &model.Persona{UserID: "u1", Name: "Captain Vale"}
	require.NoError(t, f.store.CreatePersona(ctx, persona))
	conv := f.conversation(t, "u1", char.ID, &persona.ID)

	for i := 0; i < 30; i++ {
		_, err := f.store.AppendMessage(ctx, conv.ID, model.RoleUser, fmt.Sprintf("old %d", i))
		require.NoError(t, err)
	}

	var captured []llm.ChatMessage
	f.gen.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).([]llm.ChatMessage) }).
		Return(&llm.Generation{Text: "Aye."}, nil)

	_, err := f.chat.SendMessage(ctx, conv.ID, "u1", "newest")
	require.NoError(t, err)

	require.Len(t, captured, 2+20+1)
	assert.Contains(t, captured[1].Content, "Captain Vale")
	assert.Equal(t, "old 10", captured[2].Content)
	assert.Equal(t, "old 29", captured[21].Content)
	assert.Equal(t, "newest", captured[22].Content)
}

// failingReplyStore fails every assistant message write.
type failingReplyStore struct {
	Store
}

func (s failingReplyStore) AppendMessageWithPayload(ctx context.Context, conversationID string, role model.Role, text string, payload []byte) (*model.Message, error) {
	if role == model.RoleAssistant {
		return nil, apperr.StorageFailed("append message", errors.New("disk full"))
	}
	return s.Store.AppendMessageWithPayload(ctx, conversationID, role, text, payload)
}

func TestSendMessageReplyWriteFailureKeepsUserMessage(t *testing.T) {
	f := newFixture(t)
	f.profile(t, "u1", nil)
	char := f.character(t, &model.Character{})
	conv := f.conversation(t, "u1", char.ID, nil)
	f.gen.On("Generate", mock.Anything, mock.Anything).Return(&llm.Generation{Text: "lost"}, nil)

	chat := NewChatService(failingReplyStore{f.store}, f.ledger, f.gen, f.events, f.chat.logger)

	_, err := chat.SendMessage(context.Background(), conv.ID, "u1", "hello")
	assert.Equal(t, apperr.KindStorageFailed, apperr.KindOf(err))

	msgs := f.messages(t, conv.ID)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
}

func TestSendMessageStoresStructuredReplyPayload(t *testing.T) {
	f := newFixture(t)
	f.profile(t, "u1", nil)
	char := f.character(t, &model.Character{})
	conv := f.conversation(t, "u1", char.ID, nil)

	raw := []byte(`{"lines":["Well met.","Sit by the fire."]}`)
	f.gen.On("Generate", mock.Anything, mock.Anything).
		Return(&llm.Generation{Text: "Well met.\nSit by the fire.", Payload: raw}, nil)

	res, err := f.chat.SendMessage(context.Background(), conv.ID, "u1", "hello")
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(res.Reply.Payload))

	msgs := f.messages(t, conv.ID)
	require.Len(t, msgs, 2)
	assert.False(t, msgs[0].HasPayload())
	assert.JSONEq(t, string(raw), string(msgs[1].Payload))
	assert.Equal(t, "Well met.\nSit by the fire.", msgs[1].Text())
}

type brokenLedger struct{ quota.Ledger }

func (brokenLedger) TryConsume(context.Context, string, string) (quota.Result, error) {
	return quota.Result{}, errors.New("connection reset")
}

func TestSendMessageLedgerFailure(t *testing.T) {
	f := newFixture(t)
	f.profile(t, "u1", nil)
	char := f.character(t, &model.Character{})
	conv := f.conversation(t, "u1", char.ID, nil)

	chat := NewChatService(f.store, brokenLedger{}, f.gen, f.events, f.chat.logger)

	_, err := chat.SendMessage(context.Background(), conv.ID, "u1", "hello")
	assert.Equal(t, apperr.KindStorageFailed, apperr.KindOf(err))
	assert.Empty(t, f.messages(t, conv.ID))
}

func TestListMessagesOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.profile(t, "u1", nil)
	char := f.character(t, &model.Character{})
	conv := f.conversation(t, "u1", char.ID, nil)
	_, err := f.store.AppendMessage(ctx, conv.ID, model.RoleUser, "hi")
	require.NoError(t, err)

	msgs, err := f.chat.ListMessages(ctx, conv.ID, "u1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	_, err = f.chat.ListMessages(ctx, conv.ID, "u2")
	assert.Equal(t, apperr.KindNotAllowed, apperr.KindOf(err))
}

func TestStartConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	char := f.character(t, &model.Character{})
	private := f.character(t, &model.Character{CreatorID: "author", Visibility: model.VisibilityPrivate})
	mine := &model.Persona{UserID: "u1", Name: "Me"}
	require.NoError(t, f.store.CreatePersona(ctx, mine))
	theirs := &model.Persona{UserID: "u2", Name: "Them"}
	require.NoError(t, f.store.CreatePersona(ctx, theirs))

	id, err := f.chat.StartConversation(ctx, "u1", char.ID, &mine.ID)
	require.NoError(t, err)
	conv, err := f.store.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "u1", conv.UserID)
	require.NotNil(t, conv.PersonaID)
	assert.Equal(t, mine.ID, *conv.PersonaID)

	_, err = f.chat.StartConversation(ctx, "u1", char.ID, &theirs.ID)
	assert.Equal(t, apperr.KindNotAllowed, apperr.KindOf(err))

	_, err = f.chat.StartConversation(ctx, "u1", "missing", nil)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.chat.StartConversation(ctx, "u1", private.ID, nil)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.chat.StartConversation(ctx, "author", private.ID, nil)
	assert.NoError(t, err)
}

func TestEnsureConversationReusesLatest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	char := f.character(t, &model.Character{})

	first, _, err := f.chat.EnsureConversation(ctx, "u1", char.ID)
	require.NoError(t, err)

	again, got, err := f.chat.EnsureConversation(ctx, "u1", char.ID)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, char.ID, got.ID)
}

func TestRestartConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	char := f.character(t, &model.Character{})
	persona := &model.Persona{UserID: "u1", Name: "Me"}
	require.NoError(t, f.store.CreatePersona(ctx, persona))
	orig := f.conversation(t, "u1", char.ID, &persona.ID)

	kept, err := f.chat.RestartConversation(ctx, orig.ID, "u1", true)
	require.NoError(t, err)
	conv, err := f.store.GetConversation(ctx, kept)
	require.NoError(t, err)
	assert.NotEqual(t, orig.ID, conv.ID)
	assert.Equal(t, char.ID, conv.CharacterID)
	require.NotNil(t, conv.PersonaID)
	assert.Equal(t, persona.ID, *conv.PersonaID)

	dropped, err := f.chat.RestartConversation(ctx, orig.ID, "u1", false)
	require.NoError(t, err)
	conv, err = f.store.GetConversation(ctx, dropped)
	require.NoError(t, err)
	assert.Nil(t, conv.PersonaID)

	_, err = f.chat.RestartConversation(ctx, orig.ID, "u2", true)
	assert.Equal(t, apperr.KindNotAllowed, apperr.KindOf(err))
}

func TestSetPersona(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	char := f.character(t, &model.Character{})
	conv := f.conversation(t, "u1", char.ID, nil)
	mine := &model.Persona{UserID: "u1", Name: "Me"}
	require.NoError(t, f.store.CreatePersona(ctx, mine))
	theirs := &model.Persona{UserID: "u2", Name: "Them"}
	require.NoError(t, f.store.CreatePersona(ctx, theirs))

	require.NoError(t, f.chat.SetPersona(ctx, conv.ID, "u1", &mine.ID))
	assert.Equal(t, apperr.KindNotAllowed, apperr.KindOf(f.chat.SetPersona(ctx, conv.ID, "u1", &theirs.ID)))
	require.NoError(t, f.chat.SetPersona(ctx, conv.ID, "u1", strPtr("")))

	got, err := f.store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PersonaID)
}

func TestDeleteConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	char := f.character(t, &model.Character{})
	conv := f.conversation(t, "u1", char.ID, nil)
	_, err := f.store.AppendMessage(ctx, conv.ID, model.RoleUser, "hi")
	require.NoError(t, err)

	err = f.chat.DeleteConversation(ctx, conv.ID, "u2")
	assert.Equal(t, apperr.KindNotAllowed, apperr.KindOf(err))

	require.NoError(t, f.chat.DeleteConversation(ctx, conv.ID, "u1"))
	_, err = f.store.GetConversation(ctx, conv.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Empty(t, f.messages(t, conv.ID))

	f.events.AssertCalled(t, "PublishEvent", mock.Anything, mock.MatchedBy(func(e *model.ChatEvent) bool {
		return e.Type == model.EventTypeDeleted && e.ConversationID == conv.ID
	}))
}
