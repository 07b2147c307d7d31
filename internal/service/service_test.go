package service

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/capitalize-ai/character-chat/internal/llm"
	"github.com/capitalize-ai/character-chat/internal/model"
	"github.com/capitalize-ai/character-chat/internal/quota"
	"github.com/capitalize-ai/character-chat/internal/store"
	"github.com/capitalize-ai/character-chat/pkg/logger"
)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, messages []llm.ChatMessage) (*llm.Generation, error) {
	args := m.Called(ctx, messages)
	gen, _ := args.Get(0).(*llm.Generation)
	return gen, args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishEvent(ctx context.Context, event *model.ChatEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type fixture struct {
	db     *gorm.DB
	store  *store.Store
	ledger *quota.SQLLedger
	gen    *MockGenerator
	events *MockPublisher
	chat   *ChatService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), store.Config(gormlogger.Silent))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Every connection to ":memory:" opens its own database, and message
	// appends run multi-statement transactions. The ledger race with real
	// concurrent connections is covered in the quota package.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, store.Migrate(db))

	f := &fixture{
		db:     db,
		store:  store.New(db),
		ledger: quota.NewSQLLedger(db, quota.FreeDailyLimit),
		gen:    new(MockGenerator),
		events: new(MockPublisher),
	}
	f.events.On("PublishEvent", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.chat = NewChatService(f.store, f.ledger, f.gen, f.events, logger.NewNop())
	return f
}

func (f *fixture) profile(t *testing.T, userID string, updates map[string]any) *model.Profile {
	t.Helper()
	ctx := context.Background()
	p, err := f.store.EnsureProfile(ctx, userID)
	require.NoError(t, err)
	if len(updates) > 0 {
		p, err = f.store.UpdateProfile(ctx, userID, updates)
		require.NoError(t, err)
	}
	return p
}

func (f *fixture) character(t *testing.T, c *model.Character) *model.Character {
	t.Helper()
	if c.Name == "" {
		c.Name = "Aria"
	}
	require.NoError(t, f.store.CreateCharacter(context.Background(), c))
	return c
}

func (f *fixture) conversation(t *testing.T, userID, characterID string, personaID *string) *model.Conversation {
	t.Helper()
	conv := &model.Conversation{UserID: userID, CharacterID: characterID, PersonaID: personaID}
	require.NoError(t, f.store.CreateConversation(context.Background(), conv))
	return conv
}

func (f *fixture) usage(t *testing.T, userID string) int {
	t.Helper()
	used, err := f.ledger.Usage(context.Background(), userID, quota.DayKey(time.Now()))
	require.NoError(t, err)
	return used
}

func (f *fixture) seedUsage(t *testing.T, userID string, used int) {
	t.Helper()
	require.NoError(t, f.db.Create(&model.DailyUsage{
		UserID: userID,
		Day:    quota.DayKey(time.Now()),
		Used:   used,
	}).Error)
}

func (f *fixture) messages(t *testing.T, conversationID string) []model.Message {
	t.Helper()
	msgs, err := f.store.ListMessages(context.Background(), conversationID, 0)
	require.NoError(t, err)
	return msgs
}

func strPtr(s string) *string { return &s }
