package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func newTestConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        uuid.New().String(),
		RoleType:  "ttc_assistant",
		BotName:   "Xiaomai",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newTestBot(name string, isDefault bool) *Bot {
	now := time.Now()
	return &Bot{
		ID:           uuid.New().String(),
		Name:         name,
		RoleType:     "ttc_assistant",
		SystemPrompt: "You are helpful",
		IsDefault:    isDefault,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestStore_SeedsDefaultBot(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	bot, err := store.GetDefaultBot(ctx)
	require.NoError(t, err)
	assert.True(t, bot.IsDefault)
	assert.Equal(t, "Xiaomai", bot.Name)
	assert.Equal(t, "ttc_assistant", bot.RoleType)
}

func TestStore_CreateConversation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := newTestConversation()
	require.NoError(t, store.CreateConversation(ctx, conv))

	retrieved, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, retrieved.ID)
	assert.Equal(t, conv.RoleType, retrieved.RoleType)
	assert.Equal(t, conv.BotName, retrieved.BotName)
}

func TestStore_GetConversation_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetConversation(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListConversations_MostRecentFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now()
	var ids []string
	for i := 0; i < 3; i++ {
		conv := newTestConversation()
		conv.CreatedAt = base.Add(time.Duration(i) * time.Second)
		conv.UpdatedAt = conv.CreatedAt
		require.NoError(t, store.CreateConversation(ctx, conv))
		ids = append(ids, conv.ID)
	}

	convs, err := store.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 3)

	// Most recently updated first
	assert.Equal(t, ids[2], convs[0].ID)
	assert.Equal(t, ids[1], convs[1].ID)
	assert.Equal(t, ids[0], convs[2].ID)
}

func TestStore_TouchConversation_ReordersList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := newTestConversation()
	require.NoError(t, store.CreateConversation(ctx, first))
	second := newTestConversation()
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	second.UpdatedAt = second.CreatedAt
	require.NoError(t, store.CreateConversation(ctx, second))

	require.NoError(t, store.TouchConversation(ctx, first.ID))

	convs, err := store.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, first.ID, convs[0].ID)
}

func TestStore_SaveMessage_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := newTestConversation()
	require.NoError(t, store.CreateConversation(ctx, conv))

	tokens := 42
	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           RoleAssistant,
		Content:        "Hello there",
		TokensUsed:     &tokens,
		ProcessLogs:    []string{"step-a", "step-b"},
		Timestamp:      time.Now(),
	}
	require.NoError(t, store.SaveMessage(ctx, msg))

	msgs, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hello there", msgs[0].Content)
	require.NotNil(t, msgs[0].TokensUsed)
	assert.Equal(t, 42, *msgs[0].TokensUsed)
	assert.Equal(t, []string{"step-a", "step-b"}, msgs[0].ProcessLogs)
}

func TestStore_SaveMessage_NilOptionals(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := newTestConversation()
	require.NoError(t, store.CreateConversation(ctx, conv))

	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           RoleUser,
		Content:        "Hi",
		Timestamp:      time.Now(),
	}
	require.NoError(t, store.SaveMessage(ctx, msg))

	msgs, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Nil(t, msgs[0].TokensUsed)
	assert.Nil(t, msgs[0].ProcessLogs)
}

func TestStore_SaveMessage_BumpsConversation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := newTestConversation()
	conv.CreatedAt = time.Now().Add(-time.Hour)
	conv.UpdatedAt = conv.CreatedAt
	require.NoError(t, store.CreateConversation(ctx, conv))

	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           RoleUser,
		Content:        "Hi",
		Timestamp:      time.Now(),
	}
	require.NoError(t, store.SaveMessage(ctx, msg))

	retrieved, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, retrieved.UpdatedAt.After(retrieved.CreatedAt))
}

func TestStore_ListMessages_Order(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := newTestConversation()
	require.NoError(t, store.CreateConversation(ctx, conv))

	// Same timestamp: insertion order must break the tie
	ts := time.Now()
	for i, content := range []string{"first", "second", "third"} {
		msg := &Message{
			ID:             fmt.Sprintf("msg-%d", i),
			ConversationID: conv.ID,
			Role:           RoleUser,
			Content:        content,
			Timestamp:      ts,
		}
		require.NoError(t, store.SaveMessage(ctx, msg))
	}

	msgs, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
	assert.Equal(t, "third", msgs[2].Content)
}

func TestStore_CreateBot_SingleDefault(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a := newTestBot("A", true)
	require.NoError(t, store.CreateBot(ctx, a))
	b := newTestBot("B", true)
	require.NoError(t, store.CreateBot(ctx, b))

	// Last write wins: B is the default, A no longer is
	def, err := store.GetDefaultBot(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, def.ID)

	bots, err := store.ListBots(ctx)
	require.NoError(t, err)
	defaults := 0
	for _, bot := range bots {
		if bot.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestStore_UpdateBot_MovesDefault(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a := newTestBot("A", false)
	require.NoError(t, store.CreateBot(ctx, a))

	a.SystemPrompt = "Updated prompt"
	a.IsDefault = true
	require.NoError(t, store.UpdateBot(ctx, a))

	def, err := store.GetDefaultBot(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID, def.ID)
	assert.Equal(t, "Updated prompt", def.SystemPrompt)

	bots, err := store.ListBots(ctx)
	require.NoError(t, err)
	defaults := 0
	for _, bot := range bots {
		if bot.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestStore_UpdateBot_NotFound(t *testing.T) {
	store := setupTestStore(t)

	ghost := newTestBot("Ghost", false)
	err := store.UpdateBot(context.Background(), ghost)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListBots_ByName(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateBot(ctx, newTestBot("Zed", false)))
	require.NoError(t, store.CreateBot(ctx, newTestBot("Alice", false)))

	bots, err := store.ListBots(ctx)
	require.NoError(t, err)
	require.Len(t, bots, 3) // includes seeded Xiaomai
	assert.Equal(t, "Alice", bots[0].Name)
	assert.Equal(t, "Xiaomai", bots[1].Name)
	assert.Equal(t, "Zed", bots[2].Name)
}

func TestStore_DeleteBot(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	bot := newTestBot("Disposable", false)
	require.NoError(t, store.CreateBot(ctx, bot))
	require.NoError(t, store.DeleteBot(ctx, bot.ID))

	_, err := store.GetBot(ctx, bot.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteBot_Default(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	def, err := store.GetDefaultBot(ctx)
	require.NoError(t, err)

	err = store.DeleteBot(ctx, def.ID)
	assert.ErrorIs(t, err, ErrDefaultBot)

	// Registry unchanged
	still, err := store.GetBot(ctx, def.ID)
	require.NoError(t, err)
	assert.True(t, still.IsDefault)
}

func TestStore_DeleteBot_NotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.DeleteBot(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ConcurrentWrites(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := newTestConversation()
	require.NoError(t, store.CreateConversation(ctx, conv))

	// Hammer the single worker from many goroutines; every write must land.
	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.SaveMessage(ctx, &Message{
				ID:             fmt.Sprintf("concurrent-%d", i),
				ConversationID: conv.ID,
				Role:           RoleUser,
				Content:        fmt.Sprintf("msg %d", i),
				Timestamp:      time.Now(),
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	msgs, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, n)
}

func TestStore_ClosedStore(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.ListConversations(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStore_CancelledContext(t *testing.T) {
	store := setupTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.CreateConversation(ctx, newTestConversation())
	assert.ErrorIs(t, err, context.Canceled)
}
