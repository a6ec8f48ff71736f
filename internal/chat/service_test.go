package chat

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttc-labs/ttc-chat/internal/agent"
	"github.com/ttc-labs/ttc-chat/internal/store"
)

// fakeResponder returns a canned response without streaming support.
type fakeResponder struct {
	resp *agent.Response
	err  error
}

func (f *fakeResponder) Process(ctx context.Context, prompt, conversationID string) (*agent.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func setupService(t *testing.T, fallback agent.Responder) (*Service, *store.SQLiteStore) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	registry, err := agent.NewRegistry(fallback, nil)
	require.NoError(t, err)

	return New(st, registry, nil), st
}

func createConversation(t *testing.T, st *store.SQLiteStore) *store.Conversation {
	t.Helper()
	now := time.Now()
	conv := &store.Conversation{
		ID:        uuid.New().String(),
		RoleType:  "default",
		BotName:   "Helper",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, st.CreateConversation(context.Background(), conv))
	return conv
}

func TestProcessMessage_Success(t *testing.T) {
	responder := &fakeResponder{resp: &agent.Response{
		Content:     "Hello back",
		TokensUsed:  12,
		ProcessLogs: []string{"step-a", "step-b"},
	}}
	svc, st := setupService(t, responder)
	conv := createConversation(t, st)
	ctx := context.Background()

	msg, err := svc.ProcessMessage(ctx, "Hi", conv.ID, "default")
	require.NoError(t, err)
	assert.Equal(t, store.RoleAssistant, msg.Role)
	assert.Equal(t, "Hello back", msg.Content)
	require.NotNil(t, msg.TokensUsed)
	assert.Equal(t, 12, *msg.TokensUsed)

	// Exactly one user message immediately followed by one assistant message
	history, err := svc.History(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, store.RoleUser, history[0].Role)
	assert.Equal(t, "Hi", history[0].Content)
	assert.Equal(t, store.RoleAssistant, history[1].Role)
	assert.Equal(t, []string{"step-a", "step-b"}, history[1].ProcessLogs)
}

func TestProcessMessage_ResponderFailure(t *testing.T) {
	responder := &fakeResponder{err: errors.New("provider down")}
	svc, st := setupService(t, responder)
	conv := createConversation(t, st)
	ctx := context.Background()

	_, err := svc.ProcessMessage(ctx, "Hi", conv.ID, "default")
	require.Error(t, err)

	var agentErr *agent.AgentError
	assert.ErrorAs(t, err, &agentErr)

	// The orphaned user turn stays recorded; no assistant message exists
	history, histErr := svc.History(ctx, conv.ID)
	require.NoError(t, histErr)
	require.Len(t, history, 1)
	assert.Equal(t, store.RoleUser, history[0].Role)
}

func TestProcessMessage_UnknownRoleFallsBack(t *testing.T) {
	fallback := &fakeResponder{resp: &agent.Response{Content: "generic reply"}}
	svc, st := setupService(t, fallback)
	conv := createConversation(t, st)

	msg, err := svc.ProcessMessage(context.Background(), "Hi", conv.ID, "never_registered")
	require.NoError(t, err)
	assert.Equal(t, "generic reply", msg.Content)
}

func TestProcessMessage_UserPersistedBeforeResponder(t *testing.T) {
	// The responder observes history at invocation time: the user turn
	// must already be durable.
	checker := &historyCheckingResponder{t: t}
	svc, st := setupService(t, checker)
	conv := createConversation(t, st)
	checker.svc = svc
	checker.conversationID = conv.ID

	_, err := svc.ProcessMessage(context.Background(), "Hi", conv.ID, "default")
	require.NoError(t, err)
	assert.True(t, checker.sawUserTurn)
}

type historyCheckingResponder struct {
	t              *testing.T
	svc            *Service
	conversationID string
	sawUserTurn    bool
}

func (h *historyCheckingResponder) Process(ctx context.Context, prompt, conversationID string) (*agent.Response, error) {
	history, err := h.svc.History(ctx, h.conversationID)
	require.NoError(h.t, err)
	for _, msg := range history {
		if msg.Role == store.RoleUser && msg.Content == prompt {
			h.sawUserTurn = true
		}
	}
	return &agent.Response{Content: "ok"}, nil
}

func TestHistory_ProcessLogsRoundTrip(t *testing.T) {
	responder := &fakeResponder{resp: &agent.Response{
		Content:     "done",
		ProcessLogs: []string{"step-a", "step-b"},
	}}
	svc, st := setupService(t, responder)
	conv := createConversation(t, st)
	ctx := context.Background()

	_, err := svc.ProcessMessage(ctx, "Hi", conv.ID, "default")
	require.NoError(t, err)

	history, err := svc.History(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, []string{"step-a", "step-b"}, history[1].ProcessLogs)
}

func TestHistorySource_ConvertsMessages(t *testing.T) {
	responder := &fakeResponder{resp: &agent.Response{Content: "reply"}}
	svc, st := setupService(t, responder)
	conv := createConversation(t, st)
	ctx := context.Background()

	_, err := svc.ProcessMessage(ctx, "Hi", conv.ID, "default")
	require.NoError(t, err)

	source := &HistorySource{Store: st}
	turns, err := source.History(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, agent.Turn{Role: "user", Content: "Hi"}, turns[0])
	assert.Equal(t, agent.Turn{Role: "assistant", Content: "reply"}, turns[1])
}
