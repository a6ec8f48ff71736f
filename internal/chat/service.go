// ABOUTME: Chat orchestrator - the central layer for turn processing
// ABOUTME: Record first, then act: the user turn is durable before the responder runs

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ttc-labs/ttc-chat/internal/agent"
	"github.com/ttc-labs/ttc-chat/internal/store"
)

// persistTimeout bounds detached saves that must survive caller cancellation.
const persistTimeout = 5 * time.Second

// Store defines what the orchestrator needs from storage.
type Store interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	SaveMessage(ctx context.Context, msg *store.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error)
	GetBot(ctx context.Context, id string) (*store.Bot, error)
}

// Service orchestrates chat turns: it persists the user message, invokes
// the responder for the conversation's role tag, persists the assistant
// reply, and delivers it to the caller.
type Service struct {
	store    Store
	registry *agent.Registry
	timeout  time.Duration
	debounce time.Duration
	logger   *slog.Logger
}

// New creates a chat service backed by the given store and responder registry.
func New(st Store, registry *agent.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		registry: registry,
		timeout:  agent.DefaultTimeout,
		debounce: 50 * time.Millisecond,
		logger:   logger.With("component", "chat"),
	}
}

// SetAgentTimeout overrides the per-attempt responder timeout.
func (s *Service) SetAgentTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// SetStreamDebounce overrides the minimum interval between streamed
// snapshot frames.
func (s *Service) SetStreamDebounce(d time.Duration) {
	if d > 0 {
		s.debounce = d
	}
}

// ProcessMessage handles one non-streaming turn.
//
// Key principle: record first, then act. The user message is saved
// BEFORE the responder is invoked, so the turn is durably ordered and a
// responder failure leaves a recorded (if unanswered) user message that
// the caller can retry.
func (s *Service) ProcessMessage(ctx context.Context, content, conversationID, roleType string) (*store.Message, error) {
	userMsg := newUserMessage(conversationID, content)
	if err := s.store.SaveMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("recording user message: %w", err)
	}

	s.logger.Debug("user message recorded",
		"conversation_id", conversationID,
		"message_id", userMsg.ID)

	responder := s.registry.Resolve(roleType)
	resp, err := agent.Call(ctx, responder, content, conversationID, roleType, s.timeout)
	if err != nil {
		// The user turn stays recorded; the caller sees the failure.
		return nil, err
	}

	assistantMsg := newAssistantMessage(conversationID, resp)
	if err := s.saveDetached(assistantMsg); err != nil {
		return nil, fmt.Errorf("recording assistant message: %w", err)
	}

	s.logger.Debug("turn complete",
		"conversation_id", conversationID,
		"message_id", assistantMsg.ID,
		"tokens_used", resp.TokensUsed)
	return assistantMsg, nil
}

// History returns all messages for a conversation in ascending timestamp
// order, with process logs decoded.
func (s *Service) History(ctx context.Context, conversationID string) ([]*store.Message, error) {
	return s.store.ListMessages(ctx, conversationID)
}

// GetConversation returns conversation metadata.
func (s *Service) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// welcomeFallback is served whenever a greeting cannot be generated.
const welcomeFallback = "Welcome! How can I assist you today?"

const welcomePrompt = "Generate a brief welcome message for a new user."

// Welcome generates a greeting from the bot's configured persona. An
// unknown bot or a responder failure degrades to a canned greeting
// rather than an error; nothing is persisted.
func (s *Service) Welcome(ctx context.Context, botID string) string {
	bot, err := s.store.GetBot(ctx, botID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("welcome bot lookup failed", "bot_id", botID, "error", err)
		}
		return welcomeFallback
	}

	prompt := welcomePrompt
	if bot.SystemPrompt != "" {
		prompt = fmt.Sprintf("%s\n\n%s", bot.SystemPrompt, welcomePrompt)
	}

	responder := s.registry.Resolve(bot.RoleType)
	resp, err := agent.Call(ctx, responder, prompt, "welcome", bot.RoleType, s.timeout)
	if err != nil {
		s.logger.Warn("welcome generation failed", "bot_id", botID, "error", err)
		return welcomeFallback
	}
	if resp.Content == "" {
		return welcomeFallback
	}
	return resp.Content
}

// saveDetached persists a message under its own timeout context. This
// keeps in-flight persistence alive when the request context is
// cancelled, so generated output is not silently discarded.
func (s *Service) saveDetached(msg *store.Message) error {
	saveCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.store.SaveMessage(saveCtx, msg); err != nil {
		s.logger.Error("failed to save message",
			"error", err,
			"message_id", msg.ID,
			"conversation_id", msg.ConversationID,
			"role", msg.Role)
		return err
	}
	return nil
}

func newUserMessage(conversationID, content string) *store.Message {
	return &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           store.RoleUser,
		Content:        content,
		Timestamp:      time.Now(),
	}
}

func newAssistantMessage(conversationID string, resp *agent.Response) *store.Message {
	var tokens *int
	if resp.TokensUsed > 0 {
		n := resp.TokensUsed
		tokens = &n
	}
	return &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           store.RoleAssistant,
		Content:        resp.Content,
		TokensUsed:     tokens,
		ProcessLogs:    resp.ProcessLogs,
		Timestamp:      time.Now(),
	}
}

// HistorySource adapts the message log to the responder context format.
type HistorySource struct {
	Store Store
}

// History implements agent.HistoryProvider.
func (h *HistorySource) History(ctx context.Context, conversationID string) ([]agent.Turn, error) {
	msgs, err := h.Store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	turns := make([]agent.Turn, 0, len(msgs))
	for _, msg := range msgs {
		turns = append(turns, agent.Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns, nil
}
