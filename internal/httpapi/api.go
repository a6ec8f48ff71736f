// ABOUTME: HTTP API handlers for conversations, chat turns, and bot management.
// ABOUTME: Chat responses stream as newline-delimited JSON frames.

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ttc-labs/ttc-chat/internal/agent"
	"github.com/ttc-labs/ttc-chat/internal/chat"
	"github.com/ttc-labs/ttc-chat/internal/store"
)

// CreateConversationRequest is the JSON request body for POST /conversations.
type CreateConversationRequest struct {
	RoleType string `json:"role_type,omitempty"`
	BotName  string `json:"bot_name,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
}

// ConversationResponse is the JSON representation of a conversation.
type ConversationResponse struct {
	ID        string `json:"id"`
	RoleType  string `json:"role_type"`
	BotName   string `json:"bot_name,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ChatRequest is the JSON request body for POST /chat/{conversation_id}.
// Stream defaults to true; set it to false for a single JSON response.
type ChatRequest struct {
	Content        string `json:"content"`
	RoleType       string `json:"role_type,omitempty"`
	Stream         *bool  `json:"stream,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ChatFrame is one newline-delimited JSON frame of a streamed chat turn.
// Delta frames carry the accumulated assistant text so far; clients
// replace their rendered content on each frame rather than appending.
type ChatFrame struct {
	Role        string   `json:"role"`
	Timestamp   string   `json:"timestamp"`
	Content     string   `json:"content"`
	ID          string   `json:"id,omitempty"` // set on persisted messages
	TokensUsed  *int     `json:"tokens_used,omitempty"`
	ProcessLogs []string `json:"process_logs,omitempty"`
}

// MessageResponse is the JSON representation of a persisted message.
type MessageResponse struct {
	ID             string   `json:"id"`
	ConversationID string   `json:"conversation_id"`
	Role           string   `json:"role"`
	Content        string   `json:"content"`
	TokensUsed     *int     `json:"tokens_used,omitempty"`
	ProcessLogs    []string `json:"process_logs,omitempty"`
	Timestamp      string   `json:"timestamp"`
}

// BotRequest is the JSON request body for POST /bots and PUT /bots/{id}.
type BotRequest struct {
	Name         string `json:"name"`
	RoleType     string `json:"role_type"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	IsDefault    bool   `json:"is_default,omitempty"`
}

// BotResponse is the JSON representation of a bot configuration.
type BotResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RoleType     string `json:"role_type"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	IsDefault    bool   `json:"is_default"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// handleConversations handles GET and POST /conversations.
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		convs, err := s.store.ListConversations(r.Context())
		if err != nil {
			s.sendStoreError(w, err)
			return
		}
		response := make([]ConversationResponse, 0, len(convs))
		for _, c := range convs {
			response = append(response, conversationResponse(c))
		}
		s.sendJSON(w, http.StatusOK, response)

	case http.MethodPost:
		var req CreateConversationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		roleType, botName := req.RoleType, req.BotName
		switch {
		case req.BotID != "":
			bot, err := s.store.GetBot(r.Context(), req.BotID)
			if err != nil {
				s.sendStoreError(w, err)
				return
			}
			botName = bot.Name
			if roleType == "" {
				roleType = bot.RoleType
			}
		case roleType == "":
			// Fall back to the default bot's configuration.
			bot, err := s.store.GetDefaultBot(r.Context())
			if errors.Is(err, store.ErrNotFound) {
				s.sendJSONError(w, http.StatusBadRequest, "role_type is required when no default bot exists")
				return
			}
			if err != nil {
				s.sendStoreError(w, err)
				return
			}
			roleType = bot.RoleType
			if botName == "" {
				botName = bot.Name
			}
		}

		now := time.Now()
		conv := &store.Conversation{
			ID:        uuid.New().String(),
			RoleType:  roleType,
			BotName:   botName,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.CreateConversation(r.Context(), conv); err != nil {
			s.sendStoreError(w, err)
			return
		}
		s.logger.Info("conversation created",
			"conversation_id", conv.ID,
			"role_type", conv.RoleType)
		s.sendJSON(w, http.StatusCreated, conversationResponse(conv))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleConversationRoutes handles GET /conversations/{id}.
func (s *Server) handleConversationRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/conversations/")
	if id == "" || strings.Contains(id, "/") {
		s.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}

	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, conversationResponse(conv))
}

// handleChatRoutes handles POST /chat/{conversation_id} and
// GET /chat/{conversation_id}/history.
func (s *Server) handleChatRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/chat/")

	if id, ok := strings.CutSuffix(rest, "/history"); ok {
		s.handleChatHistory(w, r, id)
		return
	}
	if rest == "" || strings.Contains(rest, "/") {
		s.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}
	s.handleChatTurn(w, r, rest)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request, conversationID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// Distinguish an unknown conversation from an empty one.
	if _, err := s.chat.GetConversation(r.Context(), conversationID); err != nil {
		s.sendStoreError(w, err)
		return
	}

	msgs, err := s.chat.History(r.Context(), conversationID)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}
	response := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		response = append(response, messageResponse(m))
	}
	s.sendJSON(w, http.StatusOK, response)
}

func (s *Server) handleChatTurn(w http.ResponseWriter, r *http.Request, conversationID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, err := parseChatRequest(r.Body)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := s.chat.GetConversation(r.Context(), conversationID)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}

	// Check dedupe on entry, mark only after the turn succeeds: a
	// failed turn must not burn the key, or the client's retry with
	// the same key would be rejected instead of recovered.
	var dedupeKey string
	if req.IdempotencyKey != "" {
		dedupeKey = fmt.Sprintf("turn:%s:%s", conversationID, req.IdempotencyKey)
		if s.dedupe.Check(dedupeKey) {
			s.logger.Debug("duplicate chat turn ignored",
				"conversation_id", conversationID,
				"idempotency_key", req.IdempotencyKey)
			s.sendJSONError(w, http.StatusConflict, "duplicate message")
			return
		}
	}

	roleType := req.RoleType
	if roleType == "" {
		roleType = conv.RoleType
	}

	if req.Stream != nil && !*req.Stream {
		msg, err := s.chat.ProcessMessage(r.Context(), req.Content, conversationID, roleType)
		if err != nil {
			s.sendStoreError(w, err)
			return
		}
		if dedupeKey != "" {
			s.dedupe.Mark(dedupeKey)
		}
		s.sendJSON(w, http.StatusOK, messageResponse(msg))
		return
	}

	// Check streaming support before starting the turn (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, err := s.chat.ProcessMessageStream(r.Context(), req.Content, conversationID, roleType)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}
	// The user message is durable once the stream opens.
	if dedupeKey != "" {
		s.dedupe.Mark(dedupeKey)
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.streamFrames(w, flusher, events)
}

// streamFrames writes chat events as NDJSON frames until the event
// channel closes. The orchestrator observes the request context, so
// client disconnects end the loop via channel close.
func (s *Server) streamFrames(w http.ResponseWriter, flusher http.Flusher, events <-chan chat.Event) {
	for ev := range events {
		var frame any
		switch ev.Kind {
		case chat.EventUser, chat.EventDelta:
			frame = ChatFrame{
				Role:      ev.Role,
				Timestamp: formatTime(ev.Timestamp),
				Content:   ev.Content,
			}
		case chat.EventAssistant:
			frame = ChatFrame{
				Role:        ev.Role,
				Timestamp:   formatTime(ev.Timestamp),
				Content:     ev.Content,
				ID:          ev.Message.ID,
				TokensUsed:  ev.Message.TokensUsed,
				ProcessLogs: ev.Message.ProcessLogs,
			}
		case chat.EventError:
			s.logger.Warn("chat turn failed mid-stream", "error", ev.Err)
			frame = map[string]string{"error": publicErrorMessage(ev.Err)}
		}

		if err := s.writeFrame(w, frame); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) writeFrame(w io.Writer, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("failed to marshal chat frame", "error", err)
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// handleBots handles GET and POST /bots.
func (s *Server) handleBots(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		bots, err := s.store.ListBots(r.Context())
		if err != nil {
			s.sendStoreError(w, err)
			return
		}
		response := make([]BotResponse, 0, len(bots))
		for _, b := range bots {
			response = append(response, botResponse(b))
		}
		s.sendJSON(w, http.StatusOK, response)

	case http.MethodPost:
		req, err := parseBotRequest(r.Body)
		if err != nil {
			s.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		now := time.Now()
		bot := &store.Bot{
			ID:           uuid.New().String(),
			Name:         req.Name,
			RoleType:     req.RoleType,
			SystemPrompt: req.SystemPrompt,
			IsDefault:    req.IsDefault,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.store.CreateBot(r.Context(), bot); err != nil {
			s.sendStoreError(w, err)
			return
		}
		s.logger.Info("bot created", "bot_id", bot.ID, "name", bot.Name, "is_default", bot.IsDefault)
		s.sendJSON(w, http.StatusCreated, botResponse(bot))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleBotRoutes handles /bots/default, /bots/{id}, and
// /bots/{id}/welcome.
func (s *Server) handleBotRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/bots/")

	if id, ok := strings.CutSuffix(rest, "/welcome"); ok && id != "" && !strings.Contains(id, "/") {
		s.handleBotWelcome(w, r, id)
		return
	}

	id := rest
	if id == "" || strings.Contains(id, "/") {
		s.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}

	if id == "default" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		bot, err := s.store.GetDefaultBot(r.Context())
		if err != nil {
			s.sendStoreError(w, err)
			return
		}
		s.sendJSON(w, http.StatusOK, botResponse(bot))
		return
	}

	switch r.Method {
	case http.MethodGet:
		bot, err := s.store.GetBot(r.Context(), id)
		if err != nil {
			s.sendStoreError(w, err)
			return
		}
		s.sendJSON(w, http.StatusOK, botResponse(bot))

	case http.MethodPut:
		req, err := parseBotRequest(r.Body)
		if err != nil {
			s.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		bot := &store.Bot{
			ID:           id,
			Name:         req.Name,
			RoleType:     req.RoleType,
			SystemPrompt: req.SystemPrompt,
			IsDefault:    req.IsDefault,
			UpdatedAt:    time.Now(),
		}
		if err := s.store.UpdateBot(r.Context(), bot); err != nil {
			s.sendStoreError(w, err)
			return
		}
		updated, err := s.store.GetBot(r.Context(), id)
		if err != nil {
			s.sendStoreError(w, err)
			return
		}
		s.sendJSON(w, http.StatusOK, botResponse(updated))

	case http.MethodDelete:
		if err := s.store.DeleteBot(r.Context(), id); err != nil {
			s.sendStoreError(w, err)
			return
		}
		s.logger.Info("bot deleted", "bot_id", id)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleBotWelcome handles GET /bots/{id}/welcome. The greeting always
// succeeds: unknown bots and responder failures fall back to a canned
// message inside the chat layer.
func (s *Server) handleBotWelcome(w http.ResponseWriter, r *http.Request, botID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	content := s.chat.Welcome(r.Context(), botID)
	s.sendJSON(w, http.StatusOK, map[string]string{"content": content})
}

func parseChatRequest(body io.Reader) (*ChatRequest, error) {
	var req ChatRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid JSON body")
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("content is required")
	}
	if len(req.IdempotencyKey) > 100 {
		return nil, fmt.Errorf("idempotency_key too long")
	}
	return &req, nil
}

func parseBotRequest(body io.Reader) (*BotRequest, error) {
	var req BotRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid JSON body")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("name is required")
	}
	if strings.TrimSpace(req.RoleType) == "" {
		return nil, fmt.Errorf("role_type is required")
	}
	return &req, nil
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// sendStoreError maps domain errors to HTTP status codes.
func (s *Server) sendStoreError(w http.ResponseWriter, err error) {
	var agentErr *agent.AgentError
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.sendJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrDefaultBot):
		s.sendJSONError(w, http.StatusConflict, "cannot delete the default bot")
	case errors.As(err, &agentErr):
		s.logger.Error("responder failed", "role_type", agentErr.RoleType, "error", err)
		s.sendJSONError(w, http.StatusBadGateway, "responder failed")
	default:
		s.logger.Error("internal error", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// publicErrorMessage keeps internal details out of streamed error frames.
func publicErrorMessage(err error) string {
	var agentErr *agent.AgentError
	if errors.As(err, &agentErr) {
		return "responder failed"
	}
	return "internal server error"
}

func conversationResponse(c *store.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:        c.ID,
		RoleType:  c.RoleType,
		BotName:   c.BotName,
		CreatedAt: formatTime(c.CreatedAt),
		UpdatedAt: formatTime(c.UpdatedAt),
	}
}

func messageResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        m.Content,
		TokensUsed:     m.TokensUsed,
		ProcessLogs:    m.ProcessLogs,
		Timestamp:      formatTime(m.Timestamp),
	}
}

func botResponse(b *store.Bot) BotResponse {
	return BotResponse{
		ID:           b.ID,
		Name:         b.Name,
		RoleType:     b.RoleType,
		SystemPrompt: b.SystemPrompt,
		IsDefault:    b.IsDefault,
		CreatedAt:    formatTime(b.CreatedAt),
		UpdatedAt:    formatTime(b.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
