// ABOUTME: Responder interfaces and the role-tag registry for agent dispatch
// ABOUTME: Unknown role tags fall back to the default responder instead of failing

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNoDefaultResponder indicates the registry was built without a fallback.
var ErrNoDefaultResponder = errors.New("no default responder configured")

// AgentError wraps a responder failure after retries are exhausted.
type AgentError struct {
	RoleType string
	Err      error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent %q: %v", e.RoleType, e.Err)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// Response is the summary result of one responder invocation.
type Response struct {
	Content     string
	TokensUsed  int
	ProcessLogs []string
}

// StreamEventKind identifies the type of a stream event.
type StreamEventKind int

const (
	// EventText carries an incremental text delta.
	EventText StreamEventKind = iota
	// EventDone terminates the stream with the summary response.
	EventDone
	// EventError terminates the stream with a failure.
	EventError
)

// StreamEvent is one event from a streaming responder. The channel
// carries zero or more EventText events followed by exactly one
// EventDone or EventError, after which it is closed.
type StreamEvent struct {
	Kind     StreamEventKind
	Text     string    // delta text for EventText
	Response *Response // summary for EventDone
	Err      error     // failure for EventError
}

// Responder turns a prompt plus conversation context into a response.
type Responder interface {
	Process(ctx context.Context, prompt, conversationID string) (*Response, error)
}

// StreamingResponder is an optional extension yielding incremental text
// deltas that terminate in the same summary fields.
type StreamingResponder interface {
	Responder
	ProcessStream(ctx context.Context, prompt, conversationID string) (<-chan StreamEvent, error)
}

// Turn is one prior exchange entry supplied as model context.
type Turn struct {
	Role    string
	Content string
}

// HistoryProvider supplies prior turns for a conversation. Implemented
// by the chat layer; responders never reach into storage directly.
type HistoryProvider interface {
	History(ctx context.Context, conversationID string) ([]Turn, error)
}

// Registry maps role tags to responder implementations. It is built once
// at startup and passed explicitly to the orchestrator; there is no
// ambient global lookup.
type Registry struct {
	responders map[string]Responder
	fallback   Responder
	logger     *slog.Logger
}

// NewRegistry creates a registry with the given fallback responder.
// The fallback answers any role tag that has no explicit registration.
func NewRegistry(fallback Responder, logger *slog.Logger) (*Registry, error) {
	if fallback == nil {
		return nil, ErrNoDefaultResponder
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		responders: make(map[string]Responder),
		fallback:   fallback,
		logger:     logger.With("component", "agent"),
	}, nil
}

// Register binds a role tag to a responder, replacing any previous binding.
func (r *Registry) Register(roleType string, responder Responder) {
	r.responders[roleType] = responder
}

// Resolve returns the responder for a role tag. Unknown tags degrade to
// the fallback rather than rejecting the request.
func (r *Registry) Resolve(roleType string) Responder {
	if responder, ok := r.responders[roleType]; ok {
		return responder
	}
	r.logger.Debug("unknown role type, using default responder", "role_type", roleType)
	return r.fallback
}

// RoleTypes returns the explicitly registered role tags.
func (r *Registry) RoleTypes() []string {
	tags := make([]string, 0, len(r.responders))
	for tag := range r.responders {
		tags = append(tags, tag)
	}
	return tags
}

// DefaultTimeout bounds a single responder invocation when the caller
// does not configure one.
const DefaultTimeout = 2 * time.Minute
