// ABOUTME: Streaming turn protocol - user echo, debounced snapshots, persisted final
// ABOUTME: Persistence stays on the structured row schema for both protocols

package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ttc-labs/ttc-chat/internal/agent"
	"github.com/ttc-labs/ttc-chat/internal/store"
)

// EventKind identifies the type of a streamed chat event.
type EventKind int

const (
	// EventUser echoes the recorded user message so clients can render
	// it straight away.
	EventUser EventKind = iota
	// EventDelta carries the accumulated assistant text so far.
	EventDelta
	// EventAssistant carries the final persisted assistant message.
	EventAssistant
	// EventError terminates the stream with a failure; the user turn
	// stays recorded.
	EventError
)

// Event is one frame of the streaming protocol.
type Event struct {
	Kind      EventKind
	Role      string
	Timestamp time.Time
	Content   string
	Message   *store.Message // set for EventUser and EventAssistant
	Err       error          // set for EventError
}

// ProcessMessageStream handles one streaming turn. The user message is
// persisted before this returns; the channel then yields the user echo,
// debounced snapshots of the accumulating assistant text, and finally
// either the persisted assistant message or an error event. The channel
// is closed when the turn ends and the sequence is not restartable.
func (s *Service) ProcessMessageStream(ctx context.Context, content, conversationID, roleType string) (<-chan Event, error) {
	userMsg := newUserMessage(conversationID, content)
	if err := s.store.SaveMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	out := make(chan Event, 16)
	out <- Event{
		Kind:      EventUser,
		Role:      store.RoleUser,
		Timestamp: userMsg.Timestamp,
		Content:   content,
		Message:   userMsg,
	}

	go s.streamTurn(ctx, out, content, conversationID, roleType)
	return out, nil
}

func (s *Service) streamTurn(ctx context.Context, out chan<- Event, content, conversationID, roleType string) {
	defer close(out)

	responder := s.registry.Resolve(roleType)

	streamer, ok := responder.(agent.StreamingResponder)
	if !ok {
		// Non-streaming responders degrade to a single snapshot.
		resp, err := agent.Call(ctx, responder, content, conversationID, roleType, s.timeout)
		if err != nil {
			s.emit(ctx, out, Event{Kind: EventError, Err: err})
			return
		}
		s.finishTurn(ctx, out, conversationID, resp)
		return
	}

	events, err := agent.OpenStream(ctx, streamer, content, conversationID, roleType)
	if err != nil {
		s.emit(ctx, out, Event{Kind: EventError, Err: err})
		return
	}

	var buf strings.Builder
	var final *agent.Response
	var streamErr error
	var lastEmit time.Time
	cancelled := false

	for ev := range events {
		switch ev.Kind {
		case agent.EventText:
			buf.WriteString(ev.Text)
			if cancelled {
				continue
			}
			// Debounce: at most one snapshot per interval. The final
			// content always goes out with the assistant event below.
			if time.Since(lastEmit) >= s.debounce {
				s.emit(ctx, out, Event{
					Kind:      EventDelta,
					Role:      store.RoleAssistant,
					Timestamp: time.Now(),
					Content:   buf.String(),
				})
				lastEmit = time.Now()
			}
		case agent.EventDone:
			final = ev.Response
		case agent.EventError:
			streamErr = ev.Err
		}

		if !cancelled && ctx.Err() != nil {
			// Keep draining so the accumulated text can still be
			// persisted after the client disconnects.
			cancelled = true
			s.logger.Debug("caller cancelled mid-stream, draining responder",
				"conversation_id", conversationID)
		}
	}

	if streamErr != nil {
		if cancelled && errors.Is(streamErr, context.Canceled) && buf.Len() > 0 {
			// The disconnect tore down the responder stream itself.
			// What already arrived is real output; persist it.
			s.logger.Debug("stream cut by disconnect, persisting partial output",
				"conversation_id", conversationID,
				"bytes", buf.Len())
			s.finishTurn(ctx, out, conversationID, &agent.Response{Content: buf.String()})
			return
		}
		s.logger.Warn("responder stream failed",
			"conversation_id", conversationID,
			"error", streamErr)
		s.emit(ctx, out, Event{Kind: EventError, Err: &agent.AgentError{RoleType: roleType, Err: streamErr}})
		return
	}

	if final == nil {
		// Stream ended without a summary; fall back to what arrived.
		final = &agent.Response{Content: buf.String()}
	}
	if final.Content == "" {
		return
	}

	s.finishTurn(ctx, out, conversationID, final)
}

// finishTurn persists the assistant message and emits it as the last
// frame. Persistence runs detached so a disconnect cannot discard
// already-generated output.
func (s *Service) finishTurn(ctx context.Context, out chan<- Event, conversationID string, resp *agent.Response) {
	assistantMsg := newAssistantMessage(conversationID, resp)
	if err := s.saveDetached(assistantMsg); err != nil {
		s.emit(ctx, out, Event{Kind: EventError, Err: err})
		return
	}

	s.emit(ctx, out, Event{
		Kind:      EventAssistant,
		Role:      store.RoleAssistant,
		Timestamp: assistantMsg.Timestamp,
		Content:   assistantMsg.Content,
		Message:   assistantMsg,
	})
}

// emit forwards an event unless the caller has gone away.
func (s *Service) emit(ctx context.Context, out chan<- Event, ev Event) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
