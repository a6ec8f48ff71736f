// ABOUTME: Timeout and single-retry wrapper around responder invocation
// ABOUTME: Produces AgentError once the bounded retry is exhausted

package agent

import (
	"context"
	"log/slog"
	"time"
)

// Call invokes the responder with a per-attempt timeout and a single
// bounded retry. Cancellation of the parent context is never retried.
func Call(ctx context.Context, responder Responder, prompt, conversationID, roleType string, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	resp, err := callOnce(ctx, responder, prompt, conversationID, timeout)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, &AgentError{RoleType: roleType, Err: ctx.Err()}
	}

	slog.Default().Warn("responder failed, retrying once",
		"role_type", roleType,
		"conversation_id", conversationID,
		"error", err)

	resp, err = callOnce(ctx, responder, prompt, conversationID, timeout)
	if err != nil {
		return nil, &AgentError{RoleType: roleType, Err: err}
	}
	return resp, nil
}

func callOnce(ctx context.Context, responder Responder, prompt, conversationID string, timeout time.Duration) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return responder.Process(callCtx, prompt, conversationID)
}

// OpenStream starts a streaming invocation with the same timeout and
// single-retry policy applied to stream establishment. Failures after
// the stream opens are delivered in-band as EventError.
func OpenStream(ctx context.Context, responder StreamingResponder, prompt, conversationID, roleType string) (<-chan StreamEvent, error) {
	events, err := responder.ProcessStream(ctx, prompt, conversationID)
	if err == nil {
		return events, nil
	}
	if ctx.Err() != nil {
		return nil, &AgentError{RoleType: roleType, Err: ctx.Err()}
	}

	slog.Default().Warn("stream open failed, retrying once",
		"role_type", roleType,
		"conversation_id", conversationID,
		"error", err)

	events, err = responder.ProcessStream(ctx, prompt, conversationID)
	if err != nil {
		return nil, &AgentError{RoleType: roleType, Err: err}
	}
	return events, nil
}
