// Package chat orchestrates conversation turns.
//
// # Overview
//
// The chat package sits between the HTTP handlers and the responder
// layer. Every turn follows the same shape: persist the user message,
// invoke the responder for the conversation's role tag, persist the
// assistant reply, deliver it. History is the source of truth, not a
// side effect.
//
// # Ordering
//
// The user message is durably stored before the responder is invoked
// and before any later turn for the same conversation can read history.
// A responder failure leaves the user turn recorded and unanswered;
// retrying the same conversation recovers it.
//
// # Protocols
//
// ProcessMessage returns the single finished assistant message.
// ProcessMessageStream yields the user echo immediately, then debounced
// snapshots of the accumulating assistant text, then the persisted
// assistant message. Both protocols persist through the same structured
// row-per-message schema.
//
// # Cancellation
//
// If the caller disconnects mid-stream the responder channel is drained
// and the accumulated text is persisted under a detached timeout
// context, so generated output is never silently discarded.
package chat
