// Package agent defines the responder capability consumed by the chat
// orchestrator and its role-tag registry.
//
// # Responders
//
// A Responder turns (prompt, conversation) into a Response carrying the
// reply text, token usage, and process logs. Responders that can stream
// additionally implement StreamingResponder, yielding EventText deltas
// that terminate in the same summary fields (EventDone) or a failure
// (EventError).
//
// # Registry
//
// The Registry maps role tags to responder implementations and is built
// once at startup:
//
//	registry, _ := agent.NewRegistry(fallback, logger)
//	registry.Register("customer_service", csResponder)
//
// Resolve never fails: unknown role tags degrade to the fallback
// responder by design, so a stale client tag does not reject the turn.
//
// # Invocation policy
//
// Call wraps Process with a per-attempt timeout and a single bounded
// retry; exhaustion surfaces as *AgentError. OpenStream applies the same
// policy to stream establishment only - failures after the stream opens
// arrive in-band as EventError.
package agent
