// Package httpapi exposes the chat service over HTTP.
//
// # Endpoints
//
// Conversations:
//
//	POST /conversations                  create (role_type, bot_name or bot_id)
//	GET  /conversations                  list, most recently active first
//	GET  /conversations/{id}             fetch one
//
// Chat:
//
//	POST /chat/{conversation_id}         run one turn; streams NDJSON by default
//	GET  /chat/{conversation_id}/history ordered message sequence
//
// Bots (JWT-protected when auth is configured):
//
//	POST   /bots          create
//	GET    /bots          list by name
//	GET    /bots/default  current default
//	GET    /bots/{id}     fetch one
//	PUT    /bots/{id}     update (promoting to default demotes the old one)
//	DELETE /bots/{id}     delete; the default bot refuses with 409
//	GET    /bots/{id}/welcome  generated greeting; always 200, canned on failure
//
// # Streaming
//
// Chat turns stream newline-delimited JSON frames: first the recorded
// user message, then debounced snapshots of the accumulating assistant
// text, then the persisted assistant message (carrying its id and token
// usage). Clients replace their rendered content per frame. Send
// {"stream": false} for a single JSON response instead.
//
// # Error Mapping
//
//	404 unknown conversation or bot
//	409 deleting the default bot, or a duplicate idempotency key
//	400 validation failures
//	502 responder failures
//	500 storage failures
package httpapi
