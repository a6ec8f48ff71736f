// Package store provides persistent storage for the chat service using
// SQLite.
//
// # Architecture
//
// All access goes through the Store interface, implemented by
// SQLiteStore. The engine is treated as single-writer: every statement
// is dispatched to one worker goroutine that owns a dedicated
// connection and processes operations strictly in submission order.
// The caller's context gates submission and the wait only; an accepted
// operation always runs to completion, so a client disconnect can
// never leave a write half-applied.
//
// # Data Models
//
//   - Conversation: A chat session bound to a role tag and bot name
//   - Message: One turn entry with role, content, token usage, and
//     process logs (stored as a JSON array column)
//   - Bot: A named responder persona; at most one bot is the default
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// On first open the schema is created and, if the bots table is empty,
// a default assistant bot is seeded.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrDefaultBot: Attempt to delete the default bot
//   - ErrClosed: Operation submitted after Close
//
// Engine failures surface as *StorageError wrapping the underlying
// error; domain errors pass through unwrapped. All methods accept
// context.Context for cancellation support.
//
// # Testing
//
// Use NewSQLiteStore with a path under t.TempDir() for integration
// tests with real SQLite.
package store
