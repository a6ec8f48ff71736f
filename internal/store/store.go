// ABOUTME: Store interface and data types for ttc-chat persistence
// ABOUTME: Defines Conversation, Message, Bot structs and the Store interface

package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDefaultBot is returned when an operation would remove the default bot
var ErrDefaultBot = errors.New("cannot delete the default bot")

// ErrClosed is returned when an operation is submitted after Close
var ErrClosed = errors.New("store is closed")

// StorageError wraps an engine-level failure. Callers decide whether to
// retry; the store never retries on its own.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Role constants for message authorship
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Conversation is a scoped thread of messages, tagged with a role type
// and the bot it was created against.
type Conversation struct {
	ID        string
	RoleType  string
	BotName   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a single immutable turn entry within a conversation.
// Messages are append-only; ordering is by Timestamp with insertion
// order breaking ties.
type Message struct {
	ID             string
	ConversationID string
	Role           string // "user", "assistant", "system"
	Content        string
	TokensUsed     *int
	ProcessLogs    []string
	Timestamp      time.Time
}

// Bot is a named responder configuration. At most one bot is the default
// at any observable point.
type Bot struct {
	ID           string
	Name         string
	RoleType     string
	SystemPrompt string
	IsDefault    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store defines the persistence interface for conversations, messages,
// and bot configurations. All implementations serialize writes through a
// single worker so the underlying single-writer engine is safe to share
// across concurrent request handlers.
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context) ([]*Conversation, error)
	TouchConversation(ctx context.Context, id string) error

	// Messages (append-only)
	SaveMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)

	// Bots
	CreateBot(ctx context.Context, bot *Bot) error
	UpdateBot(ctx context.Context, bot *Bot) error
	GetBot(ctx context.Context, id string) (*Bot, error)
	GetDefaultBot(ctx context.Context) (*Bot, error)
	ListBots(ctx context.Context) ([]*Bot, error)
	DeleteBot(ctx context.Context, id string) error

	// Close releases any resources held by the store
	Close() error
}
