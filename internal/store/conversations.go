// ABOUTME: Conversation repository methods for SQLiteStore
// ABOUTME: CRUD over conversation metadata, listed by most recent activity

package store

import (
	"context"
	"database/sql"
	"time"
)

// CreateConversation persists a new conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	query := `
		INSERT INTO conversations (id, role_type, bot_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	err := s.worker.exec(ctx, "create conversation", query,
		conv.ID,
		conv.RoleType,
		conv.BotName,
		formatTime(conv.CreatedAt),
		formatTime(conv.UpdatedAt),
	)
	if err != nil {
		return err
	}

	s.logger.Debug("created conversation", "id", conv.ID, "bot", conv.BotName)
	return nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, role_type, bot_name, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`

	var conv *Conversation
	err := s.worker.query(ctx, "get conversation", query, func(rows *sql.Rows) error {
		if !rows.Next() {
			return ErrNotFound
		}
		c, err := scanConversation(rows)
		if err != nil {
			return err
		}
		conv = c
		return nil
	}, id)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversations returns all conversations, most recently active first.
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]*Conversation, error) {
	query := `
		SELECT id, role_type, bot_name, created_at, updated_at
		FROM conversations
		ORDER BY updated_at DESC
	`

	var convs []*Conversation
	err := s.worker.query(ctx, "list conversations", query, func(rows *sql.Rows) error {
		for rows.Next() {
			c, err := scanConversation(rows)
			if err != nil {
				return err
			}
			convs = append(convs, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// TouchConversation bumps updated_at to now.
func (s *SQLiteStore) TouchConversation(ctx context.Context, id string) error {
	return s.worker.exec(ctx, "touch conversation",
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), id)
}

func scanConversation(rows *sql.Rows) (*Conversation, error) {
	var conv Conversation
	var createdAt, updatedAt string

	if err := rows.Scan(&conv.ID, &conv.RoleType, &conv.BotName, &createdAt, &updatedAt); err != nil {
		return nil, &StorageError{Op: "scan conversation", Err: err}
	}

	var err error
	if conv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, &StorageError{Op: "parse created_at", Err: err}
	}
	if conv.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, &StorageError{Op: "parse updated_at", Err: err}
	}
	return &conv, nil
}
