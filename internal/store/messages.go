// ABOUTME: Message store methods for SQLiteStore
// ABOUTME: Append-only per-conversation log, ordered by timestamp with rowid tie-break

package store

import (
	"context"
	"database/sql"
	"encoding/json"
)

// SaveMessage appends a message to its conversation's log and bumps the
// conversation's updated_at in the same transaction, so the conversation
// list order is always consistent with history.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	var logsJSON sql.NullString
	if msg.ProcessLogs != nil {
		encoded, err := json.Marshal(msg.ProcessLogs)
		if err != nil {
			return &StorageError{Op: "encode process_logs", Err: err}
		}
		logsJSON = sql.NullString{String: string(encoded), Valid: true}
	}

	var tokens sql.NullInt64
	if msg.TokensUsed != nil {
		tokens = sql.NullInt64{Int64: int64(*msg.TokensUsed), Valid: true}
	}

	err := s.worker.tx(ctx, "save message", func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO messages (id, conversation_id, role, content, tokens_used, process_logs, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			msg.ID,
			msg.ConversationID,
			msg.Role,
			msg.Content,
			tokens,
			logsJSON,
			formatTime(msg.Timestamp),
		)
		if err != nil {
			return &StorageError{Op: "insert message", Err: err}
		}
		_, err = tx.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`,
			formatTime(msg.Timestamp), msg.ConversationID)
		if err != nil {
			return &StorageError{Op: "touch conversation", Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("saved message",
		"id", msg.ID,
		"conversation_id", msg.ConversationID,
		"role", msg.Role)
	return nil
}

// ListMessages returns all messages for a conversation in ascending
// timestamp order, insertion order breaking ties.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, role, content, tokens_used, process_logs, timestamp
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC, rowid ASC
	`

	var msgs []*Message
	err := s.worker.query(ctx, "list messages", query, func(rows *sql.Rows) error {
		for rows.Next() {
			m, err := scanMessage(rows)
			if err != nil {
				return err
			}
			msgs = append(msgs, m)
		}
		return nil
	}, conversationID)
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func scanMessage(rows *sql.Rows) (*Message, error) {
	var msg Message
	var tokens sql.NullInt64
	var logsJSON sql.NullString
	var timestamp string

	err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &tokens, &logsJSON, &timestamp)
	if err != nil {
		return nil, &StorageError{Op: "scan message", Err: err}
	}

	if tokens.Valid {
		n := int(tokens.Int64)
		msg.TokensUsed = &n
	}
	if logsJSON.Valid {
		if err := json.Unmarshal([]byte(logsJSON.String), &msg.ProcessLogs); err != nil {
			return nil, &StorageError{Op: "decode process_logs", Err: err}
		}
	}
	if msg.Timestamp, err = parseTime(timestamp); err != nil {
		return nil, &StorageError{Op: "parse timestamp", Err: err}
	}
	return &msg, nil
}
