// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Opens the database, creates the schema, and seeds the default bot

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// seedBotPrompt is the system prompt for the bot seeded into an empty
// registry. Tolerating its absence is still required: GetDefaultBot
// returns ErrNotFound when no default exists.
const seedBotPrompt = `You are Xiaomai, TTC's dedicated assistant. You help both TTC employees and customers: explain products and services clearly, troubleshoot technical issues, and guide users through setup and configuration. Always maintain a helpful, professional, and friendly tone. When unsure, ask for clarification.`

// SQLiteStore implements the Store interface using SQLite.
// All operations are dispatched through a single-writer adapter.
type SQLiteStore struct {
	db     *sql.DB
	worker *adapter
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is created if it doesn't exist and a default bot is seeded
// into an empty registry. Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// The worker goroutine owns this connection for the life of the store.
	conn, err := db.Conn(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	if _, err := conn.ExecContext(context.Background(), "PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		worker: newAdapter(conn, logger),
		logger: logger,
	}

	if err := s.seedDefaultBot(context.Background()); err != nil {
		s.Close()
		return nil, fmt.Errorf("seeding default bot: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			role_type TEXT NOT NULL,
			bot_name TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_updated
			ON conversations(updated_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tokens_used INTEGER,
			process_logs TEXT,
			timestamp TEXT NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id),

			CHECK (role IN ('user', 'assistant', 'system'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, timestamp);

		CREATE TABLE IF NOT EXISTS bots (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			role_type TEXT NOT NULL,
			system_prompt TEXT NOT NULL,
			is_default INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_bots_name ON bots(name);
	`

	_, err := db.Exec(schema)
	return err
}

// seedDefaultBot inserts the stock assistant when the registry is empty.
func (s *SQLiteStore) seedDefaultBot(ctx context.Context) error {
	var count int
	err := s.worker.query(ctx, "count bots", `SELECT COUNT(*) FROM bots`, func(rows *sql.Rows) error {
		if rows.Next() {
			return rows.Scan(&count)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	bot := &Bot{
		ID:           uuid.New().String(),
		Name:         "Xiaomai",
		RoleType:     "ttc_assistant",
		SystemPrompt: seedBotPrompt,
		IsDefault:    true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.CreateBot(ctx, bot); err != nil {
		return err
	}
	s.logger.Info("seeded default bot", "name", bot.Name, "id", bot.ID)
	return nil
}

// Close stops the worker and closes the database
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	s.worker.close()
	if err := s.worker.conn.Close(); err != nil {
		s.logger.Error("closing connection", "error", err)
	}
	return s.db.Close()
}

// formatTime normalizes timestamps for storage. Nanosecond precision
// keeps the timestamp ordering key meaningful for back-to-back writes.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
