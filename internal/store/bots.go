// ABOUTME: Bot registry methods for SQLiteStore with the single-default invariant
// ABOUTME: Clearing and setting the default runs as one transaction on the worker

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateBot persists a new bot configuration. When IsDefault is set, any
// existing default is cleared in the same transaction so the registry
// never holds two defaults between operations.
func (s *SQLiteStore) CreateBot(ctx context.Context, bot *Bot) error {
	insert := `
		INSERT INTO bots (id, name, role_type, system_prompt, is_default, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	args := []any{
		bot.ID,
		bot.Name,
		bot.RoleType,
		bot.SystemPrompt,
		boolToInt(bot.IsDefault),
		formatTime(bot.CreatedAt),
		formatTime(bot.UpdatedAt),
	}

	var err error
	if bot.IsDefault {
		err = s.worker.tx(ctx, "create bot", func(tx *sql.Tx) error {
			if _, txErr := tx.Exec(`UPDATE bots SET is_default = 0 WHERE is_default = 1`); txErr != nil {
				return &StorageError{Op: "clear default bot", Err: txErr}
			}
			if _, txErr := tx.Exec(insert, args...); txErr != nil {
				return &StorageError{Op: "insert bot", Err: txErr}
			}
			return nil
		})
	} else {
		err = s.worker.exec(ctx, "create bot", insert, args...)
	}
	if err != nil {
		return err
	}

	s.logger.Debug("created bot", "id", bot.ID, "name", bot.Name, "default", bot.IsDefault)
	return nil
}

// UpdateBot rewrites a bot's configuration. Returns ErrNotFound if the
// bot doesn't exist. Setting IsDefault clears the previous default
// atomically with the update.
func (s *SQLiteStore) UpdateBot(ctx context.Context, bot *Bot) error {
	update := `
		UPDATE bots
		SET name = ?, role_type = ?, system_prompt = ?, is_default = ?, updated_at = ?
		WHERE id = ?
	`
	args := []any{
		bot.Name,
		bot.RoleType,
		bot.SystemPrompt,
		boolToInt(bot.IsDefault),
		formatTime(time.Now()),
		bot.ID,
	}

	return s.worker.tx(ctx, "update bot", func(tx *sql.Tx) error {
		if bot.IsDefault {
			if _, err := tx.Exec(`UPDATE bots SET is_default = 0 WHERE is_default = 1`); err != nil {
				return &StorageError{Op: "clear default bot", Err: err}
			}
		}
		res, err := tx.Exec(update, args...)
		if err != nil {
			return &StorageError{Op: "update bot", Err: err}
		}
		n, err := res.RowsAffected()
		if err != nil {
			return &StorageError{Op: "update bot", Err: err}
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetBot retrieves a bot by ID. Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) GetBot(ctx context.Context, id string) (*Bot, error) {
	return s.getBotWhere(ctx, "get bot", `WHERE id = ?`, id)
}

// GetDefaultBot returns the current default bot, or ErrNotFound when no
// default exists. Absence of a seed bot is tolerated by design.
func (s *SQLiteStore) GetDefaultBot(ctx context.Context) (*Bot, error) {
	return s.getBotWhere(ctx, "get default bot", `WHERE is_default = 1`)
}

// ListBots returns all bot configurations ordered by name.
func (s *SQLiteStore) ListBots(ctx context.Context) ([]*Bot, error) {
	query := `
		SELECT id, name, role_type, system_prompt, is_default, created_at, updated_at
		FROM bots
		ORDER BY name
	`

	var bots []*Bot
	err := s.worker.query(ctx, "list bots", query, func(rows *sql.Rows) error {
		for rows.Next() {
			b, err := scanBot(rows)
			if err != nil {
				return err
			}
			bots = append(bots, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bots, nil
}

// DeleteBot removes a bot. Returns ErrNotFound for an unknown ID and
// ErrDefaultBot when the target is the current default; in both cases
// the registry is left unchanged.
func (s *SQLiteStore) DeleteBot(ctx context.Context, id string) error {
	err := s.worker.tx(ctx, "delete bot", func(tx *sql.Tx) error {
		var isDefault int
		err := tx.QueryRow(`SELECT is_default FROM bots WHERE id = ?`, id).Scan(&isDefault)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return &StorageError{Op: "lookup bot", Err: err}
		}
		if isDefault == 1 {
			return ErrDefaultBot
		}
		if _, err := tx.Exec(`DELETE FROM bots WHERE id = ?`, id); err != nil {
			return &StorageError{Op: "delete bot", Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("deleted bot", "id", id)
	return nil
}

func (s *SQLiteStore) getBotWhere(ctx context.Context, name, where string, args ...any) (*Bot, error) {
	query := fmt.Sprintf(`
		SELECT id, name, role_type, system_prompt, is_default, created_at, updated_at
		FROM bots
		%s
	`, where)

	var bot *Bot
	err := s.worker.query(ctx, name, query, func(rows *sql.Rows) error {
		if !rows.Next() {
			return ErrNotFound
		}
		b, err := scanBot(rows)
		if err != nil {
			return err
		}
		bot = b
		return nil
	}, args...)
	if err != nil {
		return nil, err
	}
	return bot, nil
}

func scanBot(rows *sql.Rows) (*Bot, error) {
	var bot Bot
	var isDefault int
	var createdAt, updatedAt string

	if err := rows.Scan(&bot.ID, &bot.Name, &bot.RoleType, &bot.SystemPrompt, &isDefault, &createdAt, &updatedAt); err != nil {
		return nil, &StorageError{Op: "scan bot", Err: err}
	}
	bot.IsDefault = isDefault == 1

	var err error
	if bot.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, &StorageError{Op: "parse created_at", Err: err}
	}
	if bot.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, &StorageError{Op: "parse updated_at", Err: err}
	}
	return &bot, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
