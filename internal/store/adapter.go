// ABOUTME: Single-writer adapter serializing all storage operations
// ABOUTME: One worker goroutine owns the connection and processes ops in submission order

package store

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
)

// op is a single unit of work submitted to the worker. The done channel
// is buffered so an abandoned caller never blocks the worker.
type op struct {
	name string
	run  func(conn *sql.Conn) error
	done chan error
}

// adapter bridges the synchronous storage engine into concurrent request
// handlers. All statements are dispatched to one dedicated goroutine that
// owns the connection and processes requests strictly in submission
// order; this is the serialization point that makes the single-writer
// engine safe to share.
type adapter struct {
	conn   *sql.Conn
	ops    chan *op
	quit   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *slog.Logger
}

func newAdapter(conn *sql.Conn, logger *slog.Logger) *adapter {
	a := &adapter{
		conn:   conn,
		ops:    make(chan *op),
		quit:   make(chan struct{}),
		logger: logger,
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *adapter) loop() {
	defer a.wg.Done()
	for {
		select {
		case o := <-a.ops:
			o.done <- o.run(a.conn)
		case <-a.quit:
			return
		}
	}
}

// do submits run to the worker and waits for the result. The caller's
// context gates submission and the wait only: once accepted, an op runs
// to completion even if the caller has gone away, so accepted writes are
// never half-applied because of a client disconnect.
func (a *adapter) do(ctx context.Context, name string, run func(conn *sql.Conn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	o := &op{name: name, run: run, done: make(chan error, 1)}

	select {
	case a.ops <- o:
	case <-a.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-o.done:
		return err
	case <-ctx.Done():
		a.logger.Debug("caller abandoned storage op", "op", name)
		return ctx.Err()
	}
}

// exec runs a single statement on the worker.
func (a *adapter) exec(ctx context.Context, name, query string, args ...any) error {
	return a.do(ctx, name, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(context.Background(), query, args...); err != nil {
			return &StorageError{Op: name, Err: err}
		}
		return nil
	})
}

// query runs a read on the worker. The scan callback executes on the
// worker goroutine and must fully materialize its results; rows are
// closed before the op completes.
func (a *adapter) query(ctx context.Context, name, query string, scan func(rows *sql.Rows) error, args ...any) error {
	return a.do(ctx, name, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(context.Background(), query, args...)
		if err != nil {
			return &StorageError{Op: name, Err: err}
		}
		defer rows.Close()
		if err := scan(rows); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return &StorageError{Op: name, Err: err}
		}
		return nil
	})
}

// tx runs fn inside a transaction as one unit on the worker. Domain
// errors from fn roll the transaction back and pass through unwrapped.
func (a *adapter) tx(ctx context.Context, name string, fn func(tx *sql.Tx) error) error {
	return a.do(ctx, name, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(context.Background(), nil)
		if err != nil {
			return &StorageError{Op: name, Err: err}
		}
		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				a.logger.Error("rollback failed", "op", name, "error", rbErr)
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			return &StorageError{Op: name, Err: err}
		}
		return nil
	})
}

// close stops the worker. Ops submitted after close fail with ErrClosed.
func (a *adapter) close() {
	a.once.Do(func() { close(a.quit) })
	a.wg.Wait()
}
