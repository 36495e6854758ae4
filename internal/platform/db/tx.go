package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// WithTx executes fn inside a transaction opened on conn. When conn is already
// a transaction pgx opens a savepoint instead. Isolation stays at the server
// default (read committed): insert-or-lookup paths rely on seeing rows
// committed by concurrent writers.
func WithTx(ctx context.Context, conn DBTX, fn func(pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
