package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/db"
)

// appendLockKey identifies the advisory lock that serializes appends.
const appendLockKey int64 = 0x6f64797373657901

// SealFunc computes the hash of an entry whose other fields are final.
type SealFunc func(Entry) []byte

// Repository persists the trail.
type Repository interface {
	// Append writes one entry. The store assigns ID and OccurredAt, links
	// PrevHash to the latest entry and calls seal inside the same critical
	// section.
	Append(ctx context.Context, userID *int64, action string, seal SealFunc) (Entry, error)
	// Scan returns up to limit entries with ID greater than afterID in ID order.
	Scan(ctx context.Context, afterID int64, limit int) ([]Entry, error)
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a repository on a pool or transaction.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

// Append serializes writers on a transaction scoped advisory lock. Inside an
// outer transaction the lock is held until that transaction ends.
func (r *PGRepository) Append(ctx context.Context, userID *int64, action string, seal SealFunc) (Entry, error) {
	var entry Entry
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, appendLockKey); err != nil {
			return fmt.Errorf("lock: %w", err)
		}

		var prevAt *time.Time
		var prevHash []byte
		err := tx.QueryRow(ctx, `SELECT occurred_at, hash FROM audit_logs ORDER BY id DESC LIMIT 1`).
			Scan(&prevAt, &prevHash)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("read head: %w", err)
		}

		entry = Entry{UserID: userID, Action: action, PrevHash: prevHash}
		// GREATEST ignores NULL, so the first entry takes the clock.
		if err := tx.QueryRow(ctx, `
			SELECT nextval(pg_get_serial_sequence('audit_logs', 'id')),
			       date_trunc('microseconds', GREATEST(clock_timestamp(), $1::timestamptz))`, prevAt).
			Scan(&entry.ID, &entry.OccurredAt); err != nil {
			return fmt.Errorf("allocate: %w", err)
		}
		entry.Hash = seal(entry)

		_, err = tx.Exec(ctx, `
			INSERT INTO audit_logs (id, user_id, action, occurred_at, prev_hash, hash)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			entry.ID, entry.UserID, entry.Action, entry.OccurredAt, entry.PrevHash, entry.Hash)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Scan pages through the trail in insertion order.
func (r *PGRepository) Scan(ctx context.Context, afterID int64, limit int) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, action, occurred_at, prev_hash, hash
		FROM audit_logs
		WHERE id > $1
		ORDER BY id
		LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanEntry)
}

// Recent returns the newest entries first.
func (r *PGRepository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, action, occurred_at, prev_hash, hash
		FROM audit_logs
		ORDER BY id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanEntry)
}

func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.UserID, &e.Action, &e.OccurredAt, &e.PrevHash, &e.Hash)
	return e, err
}

var _ Repository = (*PGRepository)(nil)
