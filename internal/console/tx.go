package console

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-rbac/internal/audit"
	"github.com/odyssey-erp/odyssey-rbac/internal/auth"
	"github.com/odyssey-erp/odyssey-rbac/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
)

// Stores bundles repositories bound to one transaction.
type Stores struct {
	Users auth.Repository
	RBAC  rbac.Repository
	Audit audit.Repository
}

// Transactor runs fn inside a single store transaction. fn's error rolls
// everything back.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}

// PGTransactor implements Transactor with a PostgreSQL transaction.
type PGTransactor struct {
	conn db.DBTX
}

// NewPGTransactor constructs a transactor over a pool.
func NewPGTransactor(conn db.DBTX) *PGTransactor {
	return &PGTransactor{conn: conn}
}

// InTx begins a transaction and hands fn repositories bound to it.
func (t *PGTransactor) InTx(ctx context.Context, fn func(context.Context, Stores) error) error {
	return db.WithTx(ctx, t.conn, func(tx pgx.Tx) error {
		return fn(ctx, Stores{
			Users: auth.NewRepository(tx),
			RBAC:  rbac.NewRepository(tx),
			Audit: audit.NewRepository(tx),
		})
	})
}

// deferredInvalidator records invalidation requests made inside a
// transaction so they can be replayed after commit.
type deferredInvalidator struct {
	mu      sync.Mutex
	pending bool
}

func (d *deferredInvalidator) Invalidate(context.Context) error {
	d.mu.Lock()
	d.pending = true
	d.mu.Unlock()
	return nil
}

func (d *deferredInvalidator) flush(ctx context.Context, target rbac.Invalidator) error {
	d.mu.Lock()
	pending := d.pending
	d.pending = false
	d.mu.Unlock()
	if !pending || target == nil {
		return nil
	}
	return target.Invalidate(ctx)
}

var _ Transactor = (*PGTransactor)(nil)
