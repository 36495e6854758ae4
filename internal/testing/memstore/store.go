// Package memstore keeps every repository port of the module in memory so
// services can be exercised without PostgreSQL. Transactions are serialized
// and rolled back through an undo log.
package memstore

import (
	"context"
	"sync"
	"time"
)

type pair [2]int64

// Store is the shared in-memory state. The zero value is not usable; call New.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	now      func() time.Time
	auditErr error

	nextUserID  int64
	nextRoleID  int64
	nextPermID  int64
	nextAuditID int64

	users     map[int64]userRow
	usernames map[string]int64
	roles     map[int64]roleRow
	roleNames map[string]int64
	perms     map[int64]permRow
	permNames map[string]int64
	rolePerms map[pair]struct{}
	userRoles map[pair]struct{}
	audit     []auditRow
}

// New returns an empty store.
func New() *Store {
	return &Store{
		now:       time.Now,
		users:     make(map[int64]userRow),
		usernames: make(map[string]int64),
		roles:     make(map[int64]roleRow),
		roleNames: make(map[string]int64),
		perms:     make(map[int64]permRow),
		permNames: make(map[string]int64),
		rolePerms: make(map[pair]struct{}),
		userRoles: make(map[pair]struct{}),
	}
}

// SetClock replaces the clock used for created_at and audit timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailAudit makes every following audit append return err. nil restores
// normal behaviour.
func (s *Store) FailAudit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditErr = err
}

// Users returns the credential and user listing view.
func (s *Store) Users() *UserRepo { return &UserRepo{scope{s: s}} }

// RBAC returns the registry, engine and role listing view.
func (s *Store) RBAC() *RBACRepo { return &RBACRepo{scope{s: s}} }

// Audit returns the audit trail view.
func (s *Store) Audit() *AuditRepo { return &AuditRepo{scope{s: s}} }

type txLog struct {
	undo []func()
}

func (l *txLog) rollback() {
	for i := len(l.undo) - 1; i >= 0; i-- {
		l.undo[i]()
	}
	l.undo = nil
}

// scope binds a view to the store and, inside a transaction, its undo log.
type scope struct {
	s  *Store
	tx *txLog
}

// record registers an undo step; callers hold s.mu.
func (sc scope) record(undo func()) {
	if sc.tx != nil {
		sc.tx.undo = append(sc.tx.undo, undo)
	}
}

// inTx runs fn in a nested scope. Top level transactions are serialized;
// nested ones behave like savepoints.
func (sc scope) inTx(ctx context.Context, fn func(scope) error) error {
	if sc.tx == nil {
		sc.s.txMu.Lock()
		defer sc.s.txMu.Unlock()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	child := scope{s: sc.s, tx: &txLog{}}
	if err := fn(child); err != nil {
		sc.s.mu.Lock()
		child.tx.rollback()
		sc.s.mu.Unlock()
		return err
	}
	if sc.tx != nil {
		sc.s.mu.Lock()
		sc.tx.undo = append(sc.tx.undo, child.tx.undo...)
		sc.s.mu.Unlock()
	}
	return nil
}

func (sc scope) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sc.s.mu.Lock()
	return nil
}

func (sc scope) unlock() { sc.s.mu.Unlock() }
