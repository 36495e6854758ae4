package memstore

import (
	"context"

	"github.com/odyssey-erp/odyssey-rbac/internal/console"
)

// InTx implements console.Transactor. Writes made through the stores handed
// to fn are undone when fn fails.
func (s *Store) InTx(ctx context.Context, fn func(context.Context, console.Stores) error) error {
	return scope{s: s}.inTx(ctx, func(child scope) error {
		return fn(ctx, console.Stores{
			Users: &UserRepo{sc: child},
			RBAC:  &RBACRepo{sc: child},
			Audit: &AuditRepo{sc: child},
		})
	})
}

var _ console.Transactor = (*Store)(nil)
