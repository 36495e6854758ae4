package memstore

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-rbac/internal/audit"
)

type auditRow struct {
	entry audit.Entry
}

// AuditRepo implements audit.Repository.
type AuditRepo struct {
	sc scope
}

// Append assigns id and timestamp, links to the current head and seals the
// entry. Timestamps never move backwards even if the clock does.
func (r *AuditRepo) Append(ctx context.Context, userID *int64, action string, seal audit.SealFunc) (audit.Entry, error) {
	if err := r.sc.lock(ctx); err != nil {
		return audit.Entry{}, err
	}
	defer r.sc.unlock()
	s := r.sc.s
	if s.auditErr != nil {
		return audit.Entry{}, s.auditErr
	}
	at := s.now().Truncate(time.Microsecond)
	var prevHash []byte
	if n := len(s.audit); n > 0 {
		head := s.audit[n-1].entry
		prevHash = head.Hash
		if at.Before(head.OccurredAt) {
			at = head.OccurredAt
		}
	}
	s.nextAuditID++
	entry := audit.Entry{ID: s.nextAuditID, Action: action, OccurredAt: at, PrevHash: prevHash}
	if userID != nil {
		id := *userID
		entry.UserID = &id
	}
	entry.Hash = seal(entry)
	s.audit = append(s.audit, auditRow{entry: entry})
	r.sc.record(func() {
		for i, row := range s.audit {
			if row.entry.ID == entry.ID {
				s.audit = append(s.audit[:i], s.audit[i+1:]...)
				return
			}
		}
	})
	return entry, nil
}

// Scan pages through entries in id order.
func (r *AuditRepo) Scan(ctx context.Context, afterID int64, limit int) ([]audit.Entry, error) {
	if err := r.sc.lock(ctx); err != nil {
		return nil, err
	}
	defer r.sc.unlock()
	var out []audit.Entry
	for _, row := range r.sc.s.audit {
		if row.entry.ID <= afterID {
			continue
		}
		out = append(out, row.entry)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Recent returns the newest entries first.
func (r *AuditRepo) Recent(ctx context.Context, limit int) ([]audit.Entry, error) {
	if err := r.sc.lock(ctx); err != nil {
		return nil, err
	}
	defer r.sc.unlock()
	rows := r.sc.s.audit
	out := make([]audit.Entry, 0, limit)
	for i := len(rows) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, rows[i].entry)
	}
	return out, nil
}

// AuditEntries returns a copy of the trail in insertion order.
func (s *Store) AuditEntries() []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Entry, len(s.audit))
	for i, row := range s.audit {
		out[i] = row.entry
	}
	return out
}

// RewriteAuditAction overwrites the action of one stored entry, bypassing the
// trail. Tests use it to simulate tampering.
func (s *Store) RewriteAuditAction(id int64, action string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.audit {
		if s.audit[i].entry.ID == id {
			s.audit[i].entry.Action = action
			return true
		}
	}
	return false
}

var _ audit.Repository = (*AuditRepo)(nil)
