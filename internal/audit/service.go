package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

const (
	defaultRecent = 20
	maxRecent     = 200
	verifyBatch   = 500
)

// ErrChainBroken reports a trail whose hash links do not verify.
var ErrChainBroken = errors.New("audit: chain broken")

// AppendObserver is notified after each append attempt.
type AppendObserver interface {
	ObserveAppend(err error)
}

// Trail records security events and checks the integrity of the record.
type Trail struct {
	repo     Repository
	chain    *Chain
	observer AppendObserver
}

// NewTrail constructs a Trail. observer may be nil.
func NewTrail(repo Repository, chain *Chain, observer AppendObserver) *Trail {
	return &Trail{repo: repo, chain: chain, observer: observer}
}

// Append records action for userID. Any failure is reported as
// shared.ErrAuditWriteFailed and must abort the triggering operation.
func (t *Trail) Append(ctx context.Context, userID *int64, action string) (Entry, error) {
	entry, err := t.append(ctx, userID, action)
	if t.observer != nil {
		t.observer.ObserveAppend(err)
	}
	return entry, err
}

func (t *Trail) append(ctx context.Context, userID *int64, action string) (Entry, error) {
	if action == "" {
		return Entry{}, fmt.Errorf("%w: empty action", shared.ErrAuditWriteFailed)
	}
	action = clampAction(action)
	entry, err := t.repo.Append(ctx, userID, action, t.chain.Seal)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: append %q: %w: %w", action, shared.ErrAuditWriteFailed, err)
	}
	return entry, nil
}

// Recent returns up to limit entries, newest first.
func (t *Trail) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecent
	}
	if limit > maxRecent {
		limit = maxRecent
	}
	return t.repo.Recent(ctx, limit)
}

// Break locates the first entry that failed verification.
type Break struct {
	EntryID int64
	Reason  string
}

// Report summarizes a verification pass.
type Report struct {
	Checked  int
	LastID   int64
	LastHash []byte
	Broken   *Break
}

// OK reports whether every checked entry verified.
func (r Report) OK() bool {
	return r.Broken == nil
}

// Verify walks the whole trail in insertion order. A broken link yields the
// report and an error wrapping ErrChainBroken.
func (t *Trail) Verify(ctx context.Context) (Report, error) {
	var (
		report Report
		prevAt time.Time
	)
	for {
		batch, err := t.repo.Scan(ctx, report.LastID, verifyBatch)
		if err != nil {
			return report, fmt.Errorf("audit: verify scan after %d: %w", report.LastID, err)
		}
		for _, e := range batch {
			reason := ""
			switch {
			case !prevAt.IsZero() && e.OccurredAt.Before(prevAt):
				reason = "timestamp earlier than predecessor"
			case !t.chain.Valid(report.LastHash, e):
				reason = "hash mismatch"
			}
			if reason != "" {
				report.Broken = &Break{EntryID: e.ID, Reason: reason}
				return report, fmt.Errorf("%w at entry %d: %s", ErrChainBroken, e.ID, reason)
			}
			report.Checked++
			report.LastID = e.ID
			report.LastHash = e.Hash
			prevAt = e.OccurredAt
		}
		if len(batch) < verifyBatch {
			return report, nil
		}
	}
}
