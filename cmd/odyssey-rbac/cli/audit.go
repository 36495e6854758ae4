package cli

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/odyssey-erp/odyssey-rbac/internal/audit"
)

// Verifier runs an inline chain verification.
type Verifier interface {
	Run(ctx context.Context, requestedBy string) (audit.Report, error)
}

// RecentReader lists the newest audit entries.
type RecentReader interface {
	Recent(ctx context.Context, limit int) ([]audit.Entry, error)
}

// AuditCLI implements the audit subcommands.
type AuditCLI struct {
	verifier Verifier
	trail    RecentReader
}

// NewAuditCLI constructs the audit helpers.
func NewAuditCLI(verifier Verifier, trail RecentReader) *AuditCLI {
	return &AuditCLI{verifier: verifier, trail: trail}
}

// AuditVerifyOptions defines flags for audit verify.
type AuditVerifyOptions struct {
	RequestedBy string
	JSONOutput  bool
	Stdout      io.Writer
	Stderr      io.Writer
}

// AuditVerifySummary is the JSON output of audit verify.
type AuditVerifySummary struct {
	OK       bool   `json:"ok"`
	Checked  int    `json:"checked"`
	LastID   int64  `json:"last_id"`
	LastHash string `json:"last_hash,omitempty"`
	BrokenAt int64  `json:"broken_at,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// VerifyCommand walks the chain and prints the outcome. A broken chain exits
// with 10.
func (c *AuditCLI) VerifyCommand(ctx context.Context, opts AuditVerifyOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.RequestedBy == "" {
		opts.RequestedBy = "cli"
	}
	report, err := c.verifier.Run(ctx, opts.RequestedBy)
	if err != nil && report.Broken == nil {
		_, _ = fmt.Fprintf(opts.Stderr, "audit verify: %v\n", err)
		return 1
	}
	summary := AuditVerifySummary{
		OK:       report.OK(),
		Checked:  report.Checked,
		LastID:   report.LastID,
		LastHash: hex.EncodeToString(report.LastHash),
	}
	if report.Broken != nil {
		summary.BrokenAt = report.Broken.EntryID
		summary.Reason = report.Broken.Reason
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "audit verify: encode json: %v\n", err)
			return 1
		}
	} else if summary.OK {
		_, _ = fmt.Fprintf(opts.Stdout, "Audit chain intact: %d entries verified (last id %d)\n", summary.Checked, summary.LastID)
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "Audit chain BROKEN at entry %d: %s (%d entries verified before it)\n",
			summary.BrokenAt, summary.Reason, summary.Checked)
	}
	if !summary.OK {
		return 10
	}
	return 0
}

// AuditTailOptions defines flags for audit tail.
type AuditTailOptions struct {
	Limit  int
	Stdout io.Writer
	Stderr io.Writer
}

// TailCommand prints the newest entries.
func (c *AuditCLI) TailCommand(ctx context.Context, opts AuditTailOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Limit < 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "audit tail: -n must not be negative")
		return 1
	}
	entries, err := c.trail.Recent(ctx, opts.Limit)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "audit tail: %v\n", err)
		return 1
	}
	if err := writeEntries(opts.Stdout, entries); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "audit tail: %v\n", err)
		return 1
	}
	return 0
}

func writeEntries(out io.Writer, entries []audit.Entry) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tUser\tAction\tTime")
	for _, e := range entries {
		user := "-"
		if e.UserID != nil {
			user = fmt.Sprintf("%d", *e.UserID)
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, user, e.Action, e.OccurredAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}
