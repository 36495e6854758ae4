package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rbac/internal/audit"
	"github.com/odyssey-erp/odyssey-rbac/jobs"
)

func (e env) auditCLI() *AuditCLI {
	job := jobs.NewAuditVerifyJob(e.trail, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	return NewAuditCLI(job, e.trail)
}

func (e env) appendActions(t *testing.T, actions ...string) {
	t.Helper()
	for _, action := range actions {
		_, err := e.trail.Append(context.Background(), nil, action)
		require.NoError(t, err)
	}
}

func TestAuditVerifyCommandIntactJSON(t *testing.T) {
	e := newEnv(t)
	e.appendActions(t, "LOGIN_SUCCESS", "DATA_EDIT", "LOGOUT")

	var stdout, stderr bytes.Buffer
	code := e.auditCLI().VerifyCommand(context.Background(), AuditVerifyOptions{JSONOutput: true, Stdout: &stdout, Stderr: &stderr})
	require.Zero(t, code)
	require.Empty(t, stderr.String())

	var summary AuditVerifySummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	assert.True(t, summary.OK)
	assert.Equal(t, 3, summary.Checked)
	assert.NotEmpty(t, summary.LastHash)
	assert.Zero(t, summary.BrokenAt)
}

func TestAuditVerifyCommandBrokenChain(t *testing.T) {
	e := newEnv(t)
	e.appendActions(t, "LOGIN_SUCCESS", "DATA_EDIT", "LOGOUT")
	entries := e.store.AuditEntries()
	require.True(t, e.store.RewriteAuditAction(entries[1].ID, "LOGIN_SUCCESS"))

	var stdout, stderr bytes.Buffer
	code := e.auditCLI().VerifyCommand(context.Background(), AuditVerifyOptions{Stdout: &stdout, Stderr: &stderr})
	require.Equal(t, 10, code)
	assert.Contains(t, stdout.String(), "BROKEN at entry")
	assert.Contains(t, stdout.String(), "hash mismatch")
}

type failingVerifier struct{}

func (failingVerifier) Run(context.Context, string) (audit.Report, error) {
	return audit.Report{}, errors.New("connection refused")
}

func TestAuditVerifyCommandStoreError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := NewAuditCLI(failingVerifier{}, nil).VerifyCommand(context.Background(), AuditVerifyOptions{Stdout: &stdout, Stderr: &stderr})
	require.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "connection refused")
	assert.Empty(t, stdout.String())
}

func TestAuditTailCommand(t *testing.T) {
	e := newEnv(t)
	e.appendActions(t, "LOGIN_SUCCESS", "DATA_EDIT", "LOGOUT")

	var stdout, stderr bytes.Buffer
	code := e.auditCLI().TailCommand(context.Background(), AuditTailOptions{Limit: 2, Stdout: &stdout, Stderr: &stderr})
	require.Zero(t, code)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "LOGOUT")
	assert.Contains(t, lines[2], "DATA_EDIT")
	assert.NotContains(t, stdout.String(), "LOGIN_SUCCESS")
}

func TestAuditTailRejectsNegativeLimit(t *testing.T) {
	e := newEnv(t)
	var stdout, stderr bytes.Buffer
	code := e.auditCLI().TailCommand(context.Background(), AuditTailOptions{Limit: -1, Stdout: &stdout, Stderr: &stderr})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "-n")
}
