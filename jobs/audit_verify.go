package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-rbac/internal/audit"
	jobmetrics "github.com/odyssey-erp/odyssey-rbac/internal/jobs"
)

// ChainVerifier walks the audit chain.
type ChainVerifier interface {
	Verify(ctx context.Context) (audit.Report, error)
}

// AuditVerifyJob checks the audit trail hash chain.
type AuditVerifyJob struct {
	Verifier ChainVerifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewAuditVerifyJob initialises the verification handler.
func NewAuditVerifyJob(verifier ChainVerifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditVerifyJob {
	return &AuditVerifyJob{Verifier: verifier, Logger: logger, Metrics: metrics}
}

// Handle executes the verification for a queued task. A broken chain is not
// retried.
func (j *AuditVerifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Verifier == nil {
		return errors.New("audit verify: handler not configured")
	}
	var payload AuditVerifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	_, err := j.Run(ctx, payload.RequestedBy)
	if errors.Is(err, audit.ErrChainBroken) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

// Run verifies the chain inline and returns the report.
func (j *AuditVerifyJob) Run(ctx context.Context, requestedBy string) (report audit.Report, err error) {
	tracker := j.Metrics.Track(TaskAuditVerifyChain)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.String("job", TaskAuditVerifyChain), slog.String("requested_by", requestedBy))
	logger.Info("starting audit chain verification")

	report, err = j.Verifier.Verify(ctx)
	j.Metrics.RecordChainCheck(report.Checked, report.Broken != nil)
	if report.Broken != nil {
		logger.Error("audit chain broken",
			slog.Int64("entry_id", report.Broken.EntryID),
			slog.String("reason", report.Broken.Reason),
			slog.Int("verified", report.Checked))
		return report, err
	}
	if err != nil {
		logger.Error("audit chain verification failed", slog.Any("error", err))
		return report, err
	}
	logger.Info("audit chain verified", slog.Int("entries", report.Checked), slog.Int64("last_id", report.LastID))
	return report, nil
}

func (j *AuditVerifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
