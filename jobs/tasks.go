package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditVerifyChain is the task type for audit chain verification.
	TaskAuditVerifyChain = "audit:verify_chain"
)

// AuditVerifyPayload describes a verification request.
type AuditVerifyPayload struct {
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewAuditVerifyTask constructs an Asynq task.
func NewAuditVerifyTask(payload AuditVerifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditVerifyChain, data, asynq.MaxRetry(3), asynq.Timeout(10*time.Minute)), nil
}

// AuditVerifyCron registers the periodic verification. An empty spec
// disables it.
func AuditVerifyCron(spec string) ([]CronRegistration, error) {
	if spec == "" {
		return nil, nil
	}
	task, err := NewAuditVerifyTask(AuditVerifyPayload{RequestedBy: "scheduler"})
	if err != nil {
		return nil, err
	}
	return []CronRegistration{{
		Spec:    spec,
		Task:    task,
		Options: []asynq.Option{asynq.Queue(QueueDefault), asynq.Unique(time.Minute)},
	}}, nil
}
