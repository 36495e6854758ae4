package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkerRequiresHandlers(t *testing.T) {
	mr := miniredis.RunT(t)
	_, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: mr.Addr()},
		Logger:    quietLogger(),
		Handlers:  []TaskHandler{{Type: TaskAuditVerifyChain}},
	})
	require.Error(t, err)
}

func TestNewWorkerRejectsBadCron(t *testing.T) {
	mr := miniredis.RunT(t)
	task, err := NewAuditVerifyTask(AuditVerifyPayload{RequestedBy: "scheduler"})
	require.NoError(t, err)

	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: mr.Addr()},
		Logger:    quietLogger(),
		Handlers: []TaskHandler{{Type: TaskAuditVerifyChain, Handler: func(context.Context, *asynq.Task) error {
			return nil
		}}},
		Cron: []CronRegistration{{Spec: "every now and then", Task: task}},
	})
	require.Error(t, err)
}

func TestClientEnqueuesAuditVerify(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	info, err := client.EnqueueAuditVerify(context.Background(), AuditVerifyPayload{RequestedBy: "ops"})
	require.NoError(t, err)
	assert.Equal(t, TaskAuditVerifyChain, info.Type)
	assert.Equal(t, QueueDefault, info.Queue)
	assert.Equal(t, 3, info.MaxRetry)

	var payload AuditVerifyPayload
	require.NoError(t, json.Unmarshal(info.Payload, &payload))
	assert.Equal(t, "ops", payload.RequestedBy)
}
