package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TaskDeliverNotification runs one delivery attempt for an outbox job.
const TaskDeliverNotification = "notification.deliver"

// DeliveryPayload identifies the job. RunAt is informational: the outbox row
// decides whether the job is still due.
type DeliveryPayload struct {
	JobID uuid.UUID `json:"jobId"`
	RunAt time.Time `json:"runAt"`
}

func NewDeliveryTask(jobID uuid.UUID, runAt time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(DeliveryPayload{JobID: jobID, RunAt: runAt.UTC()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeliverNotification, data), nil
}

func ParseDeliveryPayload(task *asynq.Task) (DeliveryPayload, error) {
	var payload DeliveryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DeliveryPayload{}, fmt.Errorf("decode delivery payload: %w", err)
	}
	if payload.JobID == uuid.Nil {
		return DeliveryPayload{}, errors.New("delivery payload without job id")
	}
	return payload, nil
}
