package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"ankaa/models"
)

const TypeRedeliver = "notification:redeliver"

// Queue names, highest priority first.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// QueueWeights are the asynq priorities of the redelivery queues.
var QueueWeights = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// QueueFor maps a notification's importance to a queue.
func QueueFor(i models.Importance) string {
	switch i {
	case models.ImportanceUrgent, models.ImportanceHigh:
		return QueueCritical
	case models.ImportanceLow:
		return QueueLow
	default:
		return QueueDefault
	}
}

// TaskID is unique per scheduled attempt so a retry is never queued twice.
func TaskID(job models.DeliveryJob) string {
	return fmt.Sprintf("%s:%s:%d:%d", job.NotificationID, job.Channel, job.Attempts, job.Deferrals)
}

// NewRedeliveryTask builds the task that resubmits job once delay has passed.
func NewRedeliveryTask(job models.DeliveryJob, delay time.Duration) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(job)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeRedeliver, b)
	opts := []asynq.Option{
		asynq.ProcessIn(delay),
		asynq.Queue(QueueFor(job.Priority)),
		asynq.TaskID(TaskID(job)),
		asynq.MaxRetry(3),
	}
	return task, opts, nil
}

// ParseRedeliveryTask decodes the job carried by a redelivery task.
func ParseRedeliveryTask(task *asynq.Task) (models.DeliveryJob, error) {
	var job models.DeliveryJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return job, fmt.Errorf("invalid redelivery payload: %w", err)
	}
	if job.NotificationID == "" || job.Channel == "" {
		return job, fmt.Errorf("invalid redelivery payload: missing notification or channel")
	}
	return job, nil
}
