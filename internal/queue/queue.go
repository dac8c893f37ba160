package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/service"
)

// Invoke schedules a publish task. A task that is still pending under the
// same id makes this a no-op.
func (q *Queue) Invoke(ctx context.Context, job service.PublishJob, opts service.JobOptions) error {
	taskPayload, err := json.Marshal(PublishPostPayload{PublishJob: job, Backoff: opts.Backoff})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePublishPost, taskPayload)

	options := []asynq.Option{
		asynq.Queue(q.name),
		asynq.ProcessIn(opts.Delay),
	}
	if opts.JobID != "" {
		options = append(options, asynq.TaskID(opts.JobID))
	}
	if opts.Attempts > 0 {
		options = append(options, asynq.MaxRetry(opts.Attempts-1))
	}

	info, err := q.client.EnqueueContext(ctx, task, options...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		slog.Info("publish task already queued", slog.String("task_id", opts.JobID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueueing task %s: %w", opts.JobID, err)
	}

	slog.Info("task scheduled",
		slog.String("task_id", info.ID),
		slog.String("scheduled_post_id", job.ScheduledPostID),
		slog.Time("process_at", info.NextProcessAt))
	return nil
}

func (q *Queue) Remove(ctx context.Context, jobID string) error {
	err := q.inspector.DeleteTask(q.name, jobID)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return fmt.Errorf("task %s: %w", jobID, service.ErrJobNotFound)
	}
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", jobID, err)
	}
	return nil
}
