package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/service"
)

// maxBackoffShift caps exponential growth of the retry delay.
const maxBackoffShift = 10

func (w *Worker) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decoding publish task: %v: %w", err, asynq.SkipRetry)
	}

	attempt, maxAttempts := 1, service.PublishAttempts
	if retried, ok := asynq.GetRetryCount(ctx); ok {
		attempt = retried + 1
	}
	if maxRetry, ok := asynq.GetMaxRetry(ctx); ok {
		maxAttempts = maxRetry + 1
	}

	return w.publisher.ProcessScheduledPost(ctx, payload.ScheduledPostID, attempt, maxAttempts)
}

// NewServeMux routes every task type the worker handles.
func (w *Worker) NewServeMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypePublishPost, w.HandlePublishPostTask)
	return mux
}

// RetryDelay doubles the backoff carried by publish tasks on every retry.
// Other tasks use the asynq default.
func RetryDelay(n int, err error, task *asynq.Task) time.Duration {
	if task.Type() == TaskTypePublishPost {
		var payload PublishPostPayload
		if json.Unmarshal(task.Payload(), &payload) == nil && payload.Backoff > 0 {
			return payload.Backoff << min(n, maxBackoffShift)
		}
	}
	return asynq.DefaultRetryDelayFunc(n, err, task)
}
