package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/service"
)

const (
	TaskTypePublishPost = "publish:scheduled_post"
	DefaultQueue        = "default"
)

// PublishPostPayload is the task body. Backoff travels with the task so the
// server can compute retry delays without a lookup.
type PublishPostPayload struct {
	service.PublishJob
	Backoff time.Duration `json:"backoff"`
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type taskDeleter interface {
	DeleteTask(queue, id string) error
}

// Queue is the producer side: it schedules and cancels publish tasks.
type Queue struct {
	client    enqueuer
	inspector taskDeleter
	name      string
}

func NewQueue(client *asynq.Client, inspector *asynq.Inspector) *Queue {
	return &Queue{
		client:    client,
		inspector: inspector,
		name:      DefaultQueue,
	}
}

// Worker is the consumer side: it runs publish tasks when they fire.
type Worker struct {
	publisher service.PublishService
}

func NewWorker(publisher service.PublishService) *Worker {
	return &Worker{publisher: publisher}
}
