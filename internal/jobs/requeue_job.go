package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/service"
)

// RequeueJob re-enqueues scheduled channels whose task went missing, e.g.
// after a crash between commit and enqueue.
type RequeueJob struct {
	ps      service.PublishService
	timeout time.Duration
}

func NewRequeueJob(ps service.PublishService, timeout time.Duration) *RequeueJob {
	return &RequeueJob{ps: ps, timeout: timeout}
}

func (j *RequeueJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.ps.RequeueScheduled(ctx)
	if err != nil {
		slog.Error("requeue of scheduled posts failed", slog.String("error", err.Error()))
		return
	}
	slog.Info("scheduled posts requeued", slog.Int("count", n))
}
