package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/service"
)

type MetricsRefreshJob struct {
	ms      service.MetricsService
	timeout time.Duration
}

func NewMetricsRefreshJob(ms service.MetricsService, timeout time.Duration) *MetricsRefreshJob {
	return &MetricsRefreshJob{ms: ms, timeout: timeout}
}

func (j *MetricsRefreshJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	if err := j.ms.Refresh(ctx); err != nil {
		slog.Error("metrics refresh failed", slog.String("error", err.Error()))
		return
	}
	slog.Info("metrics refreshed", slog.Duration("took", time.Since(start)))
}
