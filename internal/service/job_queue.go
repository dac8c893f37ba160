package service

import (
	"context"
	"errors"
	"time"
)

var ErrJobNotFound = errors.New("job not found")

// PublishJob is the payload of the delayed job that publishes one
// scheduled post to its channel.
type PublishJob struct {
	ScheduledPostID string `json:"scheduled_post_id"`
	PostID          string `json:"post_id"`
	OrganizationID  string `json:"organization_id"`
}

type JobOptions struct {
	// JobID makes Invoke idempotent: a second job with the same id is
	// dropped by the queue.
	JobID    string
	Delay    time.Duration
	Attempts int
	// Backoff is the delay before the first retry. It doubles on each
	// following one.
	Backoff time.Duration
}

type JobQueue interface {
	Invoke(ctx context.Context, job PublishJob, opts JobOptions) error
	// Remove returns ErrJobNotFound when no pending job has the id.
	Remove(ctx context.Context, jobID string) error
}
