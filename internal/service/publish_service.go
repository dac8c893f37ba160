package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/publisher"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/validation"
	"github.com/maheshrc27/postflow/pkg/utils"
)

const (
	PublishAttempts = 3
	PublishBackoff  = time.Second

	// minLeadTime keeps every job strictly in the future.
	minLeadTime = time.Second
)

// ChannelDispatcher routes a payload to the adapter of the channel's
// platform. *publisher.Registry implements it.
type ChannelDispatcher interface {
	Publish(ctx context.Context, ch *models.Channel, payload models.Payload) (*publisher.PublishResult, error)
	GetMetrics(ctx context.Context, ch *models.Channel, externalID string, old *models.MetricsSnapshot) (*models.MetricsSnapshot, error)
}

type PublishService interface {
	// Publish moves a draft post and all its channels to scheduled and
	// enqueues one job per channel.
	Publish(ctx context.Context, orgID, postID string) (*models.Post, error)
	// ProcessScheduledPost runs one delivery attempt. A non-nil error asks
	// the queue to retry; the final attempt records the failure instead.
	ProcessScheduledPost(ctx context.Context, scheduledPostID string, attempt, maxAttempts int) error
	ReturnToDraft(ctx context.Context, orgID, postID string) (*models.Post, error)
	// RequeueScheduled enqueues again every scheduled channel. Jobs that are
	// still pending are deduplicated by id.
	RequeueScheduled(ctx context.Context) (int, error)
}

type PublishOption func(*publishService)

func WithClock(now func() time.Time) PublishOption {
	return func(s *publishService) {
		s.now = now
	}
}

type publishService struct {
	tx         repository.Transactor
	posts      repository.PostRepository
	scheduled  repository.ScheduledPostRepository
	validator  *validation.Validator
	queue      JobQueue
	dispatcher ChannelDispatcher
	secretKey  string
	now        func() time.Time
}

func NewPublishService(
	tx repository.Transactor,
	posts repository.PostRepository,
	scheduled repository.ScheduledPostRepository,
	validator *validation.Validator,
	queue JobQueue,
	dispatcher ChannelDispatcher,
	secretKey string,
	opts ...PublishOption) PublishService {
	s := &publishService{
		tx:         tx,
		posts:      posts,
		scheduled:  scheduled,
		validator:  validator,
		queue:      queue,
		dispatcher: dispatcher,
		secretKey:  secretKey,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type pendingJob struct {
	sp    *models.ScheduledPost
	delay time.Duration
}

func (s *publishService) Publish(ctx context.Context, orgID, postID string) (*models.Post, error) {
	var (
		post *models.Post
		jobs []pendingJob
	)

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		post, err = s.loadPost(ctx, tx, orgID, postID)
		if err != nil {
			return err
		}
		if err := checkPublishable(post); err != nil {
			return err
		}
		if result := s.validator.Validate(post); result.HasErrors() {
			return &ValidationFailedError{Result: result}
		}

		now := s.now().UTC()
		var earliest *time.Time
		for _, sp := range post.Channels {
			at := clampSchedule(now, sp.ScheduledAt, post.ScheduledAt)
			if err := s.scheduled.Schedule(ctx, tx, sp.ID, at); err != nil {
				return fmt.Errorf("error scheduling channel %s: %w", sp.ChannelID, err)
			}

			sp.Status = models.ScheduledPostStatusScheduled
			sp.ScheduledAt = &at
			sp.FailureReason = ""
			sp.Attempts = 0
			jobs = append(jobs, pendingJob{sp: sp, delay: at.Sub(now)})

			if earliest == nil || at.Before(*earliest) {
				earliest = &at
			}
		}

		scheduledAt := post.ScheduledAt
		if scheduledAt == nil {
			scheduledAt = earliest
		}
		if err := s.posts.UpdateSchedule(ctx, tx, post.ID, models.PostStatusScheduled, scheduledAt); err != nil {
			return fmt.Errorf("error updating post: %w", err)
		}
		post.Status = models.PostStatusScheduled
		post.ScheduledAt = scheduledAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, job := range jobs {
		s.enqueue(ctx, job.sp, job.delay)
	}
	return post, nil
}

// enqueue failures leave the row scheduled without a job. The requeue job
// picks those rows up, so they are logged rather than returned.
func (s *publishService) enqueue(ctx context.Context, sp *models.ScheduledPost, delay time.Duration) bool {
	job := PublishJob{
		ScheduledPostID: sp.ID,
		PostID:          sp.PostID,
		OrganizationID:  sp.OrganizationID,
	}
	opts := JobOptions{
		JobID:    sp.JobID(),
		Delay:    delay,
		Attempts: PublishAttempts,
		Backoff:  PublishBackoff,
	}

	if err := s.queue.Invoke(ctx, job, opts); err != nil {
		slog.Error("failed to enqueue publish job",
			slog.String("scheduled_post_id", sp.ID),
			slog.String("post_id", sp.PostID),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

func (s *publishService) ProcessScheduledPost(ctx context.Context, scheduledPostID string, attempt, maxAttempts int) error {
	sp, err := s.scheduled.GetByID(ctx, nil, scheduledPostID)
	if err != nil {
		return fmt.Errorf("error getting scheduled post: %w", err)
	}
	if sp == nil || sp.Status != models.ScheduledPostStatusScheduled {
		slog.Info("skipping publish job",
			slog.String("scheduled_post_id", scheduledPostID))
		return nil
	}

	logger := slog.With(
		slog.String("scheduled_post_id", sp.ID),
		slog.String("post_id", sp.PostID),
		slog.String("platform", string(sp.Channel.Platform)),
		slog.Int("attempt", attempt))

	if err := s.scheduled.MarkStarted(ctx, sp.ID, s.now().UTC(), attempt); err != nil {
		return fmt.Errorf("error marking scheduled post started: %w", err)
	}

	result, err := s.dispatch(ctx, sp)
	if err != nil {
		if attempt < maxAttempts && !isPermanent(err) {
			logger.Warn("publish attempt failed", slog.String("error", err.Error()))
			return err
		}

		logger.Error("publish failed", slog.String("error", err.Error()))
		if err := s.scheduled.MarkFailed(ctx, sp.ID, s.now().UTC(), err.Error()); err != nil {
			return fmt.Errorf("error marking scheduled post failed: %w", err)
		}
		return s.refreshPostStatus(ctx, sp.OrganizationID, sp.PostID)
	}

	if err := s.scheduled.MarkPublished(ctx, sp.ID, s.now().UTC(), result.ExternalReferenceID, result.ExternalURL); err != nil {
		return fmt.Errorf("error marking scheduled post published: %w", err)
	}
	logger.Info("post published", slog.String("external_id", result.ExternalReferenceID))
	return s.refreshPostStatus(ctx, sp.OrganizationID, sp.PostID)
}

func (s *publishService) dispatch(ctx context.Context, sp *models.ScheduledPost) (*publisher.PublishResult, error) {
	post, err := s.posts.GetByID(ctx, nil, sp.OrganizationID, sp.PostID)
	if err != nil {
		return nil, fmt.Errorf("error getting post: %w", err)
	}
	if post == nil {
		return nil, notFound("post", sp.PostID)
	}

	channel, err := decryptChannel(sp.Channel, s.secretKey)
	if err != nil {
		return nil, err
	}
	return s.dispatcher.Publish(ctx, channel, post.Payload)
}

// decryptChannel returns a copy of ch carrying the plain access token.
func decryptChannel(ch *models.Channel, secretKey string) (*models.Channel, error) {
	token, err := utils.OpenToken(ch.AccessToken, secretKey)
	if err != nil {
		return nil, fmt.Errorf("error decrypting token of channel %s: %w", ch.ID, err)
	}
	out := *ch
	out.AccessToken = token
	return &out, nil
}

func (s *publishService) refreshPostStatus(ctx context.Context, orgID, postID string) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		post, err := s.posts.GetByID(ctx, tx, orgID, postID)
		if err != nil {
			return fmt.Errorf("error getting post: %w", err)
		}
		if post == nil {
			return nil
		}

		rows, err := s.scheduled.ListByPostID(ctx, tx, postID)
		if err != nil {
			return fmt.Errorf("error getting post channels: %w", err)
		}
		statuses := make([]models.ScheduledPostStatus, len(rows))
		for i, sp := range rows {
			statuses[i] = sp.Status
		}

		status := models.DeriveStatus(statuses)
		if status == post.Status {
			return nil
		}
		return s.posts.UpdateStatus(ctx, tx, postID, status)
	})
}

func (s *publishService) ReturnToDraft(ctx context.Context, orgID, postID string) (*models.Post, error) {
	var (
		post   *models.Post
		jobIDs []string
	)

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		post, err = s.loadPost(ctx, tx, orgID, postID)
		if err != nil {
			return err
		}
		if post.Status != models.PostStatusScheduled {
			return fmt.Errorf("post %s is %s, only scheduled posts can return to draft: %w", postID, post.Status, ErrStateConflict)
		}

		for _, sp := range post.Channels {
			if sp.Status == models.ScheduledPostStatusScheduled {
				jobIDs = append(jobIDs, sp.JobID())
			}
		}

		if err := s.scheduled.ResetToDraft(ctx, tx, post.ID); err != nil {
			return fmt.Errorf("error resetting channels: %w", err)
		}
		if err := s.posts.UpdateSchedule(ctx, tx, post.ID, models.PostStatusDraft, nil); err != nil {
			return fmt.Errorf("error updating post: %w", err)
		}

		post.Status = models.PostStatusDraft
		post.ScheduledAt = nil
		for _, sp := range post.Channels {
			sp.Status = models.ScheduledPostStatusDraft
			sp.ScheduledAt = nil
			sp.StartedAt = nil
			sp.PublishedAt = nil
			sp.FailedAt = nil
			sp.FailureReason = ""
			sp.Attempts = 0
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// A job that already started is not stopped and may still write its
	// terminal state after the reset.
	for _, id := range jobIDs {
		if err := s.queue.Remove(ctx, id); err != nil && !errors.Is(err, ErrJobNotFound) {
			slog.Error("failed to remove publish job",
				slog.String("scheduled_post_id", id),
				slog.String("error", err.Error()))
		}
	}
	return post, nil
}

func (s *publishService) RequeueScheduled(ctx context.Context) (int, error) {
	rows, err := s.scheduled.ListByStatus(ctx, models.ScheduledPostStatusScheduled)
	if err != nil {
		return 0, fmt.Errorf("error listing scheduled posts: %w", err)
	}

	now := s.now().UTC()
	var n int
	for _, sp := range rows {
		delay := minLeadTime
		if sp.ScheduledAt != nil && sp.ScheduledAt.Sub(now) > delay {
			delay = sp.ScheduledAt.Sub(now)
		}
		if s.enqueue(ctx, sp, delay) {
			n++
		}
	}
	return n, nil
}

func (s *publishService) loadPost(ctx context.Context, tx *sql.Tx, orgID, postID string) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, tx, orgID, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post: %w", err)
	}
	if post == nil {
		return nil, notFound("post", postID)
	}

	post.Channels, err = s.scheduled.ListByPostID(ctx, tx, post.ID)
	if err != nil {
		return nil, fmt.Errorf("error getting post channels: %w", err)
	}
	return post, nil
}

func checkPublishable(post *models.Post) error {
	if len(post.Channels) == 0 {
		return fmt.Errorf("post %s has no channels: %w", post.ID, ErrStateConflict)
	}
	if post.Status != models.PostStatusDraft {
		return fmt.Errorf("post %s is %s, return it to draft first: %w", post.ID, post.Status, ErrStateConflict)
	}
	for _, sp := range post.Channels {
		if sp.Status != models.ScheduledPostStatusDraft {
			return fmt.Errorf("channel %s of post %s is %s, return it to draft first: %w", sp.ChannelID, post.ID, sp.Status, ErrStateConflict)
		}
	}
	return nil
}

// clampSchedule picks the channel's own time, then the post's, then now,
// and never returns anything earlier than now plus minLeadTime.
func clampSchedule(now time.Time, channelAt, postAt *time.Time) time.Time {
	at := now
	switch {
	case channelAt != nil:
		at = *channelAt
	case postAt != nil:
		at = *postAt
	}
	if earliest := now.Add(minLeadTime); at.Before(earliest) {
		return earliest
	}
	return at.UTC()
}

// isPermanent reports errors a retry cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, publisher.ErrUnsupported) ||
		errors.Is(err, publisher.ErrMediaRequired) ||
		errors.Is(err, publisher.ErrPartiallyPublished) ||
		errors.Is(err, ErrNotFound)
}
