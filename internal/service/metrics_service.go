package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"
)

const refreshConcurrency = 4

type MetricsQuery struct {
	From     time.Time
	To       time.Time
	Platform models.Platform
	PostID   string
}

// Growth is the percentage change of each counter against the previous
// period of the same length.
type Growth struct {
	Likes       float64 `json:"likes"`
	Comments    float64 `json:"comments"`
	Shares      float64 `json:"shares"`
	Impressions float64 `json:"impressions"`
	Reach       float64 `json:"reach"`
	Clicks      float64 `json:"clicks"`
}

type MetricsReport struct {
	Aggregates models.MetricsSnapshot `json:"aggregates"`
	Growth     Growth                 `json:"growth"`
	History    []models.DailyMetrics  `json:"history"`
}

type MetricsService interface {
	Aggregate(ctx context.Context, orgID string, q MetricsQuery) (*MetricsReport, error)
	// Refresh collects a new snapshot for every channel published within
	// the refresh window.
	Refresh(ctx context.Context) error
}

type metricsService struct {
	metrics    repository.PostMetricsRepository
	scheduled  repository.ScheduledPostRepository
	dispatcher ChannelDispatcher
	secretKey  string
	window     time.Duration
}

func NewMetricsService(
	metrics repository.PostMetricsRepository,
	scheduled repository.ScheduledPostRepository,
	dispatcher ChannelDispatcher,
	secretKey string,
	window time.Duration) MetricsService {
	return &metricsService{
		metrics:    metrics,
		scheduled:  scheduled,
		dispatcher: dispatcher,
		secretKey:  secretKey,
		window:     window,
	}
}

func (s *metricsService) Aggregate(ctx context.Context, orgID string, q MetricsQuery) (*MetricsReport, error) {
	if q.From.IsZero() || q.To.IsZero() || !q.From.Before(q.To) {
		return nil, fmt.Errorf("from must be before to: %w", ErrInvalidInput)
	}

	history, err := s.metrics.DailyTotals(ctx, orgID, repository.MetricsFilter{
		From:     q.From,
		To:       q.To,
		Platform: q.Platform,
		PostID:   q.PostID,
	})
	if err != nil {
		return nil, fmt.Errorf("error loading metrics: %w", err)
	}

	previous, err := s.metrics.DailyTotals(ctx, orgID, repository.MetricsFilter{
		From:     q.From.Add(-q.To.Sub(q.From)),
		To:       q.From,
		Platform: q.Platform,
		PostID:   q.PostID,
	})
	if err != nil {
		return nil, fmt.Errorf("error loading previous metrics: %w", err)
	}

	current := sum(history)
	if history == nil {
		history = []models.DailyMetrics{}
	}
	return &MetricsReport{
		Aggregates: current,
		Growth:     growth(current, sum(previous)),
		History:    history,
	}, nil
}

func (s *metricsService) Refresh(ctx context.Context) error {
	rows, err := s.scheduled.ListPublishedSince(ctx, time.Now().Add(-s.window))
	if err != nil {
		return fmt.Errorf("error listing published posts: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for _, sp := range rows {
		g.Go(func() error {
			if err := s.refreshOne(ctx, sp); err != nil {
				slog.Warn("metrics refresh failed",
					slog.String("scheduled_post_id", sp.ID),
					slog.String("platform", string(sp.Channel.Platform)),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *metricsService) refreshOne(ctx context.Context, sp *models.ScheduledPost) error {
	latest, err := s.metrics.Latest(ctx, sp.ID)
	if err != nil {
		return err
	}
	var old *models.MetricsSnapshot
	if latest != nil {
		old = &latest.MetricsSnapshot
	}

	channel, err := decryptChannel(sp.Channel, s.secretKey)
	if err != nil {
		return err
	}

	snapshot, err := s.dispatcher.GetMetrics(ctx, channel, sp.ExternalReferenceID, old)
	if err != nil {
		return err
	}

	id, err := gonanoid.New()
	if err != nil {
		return err
	}
	return s.metrics.Create(ctx, &models.PostMetrics{
		ID:              id,
		OrganizationID:  sp.OrganizationID,
		ScheduledPostID: sp.ID,
		PostID:          sp.PostID,
		Platform:        sp.Channel.Platform,
		MetricsSnapshot: *snapshot,
		CollectedAt:     time.Now().UTC(),
	})
}

// CalculatePercentageChange returns the growth from previous to current in
// percent. Growth from zero is 100 when anything happened and 0 otherwise.
func CalculatePercentageChange(current, previous int64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return float64(current-previous) / float64(previous) * 100
}

func growth(current, previous models.MetricsSnapshot) Growth {
	return Growth{
		Likes:       CalculatePercentageChange(current.Likes, previous.Likes),
		Comments:    CalculatePercentageChange(current.Comments, previous.Comments),
		Shares:      CalculatePercentageChange(current.Shares, previous.Shares),
		Impressions: CalculatePercentageChange(current.Impressions, previous.Impressions),
		Reach:       CalculatePercentageChange(current.Reach, previous.Reach),
		Clicks:      CalculatePercentageChange(current.Clicks, previous.Clicks),
	}
}

func sum(days []models.DailyMetrics) models.MetricsSnapshot {
	var total models.MetricsSnapshot
	for _, d := range days {
		total = total.Add(d.MetricsSnapshot)
	}
	return total
}
