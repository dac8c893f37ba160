package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/maheshrc27/postflow/internal/models"
)

type MetricsFilter struct {
	From     time.Time
	To       time.Time
	Platform models.Platform
	PostID   string
}

type PostMetricsRepository interface {
	Create(ctx context.Context, m *models.PostMetrics) error
	// Latest returns the most recent row of a scheduled post, or nil.
	Latest(ctx context.Context, scheduledPostID string) (*models.PostMetrics, error)
	// DailyTotals sums rows per UTC day in [From, To).
	DailyTotals(ctx context.Context, orgID string, filter MetricsFilter) ([]models.DailyMetrics, error)
}

type postMetricsRepository struct {
	db *sql.DB
}

func NewPostMetricsRepository(db *sql.DB) PostMetricsRepository {
	return &postMetricsRepository{db: db}
}

func (r *postMetricsRepository) Create(ctx context.Context, m *models.PostMetrics) error {
	query, args, err := SqBuilder.
		Insert("post_metrics").
		Columns(
			"id", "organization_id", "scheduled_post_id", "post_id", "platform",
			"likes", "comments", "shares", "impressions", "reach", "clicks", "collected_at",
		).
		Values(
			m.ID, m.OrganizationID, m.ScheduledPostID, m.PostID, m.Platform,
			m.Likes, m.Comments, m.Shares, m.Impressions, m.Reach, m.Clicks, m.CollectedAt,
		).
		ToSql()
	if err != nil {
		return ErrBadQuery
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postMetricsRepository) Latest(ctx context.Context, scheduledPostID string) (*models.PostMetrics, error) {
	query, args, err := SqBuilder.
		Select(
			"id", "organization_id", "scheduled_post_id", "post_id", "platform",
			"likes", "comments", "shares", "impressions", "reach", "clicks", "collected_at",
		).
		From("post_metrics").
		Where(sq.Eq{"scheduled_post_id": scheduledPostID}).
		OrderBy("collected_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, ErrBadQuery
	}

	var m models.PostMetrics
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&m.ID, &m.OrganizationID, &m.ScheduledPostID, &m.PostID, &m.Platform,
		&m.Likes, &m.Comments, &m.Shares, &m.Impressions, &m.Reach, &m.Clicks, &m.CollectedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &m, nil
}

func (r *postMetricsRepository) DailyTotals(ctx context.Context, orgID string, filter MetricsFilter) ([]models.DailyMetrics, error) {
	builder := SqBuilder.
		Select(
			"date_trunc('day', collected_at AT TIME ZONE 'UTC') AS day",
			"COALESCE(SUM(likes), 0)",
			"COALESCE(SUM(comments), 0)",
			"COALESCE(SUM(shares), 0)",
			"COALESCE(SUM(impressions), 0)",
			"COALESCE(SUM(reach), 0)",
			"COALESCE(SUM(clicks), 0)",
		).
		From("post_metrics").
		Where(sq.Eq{"organization_id": orgID}).
		Where(sq.GtOrEq{"collected_at": filter.From}).
		Where(sq.Lt{"collected_at": filter.To}).
		GroupBy("day").
		OrderBy("day")
	if filter.Platform != "" {
		builder = builder.Where(sq.Eq{"platform": filter.Platform})
	}
	if filter.PostID != "" {
		builder = builder.Where(sq.Eq{"post_id": filter.PostID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, ErrBadQuery
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var days []models.DailyMetrics
	for rows.Next() {
		var d models.DailyMetrics
		if err := rows.Scan(&d.Day, &d.Likes, &d.Comments, &d.Shares, &d.Impressions, &d.Reach, &d.Clicks); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		d.Day = d.Day.UTC()
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return days, nil
}
