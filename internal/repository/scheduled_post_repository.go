package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/maheshrc27/postflow/internal/models"
)

var ErrAlreadyExists = errors.New("already exists")

type ScheduledPostRepository interface {
	// Create fails with ErrAlreadyExists when the channel is already
	// attached to the post.
	Create(ctx context.Context, tx *sql.Tx, sp *models.ScheduledPost) error
	// GetByID returns the record with its channel, or nil when missing.
	GetByID(ctx context.Context, tx *sql.Tx, id string) (*models.ScheduledPost, error)
	ListByPostID(ctx context.Context, tx *sql.Tx, postID string) ([]*models.ScheduledPost, error)
	ListByStatus(ctx context.Context, status models.ScheduledPostStatus) ([]*models.ScheduledPost, error)
	ListPublishedSince(ctx context.Context, since time.Time) ([]*models.ScheduledPost, error)
	Schedule(ctx context.Context, tx *sql.Tx, id string, scheduledAt time.Time) error
	MarkStarted(ctx context.Context, id string, startedAt time.Time, attempts int) error
	MarkPublished(ctx context.Context, id string, publishedAt time.Time, externalID, externalURL string) error
	MarkFailed(ctx context.Context, id string, failedAt time.Time, reason string) error
	ResetToDraft(ctx context.Context, tx *sql.Tx, postID string) error
	Remove(ctx context.Context, tx *sql.Tx, postID, channelID string) (bool, error)
}

type scheduledPostRepository struct {
	db *sql.DB
}

func NewScheduledPostRepository(db *sql.DB) ScheduledPostRepository {
	return &scheduledPostRepository{db: db}
}

func (r *scheduledPostRepository) Create(ctx context.Context, tx *sql.Tx, sp *models.ScheduledPost) error {
	query, args, err := SqBuilder.
		Insert("scheduled_posts").
		Columns(
			"id", "organization_id", "post_id", "channel_id", "status", "scheduled_at",
			"parent_post_id", "parent_post_settings", "repost_settings", "created_at", "updated_at",
		).
		Values(
			sp.ID, sp.OrganizationID, sp.PostID, sp.ChannelID, sp.Status, sp.ScheduledAt,
			sp.ParentPostID, nullJSON(sp.ParentPostSettings), nullJSON(sp.RepostSettings), sp.CreatedAt, sp.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return ErrBadQuery
	}

	if _, err := pick(r.db, tx).ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAlreadyExists
		}
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduledPostRepository) GetByID(ctx context.Context, tx *sql.Tx, id string) (*models.ScheduledPost, error) {
	query, args, err := selectScheduledPosts().
		Where(sq.Eq{"sp.id": id}).
		ToSql()
	if err != nil {
		return nil, ErrBadQuery
	}

	sp, err := scanScheduledPost(pick(r.db, tx).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return sp, nil
}

func (r *scheduledPostRepository) ListByPostID(ctx context.Context, tx *sql.Tx, postID string) ([]*models.ScheduledPost, error) {
	query, args, err := selectScheduledPosts().
		Where(sq.Eq{"sp.post_id": postID}).
		OrderBy("sp.created_at", "sp.id").
		ToSql()
	if err != nil {
		return nil, ErrBadQuery
	}
	return r.list(ctx, pick(r.db, tx), query, args)
}

func (r *scheduledPostRepository) ListByStatus(ctx context.Context, status models.ScheduledPostStatus) ([]*models.ScheduledPost, error) {
	query, args, err := selectScheduledPosts().
		Where(sq.Eq{"sp.status": status}).
		OrderBy("sp.scheduled_at").
		ToSql()
	if err != nil {
		return nil, ErrBadQuery
	}
	return r.list(ctx, r.db, query, args)
}

func (r *scheduledPostRepository) ListPublishedSince(ctx context.Context, since time.Time) ([]*models.ScheduledPost, error) {
	query, args, err := selectScheduledPosts().
		Where(sq.Eq{"sp.status": models.ScheduledPostStatusPublished}).
		Where(sq.GtOrEq{"sp.published_at": since}).
		Where(sq.NotEq{"sp.external_reference_id": ""}).
		OrderBy("sp.published_at").
		ToSql()
	if err != nil {
		return nil, ErrBadQuery
	}
	return r.list(ctx, r.db, query, args)
}

func (r *scheduledPostRepository) Schedule(ctx context.Context, tx *sql.Tx, id string, scheduledAt time.Time) error {
	return r.update(ctx, tx, SqBuilder.
		Update("scheduled_posts").
		Set("status", models.ScheduledPostStatusScheduled).
		Set("scheduled_at", scheduledAt).
		Set("failure_reason", "").
		Set("attempts", 0).
		Where(sq.Eq{"id": id}))
}

func (r *scheduledPostRepository) MarkStarted(ctx context.Context, id string, startedAt time.Time, attempts int) error {
	return r.update(ctx, nil, SqBuilder.
		Update("scheduled_posts").
		Set("started_at", startedAt).
		Set("attempts", attempts).
		Where(sq.Eq{"id": id}))
}

func (r *scheduledPostRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time, externalID, externalURL string) error {
	return r.update(ctx, nil, SqBuilder.
		Update("scheduled_posts").
		Set("status", models.ScheduledPostStatusPublished).
		Set("published_at", publishedAt).
		Set("external_reference_id", externalID).
		Set("external_url", externalURL).
		Set("failure_reason", "").
		Where(sq.Eq{"id": id}))
}

func (r *scheduledPostRepository) MarkFailed(ctx context.Context, id string, failedAt time.Time, reason string) error {
	return r.update(ctx, nil, SqBuilder.
		Update("scheduled_posts").
		Set("status", models.ScheduledPostStatusFailed).
		Set("failed_at", failedAt).
		Set("failure_reason", reason).
		Where(sq.Eq{"id": id}))
}

func (r *scheduledPostRepository) ResetToDraft(ctx context.Context, tx *sql.Tx, postID string) error {
	return r.update(ctx, tx, SqBuilder.
		Update("scheduled_posts").
		Set("status", models.ScheduledPostStatusDraft).
		Set("scheduled_at", nil).
		Set("started_at", nil).
		Set("published_at", nil).
		Set("failed_at", nil).
		Set("failure_reason", "").
		Set("attempts", 0).
		Where(sq.Eq{"post_id": postID}))
}

func (r *scheduledPostRepository) Remove(ctx context.Context, tx *sql.Tx, postID, channelID string) (bool, error) {
	query, args, err := SqBuilder.
		Delete("scheduled_posts").
		Where(sq.Eq{"post_id": postID, "channel_id": channelID}).
		ToSql()
	if err != nil {
		return false, ErrBadQuery
	}

	res, err := pick(r.db, tx).ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return expectAffected(res)
}

func (r *scheduledPostRepository) update(ctx context.Context, tx *sql.Tx, builder sq.UpdateBuilder) error {
	query, args, err := builder.Set("updated_at", sq.Expr("NOW()")).ToSql()
	if err != nil {
		return ErrBadQuery
	}

	if _, err := pick(r.db, tx).ExecContext(ctx, query, args...); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduledPostRepository) list(ctx context.Context, q querier, query string, args []any) ([]*models.ScheduledPost, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		sp, err := scanScheduledPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, sp)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

func selectScheduledPosts() sq.SelectBuilder {
	return SqBuilder.
		Select(
			"sp.id", "sp.organization_id", "sp.post_id", "sp.channel_id", "sp.status",
			"sp.scheduled_at", "sp.started_at", "sp.published_at", "sp.failed_at", "sp.failure_reason",
			"sp.external_reference_id", "sp.external_url", "sp.attempts",
			"sp.parent_post_id", "sp.parent_post_settings", "sp.repost_settings", "sp.created_at", "sp.updated_at",
			"c.id", "c.organization_id", "c.platform", "c.name", "c.platform_account_id",
			"c.access_token", "c.token_expires_at", "c.created_at", "c.updated_at",
		).
		From("scheduled_posts sp").
		Join("channels c ON c.id = sp.channel_id")
}

func scanScheduledPost(row rowScanner) (*models.ScheduledPost, error) {
	var (
		sp                     models.ScheduledPost
		ch                     models.Channel
		parentSettings, repost []byte
	)
	err := row.Scan(
		&sp.ID, &sp.OrganizationID, &sp.PostID, &sp.ChannelID, &sp.Status,
		&sp.ScheduledAt, &sp.StartedAt, &sp.PublishedAt, &sp.FailedAt, &sp.FailureReason,
		&sp.ExternalReferenceID, &sp.ExternalURL, &sp.Attempts,
		&sp.ParentPostID, &parentSettings, &repost, &sp.CreatedAt, &sp.UpdatedAt,
		&ch.ID, &ch.OrganizationID, &ch.Platform, &ch.Name, &ch.PlatformAccountID,
		&ch.AccessToken, &ch.TokenExpiresAt, &ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sp.ParentPostSettings = parentSettings
	sp.RepostSettings = repost
	sp.Channel = &ch
	return &sp, nil
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
