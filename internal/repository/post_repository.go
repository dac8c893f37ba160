package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/maheshrc27/postflow/internal/models"
)

type PostFilter struct {
	Status models.PostStatus
	Limit  uint64
	Offset uint64
}

type PostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) error
	// GetByID returns nil when the post does not exist in the organization.
	// Inside a transaction the row is locked until commit.
	GetByID(ctx context.Context, tx *sql.Tx, orgID, id string) (*models.Post, error)
	List(ctx context.Context, orgID string, filter PostFilter) ([]*models.Post, error)
	Update(ctx context.Context, tx *sql.Tx, post *models.Post) error
	UpdateStatus(ctx context.Context, tx *sql.Tx, id string, status models.PostStatus) error
	UpdateSchedule(ctx context.Context, tx *sql.Tx, id string, status models.PostStatus, scheduledAt *time.Time) error
	Remove(ctx context.Context, tx *sql.Tx, orgID, id string) (bool, error)
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

var postColumns = []string{
	"id", "organization_id", "name", "type", "status", "scheduled_at", "payload", "created_at", "updated_at",
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) error {
	payload, err := models.MarshalPayload(post.Payload)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	query, args, err := SqBuilder.
		Insert("posts").
		Columns(postColumns...).
		Values(post.ID, post.OrganizationID, post.Name, post.Type(), post.Status, post.ScheduledAt, string(payload), post.CreatedAt, post.UpdatedAt).
		ToSql()
	if err != nil {
		return ErrBadQuery
	}

	if _, err := pick(r.db, tx).ExecContext(ctx, query, args...); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, tx *sql.Tx, orgID, id string) (*models.Post, error) {
	builder := SqBuilder.
		Select(postColumns...).
		From("posts").
		Where(sq.Eq{"id": id, "organization_id": orgID})
	if tx != nil {
		builder = builder.Suffix("FOR UPDATE")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, ErrBadQuery
	}

	post, err := scanPost(pick(r.db, tx).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) List(ctx context.Context, orgID string, filter PostFilter) ([]*models.Post, error) {
	builder := SqBuilder.
		Select(postColumns...).
		From("posts").
		Where(sq.Eq{"organization_id": orgID}).
		OrderBy("created_at DESC")
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		builder = builder.Offset(filter.Offset)
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

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

func (r *postRepository) Update(ctx context.Context, tx *sql.Tx, post *models.Post) error {
	payload, err := models.MarshalPayload(post.Payload)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	query, args, err := SqBuilder.
		Update("posts").
		Set("name", post.Name).
		Set("type", post.Type()).
		Set("payload", string(payload)).
		Set("scheduled_at", post.ScheduledAt).
		Set("updated_at", post.UpdatedAt).
		Where(sq.Eq{"id": post.ID, "organization_id": post.OrganizationID}).
		ToSql()
	if err != nil {
		return ErrBadQuery
	}

	res, err := pick(r.db, tx).ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	ok, err := expectAffected(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("post %s: %w", post.ID, sql.ErrNoRows)
	}
	return nil
}

func (r *postRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id string, status models.PostStatus) error {
	query, args, err := SqBuilder.
		Update("posts").
		Set("status", status).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return ErrBadQuery
	}

	if _, err := pick(r.db, tx).ExecContext(ctx, query, args...); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) UpdateSchedule(ctx context.Context, tx *sql.Tx, id string, status models.PostStatus, scheduledAt *time.Time) error {
	query, args, err := SqBuilder.
		Update("posts").
		Set("status", status).
		Set("scheduled_at", scheduledAt).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return ErrBadQuery
	}

	if _, err := pick(r.db, tx).ExecContext(ctx, query, args...); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) Remove(ctx context.Context, tx *sql.Tx, orgID, id string) (bool, error) {
	query, args, err := SqBuilder.
		Delete("posts").
		Where(sq.Eq{"id": id, "organization_id": orgID}).
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var (
		post     models.Post
		postType models.PostType
		payload  []byte
	)
	err := row.Scan(&post.ID, &post.OrganizationID, &post.Name, &postType, &post.Status, &post.ScheduledAt, &payload, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}

	post.Payload, err = models.UnmarshalPayload(postType, payload)
	if err != nil {
		return nil, fmt.Errorf("post %s: decoding payload: %w", post.ID, err)
	}
	return &post, nil
}
