package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/maheshrc27/postflow/internal/models"
)

// ChannelRepository reads channels. Channels are written by the account
// connection flow, which lives outside this service.
type ChannelRepository interface {
	GetByID(ctx context.Context, orgID, id string) (*models.Channel, error)
	ListByOrganization(ctx context.Context, orgID string) ([]*models.Channel, error)
}

type channelRepository struct {
	db *sql.DB
}

func NewChannelRepository(db *sql.DB) ChannelRepository {
	return &channelRepository{db: db}
}

var channelColumns = []string{
	"id", "organization_id", "platform", "name", "platform_account_id", "access_token", "token_expires_at", "created_at", "updated_at",
}

func (r *channelRepository) GetByID(ctx context.Context, orgID, id string) (*models.Channel, error) {
	query, args, err := SqBuilder.
		Select(channelColumns...).
		From("channels").
		Where(sq.Eq{"id": id, "organization_id": orgID}).
		ToSql()
	if err != nil {
		return nil, ErrBadQuery
	}

	var ch models.Channel
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&ch.ID, &ch.OrganizationID, &ch.Platform, &ch.Name, &ch.PlatformAccountID,
		&ch.AccessToken, &ch.TokenExpiresAt, &ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &ch, nil
}

func (r *channelRepository) ListByOrganization(ctx context.Context, orgID string) ([]*models.Channel, error) {
	query, args, err := SqBuilder.
		Select(channelColumns...).
		From("channels").
		Where(sq.Eq{"organization_id": orgID}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, ErrBadQuery
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		var ch models.Channel
		if err := rows.Scan(
			&ch.ID, &ch.OrganizationID, &ch.Platform, &ch.Name, &ch.PlatformAccountID,
			&ch.AccessToken, &ch.TokenExpiresAt, &ch.CreatedAt, &ch.UpdatedAt,
		); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		channels = append(channels, &ch)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return channels, nil
}
