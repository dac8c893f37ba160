package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/validation"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// allowedMedia maps the sniffed MIME types accepted for upload to the
// extension used in the storage key.
var allowedMedia = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/gif":       "gif",
	"image/webp":      "webp",
	"video/mp4":       "mp4",
	"video/quicktime": "mov",
}

type PostInput struct {
	Name        string
	ScheduledAt *time.Time
	Payload     models.Payload
}

type PostService interface {
	Create(ctx context.Context, orgID string, in PostInput) (*models.Post, error)
	// Update overwrites the post. Concurrent updates are last writer wins.
	Update(ctx context.Context, orgID, postID string, in PostInput) (*models.Post, error)
	Get(ctx context.Context, orgID, postID string) (*models.Post, error)
	List(ctx context.Context, orgID string, filter repository.PostFilter) ([]*models.Post, error)
	Delete(ctx context.Context, orgID, postID string) error
	AttachChannel(ctx context.Context, orgID, postID, channelID string, scheduledAt *time.Time) (*models.ScheduledPost, error)
	DetachChannel(ctx context.Context, orgID, postID, channelID string) error
	Validate(ctx context.Context, orgID, postID string) (*validation.Result, error)
	ListChannels(ctx context.Context, orgID string) ([]*models.Channel, error)
	RegisterMedia(ctx context.Context, orgID string, data []byte) (*models.Media, error)
}

type postService struct {
	tx        repository.Transactor
	posts     repository.PostRepository
	scheduled repository.ScheduledPostRepository
	channels  repository.ChannelRepository
	validator *validation.Validator
	resources ResourceService
}

func NewPostService(
	tx repository.Transactor,
	posts repository.PostRepository,
	scheduled repository.ScheduledPostRepository,
	channels repository.ChannelRepository,
	validator *validation.Validator,
	resources ResourceService) PostService {
	return &postService{
		tx:        tx,
		posts:     posts,
		scheduled: scheduled,
		channels:  channels,
		validator: validator,
		resources: resources,
	}
}

func (s *postService) Create(ctx context.Context, orgID string, in PostInput) (*models.Post, error) {
	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	now := time.Now().UTC()
	post := &models.Post{
		ID:             id,
		OrganizationID: orgID,
		Name:           in.Name,
		Status:         models.PostStatusDraft,
		ScheduledAt:    in.ScheduledAt,
		Payload:        normalizedPayload(in.Payload),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.posts.Create(ctx, nil, post); err != nil {
		return nil, fmt.Errorf("error creating post: %w", err)
	}
	return post, nil
}

func (s *postService) Update(ctx context.Context, orgID, postID string, in PostInput) (*models.Post, error) {
	var post *models.Post
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		post, err = s.draftPost(ctx, tx, orgID, postID)
		if err != nil {
			return err
		}

		post.Name = in.Name
		post.ScheduledAt = in.ScheduledAt
		post.Payload = normalizedPayload(in.Payload)
		post.UpdatedAt = time.Now().UTC()
		return s.posts.Update(ctx, tx, post)
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (s *postService) Get(ctx context.Context, orgID, postID string) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, nil, orgID, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post: %w", err)
	}
	if post == nil {
		return nil, notFound("post", postID)
	}

	post.Channels, err = s.scheduled.ListByPostID(ctx, nil, post.ID)
	if err != nil {
		return nil, fmt.Errorf("error getting post channels: %w", err)
	}
	return post, nil
}

func (s *postService) List(ctx context.Context, orgID string, filter repository.PostFilter) ([]*models.Post, error) {
	posts, err := s.posts.List(ctx, orgID, filter)
	if err != nil {
		return nil, fmt.Errorf("error listing posts: %w", err)
	}
	return posts, nil
}

func (s *postService) Delete(ctx context.Context, orgID, postID string) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := s.draftPost(ctx, tx, orgID, postID); err != nil {
			return err
		}
		if _, err := s.posts.Remove(ctx, tx, orgID, postID); err != nil {
			return fmt.Errorf("error removing post: %w", err)
		}
		return nil
	})
}

func (s *postService) AttachChannel(ctx context.Context, orgID, postID, channelID string, scheduledAt *time.Time) (*models.ScheduledPost, error) {
	channel, err := s.channels.GetByID(ctx, orgID, channelID)
	if err != nil {
		return nil, fmt.Errorf("error getting channel: %w", err)
	}
	if channel == nil {
		return nil, notFound("channel", channelID)
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	now := time.Now().UTC()
	sp := &models.ScheduledPost{
		ID:             id,
		OrganizationID: orgID,
		PostID:         postID,
		ChannelID:      channel.ID,
		Channel:        channel,
		Status:         models.ScheduledPostStatusDraft,
		ScheduledAt:    scheduledAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := s.draftPost(ctx, tx, orgID, postID); err != nil {
			return err
		}

		err := s.scheduled.Create(ctx, tx, sp)
		if errors.Is(err, repository.ErrAlreadyExists) {
			return fmt.Errorf("channel %s is already attached to post %s: %w", channelID, postID, ErrStateConflict)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return sp, nil
}

func (s *postService) DetachChannel(ctx context.Context, orgID, postID, channelID string) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := s.draftPost(ctx, tx, orgID, postID); err != nil {
			return err
		}

		removed, err := s.scheduled.Remove(ctx, tx, postID, channelID)
		if err != nil {
			return fmt.Errorf("error detaching channel: %w", err)
		}
		if !removed {
			return notFound("channel", channelID)
		}
		return nil
	})
}

func (s *postService) Validate(ctx context.Context, orgID, postID string) (*validation.Result, error) {
	post, err := s.Get(ctx, orgID, postID)
	if err != nil {
		return nil, err
	}
	return s.validator.Validate(post), nil
}

func (s *postService) ListChannels(ctx context.Context, orgID string) ([]*models.Channel, error) {
	channels, err := s.channels.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("error listing channels: %w", err)
	}
	return channels, nil
}

// RegisterMedia stores an uploaded file and returns the media entry to
// reference it from a payload. The type is sniffed from the content, the
// client's declared type is ignored.
func (s *postService) RegisterMedia(ctx context.Context, orgID string, data []byte) (*models.Media, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file: %w", ErrInvalidInput)
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == types.Unknown {
		return nil, fmt.Errorf("unsupported file type: %w", ErrInvalidInput)
	}
	ext, ok := allowedMedia[kind.MIME.Value]
	if !ok {
		return nil, fmt.Errorf("file type %s is not allowed: %w", kind.MIME.Value, ErrInvalidInput)
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	key := fmt.Sprintf("%s/%s.%s", orgID, id, ext)
	if err := s.resources.Upload(ctx, key, data, kind.MIME.Value); err != nil {
		return nil, fmt.Errorf("error uploading file: %w", err)
	}

	return &models.Media{ID: id, Location: key, MimeType: kind.MIME.Value}, nil
}

// draftPost locks the post and fails unless it is still a draft.
func (s *postService) draftPost(ctx context.Context, tx *sql.Tx, orgID, postID string) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, tx, orgID, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post: %w", err)
	}
	if post == nil {
		return nil, notFound("post", postID)
	}
	if post.Status != models.PostStatusDraft {
		return nil, fmt.Errorf("post %s is %s, return it to draft first: %w", postID, post.Status, ErrStateConflict)
	}
	return post, nil
}

func normalizedPayload(p models.Payload) models.Payload {
	if p == nil {
		p = models.RegularPayload{}
	}
	return models.NormalizeOrder(p)
}
