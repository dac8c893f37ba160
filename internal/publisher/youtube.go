package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const (
	youtubeWatchURL    = "https://youtu.be"
	youtubeMaxTitle    = 100
	youtubeCategoryID  = "22"
	youtubeShortsTag   = "#Shorts"
	youtubeDefaultName = "Untitled"

	youtubeDefaultEndpoint = "https://youtube.googleapis.com/"
)

type YouTubeConfig struct {
	// Endpoint overrides the API root, e.g. for tests.
	Endpoint   string
	HTTPClient *http.Client
}

type youtubePublisher struct {
	api      *apiClient
	cfg      YouTubeConfig
	resolver ResourceResolver
}

func NewYouTubePublisher(resolver ResourceResolver, cfg YouTubeConfig) ChannelPublisher {
	return &youtubePublisher{
		api:      newAPIClient(models.PlatformYouTube, cfg.HTTPClient),
		cfg:      cfg,
		resolver: resolver,
	}
}

func (yt *youtubePublisher) PostPost(ctx context.Context, ch *models.Channel, content models.RegularPayload) (*PublishResult, error) {
	if len(content.Media) != 1 || !content.Media[0].IsVideo() {
		return nil, failure(models.PlatformYouTube, "upload video", fmt.Errorf("%w: exactly one video", ErrMediaRequired))
	}
	return yt.upload(ctx, ch, content.Text, content.Media[0], false)
}

func (yt *youtubePublisher) PostReel(ctx context.Context, ch *models.Channel, content models.ReelPayload) (*PublishResult, error) {
	if content.Resource == nil || !content.Resource.IsVideo() {
		return nil, failure(models.PlatformYouTube, "upload video", fmt.Errorf("%w: exactly one video", ErrMediaRequired))
	}
	return yt.upload(ctx, ch, content.Description, *content.Resource, true)
}

func (yt *youtubePublisher) PostStory(_ context.Context, _ *models.Channel, _ models.StoryPayload) (*PublishResult, error) {
	return nil, unsupported(models.PlatformYouTube, "publish story")
}

func (yt *youtubePublisher) PostThread(_ context.Context, _ *models.Channel, _ models.ThreadPayload) (*PublishResult, error) {
	return nil, unsupported(models.PlatformYouTube, "publish thread")
}

// GetMetrics reads statistics over plain HTTP: the SDK decodes hidden counts
// as zero, which would overwrite the previous values.
func (yt *youtubePublisher) GetMetrics(ctx context.Context, ch *models.Channel, externalID string, old *models.MetricsSnapshot) (*models.MetricsSnapshot, error) {
	q := url.Values{}
	q.Set("part", "statistics")
	q.Set("id", externalID)

	var resp transfer.YouTubeVideoListResponse
	if err := yt.api.get(ctx, "fetch statistics", yt.endpoint()+"youtube/v3/videos?"+q.Encode(), bearer(ch.AccessToken), &resp); err != nil {
		return nil, err
	}

	snap := snapshotOrZero(old)
	if len(resp.Items) == 0 || resp.Items[0].Statistics == nil {
		return &snap, nil
	}
	stats := resp.Items[0].Statistics
	snap.Likes = fallback(parseCount(stats.LikeCount), snap.Likes)
	snap.Comments = fallback(parseCount(stats.CommentCount), snap.Comments)
	snap.Impressions = fallback(parseCount(stats.ViewCount), snap.Impressions)
	return &snap, nil
}

func (yt *youtubePublisher) endpoint() string {
	if yt.cfg.Endpoint == "" {
		return youtubeDefaultEndpoint
	}
	return strings.TrimSuffix(yt.cfg.Endpoint, "/") + "/"
}

func (yt *youtubePublisher) service(ctx context.Context, ch *models.Channel) (*youtube.Service, error) {
	if yt.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, yt.cfg.HTTPClient)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: ch.AccessToken}))

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if yt.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(yt.cfg.Endpoint))
	}
	return youtube.NewService(ctx, opts...)
}

// upload streams the stored video straight from its signed URL into the
// YouTube upload without buffering it on disk.
func (yt *youtubePublisher) upload(ctx context.Context, ch *models.Channel, text string, video models.Media, short bool) (*PublishResult, error) {
	svc, err := yt.service(ctx, ch)
	if err != nil {
		return nil, failure(models.PlatformYouTube, "upload video", err)
	}

	signed, err := yt.resolver.GetSignedURL(ctx, video.Location)
	if err != nil {
		return nil, failure(models.PlatformYouTube, "resolve media url", err)
	}

	body, _, err := yt.api.download(ctx, signed)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	title, description := youtubeTitle(text), text
	if short {
		description = strings.TrimSpace(description + "\n\n" + youtubeShortsTag)
	}

	v := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       title,
			Description: description,
			CategoryId:  youtubeCategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	res, err := svc.Videos.Insert([]string{"snippet", "status"}, v).Media(body).Context(ctx).Do()
	if err != nil {
		return nil, youtubeError("upload video", err)
	}

	return &PublishResult{
		ExternalReferenceID: res.Id,
		ExternalURL:         fmt.Sprintf("%s/%s", youtubeWatchURL, res.Id),
	}, nil
}

// youtubeTitle uses the first line of the text, cut to YouTube's title limit.
func youtubeTitle(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return youtubeDefaultName
	}
	runes := []rune(line)
	if len(runes) > youtubeMaxTitle {
		runes = runes[:youtubeMaxTitle]
	}
	return string(runes)
}

func youtubeError(step string, err error) *ChannelPublishError {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &ChannelPublishError{
			Platform:   models.PlatformYouTube,
			Step:       step,
			StatusCode: gerr.Code,
			Body:       gerr.Body,
			Err:        err,
		}
	}
	return failure(models.PlatformYouTube, step, err)
}
