package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const (
	facebookBaseURL      = "https://graph.facebook.com"
	facebookGraphVersion = "v21.0"
	facebookWebURL       = "https://www.facebook.com"
)

type FacebookConfig struct {
	BaseURL    string
	HTTPClient *http.Client
}

type facebookPublisher struct {
	api      *apiClient
	baseURL  string
	resolver ResourceResolver
}

func NewFacebookPublisher(resolver ResourceResolver, cfg FacebookConfig) ChannelPublisher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = facebookBaseURL
	}
	return &facebookPublisher{
		api:      newAPIClient(models.PlatformFacebook, cfg.HTTPClient),
		baseURL:  cfg.BaseURL + "/" + facebookGraphVersion,
		resolver: resolver,
	}
}

func (fb *facebookPublisher) PostPost(ctx context.Context, ch *models.Channel, content models.RegularPayload) (*PublishResult, error) {
	urls, err := signedURLs(ctx, models.PlatformFacebook, fb.resolver, content.Media)
	if err != nil {
		return nil, err
	}

	if anyVideo(content.Media) {
		if len(content.Media) > 1 {
			return nil, failure(models.PlatformFacebook, "publish video", fmt.Errorf("a video post carries exactly one media item"))
		}
		return fb.publishVideo(ctx, ch, content.Text, urls[0])
	}

	photoIDs, err := uploadAll(ctx, content.Media, func(ctx context.Context, i int, _ models.Media) (string, error) {
		return fb.uploadPhoto(ctx, ch, urls[i])
	})
	if err != nil {
		return nil, err
	}

	form := fb.form(ch)
	form.Set("message", content.Text)
	for i, id := range photoIDs {
		attached, err := json.Marshal(transfer.FacebookAttachedMedia{MediaFbid: id})
		if err != nil {
			return nil, failure(models.PlatformFacebook, "publish feed post", err)
		}
		form.Set(fmt.Sprintf("attached_media[%d]", i), string(attached))
	}

	var post transfer.FacebookIDResponse
	if err := fb.api.postForm(ctx, "publish feed post", fb.endpoint(ch.PlatformAccountID, "feed"), form, nil, &post); err != nil {
		return nil, err
	}
	return &PublishResult{
		ExternalReferenceID: post.ID,
		ExternalURL:         fmt.Sprintf("%s/%s", facebookWebURL, post.ID),
	}, nil
}

func (fb *facebookPublisher) PostReel(ctx context.Context, ch *models.Channel, content models.ReelPayload) (*PublishResult, error) {
	if content.Resource == nil {
		return nil, failure(models.PlatformFacebook, "start reel upload", ErrMediaRequired)
	}

	signed, err := fb.resolver.GetSignedURL(ctx, content.Resource.Location)
	if err != nil {
		return nil, failure(models.PlatformFacebook, "resolve media url", err)
	}

	videoID, err := fb.hostedVideoUpload(ctx, ch, "video_reels", signed)
	if err != nil {
		return nil, err
	}

	form := fb.form(ch)
	form.Set("upload_phase", "finish")
	form.Set("video_id", videoID)
	form.Set("video_state", "PUBLISHED")
	form.Set("description", content.Description)

	var finish transfer.FacebookFinishResponse
	if err := fb.api.postForm(ctx, "finish reel upload", fb.endpoint(ch.PlatformAccountID, "video_reels"), form, nil, &finish); err != nil {
		return nil, err
	}
	if !finish.Success {
		return nil, failure(models.PlatformFacebook, "finish reel upload", ErrProcessing)
	}

	return &PublishResult{
		ExternalReferenceID: videoID,
		ExternalURL:         fmt.Sprintf("%s/reel/%s", facebookWebURL, videoID),
	}, nil
}

func (fb *facebookPublisher) PostStory(ctx context.Context, ch *models.Channel, content models.StoryPayload) (*PublishResult, error) {
	if content.Resource == nil {
		return nil, failure(models.PlatformFacebook, "publish story", ErrMediaRequired)
	}

	signed, err := fb.resolver.GetSignedURL(ctx, content.Resource.Location)
	if err != nil {
		return nil, failure(models.PlatformFacebook, "resolve media url", err)
	}

	var story transfer.FacebookFinishResponse
	if content.Resource.IsVideo() {
		videoID, err := fb.hostedVideoUpload(ctx, ch, "video_stories", signed)
		if err != nil {
			return nil, err
		}
		form := fb.form(ch)
		form.Set("upload_phase", "finish")
		form.Set("video_id", videoID)
		if err := fb.api.postForm(ctx, "finish story upload", fb.endpoint(ch.PlatformAccountID, "video_stories"), form, nil, &story); err != nil {
			return nil, err
		}
	} else {
		photoID, err := fb.uploadPhoto(ctx, ch, signed)
		if err != nil {
			return nil, err
		}
		form := fb.form(ch)
		form.Set("photo_id", photoID)
		if err := fb.api.postForm(ctx, "publish story", fb.endpoint(ch.PlatformAccountID, "photo_stories"), form, nil, &story); err != nil {
			return nil, err
		}
	}

	if story.PostID == "" {
		return nil, failure(models.PlatformFacebook, "publish story", fmt.Errorf("no story id returned"))
	}
	return &PublishResult{
		ExternalReferenceID: story.PostID,
		ExternalURL:         fmt.Sprintf("%s/%s", facebookWebURL, story.PostID),
	}, nil
}

func (fb *facebookPublisher) PostThread(ctx context.Context, ch *models.Channel, content models.ThreadPayload) (*PublishResult, error) {
	return fb.PostPost(ctx, ch, content.Flatten())
}

func (fb *facebookPublisher) GetMetrics(ctx context.Context, ch *models.Channel, externalID string, old *models.MetricsSnapshot) (*models.MetricsSnapshot, error) {
	q := url.Values{}
	q.Set("fields", "reactions.summary(true).limit(0),comments.summary(true).limit(0),shares")
	q.Set("access_token", ch.AccessToken)

	var stats transfer.FacebookPostStats
	if err := fb.api.get(ctx, "fetch post stats", fmt.Sprintf("%s/%s?%s", fb.baseURL, externalID, q.Encode()), nil, &stats); err != nil {
		return nil, err
	}

	snap := snapshotOrZero(old)
	snap.Likes = fallback(stats.Reactions.Total(), snap.Likes)
	snap.Comments = fallback(stats.Comments.Total(), snap.Comments)
	if stats.Shares != nil {
		snap.Shares = stats.Shares.Count
	}

	q = url.Values{}
	q.Set("metric", "post_impressions,post_impressions_unique,post_clicks")
	q.Set("access_token", ch.AccessToken)
	var insights transfer.FacebookInsights
	if err := fb.api.get(ctx, "fetch insights", fmt.Sprintf("%s/%s/insights?%s", fb.baseURL, externalID, q.Encode()), nil, &insights); err != nil {
		slog.Warn("facebook insights unavailable", "post_id", externalID, "error", err)
		return &snap, nil
	}
	for _, m := range insights.Data {
		v, ok := m.Value()
		if !ok {
			continue
		}
		switch m.Name {
		case "post_impressions":
			snap.Impressions = v
		case "post_impressions_unique":
			snap.Reach = v
		case "post_clicks":
			snap.Clicks = v
		}
	}
	return &snap, nil
}

func (fb *facebookPublisher) form(ch *models.Channel) url.Values {
	form := url.Values{}
	form.Set("access_token", ch.AccessToken)
	return form
}

func (fb *facebookPublisher) endpoint(node, edge string) string {
	return fmt.Sprintf("%s/%s/%s", fb.baseURL, node, edge)
}

func (fb *facebookPublisher) uploadPhoto(ctx context.Context, ch *models.Channel, signed string) (string, error) {
	form := fb.form(ch)
	form.Set("url", signed)
	form.Set("published", "false")

	var photo transfer.FacebookIDResponse
	if err := fb.api.postForm(ctx, "upload photo", fb.endpoint(ch.PlatformAccountID, "photos"), form, nil, &photo); err != nil {
		return "", err
	}
	if photo.ID == "" {
		return "", failure(models.PlatformFacebook, "upload photo", fmt.Errorf("no photo id returned"))
	}
	return photo.ID, nil
}

func (fb *facebookPublisher) publishVideo(ctx context.Context, ch *models.Channel, description, signed string) (*PublishResult, error) {
	form := fb.form(ch)
	form.Set("file_url", signed)
	form.Set("description", description)

	var video transfer.FacebookIDResponse
	if err := fb.api.postForm(ctx, "publish video", fb.endpoint(ch.PlatformAccountID, "videos"), form, nil, &video); err != nil {
		return nil, err
	}
	return &PublishResult{
		ExternalReferenceID: video.ID,
		ExternalURL:         fmt.Sprintf("%s/%s", facebookWebURL, video.ID),
	}, nil
}

// hostedVideoUpload opens an upload session on edge and hands Facebook the
// signed URL to pull the file from. It returns the session's video id.
func (fb *facebookPublisher) hostedVideoUpload(ctx context.Context, ch *models.Channel, edge, signed string) (string, error) {
	form := fb.form(ch)
	form.Set("upload_phase", "start")

	var session transfer.FacebookUploadSession
	if err := fb.api.postForm(ctx, "start video upload", fb.endpoint(ch.PlatformAccountID, edge), form, nil, &session); err != nil {
		return "", err
	}
	if session.VideoID == "" || session.UploadURL == "" {
		return "", failure(models.PlatformFacebook, "start video upload", fmt.Errorf("incomplete upload session"))
	}

	headers := map[string]string{
		"Authorization": "OAuth " + ch.AccessToken,
		"file_url":      signed,
	}
	if err := fb.api.postForm(ctx, "upload video", session.UploadURL, url.Values{}, headers, nil); err != nil {
		return "", err
	}
	return session.VideoID, nil
}
