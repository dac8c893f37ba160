package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const (
	instagramBaseURL      = "https://graph.instagram.com"
	instagramGraphVersion = "v21.0"
)

type InstagramConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Poll       PollConfig
}

type instagramPublisher struct {
	api      *apiClient
	baseURL  string
	resolver ResourceResolver
	poll     PollConfig
}

func NewInstagramPublisher(resolver ResourceResolver, cfg InstagramConfig) ChannelPublisher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = instagramBaseURL
	}
	if cfg.Poll == (PollConfig{}) {
		cfg.Poll = DefaultPollConfig()
	}
	return &instagramPublisher{
		api:      newAPIClient(models.PlatformInstagram, cfg.HTTPClient),
		baseURL:  cfg.BaseURL + "/" + instagramGraphVersion,
		resolver: resolver,
		poll:     cfg.Poll,
	}
}

func (ig *instagramPublisher) PostPost(ctx context.Context, ch *models.Channel, content models.RegularPayload) (*PublishResult, error) {
	if len(content.Media) == 0 {
		return nil, failure(models.PlatformInstagram, "create container", ErrMediaRequired)
	}

	if err := ig.checkQuota(ctx, ch); err != nil {
		return nil, err
	}

	urls, err := signedURLs(ctx, models.PlatformInstagram, ig.resolver, content.Media)
	if err != nil {
		return nil, err
	}

	var containerID string
	if len(content.Media) == 1 {
		req := ig.mediaRequest(ch, content.Media[0], urls[0])
		req.Caption = content.Text
		if content.Media[0].IsVideo() {
			req.MediaType = "REELS"
		}
		containerID, err = ig.createContainer(ctx, ch, req)
	} else {
		containerID, err = ig.createCarousel(ctx, ch, content.Text, content.Media, urls)
	}
	if err != nil {
		return nil, err
	}

	return ig.publish(ctx, ch, containerID)
}

func (ig *instagramPublisher) PostReel(ctx context.Context, ch *models.Channel, content models.ReelPayload) (*PublishResult, error) {
	if content.Resource == nil {
		return nil, failure(models.PlatformInstagram, "create container", ErrMediaRequired)
	}

	if err := ig.checkQuota(ctx, ch); err != nil {
		return nil, err
	}

	signed, err := ig.resolver.GetSignedURL(ctx, content.Resource.Location)
	if err != nil {
		return nil, failure(models.PlatformInstagram, "resolve media url", err)
	}

	containerID, err := ig.createContainer(ctx, ch, transfer.InstagramContainerRequest{
		VideoURL:    signed,
		MediaType:   "REELS",
		Caption:     content.Description,
		AccessToken: ch.AccessToken,
	})
	if err != nil {
		return nil, err
	}

	return ig.publish(ctx, ch, containerID)
}

func (ig *instagramPublisher) PostStory(ctx context.Context, ch *models.Channel, content models.StoryPayload) (*PublishResult, error) {
	if content.Resource == nil {
		return nil, failure(models.PlatformInstagram, "create container", ErrMediaRequired)
	}

	if err := ig.checkQuota(ctx, ch); err != nil {
		return nil, err
	}

	signed, err := ig.resolver.GetSignedURL(ctx, content.Resource.Location)
	if err != nil {
		return nil, failure(models.PlatformInstagram, "resolve media url", err)
	}

	req := ig.mediaRequest(ch, *content.Resource, signed)
	req.MediaType = "STORIES"
	containerID, err := ig.createContainer(ctx, ch, req)
	if err != nil {
		return nil, err
	}

	return ig.publish(ctx, ch, containerID)
}

func (ig *instagramPublisher) PostThread(ctx context.Context, ch *models.Channel, content models.ThreadPayload) (*PublishResult, error) {
	return ig.PostPost(ctx, ch, content.Flatten())
}

func (ig *instagramPublisher) GetMetrics(ctx context.Context, ch *models.Channel, externalID string, old *models.MetricsSnapshot) (*models.MetricsSnapshot, error) {
	q := url.Values{}
	q.Set("metric", "likes,comments,shares,views,reach,total_interactions")
	q.Set("access_token", ch.AccessToken)

	var insights transfer.InstagramInsights
	if err := ig.api.get(ctx, "fetch insights", fmt.Sprintf("%s/%s/insights?%s", ig.baseURL, externalID, q.Encode()), nil, &insights); err != nil {
		return nil, err
	}

	snap := snapshotOrZero(old)
	for _, m := range insights.Data {
		v, ok := m.Value()
		if !ok {
			continue
		}
		switch m.Name {
		case "likes":
			snap.Likes = v
		case "comments":
			snap.Comments = v
		case "shares":
			snap.Shares = v
		case "views", "impressions":
			snap.Impressions = v
		case "reach":
			snap.Reach = v
		}
	}
	return &snap, nil
}

func (ig *instagramPublisher) mediaRequest(ch *models.Channel, m models.Media, signed string) transfer.InstagramContainerRequest {
	req := transfer.InstagramContainerRequest{AccessToken: ch.AccessToken}
	if m.IsVideo() {
		req.VideoURL = signed
		req.MediaType = "VIDEO"
	} else {
		req.ImageURL = signed
	}
	return req
}

// checkQuota fails with ErrQuotaExceeded when the account has used up its
// publishing allowance for the current window.
func (ig *instagramPublisher) checkQuota(ctx context.Context, ch *models.Channel) error {
	q := url.Values{}
	q.Set("fields", "quota_usage,config")
	q.Set("access_token", ch.AccessToken)

	var limit transfer.InstagramPublishingLimit
	endpoint := fmt.Sprintf("%s/%s/content_publishing_limit?%s", ig.baseURL, ch.PlatformAccountID, q.Encode())
	if err := ig.api.get(ctx, "check publishing limit", endpoint, nil, &limit); err != nil {
		return err
	}

	if len(limit.Data) == 0 {
		return nil
	}
	usage := limit.Data[0]
	if usage.Config.QuotaTotal > 0 && usage.QuotaUsage >= usage.Config.QuotaTotal {
		return &ChannelPublishError{
			Platform: models.PlatformInstagram,
			Step:     "check publishing limit",
			Err:      fmt.Errorf("%w: %d of %d posts used", ErrQuotaExceeded, usage.QuotaUsage, usage.Config.QuotaTotal),
		}
	}
	return nil
}

func (ig *instagramPublisher) createCarousel(ctx context.Context, ch *models.Channel, caption string, media []models.Media, urls []string) (string, error) {
	children, err := uploadAll(ctx, media, func(ctx context.Context, i int, m models.Media) (string, error) {
		req := ig.mediaRequest(ch, m, urls[i])
		req.IsCarouselItem = true
		return ig.createContainer(ctx, ch, req)
	})
	if err != nil {
		return "", err
	}

	return ig.createContainer(ctx, ch, transfer.InstagramContainerRequest{
		MediaType:   "CAROUSEL",
		Caption:     caption,
		Children:    children,
		AccessToken: ch.AccessToken,
	})
}

// createContainer creates a media container and, for video containers, waits
// until Instagram has finished processing it.
func (ig *instagramPublisher) createContainer(ctx context.Context, ch *models.Channel, req transfer.InstagramContainerRequest) (string, error) {
	var result transfer.InstagramIDResponse
	endpoint := fmt.Sprintf("%s/%s/media", ig.baseURL, ch.PlatformAccountID)
	if err := ig.api.postJSON(ctx, "create container", endpoint, req, nil, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", failure(models.PlatformInstagram, "create container", fmt.Errorf("no container id returned"))
	}

	if req.VideoURL != "" || req.MediaType == "CAROUSEL" {
		if err := ig.waitForContainer(ctx, ch, result.ID); err != nil {
			return "", err
		}
	}
	return result.ID, nil
}

func (ig *instagramPublisher) waitForContainer(ctx context.Context, ch *models.Channel, containerID string) error {
	q := url.Values{}
	q.Set("fields", "status_code,status")
	q.Set("access_token", ch.AccessToken)
	endpoint := fmt.Sprintf("%s/%s?%s", ig.baseURL, containerID, q.Encode())

	err := poll(ctx, ig.poll, func() (bool, error) {
		var status transfer.InstagramContainerStatus
		if err := ig.api.get(ctx, "check container status", endpoint, nil, &status); err != nil {
			return false, err
		}
		switch status.StatusCode {
		case "FINISHED", "PUBLISHED":
			return true, nil
		case "ERROR", "EXPIRED":
			return false, &ChannelPublishError{
				Platform: models.PlatformInstagram,
				Step:     "check container status",
				Body:     status.Status,
				Err:      ErrProcessing,
			}
		default:
			return false, nil
		}
	})
	if err != nil {
		return failure(models.PlatformInstagram, "check container status", err)
	}
	return nil
}

func (ig *instagramPublisher) publish(ctx context.Context, ch *models.Channel, containerID string) (*PublishResult, error) {
	var published transfer.InstagramIDResponse
	endpoint := fmt.Sprintf("%s/%s/media_publish", ig.baseURL, ch.PlatformAccountID)
	err := ig.api.postJSON(ctx, "publish media", endpoint, transfer.InstagramPublishRequest{
		CreationID:  containerID,
		AccessToken: ch.AccessToken,
	}, nil, &published)
	if err != nil {
		return nil, err
	}

	result := &PublishResult{ExternalReferenceID: published.ID}

	q := url.Values{}
	q.Set("fields", "permalink")
	q.Set("access_token", ch.AccessToken)
	var link transfer.InstagramPermalink
	if err := ig.api.get(ctx, "fetch permalink", fmt.Sprintf("%s/%s?%s", ig.baseURL, published.ID, q.Encode()), nil, &link); err != nil {
		// The post is live at this point; a missing permalink is not a failure.
		slog.Warn("instagram permalink lookup failed", "media_id", published.ID, "error", err)
		return result, nil
	}
	result.ExternalURL = link.Permalink
	return result, nil
}
