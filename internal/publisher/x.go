package publisher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
	"golang.org/x/time/rate"
)

const (
	xBaseURL    = "https://api.x.com"
	xAPIVersion = "2"
	xWebURL     = "https://x.com/i/web/status"

	xChunkSize = 4 << 20
)

type XConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Poll       PollConfig
	// AppBearerToken authorizes the usage endpoint. The quota check is
	// skipped when it is empty.
	AppBearerToken string
	// Limit paces every request made by the adapter. Zero means one request
	// per second with a burst of five.
	Limit rate.Limit
	Burst int
}

type xPublisher struct {
	api      *apiClient
	baseURL  string
	resolver ResourceResolver
	poll     PollConfig
	appToken string
}

func NewXPublisher(resolver ResourceResolver, cfg XConfig) ChannelPublisher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = xBaseURL
	}
	if cfg.Poll == (PollConfig{}) {
		cfg.Poll = DefaultPollConfig()
	}
	if cfg.Limit == 0 {
		cfg.Limit = rate.Every(time.Second)
	}
	if cfg.Burst == 0 {
		cfg.Burst = 5
	}

	api := newAPIClient(models.PlatformX, cfg.HTTPClient)
	api.wait = rate.NewLimiter(cfg.Limit, cfg.Burst).Wait

	return &xPublisher{
		api:      api,
		baseURL:  cfg.BaseURL + "/" + xAPIVersion,
		resolver: resolver,
		poll:     cfg.Poll,
		appToken: cfg.AppBearerToken,
	}
}

func (x *xPublisher) PostPost(ctx context.Context, ch *models.Channel, content models.RegularPayload) (*PublishResult, error) {
	if err := x.checkUsage(ctx); err != nil {
		return nil, err
	}

	id, err := x.tweet(ctx, ch, content.Text, content.Media, "")
	if err != nil {
		return nil, err
	}
	return &PublishResult{ExternalReferenceID: id, ExternalURL: xWebURL + "/" + id}, nil
}

func (x *xPublisher) PostReel(_ context.Context, _ *models.Channel, _ models.ReelPayload) (*PublishResult, error) {
	return nil, unsupported(models.PlatformX, "publish reel")
}

func (x *xPublisher) PostStory(_ context.Context, _ *models.Channel, _ models.StoryPayload) (*PublishResult, error) {
	return nil, unsupported(models.PlatformX, "publish story")
}

// PostThread posts the items in order, each replying to the previous one.
// The first tweet identifies the thread.
func (x *xPublisher) PostThread(ctx context.Context, ch *models.Channel, content models.ThreadPayload) (*PublishResult, error) {
	if len(content.Items) == 0 {
		return nil, failure(models.PlatformX, "publish thread", fmt.Errorf("thread has no items"))
	}

	if err := x.checkUsage(ctx); err != nil {
		return nil, err
	}

	var first, previous string
	for i, item := range content.Items {
		id, err := x.tweet(ctx, ch, item.Text, item.Media, previous)
		if err != nil {
			if first == "" {
				return nil, err
			}
			cpe := &ChannelPublishError{
				Platform: models.PlatformX,
				Step:     "publish thread",
				Err:      fmt.Errorf("%w: item %d of %d (thread %s): %w", ErrPartiallyPublished, i+1, len(content.Items), first, err),
			}
			return nil, cpe
		}
		if first == "" {
			first = id
		}
		previous = id
	}

	return &PublishResult{ExternalReferenceID: first, ExternalURL: xWebURL + "/" + first}, nil
}

func (x *xPublisher) GetMetrics(ctx context.Context, ch *models.Channel, externalID string, old *models.MetricsSnapshot) (*models.MetricsSnapshot, error) {
	var resp transfer.XTweetMetrics
	endpoint := fmt.Sprintf("%s/tweets/%s?tweet.fields=public_metrics", x.baseURL, url.PathEscape(externalID))
	if err := x.api.get(ctx, "fetch tweet metrics", endpoint, bearer(ch.AccessToken), &resp); err != nil {
		return nil, err
	}

	m := resp.Data.PublicMetrics
	snap := snapshotOrZero(old)
	snap.Likes = fallback(m.LikeCount, snap.Likes)
	snap.Comments = fallback(m.ReplyCount, snap.Comments)
	snap.Impressions = fallback(m.ImpressionCount, snap.Impressions)
	if m.RetweetCount != nil || m.QuoteCount != nil {
		snap.Shares = fallback(m.RetweetCount, 0) + fallback(m.QuoteCount, 0)
	}
	return &snap, nil
}

// checkUsage fails with ErrQuotaExceeded once the project has used its
// monthly post cap.
func (x *xPublisher) checkUsage(ctx context.Context) error {
	if x.appToken == "" {
		return nil
	}

	var usage transfer.XUsageResponse
	if err := x.api.get(ctx, "check usage", x.baseURL+"/usage/tweets", bearer(x.appToken), &usage); err != nil {
		return err
	}

	used, errUsed := strconv.ParseInt(usage.Data.ProjectUsage, 10, 64)
	capacity, errCap := strconv.ParseInt(usage.Data.ProjectCap, 10, 64)
	if errUsed != nil || errCap != nil || capacity == 0 {
		return nil
	}
	if used >= capacity {
		return &ChannelPublishError{
			Platform: models.PlatformX,
			Step:     "check usage",
			Err:      fmt.Errorf("%w: %d of %d posts used", ErrQuotaExceeded, used, capacity),
		}
	}
	return nil
}

func (x *xPublisher) tweet(ctx context.Context, ch *models.Channel, text string, media []models.Media, replyTo string) (string, error) {
	req := transfer.XTweetRequest{Text: text}

	if len(media) > 0 {
		ids, err := uploadAll(ctx, media, func(ctx context.Context, _ int, m models.Media) (string, error) {
			return x.uploadMedia(ctx, ch, m)
		})
		if err != nil {
			return "", err
		}
		req.Media = &transfer.XTweetMedia{MediaIDs: ids}
	}
	if replyTo != "" {
		req.Reply = &transfer.XTweetReplyTo{InReplyToTweetID: replyTo}
	}

	var resp transfer.XTweetResponse
	if err := x.api.postJSON(ctx, "create tweet", x.baseURL+"/tweets", req, bearer(ch.AccessToken), &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", failure(models.PlatformX, "create tweet", fmt.Errorf("no tweet id returned"))
	}
	return resp.Data.ID, nil
}

func (x *xPublisher) uploadMedia(ctx context.Context, ch *models.Channel, m models.Media) (string, error) {
	signed, err := x.resolver.GetSignedURL(ctx, m.Location)
	if err != nil {
		return "", failure(models.PlatformX, "resolve media url", err)
	}

	body, size, err := x.api.download(ctx, signed)
	if err != nil {
		return "", err
	}
	defer body.Close()

	if !m.IsVideo() {
		var resp transfer.XMediaResponse
		fields := map[string]string{"media_category": "tweet_image"}
		if err := x.api.postMultipart(ctx, "upload image", x.baseURL+"/media/upload", fields, "media", body, bearer(ch.AccessToken), &resp); err != nil {
			return "", err
		}
		return resp.Data.ID, nil
	}

	return x.uploadVideo(ctx, ch, m, body, size)
}

// uploadVideo runs the chunked INIT, APPEND, FINALIZE sequence and waits for
// server-side processing when X asks for it.
func (x *xPublisher) uploadVideo(ctx context.Context, ch *models.Channel, m models.Media, body io.Reader, size int64) (string, error) {
	if size < 0 {
		data, err := io.ReadAll(body)
		if err != nil {
			return "", failure(models.PlatformX, "download media", err)
		}
		size = int64(len(data))
		body = bytes.NewReader(data)
	}

	endpoint := x.baseURL + "/media/upload"
	headers := bearer(ch.AccessToken)

	var initResp transfer.XMediaResponse
	err := x.api.postMultipart(ctx, "init video upload", endpoint, map[string]string{
		"command":        "INIT",
		"total_bytes":    strconv.FormatInt(size, 10),
		"media_type":     m.MimeType,
		"media_category": "tweet_video",
	}, "", nil, headers, &initResp)
	if err != nil {
		return "", err
	}
	mediaID := initResp.Data.ID
	if mediaID == "" {
		return "", failure(models.PlatformX, "init video upload", fmt.Errorf("no media id returned"))
	}

	chunk := make([]byte, xChunkSize)
	for segment := 0; ; segment++ {
		n, readErr := io.ReadFull(body, chunk)
		if n > 0 {
			err := x.api.postMultipart(ctx, "append video chunk", endpoint, map[string]string{
				"command":       "APPEND",
				"media_id":      mediaID,
				"segment_index": strconv.Itoa(segment),
			}, "media", bytes.NewReader(chunk[:n]), headers, nil)
			if err != nil {
				return "", err
			}
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return "", failure(models.PlatformX, "append video chunk", readErr)
		}
	}

	var final transfer.XMediaResponse
	err = x.api.postMultipart(ctx, "finalize video upload", endpoint, map[string]string{
		"command":  "FINALIZE",
		"media_id": mediaID,
	}, "", nil, headers, &final)
	if err != nil {
		return "", err
	}

	if final.Data.ProcessingInfo == nil {
		return mediaID, nil
	}

	q := url.Values{}
	q.Set("command", "STATUS")
	q.Set("media_id", mediaID)
	statusURL := endpoint + "?" + q.Encode()

	err = poll(ctx, x.poll, func() (bool, error) {
		var status transfer.XMediaResponse
		if err := x.api.get(ctx, "check media status", statusURL, headers, &status); err != nil {
			return false, err
		}
		info := status.Data.ProcessingInfo
		if info == nil {
			return true, nil
		}
		switch info.State {
		case "succeeded":
			return true, nil
		case "failed":
			var body string
			if info.Error != nil {
				body = info.Error.Message
			}
			return false, &ChannelPublishError{Platform: models.PlatformX, Step: "check media status", Body: body, Err: ErrProcessing}
		default:
			return false, nil
		}
	})
	if err != nil {
		return "", failure(models.PlatformX, "check media status", err)
	}
	return mediaID, nil
}
