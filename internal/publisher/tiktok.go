package publisher

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const (
	tiktokBaseURL    = "https://open.tiktokapis.com"
	tiktokAPIVersion = "v2"
	tiktokWebURL     = "https://www.tiktok.com"

	tiktokDefaultPrivacy = "PUBLIC_TO_EVERYONE"
)

type TikTokConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Poll       PollConfig
}

type tiktokPublisher struct {
	api      *apiClient
	baseURL  string
	resolver ResourceResolver
	poll     PollConfig
}

func NewTikTokPublisher(resolver ResourceResolver, cfg TikTokConfig) ChannelPublisher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = tiktokBaseURL
	}
	if cfg.Poll == (PollConfig{}) {
		cfg.Poll = DefaultPollConfig()
	}
	return &tiktokPublisher{
		api:      newAPIClient(models.PlatformTikTok, cfg.HTTPClient),
		baseURL:  cfg.BaseURL + "/" + tiktokAPIVersion,
		resolver: resolver,
		poll:     cfg.Poll,
	}
}

func (t *tiktokPublisher) PostPost(ctx context.Context, ch *models.Channel, content models.RegularPayload) (*PublishResult, error) {
	if len(content.Media) == 0 {
		return nil, failure(models.PlatformTikTok, "init upload", ErrMediaRequired)
	}

	if anyVideo(content.Media) {
		if len(content.Media) > 1 {
			return nil, failure(models.PlatformTikTok, "init video upload", fmt.Errorf("a video post carries exactly one media item"))
		}
		return t.postVideo(ctx, ch, content.Text, content.Media[0])
	}

	creator, err := t.queryCreatorInfo(ctx, ch)
	if err != nil {
		return nil, err
	}

	urls, err := signedURLs(ctx, models.PlatformTikTok, t.resolver, content.Media)
	if err != nil {
		return nil, err
	}

	req := transfer.PhotoUploadRequest{
		PostInfo: transfer.PhotoPostInfo{
			Description:    content.Text,
			PrivacyLevel:   privacyLevel(creator),
			DisableComment: creator.CommentDisabled,
			AutoAddMusic:   true,
		},
		SourceInfo: transfer.PhotoSourceInfo{
			Source:          "PULL_FROM_URL",
			PhotoCoverIndex: 0,
			PhotoImages:     urls,
		},
		PostMode:  "DIRECT_POST",
		MediaType: "PHOTO",
	}

	var result transfer.TikTokUploadResponse
	if err := t.api.postJSON(ctx, "init photo upload", t.baseURL+"/post/publish/content/init/", req, bearer(ch.AccessToken), &result); err != nil {
		return nil, err
	}
	if !result.Error.OK() {
		return nil, tiktokError("init photo upload", result.Error)
	}

	return t.waitForPublish(ctx, ch, creator, result.Data.PublishID)
}

func (t *tiktokPublisher) PostReel(ctx context.Context, ch *models.Channel, content models.ReelPayload) (*PublishResult, error) {
	if content.Resource == nil {
		return nil, failure(models.PlatformTikTok, "init video upload", ErrMediaRequired)
	}
	return t.postVideo(ctx, ch, content.Description, *content.Resource)
}

func (t *tiktokPublisher) PostStory(_ context.Context, _ *models.Channel, _ models.StoryPayload) (*PublishResult, error) {
	return nil, unsupported(models.PlatformTikTok, "publish story")
}

func (t *tiktokPublisher) PostThread(_ context.Context, _ *models.Channel, _ models.ThreadPayload) (*PublishResult, error) {
	return nil, unsupported(models.PlatformTikTok, "publish thread")
}

func (t *tiktokPublisher) GetMetrics(ctx context.Context, ch *models.Channel, externalID string, old *models.MetricsSnapshot) (*models.MetricsSnapshot, error) {
	var req transfer.TiktokVideoQueryRequest
	req.Filters.VideoIDs = []string{externalID}

	var result transfer.TiktokVideoQueryResponse
	endpoint := t.baseURL + "/video/query/?fields=id,share_url,like_count,comment_count,share_count,view_count"
	if err := t.api.postJSON(ctx, "query video", endpoint, req, bearer(ch.AccessToken), &result); err != nil {
		return nil, err
	}
	if !result.Error.OK() {
		return nil, tiktokError("query video", result.Error)
	}

	snap := snapshotOrZero(old)
	for _, v := range result.Data.Videos {
		if v.ID != externalID {
			continue
		}
		snap.Likes = fallback(v.LikeCount, snap.Likes)
		snap.Comments = fallback(v.CommentCount, snap.Comments)
		snap.Shares = fallback(v.ShareCount, snap.Shares)
		snap.Impressions = fallback(v.ViewCount, snap.Impressions)
	}
	return &snap, nil
}

func (t *tiktokPublisher) postVideo(ctx context.Context, ch *models.Channel, title string, video models.Media) (*PublishResult, error) {
	creator, err := t.queryCreatorInfo(ctx, ch)
	if err != nil {
		return nil, err
	}

	signed, err := t.resolver.GetSignedURL(ctx, video.Location)
	if err != nil {
		return nil, failure(models.PlatformTikTok, "resolve media url", err)
	}

	req := transfer.VideoUploadRequest{
		PostInfo: transfer.VideoPostInfo{
			Title:                 title,
			PrivacyLevel:          privacyLevel(creator),
			DisableDuet:           creator.DuetDisabled,
			DisableComment:        creator.CommentDisabled,
			DisableStitch:         creator.StitchDisabled,
			VideoCoverTimestampMs: 1000,
		},
		SourceInfo: transfer.VideoSourceInfo{
			Source:   "PULL_FROM_URL",
			VideoURL: signed,
		},
	}

	var result transfer.TikTokUploadResponse
	if err := t.api.postJSON(ctx, "init video upload", t.baseURL+"/post/publish/video/init/", req, bearer(ch.AccessToken), &result); err != nil {
		return nil, err
	}
	if !result.Error.OK() {
		return nil, tiktokError("init video upload", result.Error)
	}

	return t.waitForPublish(ctx, ch, creator, result.Data.PublishID)
}

// queryCreatorInfo must precede every upload. It fails when the creator
// cannot post right now.
func (t *tiktokPublisher) queryCreatorInfo(ctx context.Context, ch *models.Channel) (*transfer.TiktokCreatorInfo, error) {
	var result transfer.TiktokCreatorInfoResponse
	if err := t.api.postJSON(ctx, "query creator info", t.baseURL+"/post/publish/creator_info/query/", nil, bearer(ch.AccessToken), &result); err != nil {
		return nil, err
	}
	if !result.Error.OK() {
		return nil, tiktokError("query creator info", result.Error)
	}
	if result.Data.MaxVideoPostDurationSec == 0 {
		return nil, failure(models.PlatformTikTok, "query creator info", fmt.Errorf("%w: creator cannot post at this time", ErrQuotaExceeded))
	}
	return &result.Data, nil
}

func (t *tiktokPublisher) waitForPublish(ctx context.Context, ch *models.Channel, creator *transfer.TiktokCreatorInfo, publishID string) (*PublishResult, error) {
	if publishID == "" {
		return nil, failure(models.PlatformTikTok, "init upload", fmt.Errorf("no publish id returned"))
	}

	var status transfer.TiktokStatusResponse
	err := poll(ctx, t.poll, func() (bool, error) {
		status = transfer.TiktokStatusResponse{}
		req := transfer.TiktokStatusRequest{PublishID: publishID}
		if err := t.api.postJSON(ctx, "fetch publish status", t.baseURL+"/post/publish/status/fetch/", req, bearer(ch.AccessToken), &status); err != nil {
			return false, err
		}
		if !status.Error.OK() {
			return false, tiktokError("fetch publish status", status.Error)
		}
		switch status.Data.Status {
		case "PUBLISH_COMPLETE", "SEND_TO_USER_INBOX":
			return true, nil
		case "FAILED":
			return false, &ChannelPublishError{
				Platform: models.PlatformTikTok,
				Step:     "fetch publish status",
				Body:     status.Data.FailReason,
				Err:      ErrProcessing,
			}
		default:
			return false, nil
		}
	})
	if err != nil {
		return nil, failure(models.PlatformTikTok, "fetch publish status", err)
	}

	result := &PublishResult{ExternalReferenceID: publishID}
	if ids := status.Data.PubliclyAvailablePostIDs; len(ids) > 0 {
		postID := strconv.FormatInt(ids[0], 10)
		result.ExternalReferenceID = postID
		result.ExternalURL = fmt.Sprintf("%s/@%s/video/%s", tiktokWebURL, creator.CreatorUsername, postID)
	}
	return result, nil
}

func privacyLevel(creator *transfer.TiktokCreatorInfo) string {
	if len(creator.PrivacyLevelOptions) == 0 || slices.Contains(creator.PrivacyLevelOptions, tiktokDefaultPrivacy) {
		return tiktokDefaultPrivacy
	}
	return creator.PrivacyLevelOptions[0]
}

func tiktokError(step string, e transfer.TiktokError) *ChannelPublishError {
	return &ChannelPublishError{
		Platform: models.PlatformTikTok,
		Step:     step,
		Body:     e.Message,
		Err:      fmt.Errorf("tiktok error %s (log id %s)", e.Code, e.LogID),
	}
}
