package publisher

import (
	"context"
	"fmt"

	"github.com/maheshrc27/postflow/internal/models"
)

type PublishResult struct {
	ExternalReferenceID string `json:"external_reference_id"`
	ExternalURL         string `json:"external_url"`
}

// ResourceResolver turns an internal storage location into a URL the
// platform can fetch. Adapters never build storage URLs themselves.
type ResourceResolver interface {
	GetSignedURL(ctx context.Context, location string) (string, error)
}

// ChannelPublisher is implemented once per platform. Channels passed in
// carry a decrypted access token.
type ChannelPublisher interface {
	PostPost(ctx context.Context, ch *models.Channel, content models.RegularPayload) (*PublishResult, error)
	PostReel(ctx context.Context, ch *models.Channel, content models.ReelPayload) (*PublishResult, error)
	PostStory(ctx context.Context, ch *models.Channel, content models.StoryPayload) (*PublishResult, error)
	PostThread(ctx context.Context, ch *models.Channel, content models.ThreadPayload) (*PublishResult, error)
	// GetMetrics returns the current counters of a published post. Fields the
	// platform does not report keep their value from old, or zero.
	GetMetrics(ctx context.Context, ch *models.Channel, externalID string, old *models.MetricsSnapshot) (*models.MetricsSnapshot, error)
}

type Registry struct {
	publishers map[models.Platform]ChannelPublisher
}

func NewRegistry(publishers map[models.Platform]ChannelPublisher) *Registry {
	return &Registry{publishers: publishers}
}

func (r *Registry) Get(p models.Platform) (ChannelPublisher, error) {
	pub, ok := r.publishers[p]
	if !ok {
		return nil, fmt.Errorf("no publisher registered for platform %q", p)
	}
	return pub, nil
}

// Publish dispatches a payload to the operation matching its post type.
func (r *Registry) Publish(ctx context.Context, ch *models.Channel, payload models.Payload) (*PublishResult, error) {
	pub, err := r.Get(ch.Platform)
	if err != nil {
		return nil, err
	}

	switch p := payload.(type) {
	case models.RegularPayload:
		return pub.PostPost(ctx, ch, p)
	case models.ReelPayload:
		return pub.PostReel(ctx, ch, p)
	case models.StoryPayload:
		return pub.PostStory(ctx, ch, p)
	case models.ThreadPayload:
		return pub.PostThread(ctx, ch, p)
	default:
		return nil, fmt.Errorf("unsupported payload %T", payload)
	}
}

func (r *Registry) GetMetrics(ctx context.Context, ch *models.Channel, externalID string, old *models.MetricsSnapshot) (*models.MetricsSnapshot, error) {
	pub, err := r.Get(ch.Platform)
	if err != nil {
		return nil, err
	}
	return pub.GetMetrics(ctx, ch, externalID, old)
}
