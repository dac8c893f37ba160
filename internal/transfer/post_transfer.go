package transfer

import (
	"encoding/json"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/validation"
)

type PostRequest struct {
	Name        string          `json:"name"`
	ScheduledAt *time.Time      `json:"scheduled_at"`
	Type        models.PostType `json:"type"`
	Payload     json.RawMessage `json:"payload"`
}

// DecodePayload builds the typed payload. A missing type means a regular
// post and a missing payload an empty one.
func (r PostRequest) DecodePayload() (models.Payload, error) {
	t := r.Type
	if t == "" {
		t = models.PostTypePost
	}
	data := r.Payload
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}
	return models.UnmarshalPayload(t, data)
}

type AttachChannelRequest struct {
	ChannelID   string     `json:"channel_id"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

type PostResponse struct {
	*models.Post
	Type    models.PostType `json:"type"`
	Payload models.Payload  `json:"payload"`
}

func NewPostResponse(p *models.Post) PostResponse {
	return PostResponse{Post: p, Type: p.Type(), Payload: p.Payload}
}

type ChannelStatus struct {
	ChannelID           string                     `json:"channel_id"`
	Platform            models.Platform            `json:"platform"`
	Status              models.ScheduledPostStatus `json:"status"`
	ScheduledAt         *time.Time                 `json:"scheduled_at"`
	PublishedAt         *time.Time                 `json:"published_at,omitempty"`
	FailureReason       string                     `json:"failure_reason,omitempty"`
	ExternalReferenceID string                     `json:"external_reference_id,omitempty"`
	ExternalURL         string                     `json:"external_url,omitempty"`
}

type PostStatusResponse struct {
	PostID   string            `json:"post_id"`
	Status   models.PostStatus `json:"status"`
	Channels []ChannelStatus   `json:"channels"`
}

type ValidationResponse struct {
	Valid  bool               `json:"valid"`
	Errors *validation.Result `json:"errors,omitempty"`
}
