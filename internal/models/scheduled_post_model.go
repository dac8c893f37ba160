package models

import (
	"encoding/json"
	"time"
)

type ScheduledPostStatus string

const (
	ScheduledPostStatusDraft     ScheduledPostStatus = "draft"
	ScheduledPostStatusScheduled ScheduledPostStatus = "scheduled"
	ScheduledPostStatusPublished ScheduledPostStatus = "published"
	ScheduledPostStatusFailed    ScheduledPostStatus = "failed"
)

// ScheduledPost is the per-channel publish record of a post. Its id doubles
// as the job id of the dispatch job.
type ScheduledPost struct {
	ID                  string              `db:"id" json:"id"`
	OrganizationID      string              `db:"organization_id" json:"organization_id"`
	PostID              string              `db:"post_id" json:"post_id"`
	ChannelID           string              `db:"channel_id" json:"channel_id"`
	Channel             *Channel            `db:"-" json:"channel,omitempty"`
	Status              ScheduledPostStatus `db:"status" json:"status"`
	ScheduledAt         *time.Time          `db:"scheduled_at" json:"scheduled_at"`
	StartedAt           *time.Time          `db:"started_at" json:"started_at"`
	PublishedAt         *time.Time          `db:"published_at" json:"published_at"`
	FailedAt            *time.Time          `db:"failed_at" json:"failed_at"`
	FailureReason       string              `db:"failure_reason" json:"failure_reason,omitempty"`
	ExternalReferenceID string              `db:"external_reference_id" json:"external_reference_id,omitempty"`
	ExternalURL         string              `db:"external_url" json:"external_url,omitempty"`
	Attempts            int                 `db:"attempts" json:"attempts"`
	ParentPostID        *string             `db:"parent_post_id" json:"parent_post_id,omitempty"`
	ParentPostSettings  json.RawMessage     `db:"parent_post_settings" json:"parent_post_settings,omitempty"`
	RepostSettings      json.RawMessage     `db:"repost_settings" json:"repost_settings,omitempty"`
	CreatedAt           time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time           `db:"updated_at" json:"updated_at"`
}

func (sp *ScheduledPost) JobID() string {
	return sp.ID
}
