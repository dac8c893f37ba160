package models

import (
	"time"
)

type PostType string

const (
	PostTypePost   PostType = "post"
	PostTypeReel   PostType = "reel"
	PostTypeThread PostType = "thread"
	PostTypeStory  PostType = "story"
)

type PostStatus string

const (
	PostStatusDraft              PostStatus = "draft"
	PostStatusScheduled          PostStatus = "scheduled"
	PostStatusPublished          PostStatus = "published"
	PostStatusPartiallyPublished PostStatus = "partially_published"
	PostStatusFailed             PostStatus = "failed"
)

type Post struct {
	ID             string           `db:"id" json:"id"`
	OrganizationID string           `db:"organization_id" json:"organization_id"`
	Name           string           `db:"name" json:"name"`
	Status         PostStatus       `db:"status" json:"status"`
	ScheduledAt    *time.Time       `db:"scheduled_at" json:"scheduled_at"`
	Payload        Payload          `db:"payload" json:"-"`
	Channels       []*ScheduledPost `db:"-" json:"channels"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// Type reports the discriminator of the post's payload. A post without a
// payload is treated as a regular post.
func (p *Post) Type() PostType {
	if p.Payload == nil {
		return PostTypePost
	}
	return p.Payload.Type()
}

// Platforms returns the distinct platforms of the attached channels in
// attachment order.
func (p *Post) Platforms() []Platform {
	seen := make(map[Platform]struct{}, len(p.Channels))
	var platforms []Platform
	for _, sp := range p.Channels {
		if sp == nil || sp.Channel == nil {
			continue
		}
		if _, ok := seen[sp.Channel.Platform]; ok {
			continue
		}
		seen[sp.Channel.Platform] = struct{}{}
		platforms = append(platforms, sp.Channel.Platform)
	}
	return platforms
}

// DeriveStatus computes a post's aggregate status from the statuses of its
// per-channel records. Channels still waiting keep the post scheduled.
func DeriveStatus(statuses []ScheduledPostStatus) PostStatus {
	if len(statuses) == 0 {
		return PostStatusDraft
	}

	var published, failed, draft int
	for _, s := range statuses {
		switch s {
		case ScheduledPostStatusPublished:
			published++
		case ScheduledPostStatusFailed:
			failed++
		case ScheduledPostStatusDraft:
			draft++
		}
	}

	switch {
	case draft == len(statuses):
		return PostStatusDraft
	case published+failed < len(statuses):
		return PostStatusScheduled
	case published == len(statuses):
		return PostStatusPublished
	case failed == len(statuses):
		return PostStatusFailed
	default:
		return PostStatusPartiallyPublished
	}
}
