package models

import "time"

// MetricsSnapshot is one reading of the engagement counters of a published
// post on its platform.
type MetricsSnapshot struct {
	Likes       int64 `json:"likes"`
	Comments    int64 `json:"comments"`
	Shares      int64 `json:"shares"`
	Impressions int64 `json:"impressions"`
	Reach       int64 `json:"reach"`
	Clicks      int64 `json:"clicks"`
}

func (m MetricsSnapshot) Add(o MetricsSnapshot) MetricsSnapshot {
	return MetricsSnapshot{
		Likes:       m.Likes + o.Likes,
		Comments:    m.Comments + o.Comments,
		Shares:      m.Shares + o.Shares,
		Impressions: m.Impressions + o.Impressions,
		Reach:       m.Reach + o.Reach,
		Clicks:      m.Clicks + o.Clicks,
	}
}

type PostMetrics struct {
	ID              string    `db:"id" json:"id"`
	OrganizationID  string    `db:"organization_id" json:"organization_id"`
	ScheduledPostID string    `db:"scheduled_post_id" json:"scheduled_post_id"`
	PostID          string    `db:"post_id" json:"post_id"`
	Platform        Platform  `db:"platform" json:"platform"`
	MetricsSnapshot `json:"metrics"`
	CollectedAt     time.Time `db:"collected_at" json:"collected_at"`
}

// DailyMetrics is the sum of all metrics rows collected on one UTC day.
type DailyMetrics struct {
	Day             time.Time `json:"day"`
	MetricsSnapshot `json:"metrics"`
}
