package models

import (
	"time"
)

type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
	PlatformX         Platform = "x"
)

// Platforms lists every supported platform.
func Platforms() []Platform {
	return []Platform{PlatformFacebook, PlatformInstagram, PlatformTikTok, PlatformYouTube, PlatformX}
}

func IsValidPlatform(p string) bool {
	for _, valid := range Platforms() {
		if string(valid) == p {
			return true
		}
	}
	return false
}

type Channel struct {
	ID                string    `db:"id" json:"id"`
	OrganizationID    string    `db:"organization_id" json:"organization_id"`
	Platform          Platform  `db:"platform" json:"platform"`
	Name              string    `db:"name" json:"name"`
	PlatformAccountID string    `db:"platform_account_id" json:"platform_account_id"`
	AccessToken       string    `db:"access_token" json:"-"`
	TokenExpiresAt    time.Time `db:"token_expires_at" json:"token_expires_at"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}
