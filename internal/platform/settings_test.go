package platform

import (
	"testing"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestGetSettings_EveryPlatformRegistered(t *testing.T) {
	for _, p := range models.Platforms() {
		t.Run(string(p), func(t *testing.T) {
			var s Settings
			assert.NotPanics(t, func() { s = GetSettings(p) })
			assert.Positive(t, s.MaxPostLength)
			assert.GreaterOrEqual(t, s.MaxMediaPerPost, s.MinMediaPerPost)
			assert.NotEmpty(t, s.MediaAllowedMimeTypes)
			assert.Positive(t, s.ThreadSettings.Limit)
			assert.Contains(t, []ThreadStrategy{ThreadSeparate, ThreadConcat}, s.ThreadSettings.HandlingStrategy)
			assert.True(t, s.Supports(models.PostTypePost))
		})
	}
}

func TestGetSettings_UnknownPlatformPanics(t *testing.T) {
	assert.Panics(t, func() { GetSettings(models.Platform("myspace")) })
}

func TestSettings_AllowsMimeType(t *testing.T) {
	yt := GetSettings(models.PlatformYouTube)
	assert.True(t, yt.AllowsMimeType("video/mp4"))
	assert.False(t, yt.AllowsMimeType("image/png"))
}
