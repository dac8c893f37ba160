package platform

import (
	"github.com/maheshrc27/postflow/internal/models"
)

type MediaCombineType string

const (
	// CombineImagesOnly forbids more than one media item when any of them is
	// a video.
	CombineImagesOnly MediaCombineType = "images-only"
	CombineMixed      MediaCombineType = "mixed"
)

type ThreadStrategy string

const (
	ThreadSeparate ThreadStrategy = "separate"
	ThreadConcat   ThreadStrategy = "concat"
)

type ThreadSettings struct {
	Limit            int
	HandlingStrategy ThreadStrategy
}

type Settings struct {
	MaxPostLength         int
	MinMediaPerPost       int
	MaxMediaPerPost       int
	MediaAllowedMimeTypes []string
	MediaCombineType      MediaCombineType
	ThreadSettings        ThreadSettings
	SupportedTypes        []models.PostType
}

func (s Settings) AllowsMimeType(mime string) bool {
	for _, allowed := range s.MediaAllowedMimeTypes {
		if allowed == mime {
			return true
		}
	}
	return false
}

func (s Settings) Supports(t models.PostType) bool {
	for _, supported := range s.SupportedTypes {
		if supported == t {
			return true
		}
	}
	return false
}

var (
	baseImages = []string{"image/jpeg", "image/png"}
	allTypes   = []models.PostType{models.PostTypePost, models.PostTypeReel, models.PostTypeStory, models.PostTypeThread}
)

var registry = map[models.Platform]Settings{
	models.PlatformFacebook: {
		MaxPostLength:         63206,
		MinMediaPerPost:       0,
		MaxMediaPerPost:       10,
		MediaAllowedMimeTypes: append(append([]string{}, baseImages...), "image/gif", "image/webp", "video/mp4"),
		MediaCombineType:      CombineImagesOnly,
		ThreadSettings:        ThreadSettings{Limit: 10, HandlingStrategy: ThreadConcat},
		SupportedTypes:        allTypes,
	},
	models.PlatformInstagram: {
		MaxPostLength:         2200,
		MinMediaPerPost:       1,
		MaxMediaPerPost:       10,
		MediaAllowedMimeTypes: append(append([]string{}, baseImages...), "video/mp4", "video/quicktime"),
		MediaCombineType:      CombineMixed,
		ThreadSettings:        ThreadSettings{Limit: 10, HandlingStrategy: ThreadConcat},
		SupportedTypes:        allTypes,
	},
	models.PlatformTikTok: {
		MaxPostLength:         2200,
		MinMediaPerPost:       1,
		MaxMediaPerPost:       35,
		MediaAllowedMimeTypes: append(append([]string{}, baseImages...), "video/mp4", "video/quicktime"),
		MediaCombineType:      CombineImagesOnly,
		ThreadSettings:        ThreadSettings{Limit: 1, HandlingStrategy: ThreadConcat},
		SupportedTypes:        []models.PostType{models.PostTypePost, models.PostTypeReel},
	},
	models.PlatformYouTube: {
		MaxPostLength:         5000,
		MinMediaPerPost:       1,
		MaxMediaPerPost:       1,
		MediaAllowedMimeTypes: []string{"video/mp4", "video/quicktime"},
		MediaCombineType:      CombineImagesOnly,
		ThreadSettings:        ThreadSettings{Limit: 1, HandlingStrategy: ThreadConcat},
		SupportedTypes:        []models.PostType{models.PostTypePost, models.PostTypeReel},
	},
	models.PlatformX: {
		MaxPostLength:         280,
		MinMediaPerPost:       0,
		MaxMediaPerPost:       4,
		MediaAllowedMimeTypes: append(append([]string{}, baseImages...), "image/gif", "image/webp", "video/mp4"),
		MediaCombineType:      CombineImagesOnly,
		ThreadSettings:        ThreadSettings{Limit: 25, HandlingStrategy: ThreadSeparate},
		SupportedTypes:        []models.PostType{models.PostTypePost, models.PostTypeThread},
	},
}

// GetSettings returns the static publishing constraints of a platform.
// Every platform in models.Platforms has an entry; a missing one is a
// configuration bug and panics.
func GetSettings(p models.Platform) Settings {
	s, ok := registry[p]
	if !ok {
		panic("platform: no settings registered for " + string(p))
	}
	return s
}

// Provider resolves settings per platform. The validation engine depends on
// it so tests can supply their own constraints.
type Provider interface {
	GetSettings(p models.Platform) Settings
}

type staticProvider struct{}

func NewProvider() Provider {
	return staticProvider{}
}

func (staticProvider) GetSettings(p models.Platform) Settings {
	return GetSettings(p)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(p models.Platform) Settings

func (f ProviderFunc) GetSettings(p models.Platform) Settings {
	return f(p)
}
