package validation

import (
	"fmt"
	"unicode/utf8"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
)

const MaxNameLength = 100

// Error is a single failed check. Path is a dotted locator of the offending
// field, e.g. "items.2.media.0.resource".
type Error struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Result groups failures that do not depend on the target platform and
// failures per platform. A platform key with an empty slice means that
// platform passed.
type Result struct {
	Common    []Error                     `json:"common"`
	Platforms map[models.Platform][]Error `json:"platforms"`
}

func (r *Result) HasErrors() bool {
	if r == nil {
		return false
	}
	if len(r.Common) > 0 {
		return true
	}
	for _, errs := range r.Platforms {
		if len(errs) > 0 {
			return true
		}
	}
	return false
}

type Validator struct {
	settings platform.Provider
}

func New(settings platform.Provider) *Validator {
	if settings == nil {
		settings = platform.NewProvider()
	}
	return &Validator{settings: settings}
}

// Validate checks a post and its attached channels against the constraints
// of every distinct target platform. All checks run; nil means the post is
// publishable.
func (v *Validator) Validate(post *models.Post) *Result {
	payload := post.Payload
	if payload == nil {
		payload = models.RegularPayload{}
	}

	platforms := post.Platforms()
	result := &Result{
		Common:    v.common(post, payload, platforms),
		Platforms: make(map[models.Platform][]Error, len(platforms)),
	}

	for _, p := range platforms {
		result.Platforms[p] = v.forPlatform(payload, v.settings.GetSettings(p))
	}

	if !result.HasErrors() {
		return nil
	}
	if result.Common == nil {
		result.Common = []Error{}
	}
	for p, errs := range result.Platforms {
		if errs == nil {
			result.Platforms[p] = []Error{}
		}
	}
	return result
}

func (v *Validator) common(post *models.Post, payload models.Payload, platforms []models.Platform) []Error {
	var errs []Error

	if utf8.RuneCountInString(post.Name) > MaxNameLength {
		errs = append(errs, Error{Path: "name", Message: fmt.Sprintf("name must be at most %d characters", MaxNameLength)})
	}

	if len(platforms) == 0 {
		errs = append(errs, Error{Path: "channels", Message: "at least one channel is required"})
	}

	switch p := payload.(type) {
	case models.ReelPayload:
		if p.Resource == nil {
			errs = append(errs, Error{Path: "resource", Message: "resource is required for reels"})
		}
	case models.StoryPayload:
		if p.Resource == nil {
			errs = append(errs, Error{Path: "resource", Message: "resource is required for stories"})
		}
	}

	return errs
}

func (v *Validator) forPlatform(payload models.Payload, s platform.Settings) []Error {
	var errs []Error

	if !s.Supports(payload.Type()) {
		errs = append(errs, Error{Path: "type", Message: fmt.Sprintf("%s posts are not supported", payload.Type())})
	}

	switch p := payload.(type) {
	case models.RegularPayload:
		errs = append(errs, checkText("text", p.Text, s)...)
		errs = append(errs, checkMediaCount("media", len(p.Media), s)...)
		errs = append(errs, checkMimeTypes("media", p.Media, s)...)
		errs = append(errs, checkCombination("media", p.Media, s)...)

	case models.ReelPayload:
		errs = append(errs, checkText("description", p.Description, s)...)
		errs = append(errs, checkResource(p.Resource, s)...)

	case models.StoryPayload:
		errs = append(errs, checkResource(p.Resource, s)...)

	case models.ThreadPayload:
		errs = append(errs, checkThread(p, s)...)
	}

	return errs
}

func checkThread(p models.ThreadPayload, s platform.Settings) []Error {
	var errs []Error

	n := len(p.Items)
	if n < 1 {
		errs = append(errs, Error{Path: "items", Message: "thread must contain at least one item"})
	}
	if n > s.ThreadSettings.Limit {
		errs = append(errs, Error{Path: "items", Message: fmt.Sprintf("thread has %d items, at most %d allowed", n, s.ThreadSettings.Limit)})
	}

	for i, item := range p.Items {
		path := fmt.Sprintf("items.%d.media", i)
		errs = append(errs, checkMimeTypes(path, item.Media, s)...)
		errs = append(errs, checkCombination(path, item.Media, s)...)
	}

	switch s.ThreadSettings.HandlingStrategy {
	case platform.ThreadSeparate:
		for i, item := range p.Items {
			errs = append(errs, checkText(fmt.Sprintf("items.%d.text", i), item.Text, s)...)
			errs = append(errs, checkMediaCount(fmt.Sprintf("items.%d.media", i), len(item.Media), s)...)
		}

	case platform.ThreadConcat:
		var length, count int
		var media []models.Media
		for _, item := range p.Items {
			length += utf8.RuneCountInString(item.Text)
			count += len(item.Media)
			media = append(media, item.Media...)
		}
		if length > s.MaxPostLength {
			errs = append(errs, Error{Path: "items", Message: fmt.Sprintf("combined text is %d characters, at most %d allowed", length, s.MaxPostLength)})
		}
		errs = append(errs, checkMediaCount("items", count, s)...)
		errs = append(errs, checkCombination("items", media, s)...)
	}

	return errs
}

func checkText(path, text string, s platform.Settings) []Error {
	if n := utf8.RuneCountInString(text); n > s.MaxPostLength {
		return []Error{{Path: path, Message: fmt.Sprintf("text is %d characters, at most %d allowed", n, s.MaxPostLength)}}
	}
	return nil
}

func checkMediaCount(path string, n int, s platform.Settings) []Error {
	if n < s.MinMediaPerPost {
		return []Error{{Path: path, Message: fmt.Sprintf("at least %d media item(s) required", s.MinMediaPerPost)}}
	}
	if n > s.MaxMediaPerPost {
		return []Error{{Path: path, Message: fmt.Sprintf("at most %d media item(s) allowed", s.MaxMediaPerPost)}}
	}
	return nil
}

func checkMimeTypes(path string, media []models.Media, s platform.Settings) []Error {
	var errs []Error
	for i, m := range media {
		if !s.AllowsMimeType(m.MimeType) {
			errs = append(errs, Error{
				Path:    fmt.Sprintf("%s.%d.resource", path, i),
				Message: fmt.Sprintf("media type %q is not allowed", m.MimeType),
			})
		}
	}
	return errs
}

func checkResource(resource *models.Media, s platform.Settings) []Error {
	if resource == nil {
		return nil
	}
	if !s.AllowsMimeType(resource.MimeType) {
		return []Error{{Path: "resource", Message: fmt.Sprintf("media type %q is not allowed", resource.MimeType)}}
	}
	return nil
}

func checkCombination(path string, media []models.Media, s platform.Settings) []Error {
	if s.MediaCombineType != platform.CombineImagesOnly || len(media) <= 1 {
		return nil
	}
	for _, m := range media {
		if !m.IsImage() {
			return []Error{{Path: path, Message: "only a single media item is allowed when a video is attached"}}
		}
	}
	return nil
}
