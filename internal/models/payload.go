package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Payload is the type-specific content of a post. The set of implementations
// is closed: RegularPayload, ReelPayload, StoryPayload and ThreadPayload.
type Payload interface {
	Type() PostType
	sealed()
}

type Media struct {
	ID       string `json:"id"`
	Order    int    `json:"order"`
	Location string `json:"location"`
	MimeType string `json:"mime_type"`
}

func (m Media) IsVideo() bool {
	return strings.HasPrefix(m.MimeType, "video/")
}

func (m Media) IsImage() bool {
	return strings.HasPrefix(m.MimeType, "image/")
}

type RegularPayload struct {
	Text  string  `json:"text"`
	Media []Media `json:"media"`
}

type ReelPayload struct {
	Description string `json:"description"`
	Resource    *Media `json:"resource"`
}

type StoryPayload struct {
	Resource *Media `json:"resource"`
}

type ThreadItem struct {
	Order int     `json:"order"`
	Text  string  `json:"text"`
	Media []Media `json:"media"`
}

type ThreadPayload struct {
	Items []ThreadItem `json:"items"`
}

func (RegularPayload) Type() PostType { return PostTypePost }
func (ReelPayload) Type() PostType    { return PostTypeReel }
func (StoryPayload) Type() PostType   { return PostTypeStory }
func (ThreadPayload) Type() PostType  { return PostTypeThread }

func (RegularPayload) sealed() {}
func (ReelPayload) sealed()    {}
func (StoryPayload) sealed()   {}
func (ThreadPayload) sealed()  {}

// Flatten merges a thread into a single regular post: item texts joined by a
// blank line, media concatenated in item order.
func (t ThreadPayload) Flatten() RegularPayload {
	var texts []string
	var media []Media
	for _, item := range t.Items {
		if strings.TrimSpace(item.Text) != "" {
			texts = append(texts, item.Text)
		}
		media = append(media, item.Media...)
	}
	return RegularPayload{Text: strings.Join(texts, "\n\n"), Media: media}
}

// NormalizeOrder returns a copy of p with media and thread items stably
// sorted by their requested order and renumbered 1..N.
func NormalizeOrder(p Payload) Payload {
	switch v := p.(type) {
	case RegularPayload:
		v.Media = normalizeMedia(v.Media)
		return v
	case ThreadPayload:
		items := make([]ThreadItem, len(v.Items))
		copy(items, v.Items)
		sort.SliceStable(items, func(i, j int) bool { return items[i].Order < items[j].Order })
		for i := range items {
			items[i].Order = i + 1
			items[i].Media = normalizeMedia(items[i].Media)
		}
		v.Items = items
		return v
	case ReelPayload:
		if v.Resource != nil {
			r := *v.Resource
			r.Order = 1
			v.Resource = &r
		}
		return v
	case StoryPayload:
		if v.Resource != nil {
			r := *v.Resource
			r.Order = 1
			v.Resource = &r
		}
		return v
	}
	return p
}

func normalizeMedia(media []Media) []Media {
	if media == nil {
		return nil
	}
	out := make([]Media, len(media))
	copy(out, media)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	for i := range out {
		out[i].Order = i + 1
	}
	return out
}

func MarshalPayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("payload is nil")
	}
	return json.Marshal(p)
}

func UnmarshalPayload(t PostType, data []byte) (Payload, error) {
	switch t {
	case PostTypePost:
		var p RegularPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case PostTypeReel:
		var p ReelPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case PostTypeStory:
		var p StoryPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case PostTypeThread:
		var p ThreadPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown post type %q", t)
}
