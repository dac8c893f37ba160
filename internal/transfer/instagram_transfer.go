package transfer

type InstagramContainerRequest struct {
	ImageURL       string   `json:"image_url,omitempty"`
	VideoURL       string   `json:"video_url,omitempty"`
	MediaType      string   `json:"media_type,omitempty"`
	Caption        string   `json:"caption,omitempty"`
	IsCarouselItem bool     `json:"is_carousel_item,omitempty"`
	Children       []string `json:"children,omitempty"`
	AccessToken    string   `json:"access_token"`
}

type InstagramPublishRequest struct {
	CreationID  string `json:"creation_id"`
	AccessToken string `json:"access_token"`
}

type InstagramIDResponse struct {
	ID string `json:"id"`
}

type InstagramContainerStatus struct {
	ID         string `json:"id"`
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
}

type InstagramPermalink struct {
	ID        string `json:"id"`
	Permalink string `json:"permalink"`
}

type InstagramPublishingLimit struct {
	Data []struct {
		QuotaUsage int `json:"quota_usage"`
		Config     struct {
			QuotaTotal    int `json:"quota_total"`
			QuotaDuration int `json:"quota_duration"`
		} `json:"config"`
	} `json:"data"`
}

type InstagramInsights struct {
	Data []InsightMetric `json:"data"`
}

// InsightMetric is shared by the Instagram and Facebook insights endpoints.
type InsightMetric struct {
	Name   string `json:"name"`
	Values []struct {
		Value int64 `json:"value"`
	} `json:"values"`
	TotalValue *struct {
		Value int64 `json:"value"`
	} `json:"total_value"`
}

func (m InsightMetric) Value() (int64, bool) {
	if m.TotalValue != nil {
		return m.TotalValue.Value, true
	}
	if len(m.Values) > 0 {
		return m.Values[len(m.Values)-1].Value, true
	}
	return 0, false
}
