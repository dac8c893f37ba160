package transfer

type FacebookIDResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

type FacebookUploadSession struct {
	VideoID   string `json:"video_id"`
	UploadURL string `json:"upload_url"`
}

type FacebookFinishResponse struct {
	Success bool   `json:"success"`
	PostID  string `json:"post_id"`
}

type FacebookAttachedMedia struct {
	MediaFbid string `json:"media_fbid"`
}

// FacebookSummary is a connection fetched with summary(true). Reactions and
// comments are left out of the response when the token lacks permission.
type FacebookSummary struct {
	Summary *struct {
		TotalCount *int64 `json:"total_count"`
	} `json:"summary"`
}

func (s *FacebookSummary) Total() *int64 {
	if s == nil || s.Summary == nil {
		return nil
	}
	return s.Summary.TotalCount
}

type FacebookPostStats struct {
	Reactions *FacebookSummary `json:"reactions"`
	Comments  *FacebookSummary `json:"comments"`
	Shares    *struct {
		Count int64 `json:"count"`
	} `json:"shares"`
}

type FacebookInsights struct {
	Data []InsightMetric `json:"data"`
}
