package transfer

type XUsageResponse struct {
	Data struct {
		ProjectUsage string `json:"project_usage"`
		ProjectCap   string `json:"project_cap"`
	} `json:"data"`
}

type XMediaResponse struct {
	Data struct {
		ID             string          `json:"id"`
		MediaKey       string          `json:"media_key"`
		ProcessingInfo *XProcessingInfo `json:"processing_info"`
	} `json:"data"`
}

type XProcessingInfo struct {
	State          string `json:"state"`
	CheckAfterSecs int    `json:"check_after_secs"`
	Error          *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type XTweetRequest struct {
	Text  string         `json:"text"`
	Media *XTweetMedia   `json:"media,omitempty"`
	Reply *XTweetReplyTo `json:"reply,omitempty"`
}

type XTweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type XTweetReplyTo struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type XTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

type XTweetMetrics struct {
	Data struct {
		ID            string `json:"id"`
		PublicMetrics struct {
			LikeCount       *int64 `json:"like_count"`
			ReplyCount      *int64 `json:"reply_count"`
			RetweetCount    *int64 `json:"retweet_count"`
			QuoteCount      *int64 `json:"quote_count"`
			ImpressionCount *int64 `json:"impression_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}
