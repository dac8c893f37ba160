package transfer

// YouTubeVideoListResponse is the videos.list body for part=statistics.
// Counts are decimal strings and absent when the owner hides them.
type YouTubeVideoListResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics *struct {
			ViewCount    *string `json:"viewCount"`
			LikeCount    *string `json:"likeCount"`
			CommentCount *string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}
