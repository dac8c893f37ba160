package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type xServer struct {
	t         *testing.T
	usage     string
	failTweet int

	mu      sync.Mutex
	tweets  []transfer.XTweetRequest
	uploads int
}

func (s *xServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/2/usage/tweets":
		assert.Equal(s.t, "Bearer app-token", r.Header.Get("Authorization"))
		_, _ = fmt.Fprintf(w, `{"data":{"project_usage":%q,"project_cap":"100"}}`, s.usage)
	case "/cdn/a.jpg", "/cdn/b.jpg":
		_, _ = w.Write([]byte("image-bytes"))
	case "/2/media/upload":
		require.NoError(s.t, r.ParseMultipartForm(1<<20))
		assert.Equal(s.t, "tweet_image", r.FormValue("media_category"))
		s.mu.Lock()
		s.uploads++
		id := fmt.Sprintf("m%d", s.uploads)
		s.mu.Unlock()
		writeJSON(s.t, w, map[string]any{"data": map[string]string{"id": id}})
	case "/2/tweets":
		assert.Equal(s.t, "Bearer token-1", r.Header.Get("Authorization"))
		var req transfer.XTweetRequest
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&req))
		s.mu.Lock()
		s.tweets = append(s.tweets, req)
		n := len(s.tweets)
		s.mu.Unlock()
		if n == s.failTweet {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"title":"Service Unavailable"}`))
			return
		}
		id := fmt.Sprintf("t%d", n)
		writeJSON(s.t, w, map[string]any{"data": map[string]string{"id": id, "text": req.Text}})
	case "/2/tweets/t2":
		_, _ = w.Write([]byte(`{"data":{"id":"t2","public_metrics":{"like_count":11}}}`))
	case "/2/tweets/t1":
		_, _ = w.Write([]byte(`{"data":{"id":"t1","public_metrics":{"like_count":10,"reply_count":2,"retweet_count":3,"quote_count":1,"impression_count":500}}}`))
	default:
		s.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func newXTest(t *testing.T, srv *xServer) ChannelPublisher {
	srv.t = t
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return NewXPublisher(fakeResolver{base: ts.URL + "/cdn"}, XConfig{
		BaseURL:        ts.URL,
		Poll:           fastPoll(),
		AppBearerToken: "app-token",
		Limit:          rate.Inf,
	})
}

func TestX_ThreadChainsReplies(t *testing.T) {
	srv := &xServer{usage: "10"}
	pub := newXTest(t, srv)

	res, err := pub.PostThread(context.Background(), testChannel(models.PlatformX), models.ThreadPayload{
		Items: []models.ThreadItem{
			{Order: 1, Text: "first", Media: images("a.jpg")},
			{Order: 2, Text: "second"},
			{Order: 3, Text: "third"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "t1", res.ExternalReferenceID)
	assert.Equal(t, "https://x.com/i/web/status/t1", res.ExternalURL)

	require.Len(t, srv.tweets, 3)
	assert.Nil(t, srv.tweets[0].Reply)
	assert.Equal(t, []string{"m1"}, srv.tweets[0].Media.MediaIDs)
	assert.Equal(t, "t1", srv.tweets[1].Reply.InReplyToTweetID)
	assert.Equal(t, "t2", srv.tweets[2].Reply.InReplyToTweetID)
	assert.Nil(t, srv.tweets[2].Media)
}

func TestX_UsageCapStopsPublishing(t *testing.T) {
	srv := &xServer{usage: "100"}
	pub := newXTest(t, srv)

	_, err := pub.PostPost(context.Background(), testChannel(models.PlatformX), models.RegularPayload{Text: "hi"})
	require.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Empty(t, srv.tweets)
}

func TestX_PostWithImages(t *testing.T) {
	srv := &xServer{usage: "0"}
	pub := newXTest(t, srv)

	res, err := pub.PostPost(context.Background(), testChannel(models.PlatformX), models.RegularPayload{
		Text:  "two pics",
		Media: images("a.jpg", "b.jpg"),
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", res.ExternalReferenceID)
	require.Len(t, srv.tweets, 1)
	assert.Len(t, srv.tweets[0].Media.MediaIDs, 2)
}

func TestX_ReelAndStoryUnsupported(t *testing.T) {
	pub := newXTest(t, &xServer{})

	_, err := pub.PostReel(context.Background(), testChannel(models.PlatformX), models.ReelPayload{})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = pub.PostStory(context.Background(), testChannel(models.PlatformX), models.StoryPayload{})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestX_Metrics(t *testing.T) {
	pub := newXTest(t, &xServer{})

	snap, err := pub.GetMetrics(context.Background(), testChannel(models.PlatformX), "t1", &models.MetricsSnapshot{Clicks: 9, Reach: 40})
	require.NoError(t, err)

	assert.Equal(t, models.MetricsSnapshot{
		Likes:       10,
		Comments:    2,
		Shares:      4,
		Impressions: 500,
		Reach:       40,
		Clicks:      9,
	}, *snap)
}

func TestX_ThreadFailureAfterFirstTweetIsPartial(t *testing.T) {
	srv := &xServer{usage: "10", failTweet: 2}
	pub := newXTest(t, srv)

	_, err := pub.PostThread(context.Background(), testChannel(models.PlatformX), models.ThreadPayload{
		Items: []models.ThreadItem{
			{Order: 1, Text: "first"},
			{Order: 2, Text: "second"},
			{Order: 3, Text: "third"},
		},
	})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrPartiallyPublished)
	assert.Contains(t, err.Error(), "item 2 of 3 (thread t1)")
	assert.Contains(t, err.Error(), "Service Unavailable")
	assert.Len(t, srv.tweets, 2)
}

func TestX_ThreadFailureOnFirstTweetIsNotPartial(t *testing.T) {
	srv := &xServer{usage: "10", failTweet: 1}
	pub := newXTest(t, srv)

	_, err := pub.PostThread(context.Background(), testChannel(models.PlatformX), models.ThreadPayload{
		Items: []models.ThreadItem{{Order: 1, Text: "first"}, {Order: 2, Text: "second"}},
	})
	require.Error(t, err)

	assert.NotErrorIs(t, err, ErrPartiallyPublished)
	assert.Len(t, srv.tweets, 1)
}

func TestX_MetricsKeepOldValuesForOmittedCounts(t *testing.T) {
	pub := newXTest(t, &xServer{})

	old := &models.MetricsSnapshot{Likes: 8, Comments: 3, Shares: 6, Impressions: 450, Clicks: 9}
	snap, err := pub.GetMetrics(context.Background(), testChannel(models.PlatformX), "t2", old)
	require.NoError(t, err)

	assert.Equal(t, models.MetricsSnapshot{Likes: 11, Comments: 3, Shares: 6, Impressions: 450, Clicks: 9}, *snap)
}
