package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type instagramServer struct {
	t          *testing.T
	quotaUsage int
	failChild  string

	mu        sync.Mutex
	children  []string
	captions  []string
	published atomic.Int32
	created   atomic.Int32
}

func (s *instagramServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/v21.0/acct-1/content_publishing_limit":
		var limit transfer.InstagramPublishingLimit
		require.NoError(s.t, json.Unmarshal([]byte(`{"data":[{"quota_usage":0,"config":{"quota_total":50,"quota_duration":86400}}]}`), &limit))
		limit.Data[0].QuotaUsage = s.quotaUsage
		writeJSON(s.t, w, limit)

	case r.URL.Path == "/v21.0/acct-1/media":
		var req transfer.InstagramContainerRequest
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&req))
		s.created.Add(1)
		if req.IsCarouselItem {
			name := req.ImageURL[strings.LastIndex(req.ImageURL, "/")+1:]
			if name == s.failChild {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"message":"Invalid image"}}`))
				return
			}
			// Earlier items answer last.
			if name == "a.jpg" {
				time.Sleep(20 * time.Millisecond)
			}
			writeJSON(s.t, w, transfer.InstagramIDResponse{ID: "child-" + name})
			return
		}
		s.mu.Lock()
		s.children = req.Children
		s.captions = append(s.captions, req.Caption)
		s.mu.Unlock()
		writeJSON(s.t, w, transfer.InstagramIDResponse{ID: "container-1"})

	case r.URL.Path == "/v21.0/acct-1/media_publish":
		var req transfer.InstagramPublishRequest
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(s.t, "container-1", req.CreationID)
		s.published.Add(1)
		writeJSON(s.t, w, transfer.InstagramIDResponse{ID: "media-9"})

	case r.URL.Path == "/v21.0/container-1":
		writeJSON(s.t, w, transfer.InstagramContainerStatus{ID: "container-1", StatusCode: "FINISHED"})

	case r.URL.Path == "/v21.0/media-9":
		writeJSON(s.t, w, transfer.InstagramPermalink{ID: "media-9", Permalink: "https://www.instagram.com/p/abc/"})

	default:
		s.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func newInstagramTest(t *testing.T, srv *instagramServer) ChannelPublisher {
	srv.t = t
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return NewInstagramPublisher(fakeResolver{base: "https://cdn.test"}, InstagramConfig{BaseURL: ts.URL, Poll: fastPoll()})
}

func images(names ...string) []models.Media {
	media := make([]models.Media, len(names))
	for i, n := range names {
		media[i] = models.Media{ID: n, Order: i + 1, Location: n, MimeType: "image/jpeg"}
	}
	return media
}

func TestInstagram_CarouselKeepsDeclaredOrder(t *testing.T) {
	srv := &instagramServer{}
	pub := newInstagramTest(t, srv)

	res, err := pub.PostPost(context.Background(), testChannel(models.PlatformInstagram), models.RegularPayload{
		Text:  "hello",
		Media: images("a.jpg", "b.jpg", "c.jpg"),
	})
	require.NoError(t, err)

	assert.Equal(t, "media-9", res.ExternalReferenceID)
	assert.Equal(t, "https://www.instagram.com/p/abc/", res.ExternalURL)
	assert.Equal(t, []string{"child-a.jpg", "child-b.jpg", "child-c.jpg"}, srv.children)
	assert.Equal(t, []string{"hello"}, srv.captions)
	assert.EqualValues(t, 1, srv.published.Load())
}

func TestInstagram_QuotaExceeded(t *testing.T) {
	srv := &instagramServer{quotaUsage: 50}
	pub := newInstagramTest(t, srv)

	_, err := pub.PostPost(context.Background(), testChannel(models.PlatformInstagram), models.RegularPayload{
		Text:  "hello",
		Media: images("a.jpg"),
	})
	require.ErrorIs(t, err, ErrQuotaExceeded)
	assert.EqualValues(t, 0, srv.created.Load())
}

func TestInstagram_FailedChildAbortsPublish(t *testing.T) {
	srv := &instagramServer{failChild: "b.jpg"}
	pub := newInstagramTest(t, srv)

	_, err := pub.PostPost(context.Background(), testChannel(models.PlatformInstagram), models.RegularPayload{
		Text:  "hello",
		Media: images("a.jpg", "b.jpg"),
	})
	require.Error(t, err)

	var cpe *ChannelPublishError
	require.ErrorAs(t, err, &cpe)
	assert.Equal(t, http.StatusBadRequest, cpe.StatusCode)
	assert.Contains(t, cpe.Body, "Invalid image")
	assert.EqualValues(t, 0, srv.published.Load())
}

func TestInstagram_RequiresMedia(t *testing.T) {
	pub := newInstagramTest(t, &instagramServer{})

	_, err := pub.PostPost(context.Background(), testChannel(models.PlatformInstagram), models.RegularPayload{Text: "text only"})
	assert.ErrorIs(t, err, ErrMediaRequired)
}

func TestInstagram_ThreadIsFlattened(t *testing.T) {
	srv := &instagramServer{}
	pub := newInstagramTest(t, srv)

	_, err := pub.PostThread(context.Background(), testChannel(models.PlatformInstagram), models.ThreadPayload{
		Items: []models.ThreadItem{
			{Order: 1, Text: "one", Media: images("a.jpg")},
			{Order: 2, Text: "two", Media: images("b.jpg")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one\n\ntwo"}, srv.captions)
	assert.Equal(t, []string{"child-a.jpg", "child-b.jpg"}, srv.children)
}

func TestInstagram_MetricsKeepOldValuesForOmittedInsights(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/media-1/insights", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"name":"likes","values":[{"value":15}]},{"name":"reach","values":[]}]}`))
	}))
	defer ts.Close()

	old := &models.MetricsSnapshot{Likes: 10, Comments: 4, Shares: 1, Impressions: 200, Reach: 90}
	pub := NewInstagramPublisher(fakeResolver{base: "https://cdn.test"}, InstagramConfig{BaseURL: ts.URL})
	snap, err := pub.GetMetrics(context.Background(), testChannel(models.PlatformInstagram), "media-1", old)
	require.NoError(t, err)

	assert.Equal(t, models.MetricsSnapshot{Likes: 15, Comments: 4, Shares: 1, Impressions: 200, Reach: 90}, *snap)
}
