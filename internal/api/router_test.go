package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/validation"
	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

type stubPosts struct {
	service.PostService
	created service.PostInput
	orgID   string
	post    *models.Post
	err     error
}

func (s *stubPosts) Create(_ context.Context, orgID string, in service.PostInput) (*models.Post, error) {
	s.orgID, s.created = orgID, in
	return &models.Post{ID: "post-1", OrganizationID: orgID, Name: in.Name, Payload: in.Payload, Status: models.PostStatusDraft}, nil
}

func (s *stubPosts) Get(_ context.Context, orgID, postID string) (*models.Post, error) {
	s.orgID = orgID
	return s.post, s.err
}

type stubPublisher struct {
	service.PublishService
	err error
}

func (s *stubPublisher) Publish(context.Context, string, string) (*models.Post, error) {
	return nil, s.err
}

type stubMetrics struct {
	service.MetricsService
	query service.MetricsQuery
}

func (s *stubMetrics) Aggregate(_ context.Context, _ string, q service.MetricsQuery) (*service.MetricsReport, error) {
	s.query = q
	return &service.MetricsReport{History: []models.DailyMetrics{}}, nil
}

type testServer struct {
	app     *fiber.App
	posts   *stubPosts
	pub     *stubPublisher
	metrics *stubMetrics
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.Config{SecretKey: secret}
	token, err := utils.GenerateToken(secret, "org-1", time.Hour)
	require.NoError(t, err)

	s := &testServer{
		app:     fiber.New(),
		posts:   &stubPosts{},
		pub:     &stubPublisher{},
		metrics: &stubMetrics{},
		token:   token,
	}
	Register(s.app, middleware.NewAuthMiddleware(cfg).AuthMiddleware(), Handlers{
		Post:    handlers.NewPostHandler(s.posts, s.pub),
		Channel: handlers.NewChannelHandler(s.posts),
		Media:   handlers.NewMediaHandler(s.posts),
		Metrics: handlers.NewMetricsHandler(s.metrics),
	})
	return s
}

func (s *testServer) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func TestRequiresBearerToken(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/posts/post-1", nil)
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	s.token = "not-a-token"
	resp, _ = s.do(t, http.MethodGet, "/api/posts/post-1", "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestCreatePostDecodesTypedPayload(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodPost, "/api/posts",
		`{"name":"launch","type":"thread","payload":{"items":[{"order":1,"text":"first"}]}}`)

	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "org-1", s.posts.orgID)
	thread, ok := s.posts.created.Payload.(models.ThreadPayload)
	require.True(t, ok)
	assert.Equal(t, "first", thread.Items[0].Text)
	assert.Equal(t, "thread", body["type"])
}

func TestCreatePostRejectsUnknownType(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodPost, "/api/posts", `{"type":"carousel","payload":{}}`)

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("post x: %w", service.ErrNotFound), fiber.StatusNotFound},
		{"conflict", fmt.Errorf("return it to draft first: %w", service.ErrStateConflict), fiber.StatusConflict},
		{"invalid", service.ErrInvalidInput, fiber.StatusBadRequest},
		{"validation", &service.ValidationFailedError{Result: &validation.Result{
			Platforms: map[models.Platform][]validation.Error{models.PlatformX: {{Path: "text", Message: "too long"}}},
		}}, fiber.StatusUnprocessableEntity},
		{"unexpected", fmt.Errorf("connection reset"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.pub.err = tt.err

			resp, body := s.do(t, http.MethodPost, "/api/posts/post-1/publish", "")

			assert.Equal(t, tt.want, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestValidationErrorBodyCarriesPaths(t *testing.T) {
	s := newTestServer(t)
	s.pub.err = &service.ValidationFailedError{Result: &validation.Result{
		Common:    []validation.Error{},
		Platforms: map[models.Platform][]validation.Error{models.PlatformX: {{Path: "text", Message: "too long"}}},
	}}

	_, body := s.do(t, http.MethodPost, "/api/posts/post-1/publish", "")

	v := body["validation"].(map[string]any)
	x := v["platforms"].(map[string]any)["x"].([]any)
	assert.Equal(t, "text", x[0].(map[string]any)["path"])
}

func TestPostStatusDerivesAggregate(t *testing.T) {
	s := newTestServer(t)
	s.posts.post = &models.Post{ID: "post-1", Status: models.PostStatusScheduled, Channels: []*models.ScheduledPost{
		{ChannelID: "ch-1", Status: models.ScheduledPostStatusPublished, Channel: &models.Channel{Platform: models.PlatformX}},
		{ChannelID: "ch-2", Status: models.ScheduledPostStatusFailed, Channel: &models.Channel{Platform: models.PlatformInstagram}},
	}}

	resp, body := s.do(t, http.MethodGet, "/api/posts/post-1/status", "")

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, string(models.PostStatusPartiallyPublished), body["status"])
	assert.Len(t, body["channels"], 2)
}

func TestGetMetricsParsesRange(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodGet, "/api/metrics?from=2025-03-01&to=2025-03-07&platform=x&post_id=post-1", "")

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), s.metrics.query.From)
	assert.Equal(t, time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC), s.metrics.query.To)
	assert.Equal(t, models.PlatformX, s.metrics.query.Platform)
	assert.Equal(t, "post-1", s.metrics.query.PostID)

	resp, _ = s.do(t, http.MethodGet, "/api/metrics?from=yesterday&to=2025-03-07", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/api/metrics?from=2025-03-01&to=2025-03-07&platform=myspace", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
