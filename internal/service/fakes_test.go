package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/publisher"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/validation"
	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testOrg    = "org-1"
	testSecret = "0123456789abcdef0123456789abcdef"
)

// memStore backs every fake repository. writes counts mutating calls so
// tests can assert that a rejected operation changed nothing.
type memStore struct {
	mu        sync.Mutex
	posts     map[string]*models.Post
	scheduled map[string]*models.ScheduledPost
	order     []string
	channels  map[string]*models.Channel
	metrics   []*models.PostMetrics
	daily     map[time.Time][]models.DailyMetrics
	filters   []repository.MetricsFilter
	writes    int
}

func newMemStore() *memStore {
	return &memStore{
		posts:     map[string]*models.Post{},
		scheduled: map[string]*models.ScheduledPost{},
		channels:  map[string]*models.Channel{},
		daily:     map[time.Time][]models.DailyMetrics{},
	}
}

type fakeTx struct{}

func (fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return fn(ctx, nil)
}

type fakePostRepo struct{ s *memStore }

func (r fakePostRepo) Create(_ context.Context, _ *sql.Tx, post *models.Post) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.writes++
	p := *post
	r.s.posts[p.ID] = &p
	return nil
}

func (r fakePostRepo) GetByID(_ context.Context, _ *sql.Tx, orgID, id string) (*models.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.posts[id]
	if !ok || p.OrganizationID != orgID {
		return nil, nil
	}
	out := *p
	return &out, nil
}

func (r fakePostRepo) List(_ context.Context, orgID string, filter repository.PostFilter) ([]*models.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Post
	for _, p := range r.s.posts {
		if p.OrganizationID == orgID && (filter.Status == "" || p.Status == filter.Status) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakePostRepo) Update(_ context.Context, _ *sql.Tx, post *models.Post) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.writes++
	p := *post
	p.Channels = nil
	r.s.posts[p.ID] = &p
	return nil
}

func (r fakePostRepo) UpdateStatus(_ context.Context, _ *sql.Tx, id string, status models.PostStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.writes++
	r.s.posts[id].Status = status
	return nil
}

func (r fakePostRepo) UpdateSchedule(_ context.Context, _ *sql.Tx, id string, status models.PostStatus, scheduledAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.writes++
	r.s.posts[id].Status = status
	r.s.posts[id].ScheduledAt = scheduledAt
	return nil
}

func (r fakePostRepo) Remove(_ context.Context, _ *sql.Tx, orgID, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.writes++
	p, ok := r.s.posts[id]
	if !ok || p.OrganizationID != orgID {
		return false, nil
	}
	delete(r.s.posts, id)
	for spID, sp := range r.s.scheduled {
		if sp.PostID == id {
			delete(r.s.scheduled, spID)
		}
	}
	return true, nil
}

type fakeChannelRepo struct{ s *memStore }

func (r fakeChannelRepo) GetByID(_ context.Context, orgID, id string) (*models.Channel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ch, ok := r.s.channels[id]
	if !ok || ch.OrganizationID != orgID {
		return nil, nil
	}
	return ch, nil
}

func (r fakeChannelRepo) ListByOrganization(_ context.Context, orgID string) ([]*models.Channel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Channel
	for _, ch := range r.s.channels {
		if ch.OrganizationID == orgID {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeScheduledRepo struct{ s *memStore }

func (r fakeScheduledRepo) Create(_ context.Context, _ *sql.Tx, sp *models.ScheduledPost) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.scheduled {
		if existing.PostID == sp.PostID && existing.ChannelID == sp.ChannelID {
			return repository.ErrAlreadyExists
		}
	}
	r.s.writes++
	cp := *sp
	cp.Channel = r.s.channels[sp.ChannelID]
	r.s.scheduled[sp.ID] = &cp
	r.s.order = append(r.s.order, sp.ID)
	return nil
}

func (r fakeScheduledRepo) GetByID(_ context.Context, _ *sql.Tx, id string) (*models.ScheduledPost, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sp, ok := r.s.scheduled[id]
	if !ok {
		return nil, nil
	}
	cp := *sp
	return &cp, nil
}

func (r fakeScheduledRepo) ListByPostID(_ context.Context, _ *sql.Tx, postID string) ([]*models.ScheduledPost, error) {
	return r.list(func(sp *models.ScheduledPost) bool { return sp.PostID == postID }), nil
}

func (r fakeScheduledRepo) ListByStatus(_ context.Context, status models.ScheduledPostStatus) ([]*models.ScheduledPost, error) {
	return r.list(func(sp *models.ScheduledPost) bool { return sp.Status == status }), nil
}

func (r fakeScheduledRepo) ListPublishedSince(_ context.Context, since time.Time) ([]*models.ScheduledPost, error) {
	return r.list(func(sp *models.ScheduledPost) bool {
		return sp.Status == models.ScheduledPostStatusPublished && sp.PublishedAt != nil && !sp.PublishedAt.Before(since)
	}), nil
}

func (r fakeScheduledRepo) list(keep func(*models.ScheduledPost) bool) []*models.ScheduledPost {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.ScheduledPost
	for _, id := range r.s.order {
		sp, ok := r.s.scheduled[id]
		if ok && keep(sp) {
			cp := *sp
			out = append(out, &cp)
		}
	}
	return out
}

func (r fakeScheduledRepo) mutate(id string, fn func(sp *models.ScheduledPost)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.writes++
	if sp, ok := r.s.scheduled[id]; ok {
		fn(sp)
	}
	return nil
}

func (r fakeScheduledRepo) Schedule(_ context.Context, _ *sql.Tx, id string, scheduledAt time.Time) error {
	return r.mutate(id, func(sp *models.ScheduledPost) {
		sp.Status = models.ScheduledPostStatusScheduled
		sp.ScheduledAt = &scheduledAt
		sp.FailureReason = ""
		sp.Attempts = 0
	})
}

func (r fakeScheduledRepo) MarkStarted(_ context.Context, id string, startedAt time.Time, attempts int) error {
	return r.mutate(id, func(sp *models.ScheduledPost) {
		sp.StartedAt = &startedAt
		sp.Attempts = attempts
	})
}

func (r fakeScheduledRepo) MarkPublished(_ context.Context, id string, publishedAt time.Time, externalID, externalURL string) error {
	return r.mutate(id, func(sp *models.ScheduledPost) {
		sp.Status = models.ScheduledPostStatusPublished
		sp.PublishedAt = &publishedAt
		sp.ExternalReferenceID = externalID
		sp.ExternalURL = externalURL
		sp.FailureReason = ""
	})
}

func (r fakeScheduledRepo) MarkFailed(_ context.Context, id string, failedAt time.Time, reason string) error {
	return r.mutate(id, func(sp *models.ScheduledPost) {
		sp.Status = models.ScheduledPostStatusFailed
		sp.FailedAt = &failedAt
		sp.FailureReason = reason
	})
}

func (r fakeScheduledRepo) ResetToDraft(_ context.Context, _ *sql.Tx, postID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.writes++
	for _, sp := range r.s.scheduled {
		if sp.PostID != postID {
			continue
		}
		sp.Status = models.ScheduledPostStatusDraft
		sp.ScheduledAt = nil
		sp.StartedAt = nil
		sp.PublishedAt = nil
		sp.FailedAt = nil
		sp.FailureReason = ""
		sp.Attempts = 0
	}
	return nil
}

func (r fakeScheduledRepo) Remove(_ context.Context, _ *sql.Tx, postID, channelID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.writes++
	for id, sp := range r.s.scheduled {
		if sp.PostID == postID && sp.ChannelID == channelID {
			delete(r.s.scheduled, id)
			return true, nil
		}
	}
	return false, nil
}

type fakeMetricsRepo struct{ s *memStore }

func (r fakeMetricsRepo) Create(_ context.Context, m *models.PostMetrics) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.metrics = append(r.s.metrics, m)
	return nil
}

func (r fakeMetricsRepo) Latest(_ context.Context, scheduledPostID string) (*models.PostMetrics, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *models.PostMetrics
	for _, m := range r.s.metrics {
		if m.ScheduledPostID == scheduledPostID && (latest == nil || m.CollectedAt.After(latest.CollectedAt)) {
			latest = m
		}
	}
	return latest, nil
}

// DailyTotals returns the rows seeded under filter.From.
func (r fakeMetricsRepo) DailyTotals(_ context.Context, _ string, filter repository.MetricsFilter) ([]models.DailyMetrics, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.filters = append(r.s.filters, filter)
	return r.s.daily[filter.From], nil
}

type invokedJob struct {
	Job  PublishJob
	Opts JobOptions
}

type fakeQueue struct {
	mu        sync.Mutex
	invoked   []invokedJob
	removed   []string
	invokeErr error
	removeErr map[string]error
}

func (q *fakeQueue) Invoke(_ context.Context, job PublishJob, opts JobOptions) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.invokeErr != nil {
		return q.invokeErr
	}
	q.invoked = append(q.invoked, invokedJob{Job: job, Opts: opts})
	return nil
}

func (q *fakeQueue) Remove(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removed = append(q.removed, jobID)
	return q.removeErr[jobID]
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Publish(ctx context.Context, ch *models.Channel, payload models.Payload) (*publisher.PublishResult, error) {
	args := m.Called(ctx, ch, payload)
	res, _ := args.Get(0).(*publisher.PublishResult)
	return res, args.Error(1)
}

func (m *mockDispatcher) GetMetrics(ctx context.Context, ch *models.Channel, externalID string, old *models.MetricsSnapshot) (*models.MetricsSnapshot, error) {
	args := m.Called(ctx, ch, externalID, old)
	res, _ := args.Get(0).(*models.MetricsSnapshot)
	return res, args.Error(1)
}

type fakeResources struct {
	uploads map[string]string
}

func (f *fakeResources) Upload(_ context.Context, key string, _ []byte, contentType string) error {
	if f.uploads == nil {
		f.uploads = map[string]string{}
	}
	f.uploads[key] = contentType
	return nil
}

func (f *fakeResources) GetSignedURL(_ context.Context, location string) (string, error) {
	return "https://media.test/" + location, nil
}

type fixture struct {
	store      *memStore
	queue      *fakeQueue
	dispatcher *mockDispatcher
	resources  *fakeResources
	now        time.Time
	posts      PostService
	publish    PublishService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:      newMemStore(),
		queue:      &fakeQueue{},
		dispatcher: &mockDispatcher{},
		resources:  &fakeResources{},
		now:        time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	validator := validation.New(nil)
	f.posts = NewPostService(fakeTx{}, fakePostRepo{f.store}, fakeScheduledRepo{f.store}, fakeChannelRepo{f.store}, validator, f.resources)
	f.publish = NewPublishService(fakeTx{}, fakePostRepo{f.store}, fakeScheduledRepo{f.store}, validator, f.queue, f.dispatcher, testSecret,
		WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) addChannel(t *testing.T, p models.Platform) *models.Channel {
	t.Helper()

	token, err := utils.SealToken("token-"+string(p), testSecret)
	require.NoError(t, err)

	ch := &models.Channel{
		ID:                "ch-" + string(p),
		OrganizationID:    testOrg,
		Platform:          p,
		Name:              string(p) + " account",
		PlatformAccountID: "acct-" + string(p),
		AccessToken:       token,
	}
	f.store.channels[ch.ID] = ch
	return ch
}

// draftPost creates a post and attaches the given channels.
func (f *fixture) draftPost(t *testing.T, payload models.Payload, channels ...*models.Channel) *models.Post {
	t.Helper()

	ctx := context.Background()
	post, err := f.posts.Create(ctx, testOrg, PostInput{Name: "launch", Payload: payload})
	require.NoError(t, err)
	for _, ch := range channels {
		_, err := f.posts.AttachChannel(ctx, testOrg, post.ID, ch.ID, nil)
		require.NoError(t, err)
	}
	return post
}

func (f *fixture) rows(t *testing.T, postID string) []*models.ScheduledPost {
	t.Helper()
	rows, err := fakeScheduledRepo{f.store}.ListByPostID(context.Background(), nil, postID)
	require.NoError(t, err)
	return rows
}

func (f *fixture) storedPost(postID string) models.Post {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return *f.store.posts[postID]
}

func twoImages() models.RegularPayload {
	return models.RegularPayload{
		Text: "spring collection is live",
		Media: []models.Media{
			{ID: "m1", Order: 1, Location: "org-1/m1.jpg", MimeType: "image/jpeg"},
			{ID: "m2", Order: 2, Location: "org-1/m2.png", MimeType: "image/png"},
		},
	}
}
