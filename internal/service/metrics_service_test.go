package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCalculatePercentageChange(t *testing.T) {
	tests := []struct {
		current, previous int64
		want              float64
	}{
		{0, 0, 0},
		{5, 0, 100},
		{150, 100, 50},
		{50, 100, -50},
		{100, 100, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, CalculatePercentageChange(tt.current, tt.previous), 1e-9,
			"current=%d previous=%d", tt.current, tt.previous)
	}
}

func TestAggregate(t *testing.T) {
	store := newMemStore()
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)
	store.daily[from] = []models.DailyMetrics{
		{Day: from, MetricsSnapshot: models.MetricsSnapshot{Likes: 100, Impressions: 1000}},
		{Day: from.AddDate(0, 0, 1), MetricsSnapshot: models.MetricsSnapshot{Likes: 50, Comments: 5}},
	}
	store.daily[from.AddDate(0, 0, -7)] = []models.DailyMetrics{
		{Day: from.AddDate(0, 0, -3), MetricsSnapshot: models.MetricsSnapshot{Likes: 100, Impressions: 1000}},
	}
	svc := NewMetricsService(fakeMetricsRepo{store}, fakeScheduledRepo{store}, &mockDispatcher{}, testSecret, time.Hour)

	report, err := svc.Aggregate(context.Background(), testOrg, MetricsQuery{From: from, To: to, Platform: models.PlatformX})
	require.NoError(t, err)

	assert.Equal(t, models.MetricsSnapshot{Likes: 150, Comments: 5, Impressions: 1000}, report.Aggregates)
	assert.InDelta(t, 50, report.Growth.Likes, 1e-9)
	assert.InDelta(t, 100, report.Growth.Comments, 1e-9)
	assert.InDelta(t, 0, report.Growth.Impressions, 1e-9)
	assert.InDelta(t, 0, report.Growth.Shares, 1e-9)
	assert.Len(t, report.History, 2)

	require.Len(t, store.filters, 2)
	assert.Equal(t, repository.MetricsFilter{From: from.AddDate(0, 0, -7), To: from, Platform: models.PlatformX}, store.filters[1])
}

func TestAggregateRejectsEmptyRange(t *testing.T) {
	store := newMemStore()
	svc := NewMetricsService(fakeMetricsRepo{store}, fakeScheduledRepo{store}, &mockDispatcher{}, testSecret, time.Hour)
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Aggregate(context.Background(), testOrg, MetricsQuery{From: day, To: day})
	assert.ErrorIs(t, err, ErrInvalidInput)

	report, err := svc.Aggregate(context.Background(), testOrg, MetricsQuery{From: day, To: day.Add(time.Hour)})
	require.NoError(t, err)
	assert.NotNil(t, report.History)
}

func TestRefreshAppendsSnapshots(t *testing.T) {
	store := newMemStore()
	dispatcher := &mockDispatcher{}
	svc := NewMetricsService(fakeMetricsRepo{store}, fakeScheduledRepo{store}, dispatcher, testSecret, 24*time.Hour)

	token, err := utils.SealToken("plain", testSecret)
	require.NoError(t, err)
	recent := time.Now().Add(-time.Hour)
	old := time.Now().Add(-48 * time.Hour)

	seed := func(id string, p models.Platform, publishedAt time.Time) {
		store.scheduled[id] = &models.ScheduledPost{
			ID:                  id,
			OrganizationID:      testOrg,
			PostID:              "post-1",
			Status:              models.ScheduledPostStatusPublished,
			PublishedAt:         &publishedAt,
			ExternalReferenceID: "ext-" + id,
			Channel:             &models.Channel{ID: "ch-" + id, Platform: p, AccessToken: token},
		}
		store.order = append(store.order, id)
	}
	seed("sp-ig", models.PlatformInstagram, recent)
	seed("sp-x", models.PlatformX, recent)
	seed("sp-old", models.PlatformFacebook, old)

	previous := &models.PostMetrics{ScheduledPostID: "sp-ig", MetricsSnapshot: models.MetricsSnapshot{Shares: 7}, CollectedAt: old}
	store.metrics = append(store.metrics, previous)

	dispatcher.On("GetMetrics", mock.Anything, mock.MatchedBy(func(ch *models.Channel) bool {
		return ch.Platform == models.PlatformInstagram && ch.AccessToken == "plain"
	}), "ext-sp-ig", &previous.MetricsSnapshot).
		Return(&models.MetricsSnapshot{Likes: 10, Shares: 7}, nil)
	dispatcher.On("GetMetrics", mock.Anything, mock.MatchedBy(func(ch *models.Channel) bool {
		return ch.Platform == models.PlatformX
	}), "ext-sp-x", (*models.MetricsSnapshot)(nil)).
		Return(nil, errors.New("rate limited"))

	require.NoError(t, svc.Refresh(context.Background()))

	require.Len(t, store.metrics, 2)
	created := store.metrics[1]
	assert.Equal(t, "sp-ig", created.ScheduledPostID)
	assert.Equal(t, models.PlatformInstagram, created.Platform)
	assert.Equal(t, int64(10), created.Likes)
	assert.Equal(t, int64(7), created.Shares)
	dispatcher.AssertExpectations(t)
	dispatcher.AssertNumberOfCalls(t, "GetMetrics", 2)
}
