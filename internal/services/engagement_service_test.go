package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/bitebell/internal/functions"
	"github.com/charlesng35/bitebell/internal/models"
	apperrors "github.com/charlesng35/bitebell/pkg/errors"
)

func TestScheduleCreatesNotificationOrCampaign(t *testing.T) {
	s := newTestServices(t)

	now, err := s.engagement.Schedule(t.Context(), "admin-1", functions.ScheduleRequest{
		Type:    "system",
		Title:   "Maintenance",
		Message: "Back soon",
	})
	require.NoError(t, err)
	require.Equal(t, functions.KindNotification, now.Kind)

	rows := s.allNotifications(t)
	require.Len(t, rows, 1)
	require.True(t, rows[0].IsBroadcast)
	require.Equal(t, "admin-1", *rows[0].CreatedBy)

	at := s.now.Add(2 * time.Hour)
	later, err := s.engagement.Schedule(t.Context(), "admin-1", functions.ScheduleRequest{
		Type:        "promo",
		Title:       "Lunch deal",
		Message:     "From noon",
		ScheduledAt: &at,
	})
	require.NoError(t, err)
	require.Equal(t, functions.KindCampaign, later.Kind)

	campaign, err := s.campaigns.Get(t.Context(), later.ID)
	require.NoError(t, err)
	require.Equal(t, models.CampaignScheduled, campaign.Status)
	require.Equal(t, models.CampaignTypePromo, campaign.Type)
	require.Len(t, s.allNotifications(t), 1)

	_, err = s.engagement.Schedule(t.Context(), "", functions.ScheduleRequest{Type: "spam", Title: "x", Message: "y"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestAnalyticsSummarisesNotificationsAndCampaigns(t *testing.T) {
	s := newTestServices(t)

	for i := 0; i < 3; i++ {
		_, err := s.notifications.Create(t.Context(), CreateNotificationInput{Type: models.NotificationTypeOrder, Title: "o", IsBroadcast: true})
		require.NoError(t, err)
	}
	n, err := s.notifications.Create(t.Context(), CreateNotificationInput{Type: models.NotificationTypePromo, Title: "p", IsBroadcast: true})
	require.NoError(t, err)
	_, err = s.notifications.Bulk(t.Context(), "", functions.BulkRequest{IDs: []string{n.ID}, Operation: functions.BulkMarkRead})
	require.NoError(t, err)

	at := s.now.Add(time.Hour)
	_, err = s.campaigns.Create(t.Context(), campaignInput("later", models.ScheduleScheduled, &at))
	require.NoError(t, err)

	s.engagement.now = time.Now
	analytics, err := s.engagement.Analytics(t.Context())
	require.NoError(t, err)
	require.Equal(t, 4, analytics.Total)
	require.InDelta(t, 0.25, analytics.ReadRate, 0.0001)
	require.Equal(t, map[string]int{"order": 3, "promo": 1}, analytics.ByType)
	require.Len(t, analytics.ByDay, analyticsWindow)
	require.Equal(t, 4, analytics.ByDay[analyticsWindow-1].Count)
	require.Equal(t, 1, analytics.Campaigns.Total)
	require.Equal(t, 1, analytics.Campaigns.Scheduled)
}

func TestSegmentsFilterUsers(t *testing.T) {
	s := newTestServices(t)

	alice, err := s.users.Register(t.Context(), RegisterUserInput{Email: "alice@example.com"})
	require.NoError(t, err)
	bob, err := s.users.Register(t.Context(), RegisterUserInput{Email: "bob@example.com"})
	require.NoError(t, err)
	admin, err := s.users.Register(t.Context(), RegisterUserInput{Email: "ops@example.com", Role: "admin"})
	require.NoError(t, err)

	require.NoError(t, s.users.RecordOrder(t.Context(), alice.ID, s.now.Add(-time.Hour)))
	require.NoError(t, s.users.RecordOrder(t.Context(), alice.ID, s.now.Add(-time.Hour)))
	require.NoError(t, s.users.RecordOrder(t.Context(), bob.ID, s.now.AddDate(0, 0, -40)))
	_, err = s.users.SetActive(t.Context(), admin.ID, false)
	require.NoError(t, err)

	res, err := s.engagement.Segments(t.Context(), functions.SegmentFilters{MinOrders: 2})
	require.NoError(t, err)
	require.Equal(t, []string{alice.ID}, res.UserIDs)

	res, err = s.engagement.Segments(t.Context(), functions.SegmentFilters{InactiveDays: 30, Role: "customer"})
	require.NoError(t, err)
	require.Equal(t, []string{bob.ID}, res.UserIDs)

	res, err = s.engagement.Segments(t.Context(), functions.SegmentFilters{ActiveOnly: true, MaxOrders: ptr(1)})
	require.NoError(t, err)
	require.Equal(t, []string{bob.ID}, res.UserIDs)
	require.Equal(t, 1, res.Count)

	res, err = s.engagement.Segments(t.Context(), functions.SegmentFilters{Role: "nobody"})
	require.NoError(t, err)
	require.NotNil(t, res.UserIDs)
	require.Zero(t, res.Count)
}

func TestABTestSplitsDeterministically(t *testing.T) {
	s := newTestServices(t)

	res, err := s.engagement.ABTest(t.Context(), "admin-1", functions.ABTestRequest{
		Name:     "subject-line",
		UserIDs:  []string{"u-3", "u-1", "u-2", "u-1", "u-4"},
		VariantA: functions.Variant{Title: "A", Message: "Variant A"},
		VariantB: functions.Variant{Title: "B", Message: "Variant B"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"u-1", "u-3"}, res.VariantA)
	require.Equal(t, []string{"u-2", "u-4"}, res.VariantB)
	require.Equal(t, 4, res.Created)

	var count int64
	require.NoError(t, s.db.Model(&models.Notification{}).Where("target_user_id = ? AND title = ?", "u-2", "B").Count(&count).Error)
	require.EqualValues(t, 1, count)
	require.Equal(t, 1, s.emitter.Count())

	_, err = s.engagement.ABTest(t.Context(), "", functions.ABTestRequest{Name: "empty"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}
