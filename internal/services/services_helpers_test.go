package services

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/bitebell/internal/database/testutil"
	"github.com/charlesng35/bitebell/internal/models"
)

type countingEmitter struct {
	calls atomic.Int32
}

func (e *countingEmitter) EmitRefresh() {
	e.calls.Add(1)
}

func (e *countingEmitter) Count() int {
	return int(e.calls.Load())
}

type testServices struct {
	db            *gorm.DB
	emitter       *countingEmitter
	templates     *TemplateService
	automations   *AutomationService
	notifications *NotificationService
	engine        *AutomationEngine
	campaigns     *CampaignService
	engagement    *EngagementService
	users         *UserService
	now           time.Time
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	emitter := &countingEmitter{}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	templates, err := NewTemplateService(db)
	require.NoError(t, err)
	automations, err := NewAutomationService(db)
	require.NoError(t, err)
	notifications, err := NewNotificationService(db, emitter)
	require.NoError(t, err)
	engine, err := NewAutomationEngine(automations, templates, notifications, emitter)
	require.NoError(t, err)
	campaigns, err := NewCampaignService(db, notifications, emitter, WithCampaignClock(func() time.Time { return now }))
	require.NoError(t, err)
	engagement, err := NewEngagementService(db, notifications, campaigns, emitter)
	require.NoError(t, err)
	engagement.now = func() time.Time { return now }
	users, err := NewUserService(db, engine)
	require.NoError(t, err)

	return &testServices{
		db:            db,
		emitter:       emitter,
		templates:     templates,
		automations:   automations,
		notifications: notifications,
		engine:        engine,
		campaigns:     campaigns,
		engagement:    engagement,
		users:         users,
		now:           now,
	}
}

func (s *testServices) allNotifications(t *testing.T) []models.Notification {
	t.Helper()

	var rows []models.Notification
	require.NoError(t, s.db.Order("created_at ASC").Find(&rows).Error)
	return rows
}

func ptr[T any](v T) *T {
	return &v
}
