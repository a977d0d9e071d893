package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/bitebell/internal/models"
	apperrors "github.com/charlesng35/bitebell/pkg/errors"
)

func TestRegisterFiresUserRegisteredAutomation(t *testing.T) {
	s := newTestServices(t)

	_, err := s.automations.Create(t.Context(), AutomationInput{
		Name:             "Welcome",
		TriggerType:      models.TriggerUserRegistered,
		TargetAudience:   models.AudienceUser,
		NotificationData: models.NotificationContent{Title: "Welcome {{customerName}}", Message: "Your first delivery is on us"},
	})
	require.NoError(t, err)

	user, err := s.users.Register(t.Context(), RegisterUserInput{Email: " Sam@Example.com ", DisplayName: "Sam"})
	require.NoError(t, err)
	require.Equal(t, "sam@example.com", user.Email)
	require.Equal(t, "customer", user.Role)
	require.True(t, user.IsActive)

	rows := s.allNotifications(t)
	require.Len(t, rows, 1)
	require.Equal(t, "Welcome Sam", rows[0].Title)
	require.Equal(t, user.ID, *rows[0].TargetUserID)

	_, err = s.users.Register(t.Context(), RegisterUserInput{Email: "sam@example.com"})
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestRecordOrderUnknownUser(t *testing.T) {
	s := newTestServices(t)

	err := s.users.RecordOrder(t.Context(), "missing", s.now)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	users, err := s.users.List(t.Context())
	require.NoError(t, err)
	require.Empty(t, users)
}
