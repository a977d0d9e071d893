package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/bitebell/internal/cache"
	"github.com/charlesng35/bitebell/internal/database/testutil"
	"github.com/charlesng35/bitebell/internal/localstore"
	"github.com/charlesng35/bitebell/internal/models"
)

func TestRegistryWiresSharedClockAndFacade(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	local, err := localstore.New(cache.NewMemoryStore())
	require.NoError(t, err)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	emitter := &countingEmitter{}
	reg, err := NewRegistry(db, RegistryConfig{
		Emitter: emitter,
		Local:   local,
		Clock:   func() time.Time { return now },
	})
	require.NoError(t, err)
	require.NotNil(t, reg.Facade)

	at := now.Add(time.Hour)
	created, err := reg.Campaigns.Create(context.Background(), campaignInput("Lunch", models.ScheduleScheduled, &at))
	require.NoError(t, err)
	require.Equal(t, models.CampaignScheduled, created.Status)

	res := reg.Engine.Trigger(context.Background(), models.TriggerOrderPlaced, TriggerContext{OrderNumber: "A1"}, "user-1")
	require.True(t, res.UsedFallback)
	require.Equal(t, 1, emitter.Count())
}

func TestRegistryWithoutLocalStoreSkipsFacade(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	reg, err := NewRegistry(db, RegistryConfig{})
	require.NoError(t, err)
	require.Nil(t, reg.Facade)

	_, err = NewRegistry(nil, RegistryConfig{})
	require.Error(t, err)
}
