package database

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/bitebell/internal/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Exec("SELECT 1").Error)
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestAutoMigrateAndSeedData(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrateAndSeed(db))
	// seeding twice must not duplicate rows
	require.NoError(t, SeedData(db))

	var templates []models.NotificationTemplate
	require.NoError(t, db.Order("id").Find(&templates).Error)
	require.Len(t, templates, 3)

	for _, tmpl := range templates {
		require.True(t, tmpl.IsDefault)
		require.NotEmpty(t, tmpl.Variables)
	}
	require.Equal(t, []string{"orderNumber", "status"}, []string(templates[0].Variables))

	for _, model := range []any{&models.Notification{}, &models.NotificationAutomation{}, &models.NotificationCampaign{}, &models.User{}, &models.CacheEntry{}} {
		require.True(t, db.Migrator().HasTable(model))
	}
}

func TestAutoMigrateAndSeedRejectsNil(t *testing.T) {
	require.Error(t, AutoMigrateAndSeed(nil))
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite", DSN: "file:" + t.Name() + "?mode=memory&cache=shared"})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
