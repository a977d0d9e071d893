package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/bitebell/internal/database/testutil"
)

func storeBackends(t *testing.T) map[string]Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	return map[string]Store{
		"memory":   NewMemoryStore(),
		"file":     fileStore,
		"database": NewDatabaseStore(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())),
		"redis":    NewRedisStore(client),
	}
}

func TestStoreSetGetDelete(t *testing.T) {
	ctx := context.Background()

	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Get(ctx, "local_notifications")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, store.Set(ctx, "local_notifications", []byte(`[{"id":"a"}]`), 0))
			value, ok, err := store.Get(ctx, "local_notifications")
			require.NoError(t, err)
			require.True(t, ok)
			require.JSONEq(t, `[{"id":"a"}]`, string(value))

			require.NoError(t, store.Set(ctx, "local_notifications", []byte(`[]`), 0))
			value, _, err = store.Get(ctx, "local_notifications")
			require.NoError(t, err)
			require.Equal(t, "[]", string(value))

			require.NoError(t, store.Delete(ctx, "local_notifications", "missing"))
			_, ok, err = store.Get(ctx, "local_notifications")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestStoreIncrementWithTTL(t *testing.T) {
	ctx := context.Background()

	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			for want := int64(1); want <= 3; want++ {
				count, ttl, err := store.IncrementWithTTL(ctx, "rate:fn:1.2.3.4", time.Minute)
				require.NoError(t, err)
				require.Equal(t, want, count)
				require.Greater(t, ttl, time.Duration(0))
				require.LessOrEqual(t, ttl, time.Minute)
			}
		})
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Second))
	_, ok, _ := store.Get(ctx, "k")
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = store.Get(ctx, "k")
	require.False(t, ok)

	count, _, err := store.IncrementWithTTL(ctx, "c", time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	now = now.Add(2 * time.Second)
	count, _, err = store.IncrementWithTTL(ctx, "c", time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(1), count, "window should reset after expiry")
}

func TestRedisStoreNamespacesKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client)
	require.NoError(t, store.Set(context.Background(), "local_notifications", []byte("[]"), 0))
	require.True(t, mr.Exists("bitebell:local_notifications"))

	require.NoError(t, store.Set(context.Background(), "bitebell:already", []byte("x"), 0))
	require.True(t, mr.Exists("bitebell:already"))
}

func TestNewRedisClientPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), RedisConfig{Address: mr.Addr(), Timeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = NewRedisClient(context.Background(), RedisConfig{})
	require.Error(t, err)
}

func TestDatabaseStorePurgeExpired(t *testing.T) {
	ctx := context.Background()
	store := NewDatabaseStore(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))

	require.NoError(t, store.Set(ctx, "short", []byte("1"), time.Millisecond))
	require.NoError(t, store.Set(ctx, "forever", []byte("1"), 0))

	purged, err := store.PurgeExpired(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)

	_, ok, err := store.Get(ctx, "forever")
	require.NoError(t, err)
	require.True(t, ok)
}
