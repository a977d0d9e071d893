package localstore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/bitebell/internal/cache"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func newTestStore(t *testing.T) (*Store, *cache.MemoryStore, *fixedClock) {
	t.Helper()

	backend := cache.NewMemoryStore()
	clock := &fixedClock{now: time.Date(2024, 6, 1, 18, 30, 0, 0, time.UTC)}
	store, err := New(backend, WithNow(clock.Now))
	require.NoError(t, err)
	return store, backend, clock
}

func TestNewRequiresBackend(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestCreateAssignsLocalIdentity(t *testing.T) {
	ctx := context.Background()
	store, _, clock := newTestStore(t)

	entry, err := store.Create(ctx, Entry{Type: "order", Title: "Order placed", Message: "We got it", IsRead: true})
	require.NoError(t, err)

	require.True(t, IsLocalID(entry.ID))
	require.True(t, strings.HasPrefix(entry.ID, "local:1717266600000-"))
	require.Len(t, entry.ID, len("local:1717266600000-")+8)
	require.Equal(t, clock.now, entry.Timestamp)
	require.True(t, entry.IsNew)
	require.False(t, entry.IsRead)

	all := store.GetAll(ctx)
	require.Len(t, all, 1)
	require.Equal(t, entry, all[0])
}

func TestMarkAsReadOnlyTouchesTarget(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	first, err := store.Create(ctx, Entry{Type: "order", Title: "one"})
	require.NoError(t, err)
	second, err := store.Create(ctx, Entry{Type: "order", Title: "two"})
	require.NoError(t, err)

	require.NoError(t, store.MarkAsRead(ctx, first.ID))

	for _, entry := range store.GetAll(ctx) {
		switch entry.ID {
		case first.ID:
			require.True(t, entry.IsRead)
			require.False(t, entry.IsNew)
		case second.ID:
			require.False(t, entry.IsRead)
			require.True(t, entry.IsNew)
		}
	}

	require.ErrorIs(t, store.MarkAsRead(ctx, "local:missing"), ErrNotFound)
}

func TestGetByUserVisibilityAndOrder(t *testing.T) {
	ctx := context.Background()
	store, _, clock := newTestStore(t)

	mk := func(title, target string) {
		_, err := store.Create(ctx, Entry{Type: "order", Title: title, TargetUserID: target})
		require.NoError(t, err)
		clock.now = clock.now.Add(time.Minute)
	}
	mk("mine-old", "u1")
	mk("unscoped", "")
	mk("theirs", "u2")
	mk("everyone", "all")
	mk("mine-new", "u1")

	var titles []string
	for _, entry := range store.GetByUser(ctx, "u1") {
		titles = append(titles, entry.Title)
	}
	require.Equal(t, []string{"mine-new", "everyone", "unscoped", "mine-old"}, titles)
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	entry, err := store.Create(ctx, Entry{Type: "promo", Title: "old"})
	require.NoError(t, err)

	title := "new"
	updated, err := store.Update(ctx, entry.ID, Patch{Title: &title})
	require.NoError(t, err)
	require.Equal(t, "new", updated.Title)
	require.Equal(t, "promo", updated.Type)

	_, err = store.Update(ctx, "local:nope", Patch{Title: &title})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, entry.ID))
	require.ErrorIs(t, store.Delete(ctx, entry.ID), ErrNotFound)
	require.Empty(t, store.GetAll(ctx))
}

func TestMarkAllAsReadAndClearAll(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	for _, target := range []string{"u1", "u2", "all"} {
		_, err := store.Create(ctx, Entry{Type: "order", Title: target, TargetUserID: target})
		require.NoError(t, err)
	}

	changed, err := store.MarkAllAsRead(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, changed)

	stats := store.GetStats(ctx, "")
	require.Equal(t, 3, stats.Total)
	require.Equal(t, 2, stats.Read)
	require.Equal(t, 1, stats.Unread)

	require.NoError(t, store.ClearAll(ctx, "u2"))
	require.Len(t, store.GetAll(ctx), 2)

	require.NoError(t, store.ClearAll(ctx, ""))
	require.Empty(t, store.GetAll(ctx))
}

func TestSetReadAndDeleteMany(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	a, _ := store.Create(ctx, Entry{Type: "order", Title: "a"})
	b, _ := store.Create(ctx, Entry{Type: "order", Title: "b"})

	n, err := store.SetRead(ctx, []string{a.ID, b.ID, "local:ghost"}, true)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = store.SetRead(ctx, []string{a.ID}, false)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, store.GetStats(ctx, "").Unread)

	n, err = store.DeleteMany(ctx, []string{a.ID, "local:ghost"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestOwnerScopedBulkSkipsOtherTargets(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	mine, _ := store.Create(ctx, Entry{Type: "order", Title: "mine", TargetUserID: "u1"})
	theirs, _ := store.Create(ctx, Entry{Type: "order", Title: "theirs", TargetUserID: "u2"})
	shared, _ := store.Create(ctx, Entry{Type: "promo", Title: "shared", TargetUserID: BroadcastTarget})
	ids := []string{mine.ID, theirs.ID, shared.ID}

	tests := []struct {
		name  string
		owner string
		want  int
	}{
		{"customer touches own entries only", "u1", 1},
		{"unknown owner touches nothing", "u9", 0},
		{"empty owner touches everything", "", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := store.SetReadFor(ctx, tt.owner, ids, true)
			require.NoError(t, err)
			require.Equal(t, tt.want, n)
			_, err = store.SetReadFor(ctx, "", ids, false)
			require.NoError(t, err)
		})
	}

	n, err := store.DeleteManyFor(ctx, "u1", ids)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, store.GetAll(ctx), 2)
	require.Len(t, store.GetByUser(ctx, "u2"), 2)
}

func TestGetStatsCountsBroadcastAndTypes(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	_, _ = store.Create(ctx, Entry{Type: "promo", Title: "p", TargetUserID: "all"})
	_, _ = store.Create(ctx, Entry{Type: "order", Title: "o", TargetUserID: "u1"})
	_, _ = store.Create(ctx, Entry{Type: "order", Title: "x", TargetUserID: "u2"})

	stats := store.GetStats(ctx, "u1")
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.Broadcast)
	require.Equal(t, map[string]int{"promo": 1, "order": 1}, stats.ByType)
}

func TestSyncOverwrites(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	_, err := store.Create(ctx, Entry{Type: "order", Title: "stale"})
	require.NoError(t, err)

	a := Entry{ID: "n-1", Type: "order", Title: "A", Timestamp: time.Unix(100, 0).UTC()}
	b := Entry{ID: "n-2", Type: "promo", Title: "B", Timestamp: time.Unix(200, 0).UTC()}
	require.NoError(t, store.Sync(ctx, []Entry{a, b}))

	require.Equal(t, []Entry{a, b}, store.GetAll(ctx))
}

func TestSyncUserKeepsOtherUsersEntries(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	ben := Entry{ID: "n-ben", Type: "order", Title: "Ben's order", TargetUserID: "ben"}
	staleShared := Entry{ID: "n-old", Type: "promo", Title: "Old deal", TargetUserID: BroadcastTarget, IsBroadcast: true}
	require.NoError(t, store.SyncUser(ctx, "ben", []Entry{ben, staleShared}))

	ana := Entry{ID: "n-ana", Type: "order", Title: "Ana's order", TargetUserID: "ana"}
	shared := Entry{ID: "n-new", Type: "promo", Title: "New deal", TargetUserID: BroadcastTarget, IsBroadcast: true}
	require.NoError(t, store.SyncUser(ctx, "ana", []Entry{ana, shared}))

	var benIDs []string
	for _, entry := range store.GetByUser(ctx, "ben") {
		benIDs = append(benIDs, entry.ID)
	}
	require.ElementsMatch(t, []string{"n-ben", "n-new"}, benIDs)
	require.Len(t, store.GetAll(ctx), 3)
}

func TestSeedDemoIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	seeded, err := store.SeedDemo(ctx)
	require.NoError(t, err)
	require.True(t, seeded)
	count := len(store.GetAll(ctx))
	require.Positive(t, count)

	seeded, err = store.SeedDemo(ctx)
	require.NoError(t, err)
	require.False(t, seeded)
	require.Len(t, store.GetAll(ctx), count)
}

func TestSeedDemoSkipsWhenEntriesExist(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	_, err := store.Create(ctx, Entry{Type: "order", Title: "real"})
	require.NoError(t, err)

	seeded, err := store.SeedDemo(ctx)
	require.NoError(t, err)
	require.False(t, seeded)
	require.Len(t, store.GetAll(ctx), 1)
}

func TestCorruptBlobDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	store, backend, _ := newTestStore(t)

	require.NoError(t, backend.Set(ctx, DefaultKey, []byte("{not json"), 0))
	require.Empty(t, store.GetAll(ctx))
	require.NotNil(t, store.GetAll(ctx))

	entry, err := store.Create(ctx, Entry{Type: "order", Title: "fresh"})
	require.NoError(t, err)
	require.Equal(t, []Entry{entry}, store.GetAll(ctx))
}

func TestConcurrentCreatesAreNotLost(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	const writers = 20
	done := make(chan struct{}, writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, err := store.Create(ctx, Entry{Type: "order", Title: "burst"})
			require.NoError(t, err)
		}()
	}
	for i := 0; i < writers; i++ {
		<-done
	}

	require.Len(t, store.GetAll(ctx), writers)
}

func TestCustomKey(t *testing.T) {
	ctx := context.Background()
	backend := cache.NewMemoryStore()
	store, err := New(backend, WithKey("tenant-a:notifications"))
	require.NoError(t, err)

	_, err = store.Create(ctx, Entry{Type: "order", Title: "t"})
	require.NoError(t, err)

	_, ok, err := backend.Get(ctx, "tenant-a:notifications")
	require.NoError(t, err)
	require.True(t, ok)
}
