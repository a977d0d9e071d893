package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/bitebell/internal/cache"
	"github.com/charlesng35/bitebell/internal/functions"
	"github.com/charlesng35/bitebell/internal/localstore"
)

var errRemoteDown = errors.New("remote down")

type stubRemote struct {
	down      bool
	rows      []functions.Notification
	byUser    map[string][]functions.Notification
	stats     functions.Stats
	bulk      []functions.BulkRequest
	bulkUsers []string
}

func (r *stubRemote) ListNotifications(_ context.Context, userID string, _ int) ([]functions.Notification, error) {
	if r.down {
		return nil, errRemoteDown
	}
	if rows, ok := r.byUser[userID]; ok {
		return rows, nil
	}
	return r.rows, nil
}

func (r *stubRemote) Stats(context.Context, string) (functions.Stats, error) {
	if r.down {
		return functions.Stats{}, errRemoteDown
	}
	return r.stats, nil
}

func (r *stubRemote) Analytics(context.Context) (functions.Analytics, error) {
	if r.down {
		return functions.Analytics{}, errRemoteDown
	}
	return functions.Analytics{Total: 99}, nil
}

func (r *stubRemote) Bulk(_ context.Context, userID string, req functions.BulkRequest) (functions.BulkResult, error) {
	if r.down {
		return functions.BulkResult{}, errRemoteDown
	}
	r.bulk = append(r.bulk, req)
	r.bulkUsers = append(r.bulkUsers, userID)
	return functions.BulkResult{Affected: len(req.IDs)}, nil
}

func (r *stubRemote) Schedule(context.Context, functions.ScheduleRequest) (functions.ScheduleResult, error) {
	if r.down {
		return functions.ScheduleResult{}, errRemoteDown
	}
	return functions.ScheduleResult{ID: "remote-1", Kind: functions.KindNotification}, nil
}

func (r *stubRemote) Segments(context.Context, functions.SegmentRequest) (functions.SegmentResult, error) {
	if r.down {
		return functions.SegmentResult{}, errRemoteDown
	}
	return functions.SegmentResult{UserIDs: []string{"u-1"}, Count: 1}, nil
}

func (r *stubRemote) ABTest(_ context.Context, req functions.ABTestRequest) (functions.ABTestResult, error) {
	if r.down {
		return functions.ABTestResult{}, errRemoteDown
	}
	return functions.ABTestResult{Name: req.Name, Created: len(req.UserIDs)}, nil
}

func newTestFacade(t *testing.T, remote RemoteFunctions) (*NotificationFacade, *localstore.Store) {
	t.Helper()

	local, err := localstore.New(cache.NewMemoryStore())
	require.NoError(t, err)
	facade, err := NewNotificationFacade(remote, local, 20)
	require.NoError(t, err)
	return facade, local
}

func TestFacadeListMergesRemoteWithLocalOnlyEntries(t *testing.T) {
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	target := "u-1"
	remote := &stubRemote{rows: []functions.Notification{
		{ID: "r-1", Type: "order", Title: "Ready", TargetUserID: &target, CreatedAt: base},
		{ID: "r-2", Type: "promo", Title: "Deal", IsBroadcast: true, IsRead: true, CreatedAt: base.Add(-time.Hour)},
	}}
	facade, local := newTestFacade(t, remote)

	mine, err := local.Create(t.Context(), localstore.Entry{Type: "system", Title: "Offline note", TargetUserID: "u-1"})
	require.NoError(t, err)
	_, err = local.Create(t.Context(), localstore.Entry{Type: "system", Title: "Someone else", TargetUserID: "u-2"})
	require.NoError(t, err)

	res := facade.GetAllNotifications(t.Context(), "u-1")
	require.Equal(t, DataSourceRemote, res.Source)
	require.Len(t, res.Data, 3)
	require.Equal(t, mine.ID, res.Data[0].ID)
	require.Equal(t, "r-1", res.Data[1].ID)
	require.True(t, res.Data[1].IsNew)
	require.Equal(t, "r-2", res.Data[2].ID)
	require.Equal(t, localstore.BroadcastTarget, res.Data[2].TargetUserID)
	require.False(t, res.Data[2].IsNew)

	mirrored := local.GetAll(t.Context())
	require.Len(t, mirrored, 4)

	remote.down = true
	offline := facade.GetAllNotifications(t.Context(), "u-1")
	require.Equal(t, DataSourceLocal, offline.Source)
	ids := make([]string, 0, len(offline.Data))
	for _, view := range offline.Data {
		ids = append(ids, view.ID)
	}
	require.ElementsMatch(t, []string{mine.ID, "r-1", "r-2"}, ids)
}

func TestFacadeWithoutRemoteServesLocal(t *testing.T) {
	facade, local := newTestFacade(t, nil)

	seeded, err := local.SeedDemo(t.Context())
	require.NoError(t, err)
	require.True(t, seeded)

	stats := facade.GetStats(t.Context(), "u-1")
	require.Equal(t, DataSourceLocal, stats.Source)
	require.Equal(t, 3, stats.Data.Total)
	require.Equal(t, 1, stats.Data.Read)

	analytics := facade.GetAnalytics(t.Context())
	require.Equal(t, DataSourceLocal, analytics.Source)
	require.Equal(t, 3, analytics.Data.Total)
	require.InDelta(t, 1.0/3.0, analytics.Data.ReadRate, 0.0001)
}

func TestFacadeBulkRoutesIDsBySource(t *testing.T) {
	remote := &stubRemote{}
	facade, local := newTestFacade(t, remote)

	entry, err := local.Create(t.Context(), localstore.Entry{Type: "system", Title: "Local", TargetUserID: "u-1"})
	require.NoError(t, err)

	res, err := facade.BulkOperation(t.Context(), "u-1", []string{entry.ID, "r-1"}, functions.BulkMarkRead)
	require.NoError(t, err)
	require.Equal(t, DataSourceRemote, res.Source)
	require.Equal(t, 2, res.Data.Affected)
	require.Len(t, remote.bulk, 1)
	require.Equal(t, []string{"r-1"}, remote.bulk[0].IDs)
	require.Equal(t, []string{"u-1"}, remote.bulkUsers)
	require.True(t, local.GetAll(t.Context())[0].IsRead)

	remote.down = true
	res, err = facade.BulkOperation(t.Context(), "u-1", []string{entry.ID, "r-1"}, functions.BulkDelete)
	require.NoError(t, err)
	require.Equal(t, DataSourceLocal, res.Source)
	require.Equal(t, 1, res.Data.Affected)
	require.Empty(t, local.GetAll(t.Context()))
}

func TestFacadeBulkOnlyReachesCallersEntries(t *testing.T) {
	remote := &stubRemote{down: true}
	facade, local := newTestFacade(t, remote)

	theirs, err := local.Create(t.Context(), localstore.Entry{Type: "order", Title: "Ben's order", TargetUserID: "ben"})
	require.NoError(t, err)
	shared, err := local.Create(t.Context(), localstore.Entry{Type: "promo", Title: "Deal", TargetUserID: localstore.BroadcastTarget})
	require.NoError(t, err)

	res, err := facade.BulkOperation(t.Context(), "ana", []string{theirs.ID, shared.ID}, functions.BulkDelete)
	require.NoError(t, err)
	require.Zero(t, res.Data.Affected)
	require.Len(t, local.GetAll(t.Context()), 2)

	res, err = facade.BulkOperation(t.Context(), "ben", []string{theirs.ID, shared.ID}, functions.BulkMarkRead)
	require.NoError(t, err)
	require.Equal(t, 1, res.Data.Affected)
	for _, entry := range local.GetAll(t.Context()) {
		require.Equal(t, entry.ID == theirs.ID, entry.IsRead)
	}
}

func TestFacadeMirrorKeepsOtherUsersRows(t *testing.T) {
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	ana, ben := "ana", "ben"
	broadcast := functions.Notification{ID: "r-all", Type: "promo", Title: "Deal", IsBroadcast: true, CreatedAt: base}
	remote := &stubRemote{byUser: map[string][]functions.Notification{
		"ben": {broadcast, {ID: "r-ben", Type: "order", Title: "Ben's order", TargetUserID: &ben, CreatedAt: base}},
		"ana": {broadcast, {ID: "r-ana", Type: "order", Title: "Ana's order", TargetUserID: &ana, CreatedAt: base}},
	}}
	facade, _ := newTestFacade(t, remote)

	require.Equal(t, DataSourceRemote, facade.GetAllNotifications(t.Context(), "ben").Source)
	require.Equal(t, DataSourceRemote, facade.GetAllNotifications(t.Context(), "ana").Source)

	remote.down = true
	offline := facade.GetAllNotifications(t.Context(), "ben")
	require.Equal(t, DataSourceLocal, offline.Source)
	ids := make([]string, 0, len(offline.Data))
	for _, view := range offline.Data {
		ids = append(ids, view.ID)
	}
	require.ElementsMatch(t, []string{"r-all", "r-ben"}, ids)
}

func TestFacadeFallbacksForWrites(t *testing.T) {
	remote := &stubRemote{down: true}
	facade, local := newTestFacade(t, remote)

	scheduled := facade.ScheduleNotification(t.Context(), functions.ScheduleRequest{Type: "promo", Title: "Deal", Message: "Now", TargetUserID: "u-7"})
	require.Equal(t, DataSourceLocal, scheduled.Source)
	require.True(t, localstore.IsLocalID(scheduled.Data.ID))

	ab, err := facade.RunABTest(t.Context(), functions.ABTestRequest{
		Name:     "t",
		UserIDs:  []string{"u-9", "u-8"},
		VariantA: functions.Variant{Title: "A", Message: "a"},
		VariantB: functions.Variant{Title: "B", Message: "b"},
	})
	require.NoError(t, err)
	require.Equal(t, DataSourceLocal, ab.Source)
	require.Equal(t, []string{"u-8"}, ab.Data.VariantA)
	require.Equal(t, []string{"u-9"}, ab.Data.VariantB)

	segment := facade.SegmentUsers(t.Context(), functions.SegmentFilters{})
	require.Equal(t, DataSourceLocal, segment.Source)
	require.Equal(t, []string{"u-7", "u-8", "u-9"}, segment.Data.UserIDs)

	segment = facade.SegmentUsers(t.Context(), functions.SegmentFilters{UserIDs: []string{"u-8", "u-x"}})
	require.Equal(t, []string{"u-8"}, segment.Data.UserIDs)

	require.Len(t, local.GetAll(t.Context()), 3)

	remote.down = false
	scheduled = facade.ScheduleNotification(t.Context(), functions.ScheduleRequest{Type: "promo", Title: "Deal", Message: "Now"})
	require.Equal(t, DataSourceRemote, scheduled.Source)
	require.Equal(t, "remote-1", scheduled.Data.ID)
}

func TestFacadeTreatsLogicalFailureAsFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   map[string]any{"code": "INTERNAL_ERROR", "message": "boom"},
		})
	}))
	t.Cleanup(srv.Close)

	client, err := functions.NewClient(functions.Config{BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)
	facade, local := newTestFacade(t, client)

	_, err = local.Create(t.Context(), localstore.Entry{Type: "order", Title: "Cached", TargetUserID: "u-1"})
	require.NoError(t, err)

	res := facade.GetAllNotifications(t.Context(), "u-1")
	require.Equal(t, DataSourceLocal, res.Source)
	require.Len(t, res.Data, 1)

	stats := facade.GetStats(t.Context(), "u-1")
	require.Equal(t, DataSourceLocal, stats.Source)
	require.Equal(t, 1, stats.Data.Total)
}

func TestMergeViewsDeduplicatesAndSorts(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	merged := MergeViews(
		[]NotificationView{{ID: "a", Timestamp: base}, {ID: "b", Timestamp: base.Add(time.Hour)}},
		[]NotificationView{{ID: "a", Title: "dup", Timestamp: base.Add(2 * time.Hour)}, {ID: "c", Timestamp: base.Add(-time.Hour)}},
	)
	require.Len(t, merged, 3)
	require.Equal(t, []string{"b", "a", "c"}, []string{merged[0].ID, merged[1].ID, merged[2].ID})
	require.Empty(t, merged[1].Title)
}
