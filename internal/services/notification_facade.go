package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/bitebell/internal/functions"
	"github.com/charlesng35/bitebell/internal/localstore"
	"github.com/charlesng35/bitebell/pkg/logger"
	"github.com/charlesng35/bitebell/pkg/metrics"
)

// Data sources reported by facade results.
const (
	DataSourceRemote = "remote"
	DataSourceLocal  = "local"
)

// Result pairs facade data with where it came from.
type Result[T any] struct {
	Data   T      `json:"data"`
	Source string `json:"source"`
}

// RemoteFunctions is the subset of the functions client used by the facade.
type RemoteFunctions interface {
	ListNotifications(ctx context.Context, userID string, limit int) ([]functions.Notification, error)
	Stats(ctx context.Context, userID string) (functions.Stats, error)
	Analytics(ctx context.Context) (functions.Analytics, error)
	Bulk(ctx context.Context, userID string, req functions.BulkRequest) (functions.BulkResult, error)
	Schedule(ctx context.Context, req functions.ScheduleRequest) (functions.ScheduleResult, error)
	Segments(ctx context.Context, req functions.SegmentRequest) (functions.SegmentResult, error)
	ABTest(ctx context.Context, req functions.ABTestRequest) (functions.ABTestResult, error)
}

// NotificationView is the single camelCase shape handed to storefront clients,
// whichever store the notification came from.
type NotificationView struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Timestamp    time.Time      `json:"timestamp"`
	IsNew        bool           `json:"isNew"`
	IsRead       bool           `json:"isRead"`
	TargetUserID string         `json:"targetUserId,omitempty"`
	ActionURL    string         `json:"actionUrl,omitempty"`
	ImageURL     string         `json:"imageUrl,omitempty"`
	ProductID    string         `json:"productId,omitempty"`
	DealID       string         `json:"dealId,omitempty"`
	CampaignID   string         `json:"campaignId,omitempty"`
	IsBroadcast  bool           `json:"isBroadcast"`
	CreatedBy    string         `json:"createdBy,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ViewFromRemote normalizes a functions row.
func ViewFromRemote(n functions.Notification) NotificationView {
	target := derefString(n.TargetUserID)
	if target == "" && n.IsBroadcast {
		target = localstore.BroadcastTarget
	}
	return NotificationView{
		ID:           n.ID,
		Type:         n.Type,
		Title:        n.Title,
		Message:      n.Message,
		Timestamp:    n.CreatedAt,
		IsNew:        !n.IsRead,
		IsRead:       n.IsRead,
		TargetUserID: target,
		ActionURL:    n.ActionURL,
		ImageURL:     n.ImageURL,
		ProductID:    derefString(n.ProductID),
		DealID:       derefString(n.DealID),
		CampaignID:   derefString(n.CampaignID),
		IsBroadcast:  n.IsBroadcast,
		CreatedBy:    derefString(n.CreatedBy),
		Metadata:     n.Metadata,
	}
}

// ViewFromLocal normalizes a local store entry.
func ViewFromLocal(e localstore.Entry) NotificationView {
	return NotificationView{
		ID:           e.ID,
		Type:         e.Type,
		Title:        e.Title,
		Message:      e.Message,
		Timestamp:    e.Timestamp,
		IsNew:        e.IsNew,
		IsRead:       e.IsRead,
		TargetUserID: e.TargetUserID,
		ActionURL:    e.ActionURL,
		ImageURL:     e.ImageURL,
		ProductID:    e.ProductID,
		DealID:       e.DealID,
		IsBroadcast:  e.IsBroadcast,
		CreatedBy:    e.CreatedBy,
	}
}

func (v NotificationView) entry() localstore.Entry {
	return localstore.Entry{
		ID:           v.ID,
		Type:         v.Type,
		Title:        v.Title,
		Message:      v.Message,
		Timestamp:    v.Timestamp,
		IsNew:        v.IsNew,
		IsRead:       v.IsRead,
		TargetUserID: v.TargetUserID,
		ActionURL:    v.ActionURL,
		ImageURL:     v.ImageURL,
		ProductID:    v.ProductID,
		DealID:       v.DealID,
		IsBroadcast:  v.IsBroadcast,
		CreatedBy:    v.CreatedBy,
	}
}

// MergeViews combines lists, keeps the first occurrence of every id and orders the
// result newest first.
func MergeViews(lists ...[]NotificationView) []NotificationView {
	seen := make(map[string]struct{})
	out := []NotificationView{}
	for _, list := range lists {
		for _, view := range list {
			if _, dup := seen[view.ID]; dup {
				continue
			}
			seen[view.ID] = struct{}{}
			out = append(out, view)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// NotificationFacade is the single entry point for reading and acting on notifications.
// Every operation tries the remote functions first and degrades to the local store.
type NotificationFacade struct {
	remote RemoteFunctions
	local  *localstore.Store
	limit  int
	log    *zap.Logger
}

// NewNotificationFacade constructs the facade. remote may be nil, in which case every
// operation is served locally.
func NewNotificationFacade(remote RemoteFunctions, local *localstore.Store, listLimit int) (*NotificationFacade, error) {
	if local == nil {
		return nil, errors.New("notification facade: local store is required")
	}
	if listLimit <= 0 {
		listLimit = 50
	}
	return &NotificationFacade{remote: remote, local: local, limit: listLimit, log: logger.WithModule("facade")}, nil
}

// Local exposes the fallback store for maintenance endpoints.
func (f *NotificationFacade) Local() *localstore.Store {
	return f.local
}

func (f *NotificationFacade) degrade(operation string, err error) {
	metrics.FacadeFallbacks.WithLabelValues(operation).Inc()
	f.log.Warn("remote notifications unavailable, using local store",
		zap.String("operation", operation),
		zap.Error(err))
}

var errNoRemote = errors.New("remote functions not configured")

// GetAllNotifications lists notifications visible to userID. A successful remote fetch is
// merged with entries that only exist locally and replaces that user's slice of the local
// mirror.
func (f *NotificationFacade) GetAllNotifications(ctx context.Context, userID string) Result[[]NotificationView] {
	ctx = ensureContext(ctx)

	remote, err := f.listRemote(ctx, userID)
	if err != nil {
		f.degrade("list", err)
		entries := f.local.GetByUser(ctx, userID)
		views := make([]NotificationView, 0, len(entries))
		for _, entry := range entries {
			views = append(views, ViewFromLocal(entry))
		}
		return Result[[]NotificationView]{Data: views, Source: DataSourceLocal}
	}

	var localOnly []NotificationView
	mirror := make([]localstore.Entry, 0, len(remote))
	for _, view := range remote {
		mirror = append(mirror, view.entry())
	}
	for _, entry := range f.local.GetAll(ctx) {
		if localstore.IsLocalID(entry.ID) && entry.VisibleTo(userID) {
			mirror = append(mirror, entry)
			localOnly = append(localOnly, ViewFromLocal(entry))
		}
	}
	if err := f.local.SyncUser(ctx, userID, mirror); err != nil {
		f.log.Warn("mirror remote notifications failed", zap.Error(err))
	}

	return Result[[]NotificationView]{Data: MergeViews(remote, localOnly), Source: DataSourceRemote}
}

func (f *NotificationFacade) listRemote(ctx context.Context, userID string) ([]NotificationView, error) {
	if f.remote == nil {
		return nil, errNoRemote
	}
	rows, err := f.remote.ListNotifications(ctx, userID, f.limit)
	if err != nil {
		return nil, err
	}
	views := make([]NotificationView, 0, len(rows))
	for _, row := range rows {
		views = append(views, ViewFromRemote(row))
	}
	return views, nil
}

// GetStats counts notifications visible to userID.
func (f *NotificationFacade) GetStats(ctx context.Context, userID string) Result[localstore.Stats] {
	ctx = ensureContext(ctx)

	if f.remote != nil {
		stats, err := f.remote.Stats(ctx, userID)
		if err == nil {
			if stats.ByType == nil {
				stats.ByType = map[string]int{}
			}
			return Result[localstore.Stats]{
				Data: localstore.Stats{
					Total:     stats.Total,
					Unread:    stats.Unread,
					Read:      stats.Read,
					Broadcast: stats.Broadcast,
					ByType:    stats.ByType,
				},
				Source: DataSourceRemote,
			}
		}
		f.degrade("stats", err)
	} else {
		f.degrade("stats", errNoRemote)
	}
	return Result[localstore.Stats]{Data: f.local.GetStats(ctx, userID), Source: DataSourceLocal}
}

// GetAnalytics returns the dashboard summary. The local version has no campaign data.
func (f *NotificationFacade) GetAnalytics(ctx context.Context) Result[functions.Analytics] {
	ctx = ensureContext(ctx)

	if f.remote != nil {
		analytics, err := f.remote.Analytics(ctx)
		if err == nil {
			return Result[functions.Analytics]{Data: analytics, Source: DataSourceRemote}
		}
		f.degrade("analytics", err)
	} else {
		f.degrade("analytics", errNoRemote)
	}

	entries := f.local.GetAll(ctx)
	out := functions.Analytics{ByType: map[string]int{}, ByDay: []functions.DayCount{}}
	read := 0
	days := map[string]int{}
	for _, entry := range entries {
		out.Total++
		out.ByType[entry.Type]++
		if entry.IsRead {
			read++
		}
		days[entry.Timestamp.UTC().Format(time.DateOnly)]++
	}
	if out.Total > 0 {
		out.ReadRate = float64(read) / float64(out.Total)
	}
	for day, count := range days {
		out.ByDay = append(out.ByDay, functions.DayCount{Date: day, Count: count})
	}
	sort.Slice(out.ByDay, func(i, j int) bool { return out.ByDay[i].Date < out.ByDay[j].Date })
	return Result[functions.Analytics]{Data: out, Source: DataSourceLocal}
}

// BulkOperation marks or deletes notifications on behalf of userID, which only reaches
// notifications targeted at that user. Ids minted by the local store are always handled
// locally; the rest go to the remote functions and fall back to the local mirror.
func (f *NotificationFacade) BulkOperation(ctx context.Context, userID string, ids []string, operation string) (Result[functions.BulkResult], error) {
	ctx = ensureContext(ctx)

	var localIDs, remoteIDs []string
	for _, id := range normaliseIDs(ids) {
		if localstore.IsLocalID(id) {
			localIDs = append(localIDs, id)
		} else {
			remoteIDs = append(remoteIDs, id)
		}
	}

	source := DataSourceLocal
	affected := 0
	if len(remoteIDs) > 0 {
		var err error = errNoRemote
		if f.remote != nil {
			var res functions.BulkResult
			res, err = f.remote.Bulk(ctx, userID, functions.BulkRequest{IDs: remoteIDs, Operation: operation})
			if err == nil {
				affected += res.Affected
				source = DataSourceRemote
			}
		}
		if err != nil {
			f.degrade("bulk", err)
			localIDs = append(localIDs, remoteIDs...)
		} else if _, lerr := f.applyLocal(ctx, userID, remoteIDs, operation); lerr != nil {
			f.log.Warn("mirror bulk operation failed", zap.Error(lerr))
		}
	}

	if len(localIDs) > 0 {
		n, err := f.applyLocal(ctx, userID, localIDs, operation)
		if err != nil {
			return Result[functions.BulkResult]{Source: source}, err
		}
		affected += n
	}
	return Result[functions.BulkResult]{Data: functions.BulkResult{Affected: affected}, Source: source}, nil
}

func (f *NotificationFacade) applyLocal(ctx context.Context, userID string, ids []string, operation string) (int, error) {
	switch operation {
	case functions.BulkMarkRead:
		return f.local.SetReadFor(ctx, userID, ids, true)
	case functions.BulkMarkUnread:
		return f.local.SetReadFor(ctx, userID, ids, false)
	case functions.BulkDelete:
		return f.local.DeleteManyFor(ctx, userID, ids)
	default:
		return 0, errors.New("operation must be one of mark_read, mark_unread, delete")
	}
}

// ScheduleNotification creates or schedules a notification. Locally there is no
// dispatcher, so the fallback stores the notification immediately.
func (f *NotificationFacade) ScheduleNotification(ctx context.Context, req functions.ScheduleRequest) Result[functions.ScheduleResult] {
	ctx = ensureContext(ctx)

	if f.remote != nil {
		res, err := f.remote.Schedule(ctx, req)
		if err == nil {
			return Result[functions.ScheduleResult]{Data: res, Source: DataSourceRemote}
		}
		f.degrade("schedule", err)
	} else {
		f.degrade("schedule", errNoRemote)
	}

	target := strings.TrimSpace(req.TargetUserID)
	if target == "" {
		target = localstore.BroadcastTarget
	}
	entry, err := f.local.Create(ctx, localstore.Entry{
		Type:         req.Type,
		Title:        req.Title,
		Message:      req.Message,
		ActionURL:    req.ActionURL,
		ImageURL:     req.ImageURL,
		TargetUserID: target,
	})
	if err != nil {
		f.log.Error("local schedule failed", zap.Error(err))
		return Result[functions.ScheduleResult]{Source: DataSourceLocal}
	}
	return Result[functions.ScheduleResult]{
		Data:   functions.ScheduleResult{ID: entry.ID, Kind: functions.KindNotification},
		Source: DataSourceLocal,
	}
}

// SegmentUsers resolves a user segment. The local fallback only knows users that
// appear as notification targets.
func (f *NotificationFacade) SegmentUsers(ctx context.Context, filters functions.SegmentFilters) Result[functions.SegmentResult] {
	ctx = ensureContext(ctx)

	if f.remote != nil {
		res, err := f.remote.Segments(ctx, functions.SegmentRequest{Filters: filters})
		if err == nil {
			if res.UserIDs == nil {
				res.UserIDs = []string{}
			}
			return Result[functions.SegmentResult]{Data: res, Source: DataSourceRemote}
		}
		f.degrade("segments", err)
	} else {
		f.degrade("segments", errNoRemote)
	}

	wanted := map[string]struct{}{}
	for _, id := range normaliseIDs(filters.UserIDs) {
		wanted[id] = struct{}{}
	}
	seen := map[string]struct{}{}
	users := []string{}
	for _, entry := range f.local.GetAll(ctx) {
		id := entry.TargetUserID
		if id == "" || id == localstore.BroadcastTarget {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[id]; !ok {
				continue
			}
		}
		seen[id] = struct{}{}
		users = append(users, id)
	}
	sort.Strings(users)
	return Result[functions.SegmentResult]{Data: functions.SegmentResult{UserIDs: users, Count: len(users)}, Source: DataSourceLocal}
}

// RunABTest splits users between two variants. The local fallback applies the same
// alternating split and stores one entry per user.
func (f *NotificationFacade) RunABTest(ctx context.Context, req functions.ABTestRequest) (Result[functions.ABTestResult], error) {
	ctx = ensureContext(ctx)

	if f.remote != nil {
		res, err := f.remote.ABTest(ctx, req)
		if err == nil {
			return Result[functions.ABTestResult]{Data: res, Source: DataSourceRemote}, nil
		}
		f.degrade("ab_test", err)
	} else {
		f.degrade("ab_test", errNoRemote)
	}

	users := normaliseIDs(req.UserIDs)
	sort.Strings(users)
	out := functions.ABTestResult{Name: req.Name, VariantA: []string{}, VariantB: []string{}}
	notificationType := defaultIfEmpty(req.Type, "marketing")
	for i, userID := range users {
		variant := req.VariantA
		if i%2 == 1 {
			variant = req.VariantB
		}
		if _, err := f.local.Create(ctx, localstore.Entry{
			Type:         notificationType,
			Title:        variant.Title,
			Message:      variant.Message,
			TargetUserID: userID,
		}); err != nil {
			return Result[functions.ABTestResult]{Data: out, Source: DataSourceLocal}, err
		}
		if i%2 == 1 {
			out.VariantB = append(out.VariantB, userID)
		} else {
			out.VariantA = append(out.VariantA, userID)
		}
		out.Created++
	}
	return Result[functions.ABTestResult]{Data: out, Source: DataSourceLocal}, nil
}
