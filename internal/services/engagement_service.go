package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/bitebell/internal/functions"
	"github.com/charlesng35/bitebell/internal/models"
	"github.com/charlesng35/bitebell/internal/realtime"
	apperrors "github.com/charlesng35/bitebell/pkg/errors"
	"github.com/charlesng35/bitebell/pkg/logger"
)

// analyticsWindow is how many trailing days Analytics breaks down by day.
const analyticsWindow = 7

// EngagementService backs the schedule, analytics, segments and A/B test functions.
type EngagementService struct {
	db            *gorm.DB
	notifications *NotificationService
	campaigns     *CampaignService
	emitter       realtime.RefreshEmitter
	now           func() time.Time
	log           *zap.Logger
}

// NewEngagementService constructs an EngagementService.
func NewEngagementService(db *gorm.DB, notifications *NotificationService, campaigns *CampaignService, emitter realtime.RefreshEmitter) (*EngagementService, error) {
	if db == nil || notifications == nil || campaigns == nil {
		return nil, errors.New("engagement service: db, notifications and campaigns are required")
	}
	if emitter == nil {
		emitter = realtime.NopEmitter{}
	}
	return &EngagementService{
		db:            db,
		notifications: notifications,
		campaigns:     campaigns,
		emitter:       emitter,
		now:           time.Now,
		log:           logger.WithModule("engagement"),
	}, nil
}

// Schedule creates a notification right away or, when ScheduledAt lies in the future, a
// scheduled campaign carrying the same content.
func (s *EngagementService) Schedule(ctx context.Context, createdBy string, req functions.ScheduleRequest) (functions.ScheduleResult, error) {
	ctx = ensureContext(ctx)

	notificationType := models.NotificationType(strings.TrimSpace(req.Type))
	if !notificationType.Valid() {
		return functions.ScheduleResult{}, apperrors.NewBadRequest("unknown notification type")
	}

	if req.ScheduledAt != nil && req.ScheduledAt.After(s.now()) {
		campaignType := models.CampaignTypeSystem
		if notificationType == models.NotificationTypePromo || notificationType == models.NotificationTypeMarketing {
			campaignType = models.CampaignTypePromo
		}
		campaign, err := s.campaigns.Create(ctx, CampaignInput{
			Name:           req.Title,
			Type:           campaignType,
			TargetAudience: models.AudienceAll,
			ScheduleType:   models.ScheduleScheduled,
			ScheduledAt:    req.ScheduledAt,
			NotificationData: models.NotificationContent{
				Title:     req.Title,
				Message:   req.Message,
				ImageURL:  req.ImageURL,
				ActionURL: req.ActionURL,
			},
			CreatedBy: createdBy,
		})
		if err != nil {
			return functions.ScheduleResult{}, err
		}
		return functions.ScheduleResult{ID: campaign.ID, Kind: functions.KindCampaign, ScheduledAt: campaign.ScheduledAt}, nil
	}

	target := optionalString(req.TargetUserID)
	notification, err := s.notifications.Create(ctx, CreateNotificationInput{
		Type:         notificationType,
		Title:        req.Title,
		Message:      req.Message,
		ImageURL:     req.ImageURL,
		ActionURL:    req.ActionURL,
		IsBroadcast:  target == nil || *target == string(models.AudienceAll),
		TargetUserID: target,
		CreatedBy:    optionalString(createdBy),
	})
	if err != nil {
		return functions.ScheduleResult{}, err
	}
	return functions.ScheduleResult{ID: notification.ID, Kind: functions.KindNotification}, nil
}

// Analytics summarises delivery and read rates across every notification.
func (s *EngagementService) Analytics(ctx context.Context) (functions.Analytics, error) {
	ctx = ensureContext(ctx)
	out := functions.Analytics{ByType: map[string]int{}, ByDay: []functions.DayCount{}}

	stats, err := s.notifications.Stats(ctx, "")
	if err != nil {
		return out, err
	}
	out.Total = stats.Total
	out.ByType = stats.ByType
	if stats.Total > 0 {
		out.ReadRate = float64(stats.Read) / float64(stats.Total)
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(analyticsWindow - 1))

	var stamps []time.Time
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("created_at >= ?", since).
		Pluck("created_at", &stamps).Error; err != nil {
		return out, fmt.Errorf("engagement service: analytics by day: %w", err)
	}
	counts := make(map[string]int, analyticsWindow)
	for _, ts := range stamps {
		counts[ts.UTC().Format(time.DateOnly)]++
	}
	for i := 0; i < analyticsWindow; i++ {
		day := since.AddDate(0, 0, i).Format(time.DateOnly)
		out.ByDay = append(out.ByDay, functions.DayCount{Date: day, Count: counts[day]})
	}

	type statusRow struct {
		Status models.CampaignStatus
		Count  int
		Sent   int
	}
	var rows []statusRow
	if err := s.db.WithContext(ctx).Model(&models.NotificationCampaign{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(sent_count), 0) AS sent").
		Group("status").
		Scan(&rows).Error; err != nil {
		return out, fmt.Errorf("engagement service: analytics campaigns: %w", err)
	}
	for _, r := range rows {
		out.Campaigns.Total += r.Count
		out.Campaigns.SentTotal += r.Sent
		switch r.Status {
		case models.CampaignScheduled:
			out.Campaigns.Scheduled += r.Count
		case models.CampaignActive:
			out.Campaigns.Active += r.Count
		case models.CampaignCompleted:
			out.Campaigns.Completed += r.Count
		}
	}
	return out, nil
}

// Segments returns the ids of users matching every non-zero filter.
func (s *EngagementService) Segments(ctx context.Context, filters functions.SegmentFilters) (functions.SegmentResult, error) {
	ctx = ensureContext(ctx)
	now := s.now().UTC()

	query := s.db.WithContext(ctx).Model(&models.User{})
	if role := strings.TrimSpace(filters.Role); role != "" {
		query = query.Where("role = ?", role)
	}
	if filters.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if filters.MinOrders > 0 {
		query = query.Where("order_count >= ?", filters.MinOrders)
	}
	if filters.MaxOrders != nil {
		query = query.Where("order_count <= ?", *filters.MaxOrders)
	}
	if filters.InactiveDays > 0 {
		cutoff := now.AddDate(0, 0, -filters.InactiveDays)
		query = query.Where("last_order_at IS NULL OR last_order_at < ?", cutoff)
	}
	if filters.RegisteredWithin > 0 {
		query = query.Where("created_at >= ?", now.AddDate(0, 0, -filters.RegisteredWithin))
	}
	if ids := normaliseIDs(filters.UserIDs); len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}

	var ids []string
	if err := query.Order("created_at ASC").Pluck("id", &ids).Error; err != nil {
		return functions.SegmentResult{UserIDs: []string{}}, fmt.Errorf("engagement service: segments: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return functions.SegmentResult{UserIDs: ids, Count: len(ids)}, nil
}

// ABTest splits users between two variants and sends each user the variant assigned to
// them. The split is deterministic: users are sorted and alternate between A and B.
func (s *EngagementService) ABTest(ctx context.Context, createdBy string, req functions.ABTestRequest) (functions.ABTestResult, error) {
	ctx = ensureContext(ctx)

	users := normaliseIDs(req.UserIDs)
	if len(users) == 0 {
		return functions.ABTestResult{}, apperrors.NewBadRequest("user_ids are required")
	}
	notificationType := models.NotificationType(defaultIfEmpty(req.Type, string(models.NotificationTypeMarketing)))
	if !notificationType.Valid() {
		return functions.ABTestResult{}, apperrors.NewBadRequest("unknown notification type")
	}
	sort.Strings(users)

	result := functions.ABTestResult{Name: req.Name, VariantA: []string{}, VariantB: []string{}}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txNotifications := &NotificationService{db: tx, emitter: realtime.NopEmitter{}, log: s.notifications.log}
		for i, userID := range users {
			variant, label := req.VariantA, "A"
			if i%2 == 1 {
				variant, label = req.VariantB, "B"
			}
			target := userID
			if _, err := txNotifications.Insert(ctx, CreateNotificationInput{
				Type:         notificationType,
				Title:        variant.Title,
				Message:      variant.Message,
				TargetUserID: &target,
				CreatedBy:    optionalString(createdBy),
				Metadata:     map[string]any{"ab_test": req.Name, "variant": label},
			}, SourceABTest); err != nil {
				return err
			}
			if label == "A" {
				result.VariantA = append(result.VariantA, userID)
			} else {
				result.VariantB = append(result.VariantB, userID)
			}
			result.Created++
		}
		return nil
	})
	if err != nil {
		return functions.ABTestResult{}, fmt.Errorf("engagement service: ab test %q: %w", req.Name, err)
	}

	s.log.Info("ab test sent",
		zap.String("name", req.Name),
		zap.Int("variant_a", len(result.VariantA)),
		zap.Int("variant_b", len(result.VariantB)))
	s.emitter.EmitRefresh()
	return result, nil
}
