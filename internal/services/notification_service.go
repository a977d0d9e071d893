package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/bitebell/internal/functions"
	"github.com/charlesng35/bitebell/internal/models"
	"github.com/charlesng35/bitebell/internal/realtime"
	apperrors "github.com/charlesng35/bitebell/pkg/errors"
	"github.com/charlesng35/bitebell/pkg/logger"
	"github.com/charlesng35/bitebell/pkg/metrics"
)

// Notification origins used for metrics and metadata.
const (
	SourceAutomation = "automation"
	SourceFallback   = "fallback"
	SourceCampaign   = "campaign"
	SourceManual     = "manual"
	SourceABTest     = "ab_test"
)

// CreateNotificationInput defines attributes required to persist a notification.
// A nil TargetUserID with IsBroadcast set reaches every user.
type CreateNotificationInput struct {
	Type         models.NotificationType
	Title        string
	Message      string
	ImageURL     string
	ActionURL    string
	IsBroadcast  bool
	TargetUserID *string
	ProductID    *string
	DealID       *string
	AutomationID *string
	CampaignID   *string
	CreatedBy    *string
	Metadata     map[string]any
}

// ListNotificationsInput defines filters for querying notifications. An empty UserID
// lists every row.
type ListNotificationsInput struct {
	UserID     string
	Limit      int
	Offset     int
	UnreadOnly bool
}

// NotificationService reads and writes the notifications table.
type NotificationService struct {
	db      *gorm.DB
	emitter realtime.RefreshEmitter
	log     *zap.Logger
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(db *gorm.DB, emitter realtime.RefreshEmitter) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	if emitter == nil {
		emitter = realtime.NopEmitter{}
	}
	return &NotificationService{db: db, emitter: emitter, log: logger.WithModule("notifications")}, nil
}

// Insert persists a notification without signalling clients. Callers writing several
// rows emit one refresh afterwards.
func (s *NotificationService) Insert(ctx context.Context, input CreateNotificationInput, source string) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewBadRequest("title is required")
	}
	notificationType := input.Type
	if notificationType == "" {
		notificationType = models.NotificationTypeSystem
	}
	if !notificationType.Valid() {
		return nil, apperrors.NewBadRequest("unknown notification type")
	}

	target := input.TargetUserID
	if target != nil && (strings.TrimSpace(*target) == "" || *target == string(models.AudienceAll)) {
		target = nil
	}

	notification := models.Notification{
		Type:         notificationType,
		Title:        title,
		Message:      strings.TrimSpace(input.Message),
		ImageURL:     strings.TrimSpace(input.ImageURL),
		ActionURL:    strings.TrimSpace(input.ActionURL),
		IsBroadcast:  input.IsBroadcast,
		TargetUserID: target,
		ProductID:    input.ProductID,
		DealID:       input.DealID,
		AutomationID: input.AutomationID,
		CampaignID:   input.CampaignID,
		CreatedBy:    input.CreatedBy,
	}
	if len(input.Metadata) > 0 {
		notification.Metadata = cloneMap(input.Metadata)
	}

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}

	metrics.NotificationsCreated.WithLabelValues(source).Inc()
	return &notification, nil
}

// Create persists a notification and signals open clients.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*models.Notification, error) {
	notification, err := s.Insert(ctx, input, SourceManual)
	if err != nil {
		return nil, err
	}
	s.emitter.EmitRefresh()
	return notification, nil
}

func (s *NotificationService) visibleTo(query *gorm.DB, userID string) *gorm.DB {
	if userID == "" {
		return query
	}
	return query.Where("is_broadcast = ? OR target_user_id = ?", true, userID)
}

// List returns notifications visible to the user ordered by recency.
func (s *NotificationService) List(ctx context.Context, input ListNotificationsInput) ([]functions.Notification, error) {
	ctx = ensureContext(ctx)

	limit := input.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := s.visibleTo(s.db.WithContext(ctx).Model(&models.Notification{}), strings.TrimSpace(input.UserID))
	if input.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var rows []models.Notification
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(max(0, input.Offset)).
		Find(&rows).Error; err != nil {
		return []functions.Notification{}, fmt.Errorf("notification service: list notifications: %w", err)
	}

	out := make([]functions.Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, ToWire(row))
	}
	return out, nil
}

// Stats counts notifications visible to the user.
func (s *NotificationService) Stats(ctx context.Context, userID string) (functions.Stats, error) {
	ctx = ensureContext(ctx)

	type row struct {
		Type        string
		IsRead      bool
		IsBroadcast bool
		Count       int
	}
	var rows []row
	query := s.visibleTo(s.db.WithContext(ctx).Model(&models.Notification{}), strings.TrimSpace(userID))
	if err := query.
		Select("type, is_read, is_broadcast, COUNT(*) AS count").
		Group("type, is_read, is_broadcast").
		Scan(&rows).Error; err != nil {
		return functions.Stats{ByType: map[string]int{}}, fmt.Errorf("notification service: stats: %w", err)
	}

	stats := functions.Stats{ByType: map[string]int{}}
	for _, r := range rows {
		stats.Total += r.Count
		if r.IsRead {
			stats.Read += r.Count
		} else {
			stats.Unread += r.Count
		}
		if r.IsBroadcast {
			stats.Broadcast += r.Count
		}
		stats.ByType[r.Type] += r.Count
	}
	return stats, nil
}

// Bulk applies a read/unread/delete operation to the listed notifications. When userID is
// set only rows targeted at that user are touched; broadcast rows are shared by every
// user and stay unchanged.
func (s *NotificationService) Bulk(ctx context.Context, userID string, req functions.BulkRequest) (functions.BulkResult, error) {
	ctx = ensureContext(ctx)

	ids := normaliseIDs(req.IDs)
	if len(ids) == 0 {
		return functions.BulkResult{}, apperrors.NewBadRequest("ids are required")
	}

	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("id IN ?", ids)
	if userID = strings.TrimSpace(userID); userID != "" {
		query = query.Where("is_broadcast = ? AND target_user_id = ?", false, userID)
	}

	var res *gorm.DB
	switch req.Operation {
	case functions.BulkMarkRead:
		res = query.Updates(map[string]any{"is_read": true, "read_at": time.Now().UTC()})
	case functions.BulkMarkUnread:
		res = query.Updates(map[string]any{"is_read": false, "read_at": nil})
	case functions.BulkDelete:
		res = query.Delete(&models.Notification{})
	default:
		return functions.BulkResult{}, apperrors.NewBadRequest("operation must be one of mark_read, mark_unread, delete")
	}
	if res.Error != nil {
		return functions.BulkResult{}, fmt.Errorf("notification service: bulk %s: %w", req.Operation, res.Error)
	}

	if res.RowsAffected > 0 {
		s.emitter.EmitRefresh()
	}
	return functions.BulkResult{Affected: int(res.RowsAffected)}, nil
}

// ToWire converts a row into the snake_case payload served by the functions API.
func ToWire(row models.Notification) functions.Notification {
	out := functions.Notification{
		ID:           row.ID,
		Type:         string(row.Type),
		Title:        row.Title,
		Message:      row.Message,
		ImageURL:     row.ImageURL,
		ActionURL:    row.ActionURL,
		IsBroadcast:  row.IsBroadcast,
		TargetUserID: row.TargetUserID,
		ProductID:    row.ProductID,
		DealID:       row.DealID,
		AutomationID: row.AutomationID,
		CampaignID:   row.CampaignID,
		CreatedBy:    row.CreatedBy,
		IsRead:       row.IsRead,
		CreatedAt:    row.CreatedAt,
	}
	if len(row.Metadata) > 0 {
		out.Metadata = map[string]any(row.Metadata)
	}
	return out
}
