package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/bitebell/internal/models"
	"github.com/charlesng35/bitebell/internal/realtime"
	apperrors "github.com/charlesng35/bitebell/pkg/errors"
	"github.com/charlesng35/bitebell/pkg/logger"
	"github.com/charlesng35/bitebell/pkg/metrics"
)

// CampaignInput carries the writable campaign fields.
type CampaignInput struct {
	Name              string                     `json:"name" validate:"required,max=255"`
	Description       string                     `json:"description,omitempty"`
	Type              models.CampaignType        `json:"type,omitempty"`
	TargetAudience    models.Audience            `json:"target_audience,omitempty" validate:"omitempty,oneof=all user admin segment"`
	AudienceSegment   map[string]any             `json:"audience_segment,omitempty"`
	ScheduleType      models.ScheduleType        `json:"schedule_type,omitempty" validate:"omitempty,oneof=immediate scheduled recurring"`
	ScheduledAt       *time.Time                 `json:"scheduled_at,omitempty"`
	RecurrencePattern map[string]any             `json:"recurrence_pattern,omitempty"`
	NotificationData  models.NotificationContent `json:"notification_data"`
	CreatedBy         string                     `json:"-"`
}

// CampaignPatch updates a subset of fields of a campaign that has not been sent yet.
type CampaignPatch struct {
	Name              *string                     `json:"name,omitempty"`
	Description       *string                     `json:"description,omitempty"`
	Type              *models.CampaignType        `json:"type,omitempty"`
	TargetAudience    *models.Audience            `json:"target_audience,omitempty" validate:"omitempty,oneof=all user admin segment"`
	AudienceSegment   map[string]any              `json:"audience_segment,omitempty"`
	ScheduleType      *models.ScheduleType        `json:"schedule_type,omitempty" validate:"omitempty,oneof=immediate scheduled recurring"`
	ScheduledAt       *time.Time                  `json:"scheduled_at,omitempty"`
	RecurrencePattern map[string]any              `json:"recurrence_pattern,omitempty"`
	NotificationData  *models.NotificationContent `json:"notification_data,omitempty"`
}

// CampaignFilter narrows List.
type CampaignFilter struct {
	Status models.CampaignStatus
}

// ProcessResult summarises one dispatcher pass.
type ProcessResult struct {
	Due       int      `json:"due"`
	Sent      []string `json:"sent"`
	Skipped   []string `json:"skipped"`
	Failed    []string `json:"failed"`
	Rearmed   []string `json:"rearmed"`
	Completed []string `json:"completed"`
	GaveUp    []string `json:"gave_up"`
}

// Retry defaults for scheduled sends that fail.
const (
	DefaultCampaignMaxAttempts = 5
	DefaultCampaignRetryDelay  = time.Minute
	maxCampaignRetryDelay      = time.Hour
)

// CampaignService manages and dispatches campaigns.
type CampaignService struct {
	db            *gorm.DB
	notifications *NotificationService
	emitter       realtime.RefreshEmitter
	now           func() time.Time
	log           *zap.Logger

	maxAttempts int
	retryDelay  time.Duration
}

// CampaignOption customises a CampaignService.
type CampaignOption func(*CampaignService)

// WithCampaignClock overrides the clock used to pick due campaigns.
func WithCampaignClock(now func() time.Time) CampaignOption {
	return func(s *CampaignService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCampaignRetry sets how often a failing scheduled campaign is retried and the first
// retry delay, which doubles after every further failure.
func WithCampaignRetry(maxAttempts int, delay time.Duration) CampaignOption {
	return func(s *CampaignService) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if delay > 0 {
			s.retryDelay = delay
		}
	}
}

// NewCampaignService constructs a CampaignService.
func NewCampaignService(db *gorm.DB, notifications *NotificationService, emitter realtime.RefreshEmitter, opts ...CampaignOption) (*CampaignService, error) {
	if db == nil {
		return nil, errors.New("campaign service: db is required")
	}
	if notifications == nil {
		return nil, errors.New("campaign service: notification service is required")
	}
	if emitter == nil {
		emitter = realtime.NopEmitter{}
	}
	s := &CampaignService{
		db:            db,
		notifications: notifications,
		emitter:       emitter,
		now:           time.Now,
		log:           logger.WithModule("campaigns"),
		maxAttempts:   DefaultCampaignMaxAttempts,
		retryDelay:    DefaultCampaignRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// List returns campaigns, newest first.
func (s *CampaignService) List(ctx context.Context, filter CampaignFilter) ([]models.NotificationCampaign, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.NotificationCampaign{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var rows []models.NotificationCampaign
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return []models.NotificationCampaign{}, fmt.Errorf("campaign service: list: %w", err)
	}
	return rows, nil
}

// Get loads one campaign.
func (s *CampaignService) Get(ctx context.Context, id string) (*models.NotificationCampaign, error) {
	ctx = ensureContext(ctx)

	var row models.NotificationCampaign
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("campaign not found")
		}
		return nil, fmt.Errorf("campaign service: get: %w", err)
	}
	return &row, nil
}

// Create persists a campaign. Scheduled and recurring campaigns start in the scheduled
// state; immediate ones start as drafts until SendNow is called.
func (s *CampaignService) Create(ctx context.Context, input CampaignInput) (*models.NotificationCampaign, error) {
	ctx = ensureContext(ctx)

	row := models.NotificationCampaign{
		Name:              strings.TrimSpace(input.Name),
		Description:       strings.TrimSpace(input.Description),
		Type:              input.Type,
		TargetAudience:    input.TargetAudience,
		AudienceSegment:   datatypes.JSONMap(cloneMap(input.AudienceSegment)),
		ScheduleType:      input.ScheduleType,
		ScheduledAt:       input.ScheduledAt,
		RecurrencePattern: datatypes.JSONMap(cloneMap(input.RecurrencePattern)),
		NotificationData:  datatypes.NewJSONType(input.NotificationData),
		CreatedBy:         optionalString(input.CreatedBy),
	}
	if row.Type == "" {
		row.Type = models.CampaignTypePromo
	}
	if row.TargetAudience == "" {
		row.TargetAudience = models.AudienceAll
	}
	if row.ScheduleType == "" {
		row.ScheduleType = models.ScheduleImmediate
	}
	if err := s.normalise(&row); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("campaign service: create: %w", err)
	}

	s.log.Info("campaign created",
		zap.String("campaign_id", row.ID),
		zap.String("schedule_type", string(row.ScheduleType)),
		zap.String("status", string(row.Status)))
	return &row, nil
}

// normalise validates a campaign and derives its status from the schedule.
func (s *CampaignService) normalise(row *models.NotificationCampaign) error {
	if row.Name == "" {
		return apperrors.NewBadRequest("name is required")
	}
	content := row.NotificationData.Data()
	if strings.TrimSpace(content.Title) == "" || strings.TrimSpace(content.Message) == "" {
		return apperrors.NewBadRequest("notification_data.title and notification_data.message are required")
	}
	if !row.TargetAudience.Valid() {
		return apperrors.NewBadRequest("unknown target_audience")
	}

	switch row.ScheduleType {
	case models.ScheduleImmediate:
		row.ScheduledAt = nil
		row.Status = models.CampaignDraft
	case models.ScheduleScheduled:
		if row.ScheduledAt == nil || row.ScheduledAt.IsZero() {
			return apperrors.NewBadRequest("scheduled_at is required for scheduled campaigns")
		}
		at := row.ScheduledAt.UTC()
		row.ScheduledAt = &at
		row.Status = models.CampaignScheduled
	case models.ScheduleRecurring:
		if row.ScheduledAt == nil || row.ScheduledAt.IsZero() {
			next, err := NextOccurrence(row.RecurrencePattern, s.now())
			if err != nil {
				return apperrors.NewBadRequest(err.Error())
			}
			row.ScheduledAt = &next
		} else if _, err := NextOccurrence(row.RecurrencePattern, s.now()); err != nil {
			return apperrors.NewBadRequest(err.Error())
		}
		at := row.ScheduledAt.UTC()
		row.ScheduledAt = &at
		row.Status = models.CampaignScheduled
	default:
		return apperrors.NewBadRequest("unknown schedule_type")
	}
	return nil
}

// Update edits a campaign that is still a draft or scheduled.
func (s *CampaignService) Update(ctx context.Context, id string, patch CampaignPatch) (*models.NotificationCampaign, error) {
	ctx = ensureContext(ctx)

	row, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if row.Status != models.CampaignDraft && row.Status != models.CampaignScheduled {
		return nil, apperrors.ErrConflict.WithMessage("only draft or scheduled campaigns can be edited")
	}

	if patch.Name != nil {
		row.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		row.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Type != nil {
		row.Type = *patch.Type
	}
	if patch.TargetAudience != nil {
		row.TargetAudience = *patch.TargetAudience
	}
	if patch.AudienceSegment != nil {
		row.AudienceSegment = datatypes.JSONMap(cloneMap(patch.AudienceSegment))
	}
	if patch.ScheduleType != nil {
		row.ScheduleType = *patch.ScheduleType
	}
	if patch.ScheduledAt != nil {
		row.ScheduledAt = patch.ScheduledAt
	}
	if patch.RecurrencePattern != nil {
		row.RecurrencePattern = datatypes.JSONMap(cloneMap(patch.RecurrencePattern))
	}
	if patch.NotificationData != nil {
		row.NotificationData = datatypes.NewJSONType(*patch.NotificationData)
	}
	if err := s.normalise(row); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Save(row).Error; err != nil {
		return nil, fmt.Errorf("campaign service: update: %w", err)
	}
	return row, nil
}

// Delete removes a campaign. Notifications it already produced are kept.
func (s *CampaignService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	res := s.db.WithContext(ctx).Delete(&models.NotificationCampaign{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("campaign service: delete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound.WithMessage("campaign not found")
	}
	return nil
}

// Cancel moves a campaign into the cancelled state from any other state.
func (s *CampaignService) Cancel(ctx context.Context, id string) (*models.NotificationCampaign, error) {
	ctx = ensureContext(ctx)

	res := s.db.WithContext(ctx).Model(&models.NotificationCampaign{}).
		Where("id = ?", id).
		Update("status", models.CampaignCancelled)
	if res.Error != nil {
		return nil, fmt.Errorf("campaign service: cancel: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.ErrNotFound.WithMessage("campaign not found")
	}
	return s.Get(ctx, id)
}

// Send inserts one broadcast notification for the campaign, increments sent_count and
// signals clients. Errors are returned so callers decide how to react.
func (s *CampaignService) Send(ctx context.Context, campaign *models.NotificationCampaign) (*models.Notification, error) {
	ctx = ensureContext(ctx)
	if campaign == nil {
		return nil, errors.New("campaign service: campaign is required")
	}

	notificationType := models.NotificationTypeSystem
	if campaign.Type == models.CampaignTypePromo {
		notificationType = models.NotificationTypePromo
	}
	content := campaign.NotificationData.Data()
	campaignID := campaign.ID

	var notification *models.Notification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txNotifications := &NotificationService{db: tx, emitter: realtime.NopEmitter{}, log: s.notifications.log}
		created, err := txNotifications.Insert(ctx, CreateNotificationInput{
			Type:        notificationType,
			Title:       content.Title,
			Message:     content.Message,
			ImageURL:    content.ImageURL,
			ActionURL:   content.ActionURL,
			IsBroadcast: true,
			CampaignID:  &campaignID,
			CreatedBy:   campaign.CreatedBy,
			Metadata: map[string]any{
				"campaign_name": campaign.Name,
				"campaign_type": string(campaign.Type),
				"audience":      string(campaign.TargetAudience),
			},
		}, SourceCampaign)
		if err != nil {
			return err
		}
		notification = created

		now := s.now().UTC()
		return tx.Model(&models.NotificationCampaign{}).
			Where("id = ?", campaign.ID).
			Updates(map[string]any{
				"sent_count":   gorm.Expr("sent_count + ?", 1),
				"last_sent_at": now,
			}).Error
	})
	if err != nil {
		metrics.CampaignDispatches.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("campaign service: send %s: %w", campaign.ID, err)
	}

	campaign.SentCount++
	metrics.CampaignDispatches.WithLabelValues("success").Inc()
	s.emitter.EmitRefresh()
	return notification, nil
}

// SendNow dispatches a draft, scheduled or failed campaign immediately (draft -> active -> completed).
func (s *CampaignService) SendNow(ctx context.Context, id string) (*models.NotificationCampaign, error) {
	ctx = ensureContext(ctx)

	claimed, err := s.claim(ctx, id, models.CampaignDraft, models.CampaignScheduled, models.CampaignFailed)
	if err != nil {
		return nil, err
	}
	if !claimed {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, apperrors.ErrConflict.WithMessage("campaign is not in a sendable state")
	}

	campaign, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.Send(ctx, campaign); err != nil {
		s.release(ctx, id, models.CampaignDraft)
		return nil, err
	}
	if err := s.setStatus(ctx, id, models.CampaignCompleted, nil); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// ProcessScheduled dispatches every scheduled campaign whose time has come. Each
// campaign is claimed with a conditional update first, so concurrent passes never
// send the same campaign twice. One campaign failing never stops the batch.
func (s *CampaignService) ProcessScheduled(ctx context.Context) (ProcessResult, error) {
	ctx = ensureContext(ctx)
	result := ProcessResult{Sent: []string{}, Skipped: []string{}, Failed: []string{}, Rearmed: []string{}, Completed: []string{}, GaveUp: []string{}}

	var due []models.NotificationCampaign
	if err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", models.CampaignScheduled, s.now().UTC()).
		Order("scheduled_at ASC").
		Find(&due).Error; err != nil {
		return result, fmt.Errorf("campaign service: load due campaigns: %w", err)
	}
	result.Due = len(due)

	var errs error
	for i := range due {
		campaign := &due[i]
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}

		claimed, err := s.claim(ctx, campaign.ID, models.CampaignScheduled)
		if err != nil {
			errs = multierr.Append(errs, err)
			result.Failed = append(result.Failed, campaign.ID)
			continue
		}
		if !claimed {
			metrics.CampaignDispatches.WithLabelValues("skipped").Inc()
			result.Skipped = append(result.Skipped, campaign.ID)
			continue
		}

		if _, err := s.Send(ctx, campaign); err != nil {
			s.log.Warn("scheduled campaign failed", zap.String("campaign_id", campaign.ID), zap.Error(err))
			errs = multierr.Append(errs, err)
			result.Failed = append(result.Failed, campaign.ID)
			if s.recordFailure(ctx, campaign, err) {
				result.GaveUp = append(result.GaveUp, campaign.ID)
			}
			continue
		}
		result.Sent = append(result.Sent, campaign.ID)

		if campaign.ScheduleType == models.ScheduleRecurring {
			if next, err := NextOccurrence(campaign.RecurrencePattern, s.now()); err == nil {
				if err := s.setStatus(ctx, campaign.ID, models.CampaignScheduled, &next); err != nil {
					errs = multierr.Append(errs, err)
				} else {
					result.Rearmed = append(result.Rearmed, campaign.ID)
				}
				continue
			} else {
				s.log.Warn("recurrence pattern invalid, completing campaign", zap.String("campaign_id", campaign.ID), zap.Error(err))
			}
		}

		if err := s.setStatus(ctx, campaign.ID, models.CampaignCompleted, nil); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		result.Completed = append(result.Completed, campaign.ID)
	}

	if len(result.Sent) > 0 || len(result.Failed) > 0 {
		s.log.Info("campaign pass finished",
			zap.Int("due", result.Due),
			zap.Int("sent", len(result.Sent)),
			zap.Int("failed", len(result.Failed)))
	}
	return result, errs
}

// claim atomically moves a campaign from one of the given states to active.
func (s *CampaignService) claim(ctx context.Context, id string, from ...models.CampaignStatus) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.NotificationCampaign{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", models.CampaignActive)
	if res.Error != nil {
		return false, fmt.Errorf("campaign service: claim %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// release returns a claimed campaign to status after a failed send.
func (s *CampaignService) release(ctx context.Context, id string, status models.CampaignStatus) {
	err := s.db.WithContext(context.WithoutCancel(ctx)).Model(&models.NotificationCampaign{}).
		Where("id = ? AND status = ?", id, models.CampaignActive).
		Update("status", status).Error
	if err != nil {
		s.log.Error("release campaign failed", zap.String("campaign_id", id), zap.Error(err))
	}
}

// recordFailure returns a claimed campaign to scheduled with a backed-off send time, or
// marks it failed once it has used up its attempts. It reports whether it gave up.
func (s *CampaignService) recordFailure(ctx context.Context, campaign *models.NotificationCampaign, cause error) bool {
	failures := campaign.FailureCount + 1
	updates := map[string]any{
		"failure_count": failures,
		"last_error":    cause.Error(),
	}
	gaveUp := failures >= s.maxAttempts
	if gaveUp {
		updates["status"] = models.CampaignFailed
	} else {
		updates["status"] = models.CampaignScheduled
		updates["scheduled_at"] = s.now().UTC().Add(s.backoff(failures))
	}

	err := s.db.WithContext(context.WithoutCancel(ctx)).Model(&models.NotificationCampaign{}).
		Where("id = ? AND status = ?", campaign.ID, models.CampaignActive).
		Updates(updates).Error
	if err != nil {
		s.log.Error("record campaign failure", zap.String("campaign_id", campaign.ID), zap.Error(err))
		return false
	}
	if gaveUp {
		metrics.CampaignDispatches.WithLabelValues("abandoned").Inc()
		s.log.Error("scheduled campaign abandoned",
			zap.String("campaign_id", campaign.ID),
			zap.Int("attempts", failures),
			zap.Error(cause))
	}
	return gaveUp
}

func (s *CampaignService) backoff(failures int) time.Duration {
	delay := s.retryDelay
	for i := 1; i < failures && delay < maxCampaignRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxCampaignRetryDelay)
}

func (s *CampaignService) setStatus(ctx context.Context, id string, status models.CampaignStatus, scheduledAt *time.Time) error {
	updates := map[string]any{"status": status, "failure_count": 0, "last_error": ""}
	if scheduledAt != nil {
		updates["scheduled_at"] = scheduledAt.UTC()
	}
	err := s.db.WithContext(ctx).Model(&models.NotificationCampaign{}).
		Where("id = ? AND status = ?", id, models.CampaignActive).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("campaign service: set status %s: %w", status, err)
	}
	return nil
}
