package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/bitebell/internal/models"
	apperrors "github.com/charlesng35/bitebell/pkg/errors"
	"github.com/charlesng35/bitebell/pkg/logger"
)

// AutomationInput carries the writable automation fields.
type AutomationInput struct {
	Name             string                     `json:"name" validate:"required,max=255"`
	Description      string                     `json:"description,omitempty"`
	TriggerType      models.TriggerType         `json:"trigger_type" validate:"required"`
	Conditions       map[string]any             `json:"conditions,omitempty"`
	TemplateID       *string                    `json:"template_id,omitempty"`
	NotificationData models.NotificationContent `json:"notification_data"`
	TargetAudience   models.Audience            `json:"target_audience,omitempty" validate:"omitempty,oneof=all user admin segment"`
	IsActive         *bool                      `json:"is_active,omitempty"`
}

// AutomationPatch updates a subset of fields.
type AutomationPatch struct {
	Name             *string                     `json:"name,omitempty"`
	Description      *string                     `json:"description,omitempty"`
	TriggerType      *models.TriggerType         `json:"trigger_type,omitempty"`
	Conditions       map[string]any              `json:"conditions,omitempty"`
	TemplateID       *string                     `json:"template_id,omitempty"`
	ClearTemplate    bool                        `json:"clear_template,omitempty"`
	NotificationData *models.NotificationContent `json:"notification_data,omitempty"`
	TargetAudience   *models.Audience            `json:"target_audience,omitempty" validate:"omitempty,oneof=all user admin segment"`
	IsActive         *bool                       `json:"is_active,omitempty"`
}

// AutomationFilter narrows List.
type AutomationFilter struct {
	TriggerType models.TriggerType
	ActiveOnly  bool
}

// AutomationService manages automation rules.
type AutomationService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewAutomationService constructs an AutomationService.
func NewAutomationService(db *gorm.DB) (*AutomationService, error) {
	if db == nil {
		return nil, errors.New("automation service: db is required")
	}
	return &AutomationService{db: db, log: logger.WithModule("automations")}, nil
}

// List returns automations, newest first.
func (s *AutomationService) List(ctx context.Context, filter AutomationFilter) ([]models.NotificationAutomation, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.NotificationAutomation{})
	if filter.TriggerType != "" {
		query = query.Where("trigger_type = ?", filter.TriggerType)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	var rows []models.NotificationAutomation
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return []models.NotificationAutomation{}, fmt.Errorf("automation service: list: %w", err)
	}
	return rows, nil
}

// Get loads one automation.
func (s *AutomationService) Get(ctx context.Context, id string) (*models.NotificationAutomation, error) {
	ctx = ensureContext(ctx)

	var row models.NotificationAutomation
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("automation not found")
		}
		return nil, fmt.Errorf("automation service: get: %w", err)
	}
	return &row, nil
}

// Create persists a new automation rule.
func (s *AutomationService) Create(ctx context.Context, input AutomationInput) (*models.NotificationAutomation, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.NewBadRequest("name is required")
	}
	if !input.TriggerType.Valid() {
		return nil, apperrors.NewBadRequest("unknown trigger_type")
	}
	audience := input.TargetAudience
	if audience == "" {
		audience = models.AudienceAll
	}
	if !audience.Valid() {
		return nil, apperrors.NewBadRequest("unknown target_audience")
	}
	templateID, err := s.checkTemplate(ctx, input.TemplateID)
	if err != nil {
		return nil, err
	}

	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}

	row := models.NotificationAutomation{
		Name:             strings.TrimSpace(input.Name),
		Description:      strings.TrimSpace(input.Description),
		TriggerType:      input.TriggerType,
		Conditions:       datatypes.JSONMap(cloneMap(input.Conditions)),
		TemplateID:       templateID,
		NotificationData: datatypes.NewJSONType(input.NotificationData),
		TargetAudience:   audience,
		IsActive:         active,
	}

	// is_active defaults to true in the schema, so a false value must be written explicitly
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if active {
			return nil
		}
		return tx.Model(&row).Update("is_active", false).Error
	})
	if err != nil {
		return nil, fmt.Errorf("automation service: create: %w", err)
	}

	s.log.Info("automation created", zap.String("automation_id", row.ID), zap.String("trigger", string(row.TriggerType)))
	return &row, nil
}

// Update applies patch to an automation.
func (s *AutomationService) Update(ctx context.Context, id string, patch AutomationPatch) (*models.NotificationAutomation, error) {
	ctx = ensureContext(ctx)

	row, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, apperrors.NewBadRequest("name cannot be empty")
		}
		row.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		row.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.TriggerType != nil {
		if !patch.TriggerType.Valid() {
			return nil, apperrors.NewBadRequest("unknown trigger_type")
		}
		row.TriggerType = *patch.TriggerType
	}
	if patch.Conditions != nil {
		row.Conditions = datatypes.JSONMap(cloneMap(patch.Conditions))
	}
	if patch.ClearTemplate {
		row.TemplateID = nil
	} else if patch.TemplateID != nil {
		templateID, err := s.checkTemplate(ctx, patch.TemplateID)
		if err != nil {
			return nil, err
		}
		row.TemplateID = templateID
	}
	if patch.NotificationData != nil {
		row.NotificationData = datatypes.NewJSONType(*patch.NotificationData)
	}
	if patch.TargetAudience != nil {
		if !patch.TargetAudience.Valid() {
			return nil, apperrors.NewBadRequest("unknown target_audience")
		}
		row.TargetAudience = *patch.TargetAudience
	}
	if patch.IsActive != nil {
		row.IsActive = *patch.IsActive
	}

	if err := s.db.WithContext(ctx).Save(row).Error; err != nil {
		return nil, fmt.Errorf("automation service: update: %w", err)
	}
	return row, nil
}

// SetActive toggles an automation on or off.
func (s *AutomationService) SetActive(ctx context.Context, id string, active bool) (*models.NotificationAutomation, error) {
	return s.Update(ctx, id, AutomationPatch{IsActive: &active})
}

// Delete removes an automation.
func (s *AutomationService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	res := s.db.WithContext(ctx).Delete(&models.NotificationAutomation{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("automation service: delete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound.WithMessage("automation not found")
	}
	return nil
}

// ActiveForTrigger returns the active rules for a trigger in store order (newest first).
func (s *AutomationService) ActiveForTrigger(ctx context.Context, trigger models.TriggerType) ([]models.NotificationAutomation, error) {
	ctx = ensureContext(ctx)

	var rows []models.NotificationAutomation
	err := s.db.WithContext(ctx).
		Where("trigger_type = ? AND is_active = ?", trigger, true).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("automation service: active for %s: %w", trigger, err)
	}
	return rows, nil
}

func (s *AutomationService) checkTemplate(ctx context.Context, id *string) (*string, error) {
	templateID := optionalString(derefString(id))
	if templateID == nil {
		return nil, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.NotificationTemplate{}).Where("id = ?", *templateID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("automation service: check template: %w", err)
	}
	if count == 0 {
		return nil, apperrors.NewBadRequest("template_id does not reference a template")
	}
	return templateID, nil
}
