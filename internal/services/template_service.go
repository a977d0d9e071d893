package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/bitebell/internal/models"
	apperrors "github.com/charlesng35/bitebell/pkg/errors"
	"github.com/charlesng35/bitebell/pkg/logger"
	"github.com/charlesng35/bitebell/pkg/templating"
)

// TemplateInput carries the writable template fields. Variables is never accepted from
// callers; it is derived from the template text.
type TemplateInput struct {
	Name            string                  `json:"name" validate:"required,max=255"`
	Type            models.NotificationType `json:"type" validate:"required,oneof=order promo reward delivery system marketing"`
	TitleTemplate   string                  `json:"title_template" validate:"required"`
	MessageTemplate string                  `json:"message_template" validate:"required"`
	ImageURL        string                  `json:"image_url,omitempty"`
	ActionURL       string                  `json:"action_url,omitempty"`
	IsDefault       bool                    `json:"is_default"`
}

// TemplatePatch updates a subset of fields.
type TemplatePatch struct {
	Name            *string                  `json:"name,omitempty"`
	Type            *models.NotificationType `json:"type,omitempty" validate:"omitempty,oneof=order promo reward delivery system marketing"`
	TitleTemplate   *string                  `json:"title_template,omitempty"`
	MessageTemplate *string                  `json:"message_template,omitempty"`
	ImageURL        *string                  `json:"image_url,omitempty"`
	ActionURL       *string                  `json:"action_url,omitempty"`
	IsDefault       *bool                    `json:"is_default,omitempty"`
}

// PreviewInput renders a stored template (TemplateID) or inline text.
type PreviewInput struct {
	TemplateID      string         `json:"template_id,omitempty"`
	TitleTemplate   string         `json:"title_template,omitempty"`
	MessageTemplate string         `json:"message_template,omitempty"`
	Variables       map[string]any `json:"variables"`
}

// PreviewResult is the rendered text plus the placeholders detected in the source.
type PreviewResult struct {
	Title     string   `json:"title"`
	Message   string   `json:"message"`
	Variables []string `json:"variables"`
}

// TemplateService manages notification templates.
type TemplateService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewTemplateService constructs a TemplateService.
func NewTemplateService(db *gorm.DB) (*TemplateService, error) {
	if db == nil {
		return nil, errors.New("template service: db is required")
	}
	return &TemplateService{db: db, log: logger.WithModule("templates")}, nil
}

// List returns every template, newest first. Failures yield an empty slice alongside the error.
func (s *TemplateService) List(ctx context.Context) ([]models.NotificationTemplate, error) {
	ctx = ensureContext(ctx)

	var rows []models.NotificationTemplate
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return []models.NotificationTemplate{}, fmt.Errorf("template service: list: %w", err)
	}
	return rows, nil
}

// Get loads one template.
func (s *TemplateService) Get(ctx context.Context, id string) (*models.NotificationTemplate, error) {
	ctx = ensureContext(ctx)
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.NewBadRequest("template id is required")
	}

	var tmpl models.NotificationTemplate
	if err := s.db.WithContext(ctx).First(&tmpl, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("template not found")
		}
		return nil, fmt.Errorf("template service: get: %w", err)
	}
	return &tmpl, nil
}

// Create persists a template with variables derived from its text.
func (s *TemplateService) Create(ctx context.Context, input TemplateInput) (*models.NotificationTemplate, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(input.Name) == "" || strings.TrimSpace(input.TitleTemplate) == "" {
		return nil, apperrors.NewBadRequest("name and title_template are required")
	}
	if !input.Type.Valid() {
		return nil, apperrors.NewBadRequest("unknown template type")
	}

	tmpl := models.NotificationTemplate{
		Name:            strings.TrimSpace(input.Name),
		Type:            input.Type,
		TitleTemplate:   input.TitleTemplate,
		MessageTemplate: input.MessageTemplate,
		ImageURL:        strings.TrimSpace(input.ImageURL),
		ActionURL:       strings.TrimSpace(input.ActionURL),
		IsDefault:       input.IsDefault,
	}
	tmpl.Variables = templating.ExtractVariables(tmpl.TitleTemplate, tmpl.MessageTemplate)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tmpl.IsDefault {
			if err := clearDefault(tx, tmpl.Type, ""); err != nil {
				return err
			}
		}
		return tx.Create(&tmpl).Error
	})
	if err != nil {
		return nil, fmt.Errorf("template service: create: %w", err)
	}

	s.log.Info("template created", zap.String("template_id", tmpl.ID), zap.String("type", string(tmpl.Type)))
	return &tmpl, nil
}

// Update applies patch and re-derives variables from the resulting text.
func (s *TemplateService) Update(ctx context.Context, id string, patch TemplatePatch) (*models.NotificationTemplate, error) {
	ctx = ensureContext(ctx)

	var tmpl models.NotificationTemplate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&tmpl, "id = ?", id).Error; err != nil {
			return err
		}

		if patch.Name != nil {
			if strings.TrimSpace(*patch.Name) == "" {
				return apperrors.NewBadRequest("name cannot be empty")
			}
			tmpl.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Type != nil {
			if !patch.Type.Valid() {
				return apperrors.NewBadRequest("unknown template type")
			}
			tmpl.Type = *patch.Type
		}
		if patch.TitleTemplate != nil {
			if strings.TrimSpace(*patch.TitleTemplate) == "" {
				return apperrors.NewBadRequest("title_template cannot be empty")
			}
			tmpl.TitleTemplate = *patch.TitleTemplate
		}
		if patch.MessageTemplate != nil {
			tmpl.MessageTemplate = *patch.MessageTemplate
		}
		if patch.ImageURL != nil {
			tmpl.ImageURL = strings.TrimSpace(*patch.ImageURL)
		}
		if patch.ActionURL != nil {
			tmpl.ActionURL = strings.TrimSpace(*patch.ActionURL)
		}
		if patch.IsDefault != nil {
			tmpl.IsDefault = *patch.IsDefault
		}
		tmpl.Variables = templating.ExtractVariables(tmpl.TitleTemplate, tmpl.MessageTemplate)

		if tmpl.IsDefault {
			if err := clearDefault(tx, tmpl.Type, tmpl.ID); err != nil {
				return err
			}
		}
		return tx.Save(&tmpl).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("template not found")
		}
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("template service: update: %w", err)
	}
	return &tmpl, nil
}

// Delete removes a template. Automations referencing it fall back to their inline data.
func (s *TemplateService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.NotificationTemplate{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&models.NotificationAutomation{}).
			Where("template_id = ?", id).
			Update("template_id", nil).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound.WithMessage("template not found")
		}
		return fmt.Errorf("template service: delete: %w", err)
	}
	return nil
}

// GetDefault returns the default template for a type, or any template of that type when
// no default is flagged.
func (s *TemplateService) GetDefault(ctx context.Context, notificationType models.NotificationType) (*models.NotificationTemplate, error) {
	ctx = ensureContext(ctx)

	var tmpl models.NotificationTemplate
	err := s.db.WithContext(ctx).
		Where("type = ? AND is_default = ?", notificationType, true).
		Order("updated_at DESC").
		First(&tmpl).Error
	if err == nil {
		return &tmpl, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Warn("default template lookup failed", zap.String("type", string(notificationType)), zap.Error(err))
	}

	err = s.db.WithContext(ctx).
		Where("type = ?", notificationType).
		Order("created_at DESC").
		First(&tmpl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("no template for type")
		}
		return nil, fmt.Errorf("template service: default: %w", err)
	}
	return &tmpl, nil
}

// Preview renders a template with sample variables.
func (s *TemplateService) Preview(ctx context.Context, input PreviewInput) (PreviewResult, error) {
	title, message := input.TitleTemplate, input.MessageTemplate
	if id := strings.TrimSpace(input.TemplateID); id != "" {
		tmpl, err := s.Get(ctx, id)
		if err != nil {
			return PreviewResult{}, err
		}
		title, message = tmpl.TitleTemplate, tmpl.MessageTemplate
	}

	return PreviewResult{
		Title:     templating.Render(title, input.Variables),
		Message:   templating.Render(message, input.Variables),
		Variables: templating.ExtractVariables(title, message),
	}, nil
}

func clearDefault(tx *gorm.DB, notificationType models.NotificationType, keepID string) error {
	query := tx.Model(&models.NotificationTemplate{}).
		Where("type = ? AND is_default = ?", notificationType, true)
	if keepID != "" {
		query = query.Where("id <> ?", keepID)
	}
	return query.Update("is_default", false).Error
}
