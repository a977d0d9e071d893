package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/bitebell/internal/models"
	apperrors "github.com/charlesng35/bitebell/pkg/errors"
	"github.com/charlesng35/bitebell/pkg/logger"
)

// RegisterUserInput describes a new storefront customer.
type RegisterUserInput struct {
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"display_name" validate:"max=255"`
	Role        string `json:"role,omitempty" validate:"omitempty,oneof=customer admin"`
}

// UserService keeps the customer records used for segmentation and fires the
// user_registered trigger.
type UserService struct {
	db     *gorm.DB
	engine *AutomationEngine
	log    *zap.Logger
}

// NewUserService constructs a UserService. engine may be nil, in which case no trigger fires.
func NewUserService(db *gorm.DB, engine *AutomationEngine) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db, engine: engine, log: logger.WithModule("users")}, nil
}

// Register creates a user and fires user_registered for them.
func (s *UserService) Register(ctx context.Context, input RegisterUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}

	user := models.User{
		Email:       email,
		DisplayName: strings.TrimSpace(input.DisplayName),
		Role:        defaultIfEmpty(input.Role, "customer"),
		IsActive:    true,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if conflict := asConflict(err, "email already registered"); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("user service: register: %w", err)
	}

	if s.engine != nil {
		s.engine.Trigger(ctx, models.TriggerUserRegistered, TriggerContext{
			UserID:       user.ID,
			CustomerName: defaultIfEmpty(user.DisplayName, user.Email),
		}, user.ID)
	}
	return &user, nil
}

// Get loads a user by id.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("user not found")
		}
		return nil, fmt.Errorf("user service: get: %w", err)
	}
	return &user, nil
}

// List returns users ordered by registration.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	ctx = ensureContext(ctx)

	var users []models.User
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&users).Error; err != nil {
		return []models.User{}, fmt.Errorf("user service: list: %w", err)
	}
	return users, nil
}

// SetActive toggles whether a user counts as active for segmentation.
func (s *UserService) SetActive(ctx context.Context, id string, active bool) (*models.User, error) {
	ctx = ensureContext(ctx)

	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return nil, fmt.Errorf("user service: set active: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.ErrNotFound.WithMessage("user not found")
	}
	return s.Get(ctx, id)
}

// RecordOrder bumps the order counters consulted by segment filters.
func (s *UserService) RecordOrder(ctx context.Context, id string, at time.Time) error {
	ctx = ensureContext(ctx)
	if at.IsZero() {
		at = time.Now()
	}

	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"order_count":   gorm.Expr("order_count + ?", 1),
			"last_order_at": at.UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("user service: record order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound.WithMessage("user not found")
	}
	return nil
}
