package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/bitebell/internal/models"
	"github.com/charlesng35/bitebell/pkg/templating"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Notification{},
		&models.NotificationTemplate{},
		&models.NotificationAutomation{},
		&models.NotificationCampaign{},
		&models.CacheEntry{},
	)
}

// Seeded template identifiers. They are stable so re-running the seed never duplicates rows.
const (
	SeedOrderTemplateID  = "5b0f6a52-8d0e-4c1f-9d8e-0a1e5f2c7001"
	SeedPromoTemplateID  = "5b0f6a52-8d0e-4c1f-9d8e-0a1e5f2c7002"
	SeedSystemTemplateID = "5b0f6a52-8d0e-4c1f-9d8e-0a1e5f2c7003"
)

// SeedData installs one default template per common notification type.
func SeedData(db *gorm.DB) error {
	templates := []models.NotificationTemplate{
		{
			BaseModel:       models.BaseModel{ID: SeedOrderTemplateID},
			Name:            "Order status update",
			Type:            models.NotificationTypeOrder,
			TitleTemplate:   "Order #{{orderNumber}} update",
			MessageTemplate: "Your order #{{orderNumber}} is now {{status}}.",
			ActionURL:       "/orders",
			IsDefault:       true,
		},
		{
			BaseModel:       models.BaseModel{ID: SeedPromoTemplateID},
			Name:            "New deal",
			Type:            models.NotificationTypePromo,
			TitleTemplate:   "{{dealName}} is live",
			MessageTemplate: "Save {{discount}} on {{dealName}} while it lasts.",
			ActionURL:       "/deals",
			IsDefault:       true,
		},
		{
			BaseModel:       models.BaseModel{ID: SeedSystemTemplateID},
			Name:            "Welcome",
			Type:            models.NotificationTypeSystem,
			TitleTemplate:   "Welcome, {{customerName}}!",
			MessageTemplate: "Thanks for joining. Your first order is on us.",
			IsDefault:       true,
		},
	}

	for _, tmpl := range templates {
		tmpl.Variables = templating.ExtractVariables(tmpl.TitleTemplate, tmpl.MessageTemplate)
		if err := db.Where(models.NotificationTemplate{BaseModel: models.BaseModel{ID: tmpl.ID}}).Attrs(tmpl).FirstOrCreate(&models.NotificationTemplate{}).Error; err != nil {
			return err
		}
	}

	return nil
}
