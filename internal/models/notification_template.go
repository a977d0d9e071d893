package models

import "gorm.io/datatypes"

// NotificationTemplate stores reusable title/message text with {{variable}} placeholders.
// Variables is derived from the template text on every write.
type NotificationTemplate struct {
	BaseModel

	Name            string                      `gorm:"type:varchar(255);not null" json:"name"`
	Type            NotificationType            `gorm:"type:varchar(32);not null;index:idx_template_type_default" json:"type"`
	TitleTemplate   string                      `gorm:"type:text;not null" json:"title_template"`
	MessageTemplate string                      `gorm:"type:text" json:"message_template"`
	Variables       datatypes.JSONSlice[string] `json:"variables"`
	ImageURL        string                      `gorm:"type:text" json:"image_url"`
	ActionURL       string                      `gorm:"type:text" json:"action_url"`
	IsDefault       bool                        `gorm:"default:false;index:idx_template_type_default" json:"is_default"`
}
