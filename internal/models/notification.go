package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationType classifies delivered notifications and templates.
type NotificationType string

const (
	NotificationTypeOrder     NotificationType = "order"
	NotificationTypePromo     NotificationType = "promo"
	NotificationTypeReward    NotificationType = "reward"
	NotificationTypeDelivery  NotificationType = "delivery"
	NotificationTypeSystem    NotificationType = "system"
	NotificationTypeMarketing NotificationType = "marketing"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTypeOrder, NotificationTypePromo, NotificationTypeReward,
		NotificationTypeDelivery, NotificationTypeSystem, NotificationTypeMarketing:
		return true
	}
	return false
}

// Notification is the delivered unit written by automations, campaigns and admins.
// A nil TargetUserID means the row is visible to everyone.
type Notification struct {
	BaseModel

	Type      NotificationType `gorm:"type:varchar(32);not null;index" json:"type"`
	Title     string           `gorm:"type:varchar(255);not null" json:"title"`
	Message   string           `gorm:"type:text" json:"message"`
	ImageURL  string           `gorm:"type:text" json:"image_url"`
	ActionURL string           `gorm:"type:text" json:"action_url"`

	IsBroadcast  bool    `gorm:"default:false;index" json:"is_broadcast"`
	TargetUserID *string `gorm:"type:varchar(64);index" json:"target_user_id"`
	ProductID    *string `gorm:"type:varchar(64)" json:"product_id"`
	DealID       *string `gorm:"type:varchar(64)" json:"deal_id"`
	AutomationID *string `gorm:"type:char(36);index" json:"automation_id"`
	CampaignID   *string `gorm:"type:char(36);index" json:"campaign_id"`
	CreatedBy    *string `gorm:"type:varchar(64)" json:"created_by"`

	Metadata datatypes.JSONMap `json:"metadata"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`
}
