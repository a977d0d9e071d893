package models

import "gorm.io/datatypes"

// TriggerType names an event that activates automation lookup.
type TriggerType string

const (
	TriggerOrderPlaced         TriggerType = "order_placed"
	TriggerOrderConfirmed      TriggerType = "order_confirmed"
	TriggerOrderPreparing      TriggerType = "order_preparing"
	TriggerOrderReady          TriggerType = "order_ready"
	TriggerOrderOutForDelivery TriggerType = "order_out_for_delivery"
	TriggerOrderDelivered      TriggerType = "order_delivered"
	TriggerOrderCancelled      TriggerType = "order_cancelled"
	TriggerNewProduct          TriggerType = "new_product"
	TriggerNewDeal             TriggerType = "new_deal"
	TriggerDealExpiring        TriggerType = "deal_expiring"
	TriggerLowStock            TriggerType = "low_stock"
	TriggerScheduled           TriggerType = "scheduled"
	TriggerUserRegistered      TriggerType = "user_registered"
)

// TriggerTypes lists every supported trigger in declaration order.
var TriggerTypes = []TriggerType{
	TriggerOrderPlaced,
	TriggerOrderConfirmed,
	TriggerOrderPreparing,
	TriggerOrderReady,
	TriggerOrderOutForDelivery,
	TriggerOrderDelivered,
	TriggerOrderCancelled,
	TriggerNewProduct,
	TriggerNewDeal,
	TriggerDealExpiring,
	TriggerLowStock,
	TriggerScheduled,
	TriggerUserRegistered,
}

// Valid reports whether t is a known trigger.
func (t TriggerType) Valid() bool {
	for _, known := range TriggerTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsOrderLifecycle reports whether t belongs to the order_* family.
func (t TriggerType) IsOrderLifecycle() bool {
	switch t {
	case TriggerOrderPlaced, TriggerOrderConfirmed, TriggerOrderPreparing, TriggerOrderReady,
		TriggerOrderOutForDelivery, TriggerOrderDelivered, TriggerOrderCancelled:
		return true
	}
	return false
}

// Audience selects who receives a notification.
type Audience string

const (
	AudienceAll     Audience = "all"
	AudienceUser    Audience = "user"
	AudienceAdmin   Audience = "admin"
	AudienceSegment Audience = "segment"
)

// Valid reports whether a is a known audience.
func (a Audience) Valid() bool {
	switch a {
	case AudienceAll, AudienceUser, AudienceAdmin, AudienceSegment:
		return true
	}
	return false
}

// NotificationContent is the inline title/message payload shared by automations and campaigns.
type NotificationContent struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	ImageURL  string `json:"image_url,omitempty"`
	ActionURL string `json:"action_url,omitempty"`
}

// NotificationAutomation maps a trigger to a templated notification.
type NotificationAutomation struct {
	BaseModel

	Name             string                                  `gorm:"type:varchar(255);not null" json:"name"`
	Description      string                                  `gorm:"type:text" json:"description"`
	TriggerType      TriggerType                             `gorm:"type:varchar(64);not null;index:idx_automation_trigger_active" json:"trigger_type"`
	Conditions       datatypes.JSONMap                       `json:"conditions"`
	TemplateID       *string                                 `gorm:"type:char(36)" json:"template_id"`
	NotificationData datatypes.JSONType[NotificationContent] `json:"notification_data"`
	TargetAudience   Audience                                `gorm:"type:varchar(32);default:'all'" json:"target_audience"`
	IsActive         bool                                    `gorm:"default:true;index:idx_automation_trigger_active" json:"is_active"`
}
