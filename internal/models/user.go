package models

import "time"

// User is the storefront customer record used for audience segmentation.
type User struct {
	BaseModel

	Email       string     `gorm:"uniqueIndex;not null" json:"email"`
	DisplayName string     `json:"display_name"`
	Role        string     `gorm:"type:varchar(32);default:'customer';index" json:"role"`
	IsActive    bool       `gorm:"default:true" json:"is_active"`
	OrderCount  int        `gorm:"default:0" json:"order_count"`
	LastOrderAt *time.Time `json:"last_order_at"`
}
