package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel is embedded by every bitebell table. Ids are UUID strings stored as
// char(36) so the same schema migrates on SQLite, Postgres and MySQL.
type BaseModel struct {
	ID        string    `gorm:"primaryKey;type:char(36)" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns an id unless the caller (seed data, tests) chose one.
func (m *BaseModel) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
