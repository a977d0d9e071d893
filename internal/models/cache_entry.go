package models

import "time"

// CacheEntry is one row of the database-backed cache: rate limit counters and, with the
// database local store backend, the local notifications blob. A zero ExpiresAt never expires.
type CacheEntry struct {
	Key       string `gorm:"column:cache_key;primaryKey;size:191"`
	Value     []byte
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
