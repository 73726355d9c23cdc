package models

import "time"

// SchedulerLock is a lease on a scheduled job so only one replica runs it.
type SchedulerLock struct {
	Key       string    `gorm:"column:lock_key;primaryKey;type:varchar(128)" json:"key"`
	Owner     string    `gorm:"not null" json:"owner"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
