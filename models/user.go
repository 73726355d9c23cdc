package models

import (
	"time"

	"gorm.io/gorm"
)

// Player is the local record of a game account.
// Identity fields (username, country) are mirrored from the profile service by
// the sync worker; coins and level are owned here.
type Player struct {
	ID             string `gorm:"primaryKey" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"`
	Username       string `gorm:"uniqueIndex;not null" json:"username"`
	SearchName     string `gorm:"index" json:"-"`                       // lowercased ASCII folding of Username
	Country        string `gorm:"type:varchar(2);index" json:"country"` // ISO 3166-1 alpha-2
	Coins          int64  `gorm:"not null;default:0" json:"coins"`
	Level          int    `gorm:"not null;default:1" json:"current_level"`

	Timestamps
}

// RemoteProfile mirrors one entry of the profile service change feed.
type RemoteProfile struct {
	ExternalID    string    `json:"external_id"`
	Username      string    `json:"username"`
	Country       string    `json:"country"`
	AccountStatus string    `json:"account_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
