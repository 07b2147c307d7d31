package model

import (
	"time"
)

// DailyUsage counts messages sent by a user on one UTC calendar day.
type DailyUsage struct {
	UserID    string    `gorm:"size:64;primaryKey" json:"user_id"`
	Day       string    `gorm:"size:10;primaryKey" json:"day"`
	Used      int       `gorm:"not null;default:0" json:"used"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName implements the gorm tabler interface.
func (DailyUsage) TableName() string { return "daily_usage" }
