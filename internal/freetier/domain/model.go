// Package domain holds the free-usage counter model. Counters are keyed by
// identity, feature and UTC calendar day, so the window resets at midnight
// UTC rather than on a rolling clock.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// DayFormat is the canonical key for one UTC calendar day.
const DayFormat = "2006-01-02"

// FreeUsageRecord counts free uses of one feature by one identity on one day.
type FreeUsageRecord struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	IdentityKey string       `json:"identity_key" gorm:"type:text;not null;uniqueIndex:idx_free_usage_window,priority:1"`
	Feature     string       `json:"feature" gorm:"type:text;not null;uniqueIndex:idx_free_usage_window,priority:2"`
	Day         string       `json:"day" gorm:"type:text;not null;uniqueIndex:idx_free_usage_window,priority:3"`
	Count       int          `json:"count" gorm:"not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`
}

func (FreeUsageRecord) TableName() string { return "free_usage" }
