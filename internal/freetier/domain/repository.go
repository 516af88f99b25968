package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository maintains daily usage counters.
type Repository interface {
	// IncrementWithin bumps the counter for (identityKey, feature, day)
	// unless it already reached limit. The check and the bump are one
	// statement, so concurrent requests cannot exceed the cap. Reports
	// whether the use was granted.
	IncrementWithin(ctx context.Context, db *gorm.DB, id snowflake.ID, identityKey, feature, day string, limit int, now time.Time) (bool, error)
	// Count returns the current counter value, zero when no row exists.
	Count(ctx context.Context, db *gorm.DB, identityKey, feature, day string) (int, error)
}
