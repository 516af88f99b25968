package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists subscription terms.
type Repository interface {
	// Insert writes the record unless a term for the same payment id already
	// exists. Reports whether a row was written.
	Insert(ctx context.Context, db *gorm.DB, record *SubscriptionRecord) (bool, error)
	FindByPaymentID(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (*SubscriptionRecord, error)
	// FindCurrent returns the account's non-expired term with the latest end
	// date, or nil.
	FindCurrent(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*SubscriptionRecord, error)
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]SubscriptionRecord, error)
	// MarkCancelled flips an active term to cancelled. Reports whether a row
	// changed.
	MarkCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	// MarkExpired sweeps terms whose end date has passed.
	MarkExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
}
