package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists payment records. All state-changing statements are
// single guarded UPDATEs so the compare-and-set discipline lives here and
// nowhere else.
type Repository interface {
	Create(ctx context.Context, db *gorm.DB, record *PaymentRecord) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentRecord, error)
	FindByProviderID(ctx context.Context, db *gorm.DB, providerPaymentID string) (*PaymentRecord, error)
	FindLatestPending(ctx context.Context, db *gorm.DB, identityKey, product string) (*PaymentRecord, error)
	// FindApprovedWithRemaining returns the most recent approved record with
	// uses left for (identityKey, product); empty product matches any.
	FindApprovedWithRemaining(ctx context.Context, db *gorm.DB, identityKey, product string) (*PaymentRecord, error)
	ListByIdentity(ctx context.Context, db *gorm.DB, identityKey string) ([]PaymentRecord, error)
	ListPending(ctx context.Context, db *gorm.DB, identityKey string) ([]PaymentRecord, error)

	// ApplyTransition moves the record to next only when its current status is
	// one of TransitionSources(next). Reports whether a row changed.
	ApplyTransition(ctx context.Context, db *gorm.DB, id snowflake.ID, next Status, now time.Time) (bool, error)
	// DecrementRemaining atomically consumes one use; reports false when no
	// uses were left at the time of the update.
	DecrementRemaining(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	AttachProviderID(ctx context.Context, db *gorm.DB, id snowflake.ID, providerPaymentID string, now time.Time) error
	AttachPreferenceID(ctx context.Context, db *gorm.DB, id snowflake.ID, preferenceID string, now time.Time) error
	UpdateSideChannel(ctx context.Context, db *gorm.DB, id snowflake.ID, payerEmail, paymentMethod string, now time.Time) error
	// ReKeySession moves rows stored under an anonymous session key to the
	// account key, exactly once per row.
	ReKeySession(ctx context.Context, db *gorm.DB, sessionKey, accountKey string, now time.Time) (int64, error)
}
