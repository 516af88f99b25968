package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cvforge/cvforge/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, record *domain.PaymentRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, identity_key, provider_payment_id, preference_id,
			external_reference, product, amount, status, remaining_uses,
			is_subscription, payer_email, payment_method, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.IdentityKey,
		record.ProviderPaymentID,
		record.PreferenceID,
		record.ExternalReference,
		record.Product,
		record.Amount,
		record.Status,
		record.RemainingUses,
		record.IsSubscription,
		record.PayerEmail,
		record.PaymentMethod,
		record.CreatedAt,
		record.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentRecord, error) {
	var item domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payments WHERE id = ? LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByProviderID(ctx context.Context, db *gorm.DB, providerPaymentID string) (*domain.PaymentRecord, error) {
	if providerPaymentID == "" {
		return nil, nil
	}
	var item domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payments
		 WHERE provider_payment_id = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		providerPaymentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindLatestPending(ctx context.Context, db *gorm.DB, identityKey, product string) (*domain.PaymentRecord, error) {
	var item domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payments
		 WHERE identity_key = ? AND product = ? AND status = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		identityKey,
		product,
		domain.StatusPending,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindApprovedWithRemaining(ctx context.Context, db *gorm.DB, identityKey, product string) (*domain.PaymentRecord, error) {
	query := `SELECT * FROM payments
		 WHERE identity_key = ? AND status = ?
		   AND (remaining_uses > 0 OR remaining_uses = ?)`
	args := []any{identityKey, domain.StatusApproved, domain.UnlimitedUses}
	if product != "" {
		query += ` AND product = ?`
		args = append(args, product)
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	var item domain.PaymentRecord
	err := db.WithContext(ctx).Raw(query, args...).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByIdentity(ctx context.Context, db *gorm.DB, identityKey string) ([]domain.PaymentRecord, error) {
	var items []domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payments
		 WHERE identity_key = ?
		 ORDER BY created_at DESC`,
		identityKey,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB, identityKey string) ([]domain.PaymentRecord, error) {
	var items []domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payments
		 WHERE identity_key = ? AND status = ?
		 ORDER BY created_at DESC`,
		identityKey,
		domain.StatusPending,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ApplyTransition(ctx context.Context, db *gorm.DB, id snowflake.ID, next domain.Status, now time.Time) (bool, error) {
	sources := domain.TransitionSources(next)
	if len(sources) == 0 {
		return false, nil
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		next,
		now,
		id,
		sources,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) DecrementRemaining(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET remaining_uses = remaining_uses - 1, updated_at = ?
		 WHERE id = ? AND status = ? AND remaining_uses > 0`,
		now,
		id,
		domain.StatusApproved,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) AttachProviderID(ctx context.Context, db *gorm.DB, id snowflake.ID, providerPaymentID string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET provider_payment_id = ?, updated_at = ?
		 WHERE id = ? AND provider_payment_id = ''`,
		providerPaymentID,
		now,
		id,
	).Error
}

func (r *repo) AttachPreferenceID(ctx context.Context, db *gorm.DB, id snowflake.ID, preferenceID string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET preference_id = ?, updated_at = ?
		 WHERE id = ?`,
		preferenceID,
		now,
		id,
	).Error
}

func (r *repo) UpdateSideChannel(ctx context.Context, db *gorm.DB, id snowflake.ID, payerEmail, paymentMethod string, now time.Time) error {
	if payerEmail == "" && paymentMethod == "" {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET payer_email = CASE WHEN ? <> '' THEN ? ELSE payer_email END,
		     payment_method = CASE WHEN ? <> '' THEN ? ELSE payment_method END,
		     updated_at = ?
		 WHERE id = ?`,
		payerEmail,
		payerEmail,
		paymentMethod,
		paymentMethod,
		now,
		id,
	).Error
}

func (r *repo) ReKeySession(ctx context.Context, db *gorm.DB, sessionKey, accountKey string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET identity_key = ?, updated_at = ?
		 WHERE identity_key = ?`,
		accountKey,
		now,
		sessionKey,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
