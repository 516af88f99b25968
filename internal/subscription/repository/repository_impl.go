package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cvforge/cvforge/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.SubscriptionRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, account_id, plan, status, payment_id,
			starts_at, ends_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (payment_id) DO NOTHING`,
		record.ID,
		record.AccountID,
		record.Plan,
		record.Status,
		record.PaymentID,
		record.StartsAt,
		record.EndsAt,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByPaymentID(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (*domain.SubscriptionRecord, error) {
	var item domain.SubscriptionRecord
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscriptions WHERE payment_id = ? LIMIT 1`,
		paymentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindCurrent(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*domain.SubscriptionRecord, error) {
	var item domain.SubscriptionRecord
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscriptions
		 WHERE account_id = ? AND status != ?
		 ORDER BY ends_at DESC
		 LIMIT 1`,
		accountID, domain.StatusExpired,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]domain.SubscriptionRecord, error) {
	var items []domain.SubscriptionRecord
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscriptions
		 WHERE account_id = ?
		 ORDER BY ends_at DESC`,
		accountID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusCancelled, now, id, domain.StatusActive,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, updated_at = ?
		 WHERE status != ? AND ends_at <= ?`,
		domain.StatusExpired, now, domain.StatusExpired, now,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
