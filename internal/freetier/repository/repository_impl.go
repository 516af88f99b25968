package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cvforge/cvforge/internal/freetier/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) IncrementWithin(ctx context.Context, db *gorm.DB, id snowflake.ID, identityKey, feature, day string, limit int, now time.Time) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	res := db.WithContext(ctx).Exec(
		`INSERT INTO free_usage (id, identity_key, feature, day, count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT (identity_key, feature, day) DO UPDATE
		 SET count = free_usage.count + 1, updated_at = excluded.updated_at
		 WHERE free_usage.count < ?`,
		id, identityKey, feature, day, now, now, limit,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB, identityKey, feature, day string) (int, error) {
	var count int
	err := db.WithContext(ctx).Raw(
		`SELECT count FROM free_usage
		 WHERE identity_key = ? AND feature = ? AND day = ?
		 LIMIT 1`,
		identityKey, feature, day,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
