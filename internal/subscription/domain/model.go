// Package domain contains the subscription model. Premium access is always
// derived from these rows at read time; no cached flag exists anywhere.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	// StatusActive renews nothing by itself; it only means the account has
	// not cancelled.
	StatusActive Status = "active"
	// StatusCancelled stops renewal but keeps access until EndsAt.
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// SubscriptionRecord is one paid subscription term. PaymentID links back to
// the approved payment that funded it and is unique, which makes term
// creation idempotent per processor payment.
type SubscriptionRecord struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	AccountID snowflake.ID `json:"account_id" gorm:"not null;index"`
	Plan      string       `json:"plan" gorm:"type:text;not null"`
	Status    Status       `json:"status" gorm:"type:text;not null"`
	PaymentID snowflake.ID `json:"payment_id" gorm:"not null;uniqueIndex"`
	StartsAt  time.Time    `json:"starts_at" gorm:"not null"`
	EndsAt    time.Time    `json:"ends_at" gorm:"not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (SubscriptionRecord) TableName() string { return "subscriptions" }

// GrantsAccessAt reports whether the term covers the given instant.
// Cancellation does not cut access short; only the end date does.
func (s *SubscriptionRecord) GrantsAccessAt(now time.Time) bool {
	if s.Status == StatusExpired {
		return false
	}
	return now.Before(s.EndsAt)
}
