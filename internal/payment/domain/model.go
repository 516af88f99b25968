// Package domain contains persistence models and the status state machine for
// payment records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the lifecycle state of a purchase attempt.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusRefunded Status = "refunded"
)

// UnlimitedUses marks subscription-type records, which never decrement.
const UnlimitedUses = -1

// PaymentRecord is one purchase attempt. Rows are never hard-deleted; the
// status only moves forward through the transitions in transition.go.
type PaymentRecord struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	IdentityKey       string       `json:"identity_key" gorm:"type:text;not null;index"`
	ProviderPaymentID string       `json:"provider_payment_id" gorm:"type:text;index"`
	PreferenceID      string       `json:"preference_id" gorm:"type:text"`
	ExternalReference string       `json:"external_reference" gorm:"type:text;not null;index"`
	Product           string       `json:"product" gorm:"type:text;not null"`
	Amount            int64        `json:"amount" gorm:"not null"`
	Status            Status       `json:"status" gorm:"type:text;not null"`
	RemainingUses     int          `json:"remaining_uses" gorm:"not null"`
	IsSubscription    bool         `json:"is_subscription" gorm:"not null;default:false"`
	PayerEmail        string       `json:"payer_email" gorm:"type:text"`
	PaymentMethod     string       `json:"payment_method" gorm:"type:text"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"not null"`
}

func (PaymentRecord) TableName() string { return "payments" }

// Unlimited reports whether this record grants unmetered use.
func (p *PaymentRecord) Unlimited() bool {
	return p.RemainingUses == UnlimitedUses
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusRefunded:
		return true
	default:
		return false
	}
}
