package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// StatusView is the account-facing summary of the current term.
type StatusView struct {
	Active bool       `json:"active"`
	Plan   string     `json:"plan,omitempty"`
	Status Status     `json:"status,omitempty"`
	EndsAt *time.Time `json:"ends_at,omitempty"`
}

// Service manages subscription terms derived from approved payments.
type Service interface {
	// CreateOrExtend opens a new term funded by the given approved payment.
	// It is idempotent per payment id: replayed reconciliations of the same
	// payment never stack extra terms.
	CreateOrExtend(ctx context.Context, accountID snowflake.ID, plan string, paymentID snowflake.ID) (*SubscriptionRecord, error)
	// Current returns the term governing access right now, or nil.
	Current(ctx context.Context, accountID snowflake.ID) (*SubscriptionRecord, error)
	Status(ctx context.Context, accountID snowflake.ID) (*StatusView, error)
	// Cancel stops renewal of the current term. Access continues until the
	// term's end date.
	Cancel(ctx context.Context, accountID snowflake.ID) error
	// History returns the account's terms, newest first.
	History(ctx context.Context, accountID snowflake.ID) ([]SubscriptionRecord, error)
	// ExpireLapsed marks terms whose end date has passed as expired.
	ExpireLapsed(ctx context.Context) (int64, error)
}
