package domain

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInvalidPlan          = errors.New("unknown subscription plan")
	ErrNotAnAccount         = errors.New("subscriptions require an account")
)
