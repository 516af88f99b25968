package domain

import "errors"

var (
	ErrInvalidProduct       = errors.New("unknown product")
	ErrInvalidRequest       = errors.New("invalid payment request")
	ErrAuthRequired         = errors.New("authentication required")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrInvalidReference     = errors.New("invalid external reference")
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
)
