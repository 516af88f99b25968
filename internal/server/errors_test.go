package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	accountdomain "github.com/cvforge/cvforge/internal/account/domain"
	"github.com/cvforge/cvforge/internal/entitlement"
	paymentdomain "github.com/cvforge/cvforge/internal/payment/domain"
	subscriptiondomain "github.com/cvforge/cvforge/internal/subscription/domain"
	"gorm.io/gorm"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{paymentdomain.ErrAuthRequired, http.StatusUnauthorized},
		{accountdomain.ErrInvalidCredentials, http.StatusUnauthorized},
		{entitlement.ErrNotEntitled, http.StatusBadRequest},
		{paymentdomain.ErrInvalidProduct, http.StatusBadRequest},
		{paymentdomain.ErrInvalidReference, http.StatusBadRequest},
		{accountdomain.ErrInvalidEmail, http.StatusBadRequest},
		{accountdomain.ErrEmailTaken, http.StatusConflict},
		{paymentdomain.ErrPaymentNotFound, http.StatusNotFound},
		{subscriptiondomain.ErrSubscriptionNotFound, http.StatusNotFound},
		{gorm.ErrRecordNotFound, http.StatusNotFound},
		{ErrRateLimited, http.StatusTooManyRequests},
		{paymentdomain.ErrProcessorUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if status, _ := mapError(tt.err); status != tt.status {
			t.Errorf("mapError(%v) = %d, want %d", tt.err, status, tt.status)
		}
	}
}

func TestMapErrorWrapsAreUnwrapped(t *testing.T) {
	status, payload := mapError(fmt.Errorf("create intent: %w", paymentdomain.ErrAuthRequired))
	if status != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", status)
	}
	if !payload.RequiresAuth {
		t.Fatalf("payload %+v missing requiresAuth", payload)
	}
}

func TestMapErrorFlagsPaymentRequired(t *testing.T) {
	status, payload := mapError(entitlement.ErrNotEntitled)
	if status != http.StatusBadRequest || !payload.RequiresPayment {
		t.Fatalf("status %d payload %+v", status, payload)
	}
}
