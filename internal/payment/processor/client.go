// Package processor talks to the external payment processor. The processor is
// the source of truth for payment status; nothing here ever advances local
// state speculatively.
package processor

import (
	"context"

	"github.com/cvforge/cvforge/internal/payment/domain"
)

// PreferenceItem is one line item of a checkout preference.
type PreferenceItem struct {
	Title     string `json:"title"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// PreferenceRequest asks the processor for a new checkout handle.
type PreferenceRequest struct {
	Items             []PreferenceItem `json:"items"`
	ExternalReference string           `json:"external_reference"`
	BackURLs          BackURLs         `json:"back_urls"`
	AutoReturn        string           `json:"auto_return,omitempty"`
	NotificationURL   string           `json:"notification_url,omitempty"`
}

type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// Preference is the processor's init handle the client is redirected to.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// PaymentInfo is the processor's authoritative view of one payment.
type PaymentInfo struct {
	ID                string
	Status            domain.Status
	ExternalReference string
	TransactionAmount int64
	PayerEmail        string
	PaymentMethod     string
}

// Client is the outbound processor interface. Implementations must bound
// every call with the configured timeout and return
// domain.ErrProcessorUnavailable for transient transport failures.
type Client interface {
	CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error)
	GetPayment(ctx context.Context, providerPaymentID string) (*PaymentInfo, error)
}
