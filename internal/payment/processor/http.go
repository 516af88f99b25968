package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cvforge/cvforge/internal/config"
	"github.com/cvforge/cvforge/internal/payment/domain"
	"go.uber.org/zap"
)

// HTTPClient implements Client against the processor's REST API.
type HTTPClient struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	log         *zap.Logger
}

func NewHTTPClient(cfg config.Config, log *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:     strings.TrimRight(cfg.ProcessorBaseURL, "/"),
		accessToken: cfg.ProcessorAccessToken,
		httpClient:  &http.Client{Timeout: cfg.ProcessorTimeout},
		log:         log.Named("payment.processor"),
	}
}

func (c *HTTPClient) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkout/preferences", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.authorize(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.Warn("preference request failed", zap.Error(err))
		return nil, domain.ErrProcessorUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		c.log.Warn("processor returned server error", zap.Int("status", resp.StatusCode))
		return nil, domain.ErrProcessorUnavailable
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("create preference: unexpected status %d", resp.StatusCode)
	}

	var pref Preference
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&pref); err != nil {
		return nil, fmt.Errorf("decode preference: %w", err)
	}
	if strings.TrimSpace(pref.ID) == "" {
		return nil, fmt.Errorf("create preference: empty id in response")
	}
	return &pref, nil
}

func (c *HTTPClient) GetPayment(ctx context.Context, providerPaymentID string) (*PaymentInfo, error) {
	providerPaymentID = strings.TrimSpace(providerPaymentID)
	if providerPaymentID == "" {
		return nil, domain.ErrPaymentNotFound
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payments/"+url.PathEscape(providerPaymentID), nil)
	if err != nil {
		return nil, err
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.Warn("payment lookup failed", zap.String("payment_id", providerPaymentID), zap.Error(err))
		return nil, domain.ErrProcessorUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrPaymentNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		c.log.Warn("processor returned server error", zap.Int("status", resp.StatusCode))
		return nil, domain.ErrProcessorUnavailable
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("get payment: unexpected status %d", resp.StatusCode)
	}

	var raw struct {
		ID                json.Number `json:"id"`
		Status            string      `json:"status"`
		ExternalReference string      `json:"external_reference"`
		TransactionAmount float64     `json:"transaction_amount"`
		PaymentMethodID   string      `json:"payment_method_id"`
		Payer             struct {
			Email string `json:"email"`
		} `json:"payer"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode payment: %w", err)
	}

	return &PaymentInfo{
		ID:                raw.ID.String(),
		Status:            normalizeStatus(raw.Status),
		ExternalReference: raw.ExternalReference,
		TransactionAmount: int64(raw.TransactionAmount),
		PayerEmail:        raw.Payer.Email,
		PaymentMethod:     raw.PaymentMethodID,
	}, nil
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
}

// normalizeStatus maps the processor's status vocabulary onto the local
// state machine. Anything in flight stays pending.
func normalizeStatus(status string) domain.Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved":
		return domain.StatusApproved
	case "rejected", "cancelled":
		return domain.StatusRejected
	case "refunded", "charged_back":
		return domain.StatusRefunded
	default:
		return domain.StatusPending
	}
}
