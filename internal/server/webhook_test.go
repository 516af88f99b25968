package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cvforge/cvforge/internal/clock"
	"github.com/cvforge/cvforge/internal/config"
	paymentdomain "github.com/cvforge/cvforge/internal/payment/domain"
	"github.com/cvforge/cvforge/internal/payment/processor"
	paymentrepo "github.com/cvforge/cvforge/internal/payment/repository"
	"github.com/cvforge/cvforge/internal/payment/reconcile"
	subscriptionrepo "github.com/cvforge/cvforge/internal/subscription/repository"
	subscriptionservice "github.com/cvforge/cvforge/internal/subscription/service"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeProcessor struct {
	payments map[string]*processor.PaymentInfo
}

func (f *fakeProcessor) CreatePreference(ctx context.Context, req processor.PreferenceRequest) (*processor.Preference, error) {
	_ = ctx
	_ = req
	return &processor.Preference{ID: "pref_1", InitPoint: "https://checkout.example/pref_1"}, nil
}

func (f *fakeProcessor) GetPayment(ctx context.Context, providerPaymentID string) (*processor.PaymentInfo, error) {
	_ = ctx
	info, ok := f.payments[providerPaymentID]
	if !ok {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return info, nil
}

func setupWebhookTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_webhook_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE payments (
			id BIGINT PRIMARY KEY,
			identity_key TEXT NOT NULL,
			provider_payment_id TEXT NOT NULL DEFAULT '',
			preference_id TEXT NOT NULL DEFAULT '',
			external_reference TEXT NOT NULL,
			product TEXT NOT NULL,
			amount BIGINT NOT NULL,
			status TEXT NOT NULL,
			remaining_uses INTEGER NOT NULL,
			is_subscription BOOLEAN NOT NULL DEFAULT FALSE,
			payer_email TEXT NOT NULL DEFAULT '',
			payment_method TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE subscriptions (
			id BIGINT PRIMARY KEY,
			account_id BIGINT NOT NULL,
			plan TEXT NOT NULL,
			status TEXT NOT NULL,
			payment_id BIGINT NOT NULL,
			starts_at TIMESTAMP NOT NULL,
			ends_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_subscriptions_payment_id ON subscriptions(payment_id)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newWebhookRouter(t *testing.T, proc *fakeProcessor) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := setupWebhookTestDB(t)
	node, err := snowflake.NewNode(17)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	pricing := config.NewStaticPricingHolder(config.DefaultPricingConfig())

	subscriptionSvc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    subscriptionrepo.Provide(),
		Pricing: pricing,
		Clock:   clk,
	})
	srv := &Server{
		reconcileSvc: reconcile.NewService(reconcile.Params{
			DB:              db,
			Log:             zap.NewNop(),
			GenID:           node,
			Repo:            paymentrepo.Provide(),
			Processor:       proc,
			Pricing:         pricing,
			Clock:           clk,
			SubscriptionSvc: subscriptionSvc,
		}),
	}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/api/payments/webhook", srv.Webhook)
	router.GET("/api/payments/webhook", srv.Webhook)
	return router, db
}

func postWebhook(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func approvedPaymentInfo(id string) *processor.PaymentInfo {
	return &processor.PaymentInfo{
		ID:                id,
		Status:            paymentdomain.StatusApproved,
		ExternalReference: "session:11111111-1111-1111-1111-111111111111|professional",
		TransactionAmount: 3000,
		PayerEmail:        "payer@example.com",
		PaymentMethod:     "credit_card",
	}
}

func decodeWebhookResponse(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestWebhookActionEnvelope(t *testing.T) {
	router, db := newWebhookRouter(t, &fakeProcessor{
		payments: map[string]*processor.PaymentInfo{"555": approvedPaymentInfo("555")},
	})

	resp := postWebhook(router, `{"action":"payment.updated","data":{"id":555}}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", resp.Code, resp.Body.String())
	}
	body := decodeWebhookResponse(t, resp)
	if body["status"] != "approved" {
		t.Fatalf("response %v", body)
	}

	var count int
	if err := db.Raw(`SELECT COUNT(*) FROM payments WHERE provider_payment_id = '555' AND status = 'approved'`).Scan(&count).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	if count != 1 {
		t.Fatalf("%d approved payments for provider id 555", count)
	}
}

func TestWebhookTypeEnvelope(t *testing.T) {
	router, _ := newWebhookRouter(t, &fakeProcessor{
		payments: map[string]*processor.PaymentInfo{"556": approvedPaymentInfo("556")},
	})

	resp := postWebhook(router, `{"type":"payment","data":{"id":"556"}}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", resp.Code, resp.Body.String())
	}
	if body := decodeWebhookResponse(t, resp); body["status"] != "approved" {
		t.Fatalf("response %v", body)
	}
}

func TestWebhookQueryForm(t *testing.T) {
	router, _ := newWebhookRouter(t, &fakeProcessor{
		payments: map[string]*processor.PaymentInfo{"557": approvedPaymentInfo("557")},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/payments/webhook?topic=payment&id=557", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", resp.Code, resp.Body.String())
	}
	if body := decodeWebhookResponse(t, resp); body["status"] != "approved" {
		t.Fatalf("response %v", body)
	}
}

func TestWebhookIgnoresForeignTopics(t *testing.T) {
	router, _ := newWebhookRouter(t, &fakeProcessor{payments: map[string]*processor.PaymentInfo{}})

	cases := []func() *httptest.ResponseRecorder{
		func() *httptest.ResponseRecorder { return postWebhook(router, `{}`) },
		func() *httptest.ResponseRecorder {
			return postWebhook(router, `{"action":"subscription.updated","data":{"id":"1"}}`)
		},
		func() *httptest.ResponseRecorder {
			return postWebhook(router, `{"type":"merchant_order","data":{"id":"1"}}`)
		},
		func() *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodGet, "/api/payments/webhook?topic=merchant_order&id=1", nil)
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)
			return resp
		},
	}
	for i, send := range cases {
		if resp := send(); resp.Code != http.StatusBadRequest {
			t.Fatalf("case %d: status %d, want 400", i, resp.Code)
		}
	}
}

func TestWebhookAcknowledgesUnknownPayment(t *testing.T) {
	router, _ := newWebhookRouter(t, &fakeProcessor{payments: map[string]*processor.PaymentInfo{}})

	resp := postWebhook(router, `{"action":"payment.updated","data":{"id":"999"}}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("status %d, want 200 so the processor stops retrying", resp.Code)
	}
	body := decodeWebhookResponse(t, resp)
	if body["received"] != true {
		t.Fatalf("response %v", body)
	}
	if _, ok := body["status"]; ok {
		t.Fatalf("response %v carries a status for a failed reconciliation", body)
	}
}

func TestWebhookReplaySafe(t *testing.T) {
	router, db := newWebhookRouter(t, &fakeProcessor{
		payments: map[string]*processor.PaymentInfo{"558": approvedPaymentInfo("558")},
	})

	for i := 0; i < 3; i++ {
		if resp := postWebhook(router, `{"action":"payment.updated","data":{"id":558}}`); resp.Code != http.StatusOK {
			t.Fatalf("replay %d: status %d", i, resp.Code)
		}
	}

	var count int
	if err := db.Raw(`SELECT COUNT(*) FROM payments WHERE provider_payment_id = '558'`).Scan(&count).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	if count != 1 {
		t.Fatalf("%d payment rows after replays, want 1", count)
	}
	var remaining int
	if err := db.Raw(`SELECT remaining_uses FROM payments WHERE provider_payment_id = '558'`).Scan(&remaining).Error; err != nil {
		t.Fatalf("scan remaining: %v", err)
	}
	if remaining != 5 {
		t.Fatalf("remaining %d after replays, want 5", remaining)
	}
}
