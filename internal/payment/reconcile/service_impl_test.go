package reconcile_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cvforge/cvforge/internal/clock"
	"github.com/cvforge/cvforge/internal/config"
	"github.com/cvforge/cvforge/internal/identity"
	"github.com/cvforge/cvforge/internal/payment/domain"
	"github.com/cvforge/cvforge/internal/payment/processor"
	"github.com/cvforge/cvforge/internal/payment/reconcile"
	paymentrepo "github.com/cvforge/cvforge/internal/payment/repository"
	subscriptionrepo "github.com/cvforge/cvforge/internal/subscription/repository"
	subscriptionservice "github.com/cvforge/cvforge/internal/subscription/service"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeProcessor struct {
	payments map[string]*processor.PaymentInfo
}

func (f *fakeProcessor) CreatePreference(ctx context.Context, req processor.PreferenceRequest) (*processor.Preference, error) {
	return nil, domain.ErrProcessorUnavailable
}

func (f *fakeProcessor) GetPayment(ctx context.Context, providerPaymentID string) (*processor.PaymentInfo, error) {
	info, ok := f.payments[providerPaymentID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return info, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_reconcile_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
		`CREATE UNIQUE INDEX ux_payments_provider_payment_id
			ON payments(provider_payment_id) WHERE provider_payment_id != ''`,
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

func newReconcileService(t *testing.T, db *gorm.DB, proc processor.Client, clk clock.Clock) *reconcile.Service {
	t.Helper()

	node, err := snowflake.NewNode(12)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	pricing := config.NewStaticPricingHolder(config.DefaultPricingConfig())
	subscriptionSvc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    subscriptionrepo.Provide(),
		Pricing: pricing,
		Clock:   clk,
	})
	return reconcile.NewService(reconcile.Params{
		DB:              db,
		Log:             zap.NewNop(),
		GenID:           node,
		Repo:            paymentrepo.Provide(),
		Processor:       proc,
		Pricing:         pricing,
		Clock:           clk,
		SubscriptionSvc: subscriptionSvc,
	})
}

func seedPayment(t *testing.T, db *gorm.DB, id int64, ident identity.Identity, product, providerID, status string, remaining int, subscription bool) {
	t.Helper()

	now := time.Now().UTC()
	err := db.Exec(
		`INSERT INTO payments (id, identity_key, provider_payment_id, external_reference, product, amount, status, remaining_uses, is_subscription, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 3000, ?, ?, ?, ?, ?)`,
		id, ident.Key(), providerID, domain.FormatReference(ident, product), product, status, remaining, subscription, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed payment: %v", err)
	}
}

func paymentStatus(t *testing.T, db *gorm.DB, id int64) string {
	t.Helper()

	var status string
	if err := db.Raw(`SELECT status FROM payments WHERE id = ?`, id).Scan(&status).Error; err != nil {
		t.Fatalf("scan status: %v", err)
	}
	return status
}

func TestReconcileAppliesApprovalOnce(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	ident := identity.ForSession("11111111-1111-1111-1111-111111111111")
	seedPayment(t, db, 1, ident, "professional", "mp-1", "pending", 5, false)

	proc := &fakeProcessor{payments: map[string]*processor.PaymentInfo{
		"mp-1": {
			ID:                "mp-1",
			Status:            domain.StatusApproved,
			ExternalReference: domain.FormatReference(ident, "professional"),
			TransactionAmount: 3000,
			PayerEmail:        "buyer@example.com",
			PaymentMethod:     "visa",
		},
	}}
	svc := newReconcileService(t, db, proc, clock.SystemClock{})

	outcome, err := svc.Reconcile(ctx, "mp-1")
	if err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	if outcome.Result != domain.TransitionApplied {
		t.Fatalf("first result %s, want applied", outcome.Result)
	}
	if outcome.Record.PayerEmail != "buyer@example.com" {
		t.Fatalf("payer email %q not folded in", outcome.Record.PayerEmail)
	}

	outcome, err = svc.Reconcile(ctx, "mp-1")
	if err != nil {
		t.Fatalf("replay reconcile: %v", err)
	}
	if outcome.Result != domain.TransitionNoop {
		t.Fatalf("replay result %s, want noop", outcome.Result)
	}
	if got := paymentStatus(t, db, 1); got != "approved" {
		t.Fatalf("status %q, want approved", got)
	}

	var remaining int
	if err := db.Raw(`SELECT remaining_uses FROM payments WHERE id = 1`).Scan(&remaining).Error; err != nil {
		t.Fatalf("scan remaining: %v", err)
	}
	if remaining != 5 {
		t.Fatalf("remaining %d changed by reconciliation", remaining)
	}
}

func TestReconcileRejectsIllegalTransition(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	ident := identity.ForSession("11111111-1111-1111-1111-111111111111")
	seedPayment(t, db, 1, ident, "professional", "mp-1", "pending", 5, false)

	proc := &fakeProcessor{payments: map[string]*processor.PaymentInfo{
		"mp-1": {
			ID:                "mp-1",
			Status:            domain.StatusRefunded,
			ExternalReference: domain.FormatReference(ident, "professional"),
		},
	}}
	svc := newReconcileService(t, db, proc, clock.SystemClock{})

	outcome, err := svc.Reconcile(ctx, "mp-1")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if outcome.Result != domain.TransitionIllegal {
		t.Fatalf("result %s, want illegal", outcome.Result)
	}
	if got := paymentStatus(t, db, 1); got != "pending" {
		t.Fatalf("status %q, want pending preserved", got)
	}
}

func TestReconcileAttachesProviderIDViaReference(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	ident := identity.ForSession("22222222-2222-2222-2222-222222222222")
	seedPayment(t, db, 1, ident, "modern", "", "pending", 5, false)

	proc := &fakeProcessor{payments: map[string]*processor.PaymentInfo{
		"mp-9": {
			ID:                "mp-9",
			Status:            domain.StatusApproved,
			ExternalReference: domain.FormatReference(ident, "modern"),
		},
	}}
	svc := newReconcileService(t, db, proc, clock.SystemClock{})

	outcome, err := svc.Reconcile(ctx, "mp-9")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if outcome.Created {
		t.Fatalf("should have matched the pending record, not created one")
	}
	if outcome.Record.ID != 1 {
		t.Fatalf("record id %d, want seeded row", outcome.Record.ID)
	}
	if outcome.Record.ProviderPaymentID != "mp-9" {
		t.Fatalf("provider id %q not attached", outcome.Record.ProviderPaymentID)
	}
	if got := paymentStatus(t, db, 1); got != "approved" {
		t.Fatalf("status %q, want approved", got)
	}
}

func TestReconcileCreatesRecordFromNotification(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	ident := identity.ForSession("33333333-3333-3333-3333-333333333333")

	proc := &fakeProcessor{payments: map[string]*processor.PaymentInfo{
		"mp-7": {
			ID:                "mp-7",
			Status:            domain.StatusApproved,
			ExternalReference: domain.FormatReference(ident, "creative"),
			TransactionAmount: 5000,
		},
	}}
	svc := newReconcileService(t, db, proc, clock.SystemClock{})

	outcome, err := svc.Reconcile(ctx, "mp-7")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !outcome.Created {
		t.Fatalf("expected a record created from the notification")
	}
	if outcome.Record.Status != domain.StatusApproved {
		t.Fatalf("status %s, want approved", outcome.Record.Status)
	}
	if outcome.Record.RemainingUses != 5 {
		t.Fatalf("remaining %d, want catalog downloads", outcome.Record.RemainingUses)
	}
	if outcome.Record.IdentityKey != ident.Key() {
		t.Fatalf("identity key %q, want %q", outcome.Record.IdentityKey, ident.Key())
	}
}

func TestReconcileOpensSubscriptionOnce(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ident := identity.ForAccount(77, false)
	seedPayment(t, db, 1, ident, "interview-pack", "mp-5", "pending", domain.UnlimitedUses, true)

	proc := &fakeProcessor{payments: map[string]*processor.PaymentInfo{
		"mp-5": {
			ID:                "mp-5",
			Status:            domain.StatusApproved,
			ExternalReference: domain.FormatReference(ident, "interview-pack"),
		},
	}}
	svc := newReconcileService(t, db, proc, clk)

	for i := 0; i < 2; i++ {
		if _, err := svc.Reconcile(ctx, "mp-5"); err != nil {
			t.Fatalf("reconcile %d: %v", i, err)
		}
	}

	var count int64
	if err := db.Raw(`SELECT COUNT(1) FROM subscriptions`).Scan(&count).Error; err != nil {
		t.Fatalf("count subscriptions: %v", err)
	}
	if count != 1 {
		t.Fatalf("subscription rows %d, want exactly 1", count)
	}

	var endsAt time.Time
	if err := db.Raw(`SELECT ends_at FROM subscriptions LIMIT 1`).Scan(&endsAt).Error; err != nil {
		t.Fatalf("scan ends_at: %v", err)
	}
	wantEnd := clk.Now().Add(30 * 24 * time.Hour)
	if !endsAt.Equal(wantEnd) {
		t.Fatalf("ends_at %v, want %v", endsAt, wantEnd)
	}
}

func TestRefreshPending(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	ident := identity.ForSession("44444444-4444-4444-4444-444444444444")
	seedPayment(t, db, 1, ident, "professional", "mp-1", "pending", 5, false)
	seedPayment(t, db, 2, ident, "modern", "", "pending", 5, false)

	proc := &fakeProcessor{payments: map[string]*processor.PaymentInfo{
		"mp-1": {
			ID:                "mp-1",
			Status:            domain.StatusApproved,
			ExternalReference: domain.FormatReference(ident, "professional"),
		},
	}}
	svc := newReconcileService(t, db, proc, clock.SystemClock{})

	updated, err := svc.RefreshPending(ctx, ident)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(updated) != 1 {
		t.Fatalf("updated %d records, want 1", len(updated))
	}
	if got := paymentStatus(t, db, 1); got != "approved" {
		t.Fatalf("status %q, want approved", got)
	}
	if got := paymentStatus(t, db, 2); got != "pending" {
		t.Fatalf("status %q, want untouched pending", got)
	}
}
