package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cvforge/cvforge/internal/clock"
	"github.com/cvforge/cvforge/internal/config"
	"github.com/cvforge/cvforge/internal/freetier/repository"
	"github.com/cvforge/cvforge/internal/freetier/service"
	"github.com/cvforge/cvforge/internal/identity"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_freetier_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE free_usage (
			id BIGINT PRIMARY KEY,
			identity_key TEXT NOT NULL,
			feature TEXT NOT NULL,
			day TEXT NOT NULL,
			count INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX idx_free_usage_window ON free_usage(identity_key, feature, day)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newService(t *testing.T, db *gorm.DB, clk clock.Clock) *service.Service {
	t.Helper()

	node, err := snowflake.NewNode(15)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return service.NewService(service.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    repository.Provide(),
		Pricing: config.NewStaticPricingHolder(config.DefaultPricingConfig()),
		Clock:   clk,
	})
}

func TestTryConsumeCountsUpToLimit(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newService(t, db, clk)

	ident := identity.ForSession("11111111-1111-1111-1111-111111111111")

	for i := 1; i <= 10; i++ {
		decision, err := svc.TryConsume(ctx, ident, "question_views")
		if err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("consume %d denied before limit", i)
		}
		if decision.Used != i {
			t.Fatalf("used %d after %d consumes", decision.Used, i)
		}
	}

	decision, err := svc.TryConsume(ctx, ident, "question_views")
	if err != nil {
		t.Fatalf("consume over limit: %v", err)
	}
	if decision.Allowed {
		t.Fatal("consume allowed past the anonymous limit")
	}
	if decision.Used != 10 || decision.Remaining != 0 {
		t.Fatalf("decision %+v after exhaustion", decision)
	}
}

func TestAccountLimitHigherThanAnonymous(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newService(t, db, clk)

	anon, err := svc.Peek(ctx, identity.ForSession("11111111-1111-1111-1111-111111111111"), "question_views")
	if err != nil {
		t.Fatalf("peek anon: %v", err)
	}
	account, err := svc.Peek(ctx, identity.ForAccount(42, false), "question_views")
	if err != nil {
		t.Fatalf("peek account: %v", err)
	}
	if anon.Limit != 10 || account.Limit != 20 {
		t.Fatalf("limits anon=%d account=%d", anon.Limit, account.Limit)
	}
}

func TestWindowResetsAtMidnightUTC(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC))
	svc := newService(t, db, clk)

	ident := identity.ForSession("11111111-1111-1111-1111-111111111111")

	decision, err := svc.TryConsume(ctx, ident, "interview_sessions")
	if err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("first interview session denied")
	}

	decision, err = svc.TryConsume(ctx, ident, "interview_sessions")
	if err != nil {
		t.Fatalf("second consume: %v", err)
	}
	if decision.Allowed {
		t.Fatal("second interview session allowed within the same day")
	}

	clk.Advance(time.Hour)

	decision, err = svc.TryConsume(ctx, ident, "interview_sessions")
	if err != nil {
		t.Fatalf("next day consume: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("consume denied after the window rolled over")
	}
	if decision.Used != 1 {
		t.Fatalf("used %d in the fresh window", decision.Used)
	}
}

func TestIdentitiesDoNotShareWindows(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newService(t, db, clk)

	first := identity.ForSession("11111111-1111-1111-1111-111111111111")
	second := identity.ForSession("22222222-2222-2222-2222-222222222222")

	if _, err := svc.TryConsume(ctx, first, "question_views"); err != nil {
		t.Fatalf("consume first: %v", err)
	}

	decision, err := svc.Peek(ctx, second, "question_views")
	if err != nil {
		t.Fatalf("peek second: %v", err)
	}
	if decision.Used != 0 {
		t.Fatalf("second identity sees used=%d", decision.Used)
	}
}

func TestPeekNeverConsumes(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newService(t, db, clk)

	ident := identity.ForSession("11111111-1111-1111-1111-111111111111")

	for i := 0; i < 5; i++ {
		if _, err := svc.Peek(ctx, ident, "question_views"); err != nil {
			t.Fatalf("peek %d: %v", i, err)
		}
	}

	decision, err := svc.Peek(ctx, ident, "question_views")
	if err != nil {
		t.Fatalf("final peek: %v", err)
	}
	if decision.Used != 0 || decision.Remaining != 10 {
		t.Fatalf("decision %+v after peeks only", decision)
	}
}
