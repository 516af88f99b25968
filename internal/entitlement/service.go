// Package entitlement answers "may this identity use this product right now".
// The answer is always derived from payment and subscription rows at call
// time; no premium flag is ever cached on an account or session.
package entitlement

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/cvforge/cvforge/internal/clock"
	"github.com/cvforge/cvforge/internal/identity"
	obsmetrics "github.com/cvforge/cvforge/internal/observability/metrics"
	paymentdomain "github.com/cvforge/cvforge/internal/payment/domain"
	subscriptiondomain "github.com/cvforge/cvforge/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotEntitled means no admin override, active subscription or approved
// payment with uses left covers the product.
var ErrNotEntitled = errors.New("not entitled")

// Source says which rule granted access. Consumption only decrements for
// payment-backed grants.
type Source string

const (
	SourceAdmin        Source = "admin"
	SourceSubscription Source = "subscription"
	SourcePayment      Source = "payment"
	SourceNone         Source = "none"
)

// Grant is one entitlement decision.
type Grant struct {
	Granted   bool
	Unlimited bool
	Remaining int
	Source    Source
	PaymentID snowflake.ID
	Product   string
}

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	PaymentRepo     paymentdomain.Repository
	SubscriptionSvc subscriptiondomain.Service
	Clock           clock.Clock
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	paymentRepo     paymentdomain.Repository
	subscriptionSvc subscriptiondomain.Service
	clock           clock.Clock
	obsMetrics      *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("entitlement"),
		paymentRepo:     p.PaymentRepo,
		subscriptionSvc: p.SubscriptionSvc,
		clock:           p.Clock,
		obsMetrics:      p.ObsMetrics,
	}
}

// Has evaluates the grant rules in priority order: admin override, active
// subscription, then approved payment with remaining uses. Empty product
// matches any paid product.
func (s *Service) Has(ctx context.Context, ident identity.Identity, product string) (*Grant, error) {
	if ident.IsZero() {
		return &Grant{Source: SourceNone}, nil
	}
	if ident.Admin {
		return &Grant{Granted: true, Unlimited: true, Source: SourceAdmin, Product: product}, nil
	}

	if ident.IsAccount() {
		current, err := s.subscriptionSvc.Current(ctx, ident.AccountID)
		if err != nil {
			return nil, err
		}
		if current != nil {
			return &Grant{Granted: true, Unlimited: true, Source: SourceSubscription, Product: product}, nil
		}
	}

	record, err := s.paymentRepo.FindApprovedWithRemaining(ctx, s.db, ident.Key(), product)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return &Grant{Source: SourceNone, Product: product}, nil
	}
	return &Grant{
		Granted:   true,
		Unlimited: record.Unlimited(),
		Remaining: record.RemainingUses,
		Source:    SourcePayment,
		PaymentID: record.ID,
		Product:   record.Product,
	}, nil
}

// Consume spends one use. For payment-backed grants the decrement is a single
// conditional update, so two concurrent consumers of a last remaining use
// cannot both succeed; the loser re-evaluates in case another approved
// payment covers the product.
func (s *Service) Consume(ctx context.Context, ident identity.Identity, product string) (*Grant, error) {
	for attempt := 0; attempt < 3; attempt++ {
		grant, err := s.Has(ctx, ident, product)
		if err != nil {
			return nil, err
		}
		if !grant.Granted {
			return nil, ErrNotEntitled
		}
		if grant.Unlimited {
			s.recordConsumption(grant.Source)
			return grant, nil
		}

		ok, err := s.paymentRepo.DecrementRemaining(ctx, s.db, grant.PaymentID, s.clock.Now())
		if err != nil {
			return nil, err
		}
		if !ok {
			// Lost the race for the last use, or the payment was refunded
			// underneath us. Re-evaluate against current rows.
			continue
		}
		grant.Remaining--
		s.recordConsumption(grant.Source)
		return grant, nil
	}
	return nil, ErrNotEntitled
}

func (s *Service) recordConsumption(source Source) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordConsumption(string(source))
	}
}
