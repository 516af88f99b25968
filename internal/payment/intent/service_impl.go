// Package intent creates checkout preferences with the payment processor and
// records the matching pending payment rows.
package intent

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/cvforge/cvforge/internal/clock"
	"github.com/cvforge/cvforge/internal/config"
	"github.com/cvforge/cvforge/internal/identity"
	obsmetrics "github.com/cvforge/cvforge/internal/observability/metrics"
	"github.com/cvforge/cvforge/internal/payment/domain"
	"github.com/cvforge/cvforge/internal/payment/processor"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Request is a client's purchase request. The submitted amount is advisory
// for template products; the catalog price always wins.
type Request struct {
	Product      string
	Title        string
	Amount       int64
	Quantity     int
	Subscription bool
}

// Intent is the handle the client needs to proceed with checkout. AlreadyPaid
// short-circuits checkout when an approved purchase with uses left exists.
type Intent struct {
	PaymentRecordID  snowflake.ID
	PreferenceID     string
	InitPoint        string
	SandboxInitPoint string
	AlreadyPaid      bool
	Remaining        int
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Processor  processor.Client
	Cfg        config.Config
	Pricing    *config.PricingHolder
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	processor  processor.Client
	cfg        config.Config
	pricing    *config.PricingHolder
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.intent"),
		genID:      p.GenID,
		repo:       p.Repo,
		processor:  p.Processor,
		cfg:        p.Cfg,
		pricing:    p.Pricing,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

// CreateIntent validates the request against the catalog, persists a pending
// payment record and asks the processor for a checkout preference. The
// pending row is written before the processor call so a crash or processor
// outage never loses track of an attempted purchase.
func (s *Service) CreateIntent(ctx context.Context, ident identity.Identity, req Request) (*Intent, error) {
	if ident.IsZero() {
		return nil, domain.ErrInvalidRequest
	}
	req.Product = strings.ToLower(strings.TrimSpace(req.Product))
	req.Title = strings.TrimSpace(req.Title)
	if req.Product == "" {
		return nil, domain.ErrInvalidRequest
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	pricing := s.pricing.Get()

	var (
		amount    int64
		remaining int
	)
	if req.Subscription {
		if !ident.IsAccount() {
			return nil, domain.ErrAuthRequired
		}
		plan, ok := pricing.Plan(req.Product)
		if !ok {
			return nil, domain.ErrInvalidProduct
		}
		amount = req.Amount
		if amount <= 0 {
			amount = plan.Price
		}
		remaining = domain.UnlimitedUses
	} else {
		tpl, ok := pricing.Template(req.Product)
		if !ok {
			return nil, domain.ErrInvalidProduct
		}
		if req.Amount != 0 && req.Amount != tpl.Price {
			s.log.Warn("submitted price differs from catalog, substituting",
				zap.String("product", req.Product),
				zap.Int64("submitted", req.Amount),
				zap.Int64("catalog", tpl.Price),
			)
		}
		amount = tpl.Price
		remaining = tpl.Downloads

		existing, err := s.repo.FindApprovedWithRemaining(ctx, s.db, ident.Key(), req.Product)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &Intent{
				PaymentRecordID: existing.ID,
				AlreadyPaid:     true,
				Remaining:       existing.RemainingUses,
			}, nil
		}
	}

	title := req.Title
	if title == "" {
		title = req.Product
	}

	now := s.clock.Now()
	record := &domain.PaymentRecord{
		ID:                s.genID.Generate(),
		IdentityKey:       ident.Key(),
		ExternalReference: domain.FormatReference(ident, req.Product),
		Product:           req.Product,
		Amount:            amount,
		Status:            domain.StatusPending,
		RemainingUses:     remaining,
		IsSubscription:    req.Subscription,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, s.db, record); err != nil {
		return nil, err
	}

	pref, err := s.processor.CreatePreference(ctx, processor.PreferenceRequest{
		Items: []processor.PreferenceItem{{
			Title:     title,
			UnitPrice: amount,
			Quantity:  req.Quantity,
		}},
		ExternalReference: record.ExternalReference,
		BackURLs: processor.BackURLs{
			Success: s.cfg.FrontendURL + "/payment/success",
			Failure: s.cfg.FrontendURL + "/payment/failure",
			Pending: s.cfg.FrontendURL + "/payment/pending",
		},
		AutoReturn:      "approved",
		NotificationURL: s.cfg.BackendURL + "/api/payments/webhook",
	})
	if err != nil {
		// The pending row stays behind so a later webhook or refresh can
		// still reconcile the attempt.
		if s.obsMetrics != nil {
			s.obsMetrics.RecordProcessorFailure()
		}
		s.log.Error("create preference failed",
			zap.String("payment_id", record.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	if err := s.repo.AttachPreferenceID(ctx, s.db, record.ID, pref.ID, s.clock.Now()); err != nil {
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordIntent(intentKind(req.Subscription))
	}
	s.log.Info("payment intent created",
		zap.String("payment_id", record.ID.String()),
		zap.String("identity", ident.Key()),
		zap.String("product", req.Product),
		zap.Int64("amount", amount),
		zap.Bool("subscription", req.Subscription),
	)

	return &Intent{
		PaymentRecordID:  record.ID,
		PreferenceID:     pref.ID,
		InitPoint:        pref.InitPoint,
		SandboxInitPoint: pref.SandboxInitPoint,
		Remaining:        remaining,
	}, nil
}

func intentKind(subscription bool) string {
	if subscription {
		return "subscription"
	}
	return "template"
}
