package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/cvforge/cvforge/internal/clock"
	"github.com/cvforge/cvforge/internal/config"
	"github.com/cvforge/cvforge/internal/freetier/domain"
	"github.com/cvforge/cvforge/internal/identity"
	obsmetrics "github.com/cvforge/cvforge/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Decision is the outcome of one free-tier check.
type Decision struct {
	Allowed   bool `json:"allowed"`
	Used      int  `json:"used"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Pricing    *config.PricingHolder
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	pricing    *config.PricingHolder
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("freetier"),
		genID:      p.GenID,
		repo:       p.Repo,
		pricing:    p.Pricing,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

// TryConsume spends one free use of a feature for today's UTC window. The
// counter bump is conditional on staying under the cap, so bursts of
// concurrent requests settle at exactly the limit.
func (s *Service) TryConsume(ctx context.Context, ident identity.Identity, feature string) (*Decision, error) {
	feature = strings.ToLower(strings.TrimSpace(feature))
	if ident.IsZero() || feature == "" {
		return &Decision{}, nil
	}

	limit := s.pricing.Get().FreeLimit(feature, ident.IsAccount())
	now := s.clock.Now()
	day := now.UTC().Format(domain.DayFormat)

	granted, err := s.repo.IncrementWithin(ctx, s.db, s.genID.Generate(), ident.Key(), feature, day, limit, now)
	if err != nil {
		return nil, err
	}

	used, err := s.repo.Count(ctx, s.db, ident.Key(), feature, day)
	if err != nil {
		return nil, err
	}

	decision := &Decision{
		Allowed:   granted,
		Used:      used,
		Limit:     limit,
		Remaining: remaining(limit, used),
	}
	if !granted {
		if s.obsMetrics != nil {
			s.obsMetrics.RecordFreeTierDenied(feature)
		}
		s.log.Info("free tier limit reached",
			zap.String("identity", ident.Key()),
			zap.String("feature", feature),
			zap.Int("limit", limit),
		)
	}
	return decision, nil
}

// Peek reports today's usage without consuming anything.
func (s *Service) Peek(ctx context.Context, ident identity.Identity, feature string) (*Decision, error) {
	feature = strings.ToLower(strings.TrimSpace(feature))
	if ident.IsZero() || feature == "" {
		return &Decision{}, nil
	}

	limit := s.pricing.Get().FreeLimit(feature, ident.IsAccount())
	day := s.clock.Now().UTC().Format(domain.DayFormat)
	used, err := s.repo.Count(ctx, s.db, ident.Key(), feature, day)
	if err != nil {
		return nil, err
	}
	return &Decision{
		Allowed:   used < limit,
		Used:      used,
		Limit:     limit,
		Remaining: remaining(limit, used),
	}, nil
}

func remaining(limit, used int) int {
	if left := limit - used; left > 0 {
		return left
	}
	return 0
}
