package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cvforge/cvforge/internal/clock"
	"github.com/cvforge/cvforge/internal/config"
	"github.com/cvforge/cvforge/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultTermDays = 30

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Pricing *config.PricingHolder
	Clock   clock.Clock
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	pricing *config.PricingHolder
	clock   clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("subscription.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		pricing: p.Pricing,
		clock:   p.Clock,
	}
}

func (s *Service) CreateOrExtend(ctx context.Context, accountID snowflake.ID, plan string, paymentID snowflake.ID) (*domain.SubscriptionRecord, error) {
	if accountID == 0 {
		return nil, domain.ErrNotAnAccount
	}

	termDays := defaultTermDays
	if entry, ok := s.pricing.Get().Plan(plan); ok {
		termDays = entry.TermDays
	}

	now := s.clock.Now()
	start := now
	if current, err := s.repo.FindCurrent(ctx, s.db, accountID); err != nil {
		return nil, err
	} else if current != nil && current.GrantsAccessAt(now) {
		// Stacking a term on top of a running one pushes the end date out
		// instead of overlapping.
		start = current.EndsAt
	}

	record := &domain.SubscriptionRecord{
		ID:        s.genID.Generate(),
		AccountID: accountID,
		Plan:      plan,
		Status:    domain.StatusActive,
		PaymentID: paymentID,
		StartsAt:  start,
		EndsAt:    start.Add(time.Duration(termDays) * 24 * time.Hour),
		CreatedAt: now,
		UpdatedAt: now,
	}

	inserted, err := s.repo.Insert(ctx, s.db, record)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Replayed reconciliation of the same payment; the original term
		// stands.
		return s.repo.FindByPaymentID(ctx, s.db, paymentID)
	}

	s.log.Info("subscription term opened",
		zap.String("account_id", accountID.String()),
		zap.String("plan", plan),
		zap.Time("ends_at", record.EndsAt),
	)
	return record, nil
}

func (s *Service) Current(ctx context.Context, accountID snowflake.ID) (*domain.SubscriptionRecord, error) {
	if accountID == 0 {
		return nil, nil
	}
	current, err := s.repo.FindCurrent(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	if current == nil || !current.GrantsAccessAt(s.clock.Now()) {
		return nil, nil
	}
	return current, nil
}

func (s *Service) Status(ctx context.Context, accountID snowflake.ID) (*domain.StatusView, error) {
	current, err := s.Current(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return &domain.StatusView{Active: false}, nil
	}
	ends := current.EndsAt
	return &domain.StatusView{
		Active: true,
		Plan:   current.Plan,
		Status: current.Status,
		EndsAt: &ends,
	}, nil
}

func (s *Service) Cancel(ctx context.Context, accountID snowflake.ID) error {
	current, err := s.Current(ctx, accountID)
	if err != nil {
		return err
	}
	if current == nil {
		return domain.ErrSubscriptionNotFound
	}
	changed, err := s.repo.MarkCancelled(ctx, s.db, current.ID, s.clock.Now())
	if err != nil {
		return err
	}
	if !changed {
		// Already cancelled; nothing to do.
		return nil
	}
	s.log.Info("subscription cancelled",
		zap.String("account_id", accountID.String()),
		zap.Time("access_until", current.EndsAt),
	)
	return nil
}

func (s *Service) History(ctx context.Context, accountID snowflake.ID) ([]domain.SubscriptionRecord, error) {
	if accountID == 0 {
		return nil, domain.ErrNotAnAccount
	}
	return s.repo.ListByAccount(ctx, s.db, accountID)
}

func (s *Service) ExpireLapsed(ctx context.Context) (int64, error) {
	expired, err := s.repo.MarkExpired(ctx, s.db, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.log.Info("subscription terms expired", zap.Int64("count", expired))
	}
	return expired, nil
}
