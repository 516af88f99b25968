// Package reconcile folds the processor's authoritative payment status into
// local records. Every state change goes through the guarded transition
// update, so replayed and concurrent notifications converge on one outcome.
package reconcile

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/cvforge/cvforge/internal/clock"
	"github.com/cvforge/cvforge/internal/config"
	"github.com/cvforge/cvforge/internal/identity"
	obsmetrics "github.com/cvforge/cvforge/internal/observability/metrics"
	"github.com/cvforge/cvforge/internal/payment/domain"
	"github.com/cvforge/cvforge/internal/payment/processor"
	subscriptiondomain "github.com/cvforge/cvforge/internal/subscription/domain"
	"github.com/cvforge/cvforge/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Outcome reports what one reconciliation pass did.
type Outcome struct {
	Record  *domain.PaymentRecord
	Result  domain.TransitionResult
	Created bool
}

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Repo            domain.Repository
	Processor       processor.Client
	Pricing         *config.PricingHolder
	Clock           clock.Clock
	SubscriptionSvc subscriptiondomain.Service
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	repo            domain.Repository
	processor       processor.Client
	pricing         *config.PricingHolder
	clock           clock.Clock
	subscriptionSvc subscriptiondomain.Service
	obsMetrics      *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("payment.reconcile"),
		genID:           p.GenID,
		repo:            p.Repo,
		processor:       p.Processor,
		pricing:         p.Pricing,
		clock:           p.Clock,
		subscriptionSvc: p.SubscriptionSvc,
		obsMetrics:      p.ObsMetrics,
	}
}

// Reconcile fetches the payment from the processor and converges the local
// record onto the processor's status.
func (s *Service) Reconcile(ctx context.Context, providerPaymentID string) (*Outcome, error) {
	info, err := s.processor.GetPayment(ctx, providerPaymentID)
	if err != nil {
		if errors.Is(err, domain.ErrProcessorUnavailable) && s.obsMetrics != nil {
			s.obsMetrics.RecordProcessorFailure()
		}
		return nil, err
	}

	record, created, err := s.resolveRecord(ctx, info)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Record: record, Created: created}
	outcome.Result = s.applyStatus(ctx, record, info)

	if err := s.repo.UpdateSideChannel(ctx, s.db, record.ID, info.PayerEmail, info.PaymentMethod, s.clock.Now()); err != nil {
		return nil, err
	}

	// Re-read so the caller sees the converged row, whichever notification
	// won the race.
	fresh, err := s.repo.FindByID(ctx, s.db, record.ID)
	if err != nil {
		return nil, err
	}
	if fresh != nil {
		outcome.Record = fresh
		record = fresh
	}

	if record.Status == domain.StatusApproved && record.IsSubscription {
		if err := s.openSubscription(ctx, record); err != nil {
			return nil, err
		}
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordReconciliation(string(outcome.Result), string(record.Status))
	}
	return outcome, nil
}

// resolveRecord finds the local record for a processor payment, attaching the
// provider id to a matching pending record or creating one from the external
// reference when the notification arrives before any local state exists.
func (s *Service) resolveRecord(ctx context.Context, info *processor.PaymentInfo) (*domain.PaymentRecord, bool, error) {
	record, err := s.repo.FindByProviderID(ctx, s.db, info.ID)
	if err != nil {
		return nil, false, err
	}
	if record != nil {
		return record, false, nil
	}

	ident, product, err := domain.ParseReference(info.ExternalReference)
	if err != nil {
		return nil, false, err
	}

	pending, err := s.repo.FindLatestPending(ctx, s.db, ident.Key(), product)
	if err != nil {
		return nil, false, err
	}
	if pending != nil {
		if err := s.repo.AttachProviderID(ctx, s.db, pending.ID, info.ID, s.clock.Now()); err != nil {
			return nil, false, err
		}
		record, err = s.repo.FindByProviderID(ctx, s.db, info.ID)
		if err != nil {
			return nil, false, err
		}
		if record != nil {
			return record, false, nil
		}
		// The attach lost to a concurrent notification that claimed the
		// pending row for a different provider id; fall through and create.
	}

	created, err := s.createFromReference(ctx, info, ident, product)
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			record, findErr := s.repo.FindByProviderID(ctx, s.db, info.ID)
			if findErr != nil {
				return nil, false, findErr
			}
			if record != nil {
				return record, false, nil
			}
		}
		return nil, false, err
	}
	return created, true, nil
}

func (s *Service) createFromReference(ctx context.Context, info *processor.PaymentInfo, ident identity.Identity, product string) (*domain.PaymentRecord, error) {
	pricing := s.pricing.Get()
	remaining := 0
	isSubscription := false
	if _, ok := pricing.Plan(product); ok {
		remaining = domain.UnlimitedUses
		isSubscription = true
	} else if tpl, ok := pricing.Template(product); ok {
		remaining = tpl.Downloads
	}

	now := s.clock.Now()
	record := &domain.PaymentRecord{
		ID:                s.genID.Generate(),
		IdentityKey:       ident.Key(),
		ProviderPaymentID: info.ID,
		ExternalReference: info.ExternalReference,
		Product:           product,
		Amount:            info.TransactionAmount,
		Status:            domain.StatusPending,
		RemainingUses:     remaining,
		IsSubscription:    isSubscription,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, s.db, record); err != nil {
		return nil, err
	}
	s.log.Info("payment record created from notification",
		zap.String("provider_payment_id", info.ID),
		zap.String("identity", ident.Key()),
		zap.String("product", product),
	)
	return record, nil
}

// applyStatus attempts the guarded transition and classifies what happened.
func (s *Service) applyStatus(ctx context.Context, record *domain.PaymentRecord, info *processor.PaymentInfo) domain.TransitionResult {
	if info.Status == domain.StatusPending || info.Status == record.Status {
		return domain.TransitionNoop
	}

	applied, err := s.repo.ApplyTransition(ctx, s.db, record.ID, info.Status, s.clock.Now())
	if err != nil {
		s.log.Error("transition update failed",
			zap.String("payment_id", record.ID.String()),
			zap.Error(err),
		)
		return domain.TransitionIllegal
	}
	if applied {
		s.log.Info("payment status advanced",
			zap.String("payment_id", record.ID.String()),
			zap.String("from", string(record.Status)),
			zap.String("to", string(info.Status)),
		)
		return domain.TransitionApplied
	}

	// The guard rejected the update. A concurrent reconciliation may have
	// already applied the same status, which is a replay rather than a
	// conflict.
	current, err := s.repo.FindByID(ctx, s.db, record.ID)
	if err == nil && current != nil && current.Status == info.Status {
		return domain.TransitionNoop
	}
	s.log.Warn("processor status ignored by transition guard",
		zap.String("payment_id", record.ID.String()),
		zap.String("local", string(record.Status)),
		zap.String("processor", string(info.Status)),
	)
	return domain.TransitionIllegal
}

func (s *Service) openSubscription(ctx context.Context, record *domain.PaymentRecord) error {
	ident, err := identity.ParseKey(record.IdentityKey)
	if err != nil || !ident.IsAccount() {
		s.log.Warn("approved subscription payment has no account identity",
			zap.String("payment_id", record.ID.String()),
			zap.String("identity", record.IdentityKey),
		)
		return nil
	}
	_, err = s.subscriptionSvc.CreateOrExtend(ctx, ident.AccountID, record.Product, record.ID)
	return err
}

// RefreshPending re-checks the identity's pending payments against the
// processor. Pending rows that never reached the processor stay untouched.
func (s *Service) RefreshPending(ctx context.Context, ident identity.Identity) ([]domain.PaymentRecord, error) {
	pending, err := s.repo.ListPending(ctx, s.db, ident.Key())
	if err != nil {
		return nil, err
	}

	var updated []domain.PaymentRecord
	for i := range pending {
		record := pending[i]
		if record.ProviderPaymentID == "" {
			continue
		}
		outcome, err := s.Reconcile(ctx, record.ProviderPaymentID)
		if err != nil {
			if errors.Is(err, domain.ErrPaymentNotFound) || errors.Is(err, domain.ErrProcessorUnavailable) {
				s.log.Warn("pending payment refresh skipped",
					zap.String("payment_id", record.ID.String()),
					zap.Error(err),
				)
				continue
			}
			return nil, err
		}
		if outcome.Result == domain.TransitionApplied && outcome.Record != nil {
			updated = append(updated, *outcome.Record)
		}
	}
	return updated, nil
}
