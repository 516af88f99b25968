package payment

import (
	"github.com/cvforge/cvforge/internal/config"
	"github.com/cvforge/cvforge/internal/payment/intent"
	"github.com/cvforge/cvforge/internal/payment/processor"
	"github.com/cvforge/cvforge/internal/payment/reconcile"
	"github.com/cvforge/cvforge/internal/payment/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config, log *zap.Logger) processor.Client {
		return processor.NewHTTPClient(cfg, log)
	}),
	fx.Provide(intent.NewService),
	fx.Provide(reconcile.NewService),
)
