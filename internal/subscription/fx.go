package subscription

import (
	"github.com/cvforge/cvforge/internal/subscription/repository"
	"github.com/cvforge/cvforge/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
