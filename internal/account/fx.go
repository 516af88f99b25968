package account

import (
	"github.com/cvforge/cvforge/internal/account/repository"
	"github.com/cvforge/cvforge/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
