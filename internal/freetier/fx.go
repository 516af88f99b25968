package freetier

import (
	"github.com/cvforge/cvforge/internal/freetier/repository"
	"github.com/cvforge/cvforge/internal/freetier/service"
	"go.uber.org/fx"
)

var Module = fx.Module("freetier",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
