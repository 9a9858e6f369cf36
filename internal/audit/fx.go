package audit

import (
	"github.com/counselops/letterflow/internal/audit/repository"
	"github.com/counselops/letterflow/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
