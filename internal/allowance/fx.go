package allowance

import (
	"github.com/counselops/letterflow/internal/allowance/service"
	"go.uber.org/fx"
)

var Module = fx.Module("allowance.service",
	fx.Provide(service.NewService),
)
