package letter

import (
	"github.com/counselops/letterflow/internal/letter/service"
	"go.uber.org/fx"
)

var Module = fx.Module("letter.service",
	fx.Provide(service.NewService),
)
