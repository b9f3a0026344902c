package catchup

import (
	"github.com/smallbiznis/backoffice/internal/catchup/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catchup.service",
	fx.Provide(service.NewService),
)
