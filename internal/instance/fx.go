package instance

import (
	"github.com/smallbiznis/backoffice/internal/instance/repository"
	"github.com/smallbiznis/backoffice/internal/instance/service"
	"go.uber.org/fx"
)

var Module = fx.Module("instance.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
