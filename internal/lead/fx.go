package lead

import (
	"github.com/agnuslink/agnuslink/internal/lead/repository"
	"github.com/agnuslink/agnuslink/internal/lead/service"
	"go.uber.org/fx"
)

var Module = fx.Module("lead.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
