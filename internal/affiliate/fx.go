package affiliate

import (
	"github.com/agnuslink/agnuslink/internal/affiliate/repository"
	"github.com/agnuslink/agnuslink/internal/affiliate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("affiliate.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
