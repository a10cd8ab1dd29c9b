package commission

import (
	"github.com/agnuslink/agnuslink/internal/commission/domain"
	"github.com/agnuslink/agnuslink/internal/commission/repository"
	"github.com/agnuslink/agnuslink/internal/commission/service"
	"github.com/agnuslink/agnuslink/internal/events"
	"go.uber.org/fx"
)

var Module = fx.Module("commission.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	// The engine is the event handler for lead status changes.
	fx.Provide(func(s domain.Service) events.Handler { return s }),
)
