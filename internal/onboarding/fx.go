package onboarding

import (
	"github.com/agnuslink/agnuslink/internal/onboarding/repository"
	"github.com/agnuslink/agnuslink/internal/onboarding/service"
	"go.uber.org/fx"
)

var Module = fx.Module("onboarding.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
