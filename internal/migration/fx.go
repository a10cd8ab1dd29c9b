package migration

import (
	affiliatedomain "github.com/agnuslink/agnuslink/internal/affiliate/domain"
	commissiondomain "github.com/agnuslink/agnuslink/internal/commission/domain"
	"github.com/agnuslink/agnuslink/internal/config"
	leaddomain "github.com/agnuslink/agnuslink/internal/lead/domain"
	onboardingdomain "github.com/agnuslink/agnuslink/internal/onboarding/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// sqlite installs derive the schema from the models.
			return conn.AutoMigrate(
				&affiliatedomain.Affiliate{},
				&onboardingdomain.Record{},
				&leaddomain.Lead{},
				&commissiondomain.Commission{},
				&commissiondomain.PayoutRequest{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
