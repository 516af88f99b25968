package migration

import (
	accountdomain "github.com/cvforge/cvforge/internal/account/domain"
	"github.com/cvforge/cvforge/internal/config"
	freetierdomain "github.com/cvforge/cvforge/internal/freetier/domain"
	paymentdomain "github.com/cvforge/cvforge/internal/payment/domain"
	subscriptiondomain "github.com/cvforge/cvforge/internal/subscription/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// sqlite is for local development only; gorm derives the schema
			// from the models there.
			return conn.AutoMigrate(
				&accountdomain.Account{},
				&paymentdomain.PaymentRecord{},
				&subscriptiondomain.SubscriptionRecord{},
				&freetierdomain.FreeUsageRecord{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
