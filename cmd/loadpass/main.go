package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/loadpass/internal/auth"
	"github.com/smallbiznis/loadpass/internal/catalog"
	"github.com/smallbiznis/loadpass/internal/checkout"
	"github.com/smallbiznis/loadpass/internal/clock"
	"github.com/smallbiznis/loadpass/internal/config"
	"github.com/smallbiznis/loadpass/internal/credit"
	"github.com/smallbiznis/loadpass/internal/customer"
	"github.com/smallbiznis/loadpass/internal/migration"
	"github.com/smallbiznis/loadpass/internal/observability"
	"github.com/smallbiznis/loadpass/internal/payment"
	"github.com/smallbiznis/loadpass/internal/providers"
	"github.com/smallbiznis/loadpass/internal/ratelimit"
	"github.com/smallbiznis/loadpass/internal/server"
	"github.com/smallbiznis/loadpass/internal/usermeta"
	"github.com/smallbiznis/loadpass/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		providers.Module,
		ratelimit.Module,

		usermeta.Module,
		catalog.Module,
		credit.Module,
		checkout.Module,
		customer.Module,
		payment.Module,
		auth.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
