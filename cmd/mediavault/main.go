package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mediavault/internal/authorization"
	"github.com/smallbiznis/mediavault/internal/clock"
	"github.com/smallbiznis/mediavault/internal/config"
	"github.com/smallbiznis/mediavault/internal/media"
	"github.com/smallbiznis/mediavault/internal/migration"
	"github.com/smallbiznis/mediavault/internal/notification"
	"github.com/smallbiznis/mediavault/internal/observability"
	"github.com/smallbiznis/mediavault/internal/payment"
	"github.com/smallbiznis/mediavault/internal/plan"
	"github.com/smallbiznis/mediavault/internal/providers"
	"github.com/smallbiznis/mediavault/internal/quota"
	"github.com/smallbiznis/mediavault/internal/ratelimit"
	"github.com/smallbiznis/mediavault/internal/scheduler"
	"github.com/smallbiznis/mediavault/internal/seed"
	"github.com/smallbiznis/mediavault/internal/server"
	"github.com/smallbiznis/mediavault/internal/subscription"
	"github.com/smallbiznis/mediavault/internal/usage"
	"github.com/smallbiznis/mediavault/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		ratelimit.Module,
		providers.Module,

		// Domains
		plan.Module,
		seed.Module,
		usage.Module,
		quota.Module,
		media.Module,
		subscription.Module,
		notification.Module,
		payment.Module,
		authorization.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
