package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/catering/internal/authorization"
	"github.com/smallbiznis/catering/internal/clock"
	"github.com/smallbiznis/catering/internal/config"
	"github.com/smallbiznis/catering/internal/notification"
	"github.com/smallbiznis/catering/internal/observability"
	"github.com/smallbiznis/catering/internal/ratelimit"
	"github.com/smallbiznis/catering/internal/server"
	"github.com/smallbiznis/catering/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		authorization.Module,
		ratelimit.Module,
		notification.Module,

		// No scheduler: aggregation runs in apps/scheduler or apps/notification-run
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
