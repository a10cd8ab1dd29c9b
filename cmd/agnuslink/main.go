package main

import (
	"github.com/agnuslink/agnuslink/internal/clock"
	"github.com/agnuslink/agnuslink/internal/locking"
	"github.com/agnuslink/agnuslink/internal/migration"
	"github.com/agnuslink/agnuslink/internal/observability"
	"github.com/agnuslink/agnuslink/internal/scheduler"
	"github.com/agnuslink/agnuslink/internal/server"
	"github.com/agnuslink/agnuslink/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		locking.Module,
		migration.Module,
		server.Module,
		scheduler.Module,
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
