package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/cvforge/cvforge/internal/clock"
	"github.com/cvforge/cvforge/internal/migration"
	"github.com/cvforge/cvforge/internal/observability"
	"github.com/cvforge/cvforge/internal/server"
	"github.com/cvforge/cvforge/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
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
