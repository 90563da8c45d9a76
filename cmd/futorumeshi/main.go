package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/futorumeshi/internal/clock"
	"github.com/smallbiznis/futorumeshi/internal/config"
	"github.com/smallbiznis/futorumeshi/internal/migration"
	"github.com/smallbiznis/futorumeshi/internal/observability"
	"github.com/smallbiznis/futorumeshi/internal/scheduler"
	"github.com/smallbiznis/futorumeshi/internal/server"
	"github.com/smallbiznis/futorumeshi/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional Domains
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
