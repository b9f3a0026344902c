package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/backoffice/internal/audit"
	"github.com/smallbiznis/backoffice/internal/catchup"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	"github.com/smallbiznis/backoffice/internal/instance"
	"github.com/smallbiznis/backoffice/internal/logger"
	"github.com/smallbiznis/backoffice/internal/observability"
	"github.com/smallbiznis/backoffice/internal/providers/pdf"
	"github.com/smallbiznis/backoffice/internal/schedule"
	"github.com/smallbiznis/backoffice/internal/scheduler"
	"github.com/smallbiznis/backoffice/internal/sequence"
	"github.com/smallbiznis/backoffice/pkg/db"
	"go.uber.org/fx"
)

// The standalone sweeper runs the catch-up sweep regardless of
// engine.sweep.enabled, so API replicas can leave it off. Run more than one
// only with REDIS_ADDR set.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by the sweep
		sequence.Module,
		audit.Module,
		pdf.Module,
		instance.Module,
		schedule.Module,
		catchup.Module,

		// No server module!
		fx.Provide(scheduler.NewLease),
		fx.Provide(scheduler.New),
		fx.Invoke(StartScheduler),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}

func StartScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
