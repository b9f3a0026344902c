package scheduler

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(NewLease),
	fx.Provide(New),
	fx.Invoke(Start),
)

// NewLease coordinates through redis when REDIS_ADDR is set and falls back
// to an in-process lease for single-replica deployments.
func NewLease(lc fx.Lifecycle, cfg config.Config, clk clock.Clock, log *zap.Logger) Lease {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		log.Info("sweep lease is process-local, REDIS_ADDR not set")
		return NewLocalLease(clk)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return NewRedisLease(client)
}

func Start(lc fx.Lifecycle, engine *config.EngineConfigHolder, sched *Scheduler, log *zap.Logger) {
	if !engine.Get().Sweep.Enabled {
		log.Info("catch-up sweep disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go sched.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
