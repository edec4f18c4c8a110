package reconcile

import (
	"context"

	"github.com/smallbiznis/payflow/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.reconcile",
	fx.Provide(newConfig),
	fx.Provide(NewWorker),
	fx.Invoke(runWorker),
)

func newConfig(cfg config.Config) Config {
	return Config{
		BatchSize:    cfg.ReconcileBatch,
		PollInterval: cfg.ReconcileInterval,
	}.withDefaults()
}

func runWorker(lc fx.Lifecycle, worker *Worker) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go worker.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
