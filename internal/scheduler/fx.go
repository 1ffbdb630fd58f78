package scheduler

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(NewScheduler),
)

func NewScheduler(lc fx.Lifecycle, cfg Config, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			if cfg.UseCron {
				engine, err := sched.NewCron(ctx)
				if err != nil {
					cancel()
					return err
				}
				engine.Start()
				sched.log.Info("scheduler started", zap.String("mode", "cron"), zap.Int("entries", len(engine.Entries())))
				lc.Append(fx.Hook{
					OnStop: func(stopCtx context.Context) error {
						cancel()
						select {
						case <-engine.Stop().Done():
						case <-stopCtx.Done():
						}
						return nil
					},
				})
				return nil
			}

			go sched.RunForever(ctx)
			sched.log.Info("scheduler started", zap.String("mode", "ticker"), zap.Duration("interval", cfg.RunInterval))

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
