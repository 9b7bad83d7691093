package runner

import (
	"context"

	"go.uber.org/fx"

	"signal_trader/pkg/logger"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(New),
		fx.Invoke(func(lc fx.Lifecycle, r *Runner) {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})

			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					// стартовая подготовка: часы, режим позиций, баланс
					if err := r.client.SyncClock(ctx); err != nil {
						logger.Warn("initial clock sync: %v", err)
					}
					r.eng.ProbeMode(ctx)
					if err := r.eng.RefreshBalance(ctx); err != nil {
						logger.Warn("initial balance: %v", err)
					}
					if err := r.movers.Refresh(ctx); err != nil {
						logger.Warn("initial movers: %v", err)
					}

					go r.client.StreamMarkPrices(ctx, r.state.SetWSConnected)
					go func() {
						defer close(done)
						r.Run(ctx)
					}()
					return nil
				},
				OnStop: func(stopCtx context.Context) error {
					cancel()
					select {
					case <-done:
					case <-stopCtx.Done():
					}
					return nil
				},
			})
		}),
	)
}
