package aggregator

import (
	"context"

	"signal_trader/internal/modules/aggregator/service"
	binance "signal_trader/internal/modules/binance_client/service"
	"signal_trader/internal/modules/config"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("aggregator",
		fx.Provide(
			func(cfg *config.Config, cl *binance.Client) *service.MoversCache {
				return service.NewMoversCache(
					func(ctx context.Context, n int) ([]string, error) {
						return cl.TopMovers(ctx, n)
					},
					cfg.Runner.MoversRefresh,
					cfg.Runner.MoversTopN,
				)
			},
			func(cfg *config.Config, movers *service.MoversCache) *service.Aggregator {
				return service.New(service.Config{
					TimeWindow:     cfg.Aggregator.TimeWindow,
					MinScore:       cfg.Aggregator.MinScore,
					BearishHorizon: cfg.Aggregator.BearishHorizon,
					DedupCap:       cfg.Aggregator.DedupCap,
					SnapshotPath:   cfg.Aggregator.SnapshotPath,
				}, movers)
			},
		),
	)
}
