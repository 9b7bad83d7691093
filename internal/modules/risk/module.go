package risk

import (
	"signal_trader/internal/models"
	"signal_trader/internal/modules/config"
	"signal_trader/internal/modules/risk/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("risk",
		fx.Provide(
			func(cfg *config.Config, presets models.Presets) *service.Manager {
				return service.NewManager(service.Config{
					DailyMaxTrades:     cfg.Risk.DailyMaxTrades,
					DailyLossLimit:     cfg.Risk.DailyLossLimit,
					MinReservePercent:  cfg.Risk.MinReservePercent,
					ExposureCapPercent: cfg.Risk.ExposureCapPercent,
				}, presets)
			},
		),
	)
}
