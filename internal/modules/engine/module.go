package engine

import (
	"signal_trader/internal/models"
	binance "signal_trader/internal/modules/binance_client/service"
	"signal_trader/internal/modules/config"
	"signal_trader/internal/modules/engine/service"
	risk "signal_trader/internal/modules/risk/service"
	supervisor "signal_trader/internal/modules/supervisor/service"
	"signal_trader/internal/notify"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("engine",
		fx.Provide(
			func(
				cfg *config.Config,
				cl *binance.Client,
				riskMgr *risk.Manager,
				tracker *supervisor.Tracker,
				presets models.Presets,
				n notify.Notifier,
				rec service.Recorder,
			) *service.Engine {
				return service.NewEngine(service.Config{
					EntryRetries: cfg.Exchange.EntryRetries,
				}, cl, riskMgr, tracker, presets, n, rec)
			},
		),
	)
}
