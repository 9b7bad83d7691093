package supervisor

import (
	"signal_trader/internal/modules/config"
	engine "signal_trader/internal/modules/engine/service"
	"signal_trader/internal/modules/supervisor/service"
	"signal_trader/internal/notify"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("supervisor",
		fx.Provide(
			service.NewTracker,
			func(cfg *config.Config, tracker *service.Tracker, eng *engine.Engine, n notify.Notifier) *service.Supervisor {
				return service.NewSupervisor(service.Config{
					PriceTolerance:    cfg.Supervisor.PriceTolerance,
					MinActionInterval: cfg.Supervisor.MinActionInterval,
				}, tracker, eng, n)
			},
		),
	)
}
