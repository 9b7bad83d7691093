package signal_api

import (
	"context"
	"fmt"

	"signal_trader/internal/models"
	"signal_trader/internal/modules/config"
	"signal_trader/internal/modules/signal_api/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("signal_api",
		fx.Provide(
			// единая очередь сигналов между HTTP-приёмником и раннером
			func() chan models.Signal { return make(chan models.Signal, 256) },
			func(sink chan models.Signal) *service.Server {
				return service.NewServer(sink)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, srv *service.Server) {
			addr := fmt.Sprintf("%s:%d", cfg.Service.Host, cfg.Service.PublicPort)
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error { return srv.Start(addr) },
				OnStop:  func(ctx context.Context) error { return srv.Stop(ctx) },
			})
		}),
	)
}
