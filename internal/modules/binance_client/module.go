package binance_client

import (
	"signal_trader/internal/modules/config"
	"signal_trader/internal/modules/binance_client/service"

	"go.uber.org/fx"
)

// Module отдаёт сконфигурированный клиент биржи как fx-провайдер.
func Module() fx.Option {
	return fx.Module("binance_client",
		fx.Provide(
			func(cfg *config.Config) (*service.Client, error) {
				return service.New(service.Config{
					APIKey:             cfg.Exchange.APIKey,
					APISecret:          cfg.Exchange.APISecret,
					BaseURL:            cfg.Exchange.BaseURL,
					WSURL:              cfg.Exchange.WSURL,
					ProxyURL:           cfg.Exchange.ProxyURL,
					RecvWindowMs:       cfg.Exchange.RecvWindowMs,
					ClockSafetyMs:      cfg.Exchange.ClockSafetyMs,
					ClockSyncInterval:  cfg.Exchange.ClockSyncInterval,
					ReadRetries:        cfg.Exchange.ReadRetries,
					RequestTimeout:     cfg.Exchange.RequestTimeout,
					RateLimitPerSecond: cfg.Exchange.RateLimitPerSecond,
				})
			},
		),
	)
}
