package telegram_bot

import (
	"context"

	"signal_trader/internal/modules/config"
	engine "signal_trader/internal/modules/engine/service"
	risk "signal_trader/internal/modules/risk/service"
	"signal_trader/internal/notify"
	"signal_trader/pkg/logger"

	"go.uber.org/fx"
)

// Module собирает нотифайер. Без токена работаем в stdout-режиме,
// торговля от телеги не зависит.
func Module() fx.Option {
	return fx.Module("telegram_bot",
		fx.Provide(
			func(cfg *config.Config) notify.Notifier {
				if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
					logger.Warn("telegram not configured, notifications go to log")
					return notify.NewStdout()
				}
				tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
				if err != nil {
					logger.Error("telegram init: %v, falling back to log", err)
					return notify.NewStdout()
				}
				return tg
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, n notify.Notifier, eng *engine.Engine, riskMgr *risk.Manager) {
			tg, ok := n.(*notify.Telegram)
			if !ok {
				return
			}
			tg.BindPositions(eng)
			tg.BindRisk(riskMgr)

			ctx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error { return tg.Start(ctx) },
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
		}),
	)
}
