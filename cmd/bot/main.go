package main

import (
	"log"

	"signal_trader/internal/modules/aggregator"
	binance "signal_trader/internal/modules/binance_client"
	"signal_trader/internal/modules/config"
	"signal_trader/internal/modules/engine"
	"signal_trader/internal/modules/health"
	"signal_trader/internal/modules/postgres"
	"signal_trader/internal/modules/risk"
	"signal_trader/internal/modules/signal_api"
	"signal_trader/internal/modules/supervisor"
	telegram "signal_trader/internal/modules/telegram_bot"
	"signal_trader/internal/recorder"
	"signal_trader/internal/runner"
	"signal_trader/pkg/logger"
	"signal_trader/pkg/tracing"

	"go.uber.org/fx"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal(err)
	}
	if err := logger.Init(cfg.Debug); err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if cfg.Jaeger.Enabled {
		_, closeTracer, tErr := tracing.InitTracer(tracing.Config{
			Host: cfg.Jaeger.Host,
			Port: cfg.Jaeger.Port,
		})
		if tErr != nil {
			logger.Warn("jaeger init: %v", tErr)
		} else {
			defer closeTracer()
		}
	}

	app := fx.New(
		config.Module(cfg),
		binance.Module(),
		postgres.Module(),
		recorder.Module(),
		risk.Module(),
		aggregator.Module(),
		supervisor.Module(),
		engine.Module(),
		signal_api.Module(),
		health.Module(),
		telegram.Module(),
		runner.Module(),
	)
	app.Run()
}
