package recorder

import (
	"context"

	engine "signal_trader/internal/modules/engine/service"
	"signal_trader/pkg/db"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("recorder",
		fx.Provide(
			func(tm *db.PgTxManager) (engine.Recorder, error) {
				if tm == nil {
					return Noop{}, nil
				}
				return NewPG(context.Background(), tm)
			},
		),
	)
}
