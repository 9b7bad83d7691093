package postgres

import (
	"context"
	"fmt"

	"signal_trader/internal/modules/config"
	"signal_trader/pkg/db"
	"signal_trader/pkg/logger"

	"go.uber.org/fx"
)

// Module отдаёт менеджер транзакций. Без DSN отдаём nil: история сделок
// опциональна, торговля без базы не останавливается.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(cfg *config.Config) (*db.PgTxManager, error) {
				if cfg.DB == "" {
					logger.Warn("DATABASE_DSN not set, trade history disabled")
					return nil, nil
				}

				ctx := context.Background()
				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: cfg.DB,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				if err = poolMaster.Ping(ctx); err != nil {
					return nil, err
				}

				return db.NewPgTxManager(poolMaster), nil
			},
		),
	)
}
