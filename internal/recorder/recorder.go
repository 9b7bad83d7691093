package recorder

import (
	"context"
	"time"

	"signal_trader/internal/models"
	"signal_trader/pkg/db"
	"signal_trader/pkg/logger"

	"github.com/jackc/pgx/v5"
)

const createTradesTable = `
CREATE TABLE IF NOT EXISTS trades (
	id            BIGSERIAL PRIMARY KEY,
	symbol        TEXT NOT NULL,
	side          TEXT NOT NULL,
	quantity      DOUBLE PRECISION NOT NULL,
	price         DOUBLE PRECISION NOT NULL,
	realized_pnl  DOUBLE PRECISION NOT NULL DEFAULT 0,
	order_id      TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PG пишет историю сделок в Postgres. Запись fire-and-forget: торговый
// цикл не ждёт базу и не падает от её ошибок.
type PG struct {
	tm db.TxManager
}

func NewPG(ctx context.Context, tm db.TxManager) (*PG, error) {
	err := tm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, createTradesTable)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &PG{tm: tm}, nil
}

func (p *PG) RecordTrade(_ context.Context, rec models.TradeRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := p.tm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
			_, err := tx.Exec(ctxTx,
				`INSERT INTO trades (symbol, side, quantity, price, realized_pnl, order_id)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				rec.Symbol, rec.Side, rec.Quantity, rec.Price, rec.RealizedPnl, rec.OrderID,
			)
			return err
		})
		if err != nil {
			logger.Error("RecordTrade %s: %v", rec.Symbol, err)
		}
	}()
}

// Noop — когда база не сконфигурирована.
type Noop struct{}

func (Noop) RecordTrade(context.Context, models.TradeRecord) {}
