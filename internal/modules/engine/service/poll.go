package service

import (
	"context"
	"fmt"

	"signal_trader/internal/models"
	"signal_trader/pkg/logger"
)

// PollPositions сверяет кэш с биржей. Биржа — источник истины по биржевым
// полям; локальные поля (экстремум, трейлинг) переносятся по символу.
// Новые символы усыновляются, исчезнувшие — вычищаются как закрытые извне.
func (e *Engine) PollPositions(ctx context.Context) error {
	fresh, err := e.ex.Positions(ctx)
	if err != nil {
		return fmt.Errorf("PollPositions: %w", err)
	}

	e.mu.Lock()
	prev := e.positions
	next := make(map[string]models.Position, len(fresh))

	var adopted []models.Position
	for _, p := range fresh {
		if old, ok := prev[p.Symbol]; ok {
			// carry-forward: экстремум только улучшается
			p.HighestPrice = old.HighestPrice
			if p.Long() && p.MarkPrice > p.HighestPrice {
				p.HighestPrice = p.MarkPrice
			}
			if p.Short() && (p.HighestPrice == 0 || p.MarkPrice < p.HighestPrice) {
				p.HighestPrice = p.MarkPrice
			}
			p.TrailingActivated = old.TrailingActivated
			p.TrailingStopPrice = old.TrailingStopPrice
		} else {
			p.HighestPrice = p.MarkPrice
			adopted = append(adopted, p)
		}
		next[p.Symbol] = p
	}

	var vanished []models.Position
	for sym, old := range prev {
		if _, ok := next[sym]; ok {
			continue
		}
		// символ в фазе входа может ещё не отражаться в positionRisk
		if e.state[sym] == stateEntering {
			next[sym] = old
			continue
		}
		vanished = append(vanished, old)
	}

	e.positions = next
	for _, p := range adopted {
		e.state[p.Symbol] = stateOpen
	}
	for _, p := range vanished {
		delete(e.state, p.Symbol)
	}
	e.mu.Unlock()

	for _, p := range adopted {
		preset := e.presets.ForSymbol(p.Symbol)
		e.tracker.Ensure(p.Symbol, p.Side(), p.EntryPrice, preset)
		logger.Info("[%s] adopted external position %s qty=%.4f entry=%.6f",
			p.Symbol, p.Side(), p.AbsQuantity(), p.EntryPrice)
		e.sendf("👀 [%s] Обнаружена внешняя позиция %s, беру на сопровождение", p.Symbol, p.Side())
	}

	for _, p := range vanished {
		// позиция закрыта на бирже (TP/SL/ликвидация/руками) — дочищаем хвосты
		if err := e.ex.CancelAllOrders(ctx, p.Symbol); err != nil {
			logger.Warn("[%s] orphan order cleanup: %v", p.Symbol, err)
		}
		e.tracker.Remove(p.Symbol)
		e.risk.Record(p.Symbol, p.UnrealizedPnl)
		e.sendf("🚪 [%s] Позиция закрыта на бирже, PnL ≈ %.2f USDT", p.Symbol, p.UnrealizedPnl)
		e.record(ctx, models.TradeRecord{
			Symbol:      p.Symbol,
			Side:        closeSideName(p.Long()),
			Quantity:    p.AbsQuantity(),
			Price:       p.MarkPrice,
			RealizedPnl: p.UnrealizedPnl,
		})
	}

	return nil
}
