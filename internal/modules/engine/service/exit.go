package service

import (
	"context"
	"fmt"

	"signal_trader/internal/models"
	binance "signal_trader/internal/modules/binance_client/service"
	"signal_trader/pkg/logger"
)

// Exit закрывает ratio позиции рыночным reduce-only ордером.
// ratio >= ~1.0 — полное закрытие: снимаем защитные ордера, выписываем
// символ из трекера и кэша, фиксируем PnL в дневной статистике.
// Повторный вызов во время закрытия — no-op, не ошибка.
func (e *Engine) Exit(ctx context.Context, symbol string, ratio float64, reason string) error {
	if ratio <= 0 {
		return fmt.Errorf("Exit: invalid ratio %.3f for %s", ratio, symbol)
	}
	if ratio > 1 {
		ratio = 1
	}
	full := ratio >= 0.999

	e.mu.Lock()
	pos, has := e.positions[symbol]
	if !has {
		e.mu.Unlock()
		return fmt.Errorf("Exit: no cached position for %s", symbol)
	}
	if full {
		if e.state[symbol] == stateExiting {
			e.mu.Unlock()
			return nil
		}
		e.state[symbol] = stateExiting
	}
	dual := e.dualSide
	e.mu.Unlock()

	long := pos.Long()
	side := binance.SideSell
	if !long {
		side = binance.SideBuy
	}
	posSide := ""
	if dual {
		posSide = pos.Side()
	}

	qty := pos.AbsQuantity() * ratio
	req := binance.OrderReq{
		Symbol:   symbol,
		Side:     side,
		Type:     binance.OrderTypeMarket,
		Quantity: qty,
		PosSide:  posSide,
	}
	if !dual {
		// reduceOnly страхует от переворота при гонке с биржевыми TP
		// (в hedge-режиме биржа флаг не принимает)
		req.ReduceOnly = true
	}

	if _, err := e.ex.PlaceOrder(ctx, req); err != nil {
		if full {
			e.setState(symbol, stateOpen)
		}
		return fmt.Errorf("Exit %s: %w", symbol, err)
	}

	if !full {
		e.mu.Lock()
		if cur, ok := e.positions[symbol]; ok {
			if cur.Long() {
				cur.Quantity -= qty
			} else {
				cur.Quantity += qty
			}
			e.positions[symbol] = cur
		}
		e.mu.Unlock()
		e.sendf("📉 [%s] Частичный выход %.0f%% (%s)", symbol, ratio*100, reason)
		return nil
	}

	if err := e.ex.CancelAllOrders(ctx, symbol); err != nil {
		logger.Warn("[%s] cancel protective orders after exit: %v", symbol, err)
	}
	e.tracker.Remove(symbol)

	// последний известный unrealized — лучшая оценка реализованного
	pnl := pos.UnrealizedPnl
	e.risk.Record(symbol, pnl)

	e.mu.Lock()
	delete(e.positions, symbol)
	delete(e.state, symbol)
	e.mu.Unlock()

	e.sendf("🏁 [%s] Позиция закрыта (%s), PnL ≈ %.2f USDT", symbol, reason, pnl)
	e.record(ctx, models.TradeRecord{
		Symbol:      symbol,
		Side:        closeSideName(long),
		Quantity:    qty,
		Price:       pos.MarkPrice,
		RealizedPnl: pnl,
	})
	return nil
}

func closeSideName(wasLong bool) string {
	if wasLong {
		return "CLOSE_LONG"
	}
	return "CLOSE_SHORT"
}
