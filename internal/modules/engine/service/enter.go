package service

import (
	"context"
	"fmt"
	"time"

	"signal_trader/internal/models"
	binance "signal_trader/internal/modules/binance_client/service"
	"signal_trader/pkg/logger"

	"github.com/google/uuid"
)

// Enter исполняет план: рыночный вход + защитные SL/TP + регистрация
// сопровождения. Таймаут на входе — "исход неизвестен": перед повтором
// перечитываем позицию, слепой ретрай здесь — это двойной вход.
func (e *Engine) Enter(ctx context.Context, plan models.TradePlan) error {
	if plan.Action != models.ActionEnter {
		return fmt.Errorf("Enter: plan for %s is %s, not ENTER", plan.Symbol, plan.Action)
	}
	symbol := plan.Symbol

	if st := e.symbolState(symbol); st != stateNone {
		return fmt.Errorf("Enter: %s busy (state=%s)", symbol, st)
	}
	e.setState(symbol, stateEntering)

	ok := false
	defer func() {
		if !ok {
			e.setState(symbol, stateNone)
		}
	}()

	// плечо и маржа — best-effort: неудача логируется, вход не блокирует
	if err := e.ex.SetLeverage(ctx, symbol, plan.Leverage); err != nil {
		logger.Warn("[%s] set leverage %dx: %v", symbol, plan.Leverage, err)
	}
	if err := e.ex.SetMarginType(ctx, symbol, "CROSSED"); err != nil {
		logger.Warn("[%s] set margin type: %v", symbol, err)
	}

	// протухшие защитные ордера снимаем только если подтверждённо флэт —
	// иначе рискуем снести живую защиту
	if _, has := e.queryPosition(ctx, symbol); !has {
		if err := e.ex.CancelAllOrders(ctx, symbol); err != nil {
			logger.Warn("[%s] stale order cleanup: %v", symbol, err)
		}
	}

	long := plan.Direction == models.DirectionLong
	side := binance.SideBuy
	if !long {
		side = binance.SideSell
	}

	e.mu.RLock()
	dual := e.dualSide
	e.mu.RUnlock()
	posSide := ""
	if dual {
		posSide = plan.Direction
	}

	// один clientOrderId на все попытки: биржа сама не даст задвоить
	clientID := uuid.NewString()

	var entryErr error
	filled := false
	flippedMode := false
	for attempt := 0; attempt < e.cfg.EntryRetries && !filled; attempt++ {
		_, err := e.ex.PlaceOrder(ctx, binance.OrderReq{
			Symbol:        symbol,
			Side:          side,
			Type:          binance.OrderTypeMarket,
			Quantity:      plan.Quantity,
			ClientOrderID: clientID,
			PosSide:       posSide,
		})
		if err == nil {
			filled = true
			break
		}
		entryErr = err

		switch binance.KindOf(err) {
		case binance.KindParamMismatch:
			if flippedMode {
				return fmt.Errorf("Enter %s: position side mismatch persists: %w", symbol, err)
			}
			// аккаунт в другом режиме позиций — адаптируем флаг один раз
			flippedMode = true
			e.mu.Lock()
			e.dualSide = !e.dualSide
			dual = e.dualSide
			e.mu.Unlock()
			if dual {
				posSide = plan.Direction
			} else {
				posSide = ""
			}
			logger.Warn("[%s] adapting position mode: hedge=%v", symbol, dual)
		case binance.KindTimeout:
			// возможно, предыдущая попытка прошла — смотрим позицию
			if pos, has := e.queryPosition(ctx, symbol); has && sameDirection(pos, long) {
				filled = true
			}
		default:
			return fmt.Errorf("Enter %s: %w", symbol, err)
		}
	}

	if !filled {
		// последняя сверка перед капитуляцией
		if pos, has := e.queryPosition(ctx, symbol); has && sameDirection(pos, long) {
			filled = true
		} else {
			return fmt.Errorf("Enter %s: entry not filled: %w", symbol, entryErr)
		}
	}

	// фактические параметры входа берём с биржи
	entryPx := plan.Entry
	qty := plan.Quantity
	if pos, has := e.queryPosition(ctx, symbol); has {
		if pos.EntryPrice > 0 {
			entryPx = pos.EntryPrice
		}
		if pos.AbsQuantity() > 0 {
			qty = pos.AbsQuantity()
		}
		e.mu.Lock()
		pos.HighestPrice = pos.MarkPrice
		e.positions[symbol] = pos
		e.mu.Unlock()
	}

	e.placeProtective(ctx, plan, qty, posSide)

	preset := e.presets.ForSymbol(symbol)
	e.tracker.Register(&models.TrackingEntry{
		Symbol:            symbol,
		Direction:         plan.Direction,
		EntryPrice:        entryPx,
		HighestPrice:      entryPx,
		ActivationPercent: preset.TrailingActivation,
		CallbackPercent:   preset.TrailingCallback,
		StopLossPercent:   preset.StopLossPercent,
		Stages:            preset.Stages,
		ExecutedLevels:    make(map[int]bool),
		OpenedAt:          time.Now(),
	})

	e.setState(symbol, stateOpen)
	ok = true

	e.sendf("✅ [%s] Вход %s @ %.6f | qty=%.4f SL=%.6f TP=%v lev=%dx | %s",
		symbol, plan.Direction, entryPx, qty, plan.StopLoss, plan.TakeProfits, plan.Leverage, plan.Reason)
	e.record(ctx, models.TradeRecord{
		Symbol:   symbol,
		Side:     plan.Direction,
		Quantity: qty,
		Price:    entryPx,
		OrderID:  clientID,
	})
	return nil
}

// placeProtective ставит стоп и ступенчатые тейки. Неудача не валит вход:
// сейфти-нет закроет позицию сам, если порог пробьют без защиты.
func (e *Engine) placeProtective(ctx context.Context, plan models.TradePlan, qty float64, posSide string) {
	symbol := plan.Symbol
	long := plan.Direction == models.DirectionLong
	closeSide := binance.SideSell
	if !long {
		closeSide = binance.SideBuy
	}

	// SL через closePosition — полное покрытие при любом округлении размера
	if plan.StopLoss > 0 {
		_, err := e.ex.PlaceOrder(ctx, binance.OrderReq{
			Symbol:        symbol,
			Side:          closeSide,
			Type:          binance.OrderTypeStopMarket,
			StopPrice:     plan.StopLoss,
			ClosePosition: true,
			PosSide:       posSide,
		})
		if err != nil {
			logger.Error("[%s] stop-loss not placed: %v", symbol, err)
			e.sendf("⚠️ [%s] SL не встал на бирже: %v", symbol, err)
		}
	}

	preset := e.presets.ForSymbol(symbol)
	remaining := qty
	for i, tp := range plan.TakeProfits {
		final := i == len(plan.TakeProfits)-1
		req := binance.OrderReq{
			Symbol:    symbol,
			Side:      closeSide,
			Type:      binance.OrderTypeTakeProfit,
			StopPrice: tp,
			PosSide:   posSide,
		}
		if final {
			// последний тейк добивает остаток целиком, пыли не остаётся
			req.ClosePosition = true
		} else {
			ratio := 0.5
			if i < len(preset.Stages) && preset.Stages[i].CloseRatio > 0 {
				ratio = preset.Stages[i].CloseRatio
			}
			part := remaining * ratio
			remaining -= part
			req.Quantity = part
			req.ReduceOnly = true
		}
		if _, err := e.ex.PlaceOrder(ctx, req); err != nil {
			logger.Error("[%s] take-profit %d not placed: %v", symbol, i+1, err)
			e.sendf("⚠️ [%s] TP%d не встал на бирже: %v", symbol, i+1, err)
		}
	}
}

func sameDirection(pos models.Position, long bool) bool {
	if long {
		return pos.Long()
	}
	return pos.Short()
}
