package service

import (
	"context"

	"signal_trader/internal/helper"
	"signal_trader/internal/models"
	"signal_trader/pkg/logger"
)

// CheckSafetyNet — страховка от незащищённых позиций: если порог SL/TP уже
// пробит, а соответствующего защитного ордера на бирже нет (не встал или
// снят по ошибке), закрываем рынком сами. Повторные форс-выходы по одному
// символу ограничены минимальным интервалом — одно кривое чтение не должно
// дважды дёргать рынок.
func (s *Supervisor) CheckSafetyNet(ctx context.Context) {
	for symbol, pos := range s.trader.PositionsSnapshot() {
		s.safetyOne(ctx, symbol, pos)
	}
}

func (s *Supervisor) safetyOne(ctx context.Context, symbol string, pos models.Position) {
	entry, ok := s.tracker.Snapshot(symbol)
	if !ok || entry.EntryPrice <= 0 {
		return
	}

	pnl := pos.PnlPercent()
	long := !pos.Short()

	slBreach := entry.StopLossPercent > 0 && pnl <= -entry.StopLossPercent

	var finalTP float64
	if n := len(entry.Stages); n > 0 {
		finalTP = entry.Stages[n-1].ProfitPercent
	}
	tpBreach := finalTP > 0 && pnl >= finalTP

	if !slBreach && !tpBreach {
		return
	}
	if s.recentlyForced(symbol) {
		return
	}

	orders, err := s.trader.OpenOrders(ctx, symbol)
	if err != nil {
		// на битом чтении решений не принимаем, дождёмся следующего тика
		logger.Warn("[%s] safety net: open orders: %v", symbol, err)
		return
	}

	if slBreach {
		expected := entry.EntryPrice * (1 - entry.StopLossPercent/100)
		if !long {
			expected = entry.EntryPrice * (1 + entry.StopLossPercent/100)
		}
		if hasProtective(orders, "STOP_MARKET", expected, s.cfg.PriceTolerance) {
			return
		}
		s.markForced(symbol)
		if err := s.trader.Exit(ctx, symbol, 1.0, "SAFETY_NET_SL"); err != nil {
			logger.Error("[%s] safety net exit: %v", symbol, err)
			return
		}
		s.tracker.Remove(symbol)
		s.sendf("⚠️ [%s] Сейфти-нет: SL пробит (%.2f%%), защитного ордера нет — закрыто рынком", symbol, pnl)
		return
	}

	// tpBreach
	expected := entry.EntryPrice * (1 + finalTP/100)
	if !long {
		expected = entry.EntryPrice * (1 - finalTP/100)
	}
	if hasProtective(orders, "TAKE_PROFIT_MARKET", expected, s.cfg.PriceTolerance) {
		return
	}
	s.markForced(symbol)
	if err := s.trader.Exit(ctx, symbol, 1.0, "SAFETY_NET_TP"); err != nil {
		logger.Error("[%s] safety net exit: %v", symbol, err)
		return
	}
	s.tracker.Remove(symbol)
	s.sendf("⚠️ [%s] Сейфти-нет: TP достигнут (%.2f%%), ордера нет — зафиксировано рынком", symbol, pnl)
}

// hasProtective — есть ли среди открытых ордеров защитный нужного типа с
// ценой в пределах относительного допуска от ожидаемой.
func hasProtective(orders []models.Order, orderType string, expected, tol float64) bool {
	for _, o := range orders {
		if o.Type != orderType || o.StopPrice <= 0 {
			continue
		}
		if helper.WithinTolerance(o.StopPrice, expected, tol) {
			return true
		}
	}
	return false
}
