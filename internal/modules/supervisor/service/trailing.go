package service

import (
	"context"

	"signal_trader/internal/models"
	"signal_trader/pkg/logger"
)

// CheckTrailing — трейлинг-стоп по каждому открытому символу. Стоп после
// взвода двигается только в сторону позиции и никогда не отъезжает назад.
func (s *Supervisor) CheckTrailing(ctx context.Context) {
	for symbol, pos := range s.trader.PositionsSnapshot() {
		s.trailOne(ctx, symbol, pos)
	}
}

func (s *Supervisor) trailOne(ctx context.Context, symbol string, pos models.Position) {
	mark := pos.MarkPrice
	if mark <= 0 {
		return
	}

	var trigger bool
	var stop float64
	ok := s.tracker.Update(symbol, func(e *models.TrackingEntry) {
		long := e.Direction != models.DirectionShort

		// обновляем лучший экстремум с момента входа
		if e.HighestPrice <= 0 {
			e.HighestPrice = mark
		}
		if long && mark > e.HighestPrice {
			e.HighestPrice = mark
		}
		if !long && mark < e.HighestPrice {
			e.HighestPrice = mark
		}

		if !e.Activated {
			if e.ActivationPercent <= 0 || e.GainPercent() < e.ActivationPercent {
				return
			}
			e.Activated = true
			logger.Info("[%s] trailing armed: entry=%.6f best=%.6f", symbol, e.EntryPrice, e.HighestPrice)
		}

		// стоп монотонен: кандидат хуже текущего — не принимаем
		if long {
			cand := e.HighestPrice * (1 - e.CallbackPercent/100)
			if cand > e.StopPrice {
				e.StopPrice = cand
			}
			trigger = mark <= e.StopPrice
		} else {
			cand := e.HighestPrice * (1 + e.CallbackPercent/100)
			if e.StopPrice == 0 || cand < e.StopPrice {
				e.StopPrice = cand
			}
			trigger = mark >= e.StopPrice
		}
		stop = e.StopPrice
	})
	if !ok || !trigger {
		return
	}

	if err := s.trader.Exit(ctx, symbol, 1.0, "TRAILING_STOP"); err != nil {
		logger.Error("[%s] trailing exit: %v", symbol, err)
		return
	}
	// запись удаляем сразу, чтобы триггер не повторился на следующем тике
	s.tracker.Remove(symbol)
	s.sendf("🛑 [%s] Трейлинг-стоп сработал: mark=%.6f stop=%.6f", symbol, mark, stop)
}
