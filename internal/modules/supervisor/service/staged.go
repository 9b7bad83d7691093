package service

import (
	"context"
	"fmt"

	"signal_trader/internal/models"
	"signal_trader/pkg/logger"
)

// CheckStages — поэтапная фиксация (пирамида выхода): ступени строго по
// порядку, каждая исполняется не больше одного раза за жизнь позиции,
// не больше одной ступени за тик.
func (s *Supervisor) CheckStages(ctx context.Context) {
	for symbol, pos := range s.trader.PositionsSnapshot() {
		s.stageOne(ctx, symbol, pos)
	}
}

func (s *Supervisor) stageOne(ctx context.Context, symbol string, pos models.Position) {
	entry, ok := s.tracker.Snapshot(symbol)
	if !ok || len(entry.Stages) == 0 {
		return
	}

	pnl := pos.PnlPercent()

	for i, st := range entry.Stages {
		if entry.ExecutedLevels[i] {
			continue
		}
		if pnl < st.ProfitPercent {
			// ступени последовательные: не дотянули до этой — дальше не смотрим
			return
		}

		ratio := st.CloseRatio
		final := i == len(entry.Stages)-1
		if final {
			// последняя ступень всегда добивает остаток, чтобы не оставлять пыль
			ratio = 1.0
		}

		if err := s.trader.Exit(ctx, symbol, ratio, stageReason(i, st)); err != nil {
			logger.Error("[%s] stage %d exit: %v", symbol, i+1, err)
			return
		}

		s.tracker.Update(symbol, func(e *models.TrackingEntry) {
			e.ExecutedLevels[i] = true
		})
		if final {
			s.tracker.Remove(symbol)
		}
		s.sendf("💰 [%s] Ступень %d: закрыто %.0f%% при +%.2f%% (порог %.2f%%)",
			symbol, i+1, ratio*100, pnl, st.ProfitPercent)
		return
	}
}

func stageReason(i int, st models.StageLevel) string {
	return fmt.Sprintf("STAGE_%d@%.1f%%", i+1, st.ProfitPercent)
}
