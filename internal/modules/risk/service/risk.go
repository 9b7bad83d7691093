package service

import (
	"fmt"
	"sync"
	"time"

	"signal_trader/internal/helper"
	"signal_trader/internal/models"
	"signal_trader/pkg/logger"
)

type Config struct {
	DailyMaxTrades     int
	DailyLossLimit     float64 // USD, положительное
	MinReservePercent  float64
	ExposureCapPercent float64 // общий кап ноционала, % от депозита
}

// AccountState — всё, что менеджеру нужно знать о счёте. Передаётся снаружи
// на каждый вызов: экспозиция пересчитывается от живых позиций, никакого
// инкрементального дрейфа.
type AccountState struct {
	Balance   models.Balance
	Positions []models.Position
}

// Manager — чистый решающий компонент: никакого I/O, только собственный
// дневной леджер и переданный срез счёта.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	presets models.Presets

	manualHalt bool
	dailyHalt  bool

	day      string
	trades   int
	realized float64

	now func() time.Time
}

func NewManager(cfg Config, presets models.Presets) *Manager {
	return &Manager{cfg: cfg, presets: presets, now: time.Now}
}

// SetHalt — ручной аварийный стоп. Блокирует только новые входы,
// сопровождение открытых позиций не трогает.
func (m *Manager) SetHalt(on bool) {
	m.mu.Lock()
	m.manualHalt = on
	m.mu.Unlock()
	logger.Warn("manual trading halt: %v", on)
}

func (m *Manager) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked()
	return m.manualHalt || m.dailyHalt
}

// CanEnter гоняет гейты в фиксированном порядке. Идемпотентен: одни и те же
// входы дают один и тот же ответ.
func (m *Manager) CanEnter(symbol string, st AccountState) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked()

	if m.manualHalt {
		return false, "trading halted manually"
	}
	if m.dailyHalt {
		return false, "trading halted: daily loss limit"
	}
	for _, p := range st.Positions {
		if p.Symbol == symbol {
			return false, fmt.Sprintf("position already open in %s", symbol)
		}
	}
	if m.cfg.DailyMaxTrades > 0 && m.trades >= m.cfg.DailyMaxTrades {
		return false, fmt.Sprintf("daily trade limit reached (%d)", m.cfg.DailyMaxTrades)
	}
	if m.cfg.DailyLossLimit > 0 && m.realized <= -m.cfg.DailyLossLimit {
		m.dailyHalt = true
		return false, "trading halted: daily loss limit"
	}
	if st.Balance.Total <= 0 {
		return false, "non-positive account balance"
	}

	// экспозиция всегда от живого среза позиций
	var total float64
	byClass := map[string]float64{}
	for _, p := range st.Positions {
		n := p.Notional()
		total += n
		byClass[m.presets.Class(p.Symbol)] += n
	}
	if m.cfg.ExposureCapPercent > 0 {
		limit := st.Balance.Total * m.cfg.ExposureCapPercent / 100
		if total >= limit {
			return false, fmt.Sprintf("total exposure %.0f over cap %.0f", total, limit)
		}
	}
	class := m.presets.Class(symbol)
	preset := m.presets.ForSymbol(symbol)
	if preset.ExposureCapPercent > 0 {
		limit := st.Balance.Total * preset.ExposureCapPercent / 100
		if byClass[class] >= limit {
			return false, fmt.Sprintf("%s exposure %.0f over cap %.0f", class, byClass[class], limit)
		}
	}

	if m.cfg.MinReservePercent > 0 &&
		st.Balance.Available < st.Balance.Total*m.cfg.MinReservePercent/100 {
		return false, "available balance below reserve"
	}

	return true, ""
}

// Plan превращает одобренного кандидата в конкретный план сделки. Плечо
// учитывается в количестве ровно один раз, движок его повторно не домножает.
func (m *Manager) Plan(symbol, direction string, price, score float64, st AccountState) models.TradePlan {
	if price <= 0 {
		return models.Reject(symbol, "no reference price")
	}
	if direction != models.DirectionLong && direction != models.DirectionShort {
		return models.Reject(symbol, fmt.Sprintf("unknown direction %q", direction))
	}
	if ok, reason := m.CanEnter(symbol, st); !ok {
		return models.Reject(symbol, reason)
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	preset := m.presets.ForSymbol(symbol)
	lev := preset.Leverage
	if lev <= 0 {
		lev = 1
	}

	margin := st.Balance.Total * preset.MaxPositionPercent / 100
	if margin > st.Balance.Available {
		margin = st.Balance.Available
	}
	notional := margin * float64(lev)

	// 0.999 — запас на комиссию; скор 1.0 берёт весь лимит, скор 0 — половину
	qty := notional / price * 0.999 * (0.5 + 0.5*score)
	qty = helper.RoundDownToStep(qty, preset.QtyStep)
	if qty <= 0 {
		return models.Reject(symbol, "computed quantity <= 0")
	}

	slPct := preset.StopLossPercent / 100
	var sl float64
	tps := make([]float64, 0, len(preset.TakeProfitPercents))
	if direction == models.DirectionLong {
		sl = price * (1 - slPct)
		for _, tp := range preset.TakeProfitPercents {
			tps = append(tps, price*(1+tp/100))
		}
	} else {
		sl = price * (1 + slPct)
		for _, tp := range preset.TakeProfitPercents {
			tps = append(tps, price*(1-tp/100))
		}
	}

	tier := models.TierHigh
	switch {
	case score >= 0.75:
		tier = models.TierLow
	case score >= 0.5:
		tier = models.TierMedium
	}

	return models.TradePlan{
		Symbol:      symbol,
		Action:      models.ActionEnter,
		Direction:   direction,
		Quantity:    qty,
		Entry:       price,
		StopLoss:    sl,
		TakeProfits: tps,
		Leverage:    lev,
		Tier:        tier,
		Score:       score,
		Reason:      fmt.Sprintf("score=%.2f tier=%s class=%s", score, tier, m.presets.Class(symbol)),
	}
}

// Record пишет закрытую сделку в дневной леджер. Пробой дневного лимита
// убытка глушит новые входы до конца дня.
func (m *Manager) Record(symbol string, pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked()

	m.trades++
	m.realized += pnl

	if m.cfg.DailyLossLimit > 0 && m.realized <= -m.cfg.DailyLossLimit && !m.dailyHalt {
		m.dailyHalt = true
		logger.Warn("daily loss limit breached (%.2f <= -%.2f), halting new entries for %s",
			m.realized, m.cfg.DailyLossLimit, symbol)
	}
}

// DayStats — счётчик сделок и реализованный PnL за текущий день.
func (m *Manager) DayStats() (trades int, realized float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked()
	return m.trades, m.realized
}

func (m *Manager) rollDayLocked() {
	today := m.now().UTC().Format("2006-01-02")
	if m.day == today {
		return
	}
	m.day = today
	m.trades = 0
	m.realized = 0
	m.dailyHalt = false
}
