package service

import (
	"sync"
	"time"

	"signal_trader/internal/models"
)

// Tracker хранит стейт сопровождения: ровно одна запись на открытый символ
// (семантика map по ключу-символу). Создаётся при входе или при обнаружении
// чужой позиции, удаляется при закрытии.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*models.TrackingEntry
}

func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]*models.TrackingEntry)}
}

// Register кладёт запись, перезаписывая возможную старую по тому же символу.
func (t *Tracker) Register(e *models.TrackingEntry) {
	if e == nil || e.Symbol == "" {
		return
	}
	if e.ExecutedLevels == nil {
		e.ExecutedLevels = make(map[int]bool)
	}
	t.mu.Lock()
	t.entries[e.Symbol] = e
	t.mu.Unlock()
}

// Ensure — самолечение: если по живой позиции нет записи, заводим её с
// дефолтами класса, а не падаем.
func (t *Tracker) Ensure(symbol, direction string, entryPrice float64, preset models.ClassPreset) *models.TrackingEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[symbol]; ok {
		return e
	}
	e := &models.TrackingEntry{
		Symbol:            symbol,
		Direction:         direction,
		EntryPrice:        entryPrice,
		HighestPrice:      entryPrice,
		ActivationPercent: preset.TrailingActivation,
		CallbackPercent:   preset.TrailingCallback,
		StopLossPercent:   preset.StopLossPercent,
		Stages:            preset.Stages,
		ExecutedLevels:    make(map[int]bool),
		OpenedAt:          time.Now(),
	}
	t.entries[symbol] = e
	return e
}

// Update мутирует запись под локом; false — записи нет.
func (t *Tracker) Update(symbol string, fn func(e *models.TrackingEntry)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[symbol]
	if !ok {
		return false
	}
	fn(e)
	return true
}

// Snapshot — копия записи для чтения без гонок.
func (t *Tracker) Snapshot(symbol string) (models.TrackingEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[symbol]
	if !ok {
		return models.TrackingEntry{}, false
	}
	cp := *e
	cp.ExecutedLevels = make(map[int]bool, len(e.ExecutedLevels))
	for k, v := range e.ExecutedLevels {
		cp.ExecutedLevels[k] = v
	}
	return cp, true
}

func (t *Tracker) Remove(symbol string) {
	t.mu.Lock()
	delete(t.entries, symbol)
	t.mu.Unlock()
}

func (t *Tracker) Has(symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[symbol]
	return ok
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Tracker) Symbols() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	res := make([]string, 0, len(t.entries))
	for s := range t.entries {
		res = append(res, s)
	}
	return res
}
