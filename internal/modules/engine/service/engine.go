package service

import (
	"context"
	"sync"

	"signal_trader/internal/models"
	binance "signal_trader/internal/modules/binance_client/service"
	risk "signal_trader/internal/modules/risk/service"
	supervisor "signal_trader/internal/modules/supervisor/service"
	"signal_trader/internal/notify"
	"signal_trader/pkg/logger"
)

// Состояния символа в движке.
const (
	stateNone     = ""
	stateEntering = "ENTERING"
	stateOpen     = "OPEN"
	stateExiting  = "EXITING"
)

// Exchange — что движку нужно от коннективити-слоя. Интерфейс здесь, чтобы
// в тестах подставлять фейковую биржу.
type Exchange interface {
	Balance(ctx context.Context) (models.Balance, error)
	Positions(ctx context.Context) ([]models.Position, error)
	MarkPrice(ctx context.Context, symbol string) (float64, error)
	LastPrice(symbol string) float64
	PlaceOrder(ctx context.Context, req binance.OrderReq) (int64, error)
	OpenOrders(ctx context.Context, symbol string) ([]models.Order, error)
	CancelAllOrders(ctx context.Context, symbol string) error
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginType(ctx context.Context, symbol, marginType string) error
	DualSidePosition(ctx context.Context) (bool, error)
}

// Recorder — сток истории сделок (Postgres или заглушка).
type Recorder interface {
	RecordTrade(ctx context.Context, rec models.TradeRecord)
}

type Config struct {
	EntryRetries int
}

// Engine владеет кэшем позиций и всеми state-changing вызовами к бирже.
// Кэш обновляется целиком на опросе; локальные поля позиций переносятся
// merge-ом по символу.
type Engine struct {
	cfg      Config
	ex       Exchange
	risk     *risk.Manager
	tracker  *supervisor.Tracker
	presets  models.Presets
	notifier notify.Notifier
	recorder Recorder

	mu        sync.RWMutex
	positions map[string]models.Position
	balance   models.Balance
	state     map[string]string
	dualSide  bool
}

func NewEngine(
	cfg Config,
	ex Exchange,
	riskMgr *risk.Manager,
	tracker *supervisor.Tracker,
	presets models.Presets,
	notifier notify.Notifier,
	recorder Recorder,
) *Engine {
	if cfg.EntryRetries <= 0 {
		cfg.EntryRetries = 3
	}
	return &Engine{
		cfg:       cfg,
		ex:        ex,
		risk:      riskMgr,
		tracker:   tracker,
		presets:   presets,
		notifier:  notifier,
		recorder:  recorder,
		positions: make(map[string]models.Position),
		state:     make(map[string]string),
	}
}

// ProbeMode определяет режим позиций аккаунта (hedge или однонаправленный)
// один раз на старте. Дальше движок адаптируется по ошибке position side.
func (e *Engine) ProbeMode(ctx context.Context) {
	dual, err := e.ex.DualSidePosition(ctx)
	if err != nil {
		logger.Warn("position mode probe failed, assuming one-way: %v", err)
		return
	}
	e.mu.Lock()
	e.dualSide = dual
	e.mu.Unlock()
	logger.Info("position mode: hedge=%v", dual)
}

func (e *Engine) RefreshBalance(ctx context.Context) error {
	b, err := e.ex.Balance(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.balance = b
	e.mu.Unlock()
	return nil
}

func (e *Engine) Balance() models.Balance {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.balance
}

// PositionsSnapshot — копия кэша позиций. По ней работают все вотчеры.
func (e *Engine) PositionsSnapshot() map[string]models.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	res := make(map[string]models.Position, len(e.positions))
	for k, v := range e.positions {
		res[k] = v
	}
	return res
}

// AccountState — срез для риск-менеджера.
func (e *Engine) AccountState() risk.AccountState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	positions := make([]models.Position, 0, len(e.positions))
	for _, p := range e.positions {
		positions = append(positions, p)
	}
	return risk.AccountState{Balance: e.balance, Positions: positions}
}

// OpenOrders — прокси на read-путь биржи (нужен сейфти-нету).
func (e *Engine) OpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	return e.ex.OpenOrders(ctx, symbol)
}

// ReferencePrice — свежая цена: WS-кэш, фоллбек на REST.
func (e *Engine) ReferencePrice(ctx context.Context, symbol string) (float64, error) {
	if px := e.ex.LastPrice(symbol); px > 0 {
		return px, nil
	}
	return e.ex.MarkPrice(ctx, symbol)
}

func (e *Engine) symbolState(symbol string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state[symbol]
}

func (e *Engine) setState(symbol, st string) {
	e.mu.Lock()
	if st == stateNone {
		delete(e.state, symbol)
	} else {
		e.state[symbol] = st
	}
	e.mu.Unlock()
}

func (e *Engine) sendf(format string, args ...any) {
	if e.notifier != nil {
		e.notifier.Sendf(format, args...)
	}
}

func (e *Engine) record(ctx context.Context, rec models.TradeRecord) {
	if e.recorder == nil {
		return
	}
	e.recorder.RecordTrade(ctx, rec)
}

// queryPosition перечитывает позиции с биржи и ищет символ.
func (e *Engine) queryPosition(ctx context.Context, symbol string) (models.Position, bool) {
	positions, err := e.ex.Positions(ctx)
	if err != nil {
		return models.Position{}, false
	}
	for _, p := range positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return models.Position{}, false
}
