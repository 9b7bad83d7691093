package service

import (
	"context"
	"testing"

	"signal_trader/internal/models"
	binance "signal_trader/internal/modules/binance_client/service"
	risk "signal_trader/internal/modules/risk/service"
	supervisor "signal_trader/internal/modules/supervisor/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExchange — биржа на болтах: позиции задаются напрямую, ордера пишутся
// в журнал, ошибки входа выдаются по очереди.
type fakeExchange struct {
	balance   models.Balance
	positions []models.Position
	orders    map[string][]models.Order
	prices    map[string]float64

	placed        []binance.OrderReq
	entryErrs     []error // очередь ошибок для MARKET-ордеров
	fillOnMarket  bool    // успешный MARKET открывает позицию
	cancelled     []string
	leverageCalls int
	dualSide      bool
}

func (f *fakeExchange) Balance(context.Context) (models.Balance, error) { return f.balance, nil }

func (f *fakeExchange) Positions(context.Context) ([]models.Position, error) {
	return append([]models.Position(nil), f.positions...), nil
}

func (f *fakeExchange) MarkPrice(_ context.Context, symbol string) (float64, error) {
	return f.prices[symbol], nil
}

func (f *fakeExchange) LastPrice(symbol string) float64 { return f.prices[symbol] }

func (f *fakeExchange) PlaceOrder(_ context.Context, req binance.OrderReq) (int64, error) {
	if req.Type == binance.OrderTypeMarket && len(f.entryErrs) > 0 {
		err := f.entryErrs[0]
		f.entryErrs = f.entryErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	f.placed = append(f.placed, req)
	if req.Type == binance.OrderTypeMarket && !req.ReduceOnly && f.fillOnMarket {
		qty := req.Quantity
		if req.Side == binance.SideSell {
			qty = -qty
		}
		f.positions = append(f.positions, models.Position{
			Symbol:     req.Symbol,
			Quantity:   qty,
			EntryPrice: f.prices[req.Symbol],
			MarkPrice:  f.prices[req.Symbol],
		})
	}
	return int64(len(f.placed)), nil
}

func (f *fakeExchange) OpenOrders(_ context.Context, symbol string) ([]models.Order, error) {
	return f.orders[symbol], nil
}

func (f *fakeExchange) CancelAllOrders(_ context.Context, symbol string) error {
	f.cancelled = append(f.cancelled, symbol)
	return nil
}

func (f *fakeExchange) SetLeverage(context.Context, string, int) error {
	f.leverageCalls++
	return nil
}

func (f *fakeExchange) SetMarginType(context.Context, string, string) error { return nil }

func (f *fakeExchange) DualSidePosition(context.Context) (bool, error) { return f.dualSide, nil }

func testEnginePresets() models.Presets {
	return models.Presets{
		MajorSymbols: []string{"BTCUSDT"},
		Major: models.ClassPreset{
			MaxPositionPercent: 5,
			Leverage:           10,
			StopLossPercent:    2,
			TakeProfitPercents: []float64{1.5, 3.0},
			TrailingActivation: 2,
			TrailingCallback:   1,
			Stages: []models.StageLevel{
				{ProfitPercent: 1.5, CloseRatio: 0.5},
				{ProfitPercent: 3.0, CloseRatio: 1.0},
			},
		},
		Other: models.ClassPreset{
			MaxPositionPercent: 3,
			Leverage:           5,
			StopLossPercent:    3,
			TakeProfitPercents: []float64{2, 4},
		},
	}
}

func newTestEngine(f *fakeExchange) (*Engine, *supervisor.Tracker, *risk.Manager) {
	tracker := supervisor.NewTracker()
	riskMgr := risk.NewManager(risk.Config{}, testEnginePresets())
	eng := NewEngine(Config{EntryRetries: 3}, f, riskMgr, tracker, testEnginePresets(), nil, nil)
	return eng, tracker, riskMgr
}

func longPlan() models.TradePlan {
	return models.TradePlan{
		Symbol:      "BTCUSDT",
		Action:      models.ActionEnter,
		Direction:   models.DirectionLong,
		Quantity:    49.95,
		Entry:       100,
		StopLoss:    98,
		TakeProfits: []float64{101.5, 103},
		Leverage:    10,
		Score:       1,
	}
}

func marketOrders(f *fakeExchange) []binance.OrderReq {
	var res []binance.OrderReq
	for _, o := range f.placed {
		if o.Type == binance.OrderTypeMarket {
			res = append(res, o)
		}
	}
	return res
}

func TestEnter_PlacesEntryAndProtectiveOrders(t *testing.T) {
	f := &fakeExchange{
		prices:       map[string]float64{"BTCUSDT": 100},
		fillOnMarket: true,
	}
	eng, tracker, _ := newTestEngine(f)

	err := eng.Enter(context.Background(), longPlan())
	require.NoError(t, err)

	require.Len(t, f.placed, 4)
	entry := f.placed[0]
	assert.Equal(t, binance.OrderTypeMarket, entry.Type)
	assert.Equal(t, binance.SideBuy, entry.Side)
	assert.NotEmpty(t, entry.ClientOrderID)

	sl := f.placed[1]
	assert.Equal(t, binance.OrderTypeStopMarket, sl.Type)
	assert.Equal(t, binance.SideSell, sl.Side)
	assert.True(t, sl.ClosePosition)
	assert.InDelta(t, 98, sl.StopPrice, 1e-9)

	tp1, tp2 := f.placed[2], f.placed[3]
	assert.Equal(t, binance.OrderTypeTakeProfit, tp1.Type)
	assert.True(t, tp1.ReduceOnly)
	assert.InDelta(t, 49.95/2, tp1.Quantity, 1e-6)
	assert.True(t, tp2.ClosePosition)
	assert.InDelta(t, 103, tp2.StopPrice, 1e-9)

	assert.True(t, tracker.Has("BTCUSDT"))
	assert.Contains(t, eng.PositionsSnapshot(), "BTCUSDT")
	assert.Equal(t, stateOpen, eng.symbolState("BTCUSDT"))
}

func TestEnter_BusySymbolRejected(t *testing.T) {
	f := &fakeExchange{prices: map[string]float64{"BTCUSDT": 100}, fillOnMarket: true}
	eng, _, _ := newTestEngine(f)

	require.NoError(t, eng.Enter(context.Background(), longPlan()))
	err := eng.Enter(context.Background(), longPlan())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "busy")
}

func TestEnter_TimeoutChecksPositionBeforeRetry(t *testing.T) {
	f := &fakeExchange{
		prices:    map[string]float64{"BTCUSDT": 100},
		entryErrs: []error{&binance.APIError{Code: -1007, Msg: "timeout"}},
		// позиция уже есть: первый запрос на самом деле прошёл
		positions: []models.Position{{Symbol: "BTCUSDT", Quantity: 49.95, EntryPrice: 100, MarkPrice: 100}},
	}
	eng, tracker, _ := newTestEngine(f)

	err := eng.Enter(context.Background(), longPlan())
	require.NoError(t, err)
	// повторного MARKET не было, двойного входа нет
	assert.Empty(t, marketOrders(f))
	assert.True(t, tracker.Has("BTCUSDT"))
}

func TestEnter_PositionSideMismatchAdaptsOnce(t *testing.T) {
	f := &fakeExchange{
		prices:       map[string]float64{"BTCUSDT": 100},
		fillOnMarket: true,
		entryErrs:    []error{&binance.APIError{Code: -4061, Msg: "position side mismatch"}, nil},
	}
	eng, _, _ := newTestEngine(f)

	err := eng.Enter(context.Background(), longPlan())
	require.NoError(t, err)

	mkts := marketOrders(f)
	require.Len(t, mkts, 1)
	// после флипа режима повтор ушёл с positionSide
	assert.Equal(t, models.DirectionLong, mkts[0].PosSide)
}

func TestEnter_RejectionFailsFast(t *testing.T) {
	f := &fakeExchange{
		prices:    map[string]float64{"BTCUSDT": 100},
		entryErrs: []error{&binance.APIError{Code: -2019, Msg: "margin is insufficient"}},
	}
	eng, tracker, _ := newTestEngine(f)

	err := eng.Enter(context.Background(), longPlan())
	require.Error(t, err)
	assert.Empty(t, marketOrders(f))
	assert.False(t, tracker.Has("BTCUSDT"))
	// символ освобождён для будущих попыток
	assert.Equal(t, stateNone, eng.symbolState("BTCUSDT"))
}

func TestExit_FullClosesAndRecords(t *testing.T) {
	f := &fakeExchange{
		prices:       map[string]float64{"BTCUSDT": 100},
		fillOnMarket: true,
	}
	eng, tracker, riskMgr := newTestEngine(f)
	require.NoError(t, eng.Enter(context.Background(), longPlan()))

	// подкидываем нереализованный плюс в кэш
	eng.mu.Lock()
	p := eng.positions["BTCUSDT"]
	p.UnrealizedPnl = 42.5
	eng.positions["BTCUSDT"] = p
	eng.mu.Unlock()

	err := eng.Exit(context.Background(), "BTCUSDT", 1.0, "TRAILING_STOP")
	require.NoError(t, err)

	assert.NotContains(t, eng.PositionsSnapshot(), "BTCUSDT")
	assert.False(t, tracker.Has("BTCUSDT"))
	assert.Contains(t, f.cancelled, "BTCUSDT")

	trades, realized := riskMgr.DayStats()
	assert.Equal(t, 1, trades)
	assert.InDelta(t, 42.5, realized, 1e-9)
}

func TestExit_PartialAdjustsCachedQuantity(t *testing.T) {
	f := &fakeExchange{
		prices:       map[string]float64{"BTCUSDT": 100},
		fillOnMarket: true,
	}
	eng, tracker, riskMgr := newTestEngine(f)
	require.NoError(t, eng.Enter(context.Background(), longPlan()))

	err := eng.Exit(context.Background(), "BTCUSDT", 0.5, "STAGE_1@1.5%")
	require.NoError(t, err)

	pos := eng.PositionsSnapshot()["BTCUSDT"]
	assert.InDelta(t, 49.95/2, pos.Quantity, 1e-6)
	assert.True(t, tracker.Has("BTCUSDT"))

	// частичный выход сделку в дневном леджере не закрывает
	trades, _ := riskMgr.DayStats()
	assert.Equal(t, 0, trades)
}

func TestExit_UnknownSymbol(t *testing.T) {
	f := &fakeExchange{prices: map[string]float64{}}
	eng, _, _ := newTestEngine(f)
	err := eng.Exit(context.Background(), "NOPEUSDT", 1.0, "x")
	require.Error(t, err)
}

func TestPoll_CarriesForwardLocalFields(t *testing.T) {
	f := &fakeExchange{
		positions: []models.Position{{Symbol: "BTCUSDT", Quantity: 1, EntryPrice: 100, MarkPrice: 105}},
	}
	eng, _, _ := newTestEngine(f)
	require.NoError(t, eng.PollPositions(context.Background()))

	// локальный стейт накопился между опросами
	eng.mu.Lock()
	p := eng.positions["BTCUSDT"]
	p.TrailingActivated = true
	p.TrailingStopPrice = 103.95
	eng.positions["BTCUSDT"] = p
	eng.mu.Unlock()

	// цена просела: экстремум не отъезжает, трейлинг-поля живы
	f.positions[0].MarkPrice = 102
	require.NoError(t, eng.PollPositions(context.Background()))

	got := eng.PositionsSnapshot()["BTCUSDT"]
	assert.InDelta(t, 105, got.HighestPrice, 1e-9)
	assert.True(t, got.TrailingActivated)
	assert.InDelta(t, 103.95, got.TrailingStopPrice, 1e-9)
	assert.InDelta(t, 102, got.MarkPrice, 1e-9)
}

func TestPoll_AdoptsExternalPosition(t *testing.T) {
	f := &fakeExchange{
		positions: []models.Position{{Symbol: "ETHUSDT", Quantity: -2, EntryPrice: 2000, MarkPrice: 1990}},
	}
	eng, tracker, _ := newTestEngine(f)

	require.NoError(t, eng.PollPositions(context.Background()))
	assert.Contains(t, eng.PositionsSnapshot(), "ETHUSDT")
	assert.Equal(t, stateOpen, eng.symbolState("ETHUSDT"))

	snap, ok := tracker.Snapshot("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, models.DirectionShort, snap.Direction)
	// дефолты берутся из пресета minor-класса
	assert.InDelta(t, 3.0, snap.StopLossPercent, 1e-9)
}

func TestPoll_ExternallyClosedCleanedUp(t *testing.T) {
	f := &fakeExchange{
		positions: []models.Position{{Symbol: "BTCUSDT", Quantity: 1, EntryPrice: 100, MarkPrice: 100, UnrealizedPnl: -10}},
	}
	eng, tracker, riskMgr := newTestEngine(f)
	require.NoError(t, eng.PollPositions(context.Background()))
	require.True(t, tracker.Has("BTCUSDT"))

	// позиция закрыта на бирже (сработал SL)
	f.positions = nil
	require.NoError(t, eng.PollPositions(context.Background()))

	assert.NotContains(t, eng.PositionsSnapshot(), "BTCUSDT")
	assert.False(t, tracker.Has("BTCUSDT"))
	assert.Contains(t, f.cancelled, "BTCUSDT")
	trades, realized := riskMgr.DayStats()
	assert.Equal(t, 1, trades)
	assert.InDelta(t, -10, realized, 1e-9)
}

func TestReferencePrice_FallsBackToRest(t *testing.T) {
	f := &fakeExchange{prices: map[string]float64{"BTCUSDT": 0}}
	eng, _, _ := newTestEngine(f)

	f.prices["BTCUSDT"] = 0
	px, err := eng.ReferencePrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Zero(t, px)

	f.prices["BTCUSDT"] = 123.45
	px, err = eng.ReferencePrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 123.45, px, 1e-9)
}
