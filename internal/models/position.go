package models

import (
	"math"
	"time"
)

// Position — снэпшот позиции с биржи. Биржевые поля перезаписываются целиком
// на каждом опросе; локальные (Highest*, Trailing*) переносятся merge-ом по
// символу и живут между опросами.
type Position struct {
	Symbol           string
	Quantity         float64 // знаковое: >0 long, <0 short
	EntryPrice       float64
	MarkPrice        float64
	Leverage         int
	LiquidationPrice float64
	UnrealizedPnl    float64

	// локально отслеживаемые поля (carry-forward по символу)
	HighestPrice      float64 // лучший для позиции экстремум с момента входа
	TrailingActivated bool
	TrailingStopPrice float64
}

func (p Position) Long() bool  { return p.Quantity > 0 }
func (p Position) Short() bool { return p.Quantity < 0 }

func (p Position) Side() string {
	if p.Short() {
		return DirectionShort
	}
	return DirectionLong
}

func (p Position) AbsQuantity() float64 { return math.Abs(p.Quantity) }

// Notional — стоимость позиции по марк-цене.
func (p Position) Notional() float64 { return p.AbsQuantity() * p.MarkPrice }

// PnlPercent — нереализованный ход цены в процентах от входа, знак в пользу
// позиции (плечо тут не учитывается, это чистый ход цены).
func (p Position) PnlPercent() float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	pct := (p.MarkPrice - p.EntryPrice) / p.EntryPrice * 100
	if p.Short() {
		pct = -pct
	}
	return pct
}

// Balance — срез фьючерсного кошелька.
type Balance struct {
	Total     float64
	Available float64
}

// Order — открытый ордер на бирже (нужен сейфти-нету и чистке).
type Order struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          string // BUY | SELL
	Type          string // MARKET | STOP_MARKET | TAKE_PROFIT_MARKET
	StopPrice     float64
	Quantity      float64
	ReduceOnly    bool
	ClosePosition bool
}

// TrackingEntry — локальный стейт сопровождения позиции: трейлинг и
// поэтапная фиксация. Ровно один на открытый символ (map по символу).
type TrackingEntry struct {
	Symbol            string
	Direction         string
	EntryPrice        float64
	HighestPrice      float64 // для шорта хранит минимум (лучший экстремум)
	ActivationPercent float64
	CallbackPercent   float64
	Activated         bool
	StopPrice         float64
	ExecutedLevels    map[int]bool

	// ожидания для сейфти-нета
	StopLossPercent float64
	Stages          []StageLevel

	OpenedAt time.Time
}

// GainPercent — прогресс от входа к best-экстремуму.
func (t *TrackingEntry) GainPercent() float64 {
	if t.EntryPrice <= 0 {
		return 0
	}
	pct := (t.HighestPrice - t.EntryPrice) / t.EntryPrice * 100
	if t.Direction == DirectionShort {
		pct = -pct
	}
	return pct
}
