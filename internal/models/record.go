package models

// TradeRecord — событие для рекордера производительности. Отправка
// fire-and-forget, на корректность торговли не влияет.
type TradeRecord struct {
	Symbol      string
	Side        string
	Quantity    float64
	Price       float64
	RealizedPnl float64
	OrderID     string
}
