package models

// Решение риск-менеджера по кандидату.
const (
	ActionEnter  = "ENTER"
	ActionReject = "REJECT"
)

// Риск-тир позиции, назначается от скора сигнала.
const (
	TierLow    = "low"
	TierMedium = "medium"
	TierHigh   = "high"
)

// TradePlan — готовый план сделки. Количество и цены считает риск-менеджер,
// снаружи они не подставляются. Quantity уже включает плечо ровно один раз —
// движок его повторно НЕ домножает (была ошибка двойного умножения).
type TradePlan struct {
	Symbol      string
	Action      string // ENTER | REJECT
	Direction   string // LONG | SHORT
	Quantity    float64
	Entry       float64 // референсная цена на момент решения
	StopLoss    float64
	TakeProfits []float64 // по возрастанию удалённости от входа
	Leverage    int
	Tier        string
	Score       float64
	Reason      string // причина REJECT либо краткое описание входа
}

// Reject — план-отказ с причиной.
func Reject(symbol, reason string) TradePlan {
	return TradePlan{Symbol: symbol, Action: ActionReject, Reason: reason}
}
