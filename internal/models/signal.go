package models

import (
	"fmt"
	"math"
	"time"
)

// Типы сигналов от источника (нумерация внешняя, менять нельзя).
const (
	KindComposite   = 100 // составной медвежий, подтип лежит в Payload["subtype"]
	KindWhaleBuy    = 110 // крупная покупка — бычья компонента A
	KindOutflow     = 111 // отток с бирж — медвежий
	KindEscalation  = 112 // эскалация продаж — медвежий
	KindVolumeSpike = 113 // всплеск объёма — бычья компонента B
)

const DirectionLong = "LONG"
const DirectionShort = "SHORT"

// Signal — входящее событие от источника сигналов.
// ID глобально уникален, по нему режем дубли при повторной доставке.
type Signal struct {
	ID        string         `json:"id"`
	Symbol    string         `json:"symbol"`
	Kind      int            `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func (s Signal) Bullish() bool {
	return s.Kind == KindWhaleBuy || s.Kind == KindVolumeSpike
}

func (s Signal) Bearish() bool {
	switch s.Kind {
	case KindOutflow, KindEscalation, KindComposite:
		return true
	}
	return false
}

// Strength достаёт силу сигнала из payload (0..1), если источник её прислал.
func (s Signal) Strength() float64 {
	v, ok := s.Payload["strength"]
	if !ok {
		return 0.5
	}
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) {
		return 0.5
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// BearishCategory — категория медвежьего сигнала для весов скоринга.
func (s Signal) BearishCategory() string {
	switch s.Kind {
	case KindOutflow:
		return "outflow"
	case KindEscalation:
		return "escalation"
	case KindComposite:
		if sub, ok := s.Payload["subtype"].(string); ok && sub != "" {
			return sub
		}
		return "composite"
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(x, "%f", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// ConfluenceSignal — синтетический бычий кандидат: пара сигналов A+B по одному
// символу внутри окна. Производный, отдельно не хранится.
type ConfluenceSignal struct {
	Symbol    string
	SourceA   Signal
	SourceB   Signal
	TimeGap   time.Duration
	Score     float64
	Direction string // всегда LONG
}

// BearishCandidate — кандидат на шорт. Eligible пересчитывается на момент
// оценки по crowd-листу и никогда не кэшируется.
type BearishCandidate struct {
	Symbol   string
	Signal   Signal
	Category string
	Score    float64
	Eligible bool
}
