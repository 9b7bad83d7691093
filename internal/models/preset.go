package models

import "strings"

// StageLevel — ступень поэтапной фиксации: при достижении ProfitPercent
// закрываем CloseRatio от ТЕКУЩЕГО остатка позиции.
type StageLevel struct {
	ProfitPercent float64 `mapstructure:"profit_percent" json:"profit_percent"`
	CloseRatio    float64 `mapstructure:"close_ratio" json:"close_ratio"`
}

// ClassPreset — настройки сопровождения и сайзинга для класса символов.
type ClassPreset struct {
	MaxPositionPercent float64      `mapstructure:"max_position_percent"` // % депозита под маржу одной сделки
	Leverage           int          `mapstructure:"leverage"`
	StopLossPercent    float64      `mapstructure:"stop_loss_percent"`
	TakeProfitPercents []float64    `mapstructure:"take_profit_percents"` // по возрастанию
	TrailingActivation float64      `mapstructure:"trailing_activation"`  // % хода до взвода трейлинга
	TrailingCallback   float64      `mapstructure:"trailing_callback"`    // % отката от экстремума
	Stages             []StageLevel `mapstructure:"stages"`
	ExposureCapPercent float64      `mapstructure:"exposure_cap_percent"` // 0 = только общий кап
	QtyStep            float64      `mapstructure:"qty_step"`             // шаг лота; 0 = не резать
}

// Presets — пресеты по классам. Major — BTC/ETH и т.п., Other — всё остальное.
type Presets struct {
	Major        ClassPreset `mapstructure:"major"`
	Other        ClassPreset `mapstructure:"other"`
	MajorSymbols []string    `mapstructure:"major_symbols"`
}

const (
	ClassMajor = "major"
	ClassOther = "other"
)

func (p Presets) Class(symbol string) string {
	for _, s := range p.MajorSymbols {
		if strings.EqualFold(s, symbol) {
			return ClassMajor
		}
	}
	return ClassOther
}

func (p Presets) ForSymbol(symbol string) ClassPreset {
	if p.Class(symbol) == ClassMajor {
		return p.Major
	}
	return p.Other
}
