package config

import (
	"signal_trader/internal/models"

	"github.com/spf13/viper"
)

// NewPresets грузит пресеты сопровождения по классам символов из
// configs/presets.yaml; файла может не быть, тогда работаем на дефолтах.
func NewPresets() (models.Presets, error) {
	v := viper.New()
	v.SetConfigName("presets")
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")

	v.SetDefault("major_symbols", []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT"})

	v.SetDefault("major.max_position_percent", 5.0)
	v.SetDefault("major.leverage", 10)
	v.SetDefault("major.stop_loss_percent", 2.0)
	v.SetDefault("major.take_profit_percents", []float64{1.5, 3.0})
	v.SetDefault("major.trailing_activation", 2.0)
	v.SetDefault("major.trailing_callback", 1.0)
	v.SetDefault("major.exposure_cap_percent", 200.0)
	v.SetDefault("major.qty_step", 0.001)
	v.SetDefault("major.stages", []map[string]any{
		{"profit_percent": 1.5, "close_ratio": 0.5},
		{"profit_percent": 3.0, "close_ratio": 1.0},
	})

	v.SetDefault("other.max_position_percent", 3.0)
	v.SetDefault("other.leverage", 5)
	v.SetDefault("other.stop_loss_percent", 3.0)
	v.SetDefault("other.take_profit_percents", []float64{2.0, 4.0})
	v.SetDefault("other.trailing_activation", 2.5)
	v.SetDefault("other.trailing_callback", 1.2)
	v.SetDefault("other.exposure_cap_percent", 100.0)
	v.SetDefault("other.qty_step", 0.1)
	v.SetDefault("other.stages", []map[string]any{
		{"profit_percent": 2.0, "close_ratio": 0.5},
		{"profit_percent": 4.0, "close_ratio": 1.0},
	})

	if err := v.ReadInConfig(); err != nil {
		// нет файла — не ошибка, дефолты перечислены выше
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return models.Presets{}, err
		}
	}

	var p models.Presets
	if err := v.Unmarshal(&p); err != nil {
		return models.Presets{}, err
	}
	return p, nil
}
