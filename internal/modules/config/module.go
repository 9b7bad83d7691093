package config

import "go.uber.org/fx"

// Module регистрируем как fx-провайдер. Сам *Config создаётся в main до
// поднятия контейнера: логгеру нужен Debug-флаг раньше всех конструкторов.
func Module(cfg *Config) fx.Option {
	return fx.Module("config",
		fx.Provide(
			func() *Config { return cfg },
			NewPresets,
		),
	)
}
