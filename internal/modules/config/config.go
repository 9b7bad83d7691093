package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	apiKeyENV         = "EXCHANGE_API_KEY"
	apiSecretENV      = "EXCHANGE_API_SECRET"
)

// Config — весь конфиг приложения. Все поля перечислены явно и получают
// дефолт при конструировании, незаполненных полей не бывает.
type Config struct {
	Debug bool `yaml:"debug"`

	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	DB string `yaml:"db_dsn"`

	Service struct {
		Host       string `yaml:"host"`
		PublicPort int    `yaml:"public_port"` // приём сигналов
		AdminPort  int    `yaml:"admin_port"`  // health
	} `yaml:"service"`

	Jaeger struct {
		Enabled bool   `yaml:"enabled"`
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
	} `yaml:"jaeger"`

	Exchange struct {
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
		// прямой транспорт
		BaseURL string `yaml:"base_url"`
		WSURL   string `yaml:"ws_url"`
		// транспорт через прокси; пустой URL — прокси-транспорта нет
		ProxyURL string `yaml:"proxy_url"`

		RecvWindowMs       int `yaml:"recv_window_ms"`
		ClockSafetyMs      int `yaml:"clock_safety_ms"`
		ReadRetries        int `yaml:"read_retries"`
		EntryRetries       int `yaml:"entry_retries"`
		RateLimitPerSecond int `yaml:"rate_limit_per_second"`

		// интервалы задаются только окружением
		ClockSyncInterval time.Duration `yaml:"-"`
		RequestTimeout    time.Duration `yaml:"-"`
	} `yaml:"exchange"`

	Aggregator struct {
		MinScore     float64 `yaml:"min_score"`
		DedupCap     int     `yaml:"dedup_cap"`
		SnapshotPath string  `yaml:"snapshot_path"`
		AllowShorts  bool    `yaml:"allow_shorts"`

		TimeWindow     time.Duration `yaml:"-"`
		BearishHorizon time.Duration `yaml:"-"`
	} `yaml:"aggregator"`

	Risk struct {
		DailyMaxTrades     int     `yaml:"daily_max_trades"`
		DailyLossLimit     float64 `yaml:"daily_loss_limit"` // USD, положительное число
		MinReservePercent  float64 `yaml:"min_reserve_percent"`
		ExposureCapPercent float64 `yaml:"exposure_cap_percent"` // общий кап по ноционалу, % от депозита
	} `yaml:"risk"`

	Supervisor struct {
		PriceTolerance    float64       `yaml:"price_tolerance"` // доля, напр. 0.005
		MinActionInterval time.Duration `yaml:"-"`
	} `yaml:"supervisor"`

	Runner struct {
		BalanceEveryTicks int `yaml:"balance_every_ticks"`
		MoversTopN        int `yaml:"movers_top_n"`

		TickInterval        time.Duration `yaml:"-"`
		MoversRefresh       time.Duration `yaml:"-"`
		MaintenanceInterval time.Duration `yaml:"-"`
	} `yaml:"runner"`
}

func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	config := defaults()

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err == nil {
		defer func() {
			_ = file.Close()
		}()
		if dErr := yaml.NewDecoder(file).Decode(config); dErr != nil {
			return nil, fmt.Errorf("decode config file: %w", dErr)
		}
	}

	// секреты только из окружения, из файла их не читаем в бою
	if token := os.Getenv(tokenTelegramENV); token != "" {
		config.Telegram.Token = token
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, pErr := strconv.ParseInt(v, 10, 64); pErr == nil {
			config.Telegram.ChatID = id
		}
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}
	if k := os.Getenv(apiKeyENV); k != "" {
		config.Exchange.APIKey = k
	}
	if s := os.Getenv(apiSecretENV); s != "" {
		config.Exchange.APISecret = s
	}

	if config.Aggregator.TimeWindow <= 0 {
		return nil, fmt.Errorf("aggregator.time_window must be positive")
	}
	if config.Risk.DailyLossLimit < 0 {
		return nil, fmt.Errorf("risk.daily_loss_limit must be >= 0")
	}

	return config, nil
}

func defaults() *Config {
	c := &Config{}
	c.Service.Host = "0.0.0.0"
	c.Service.PublicPort = intFromEnv("PUBLIC_PORT", 8081)
	c.Service.AdminPort = intFromEnv("ADMIN_PORT", 8080)

	c.Jaeger.Enabled = boolFromEnv("JAEGER_ENABLED", false)
	c.Jaeger.Host = getenvDefault("JAEGER_HOST", "127.0.0.1")
	c.Jaeger.Port = intFromEnv("JAEGER_PORT", 6831)

	c.Exchange.BaseURL = getenvDefault("EXCHANGE_BASE_URL", "https://fapi.binance.com")
	c.Exchange.WSURL = getenvDefault("EXCHANGE_WS_URL", "wss://fstream.binance.com/ws")
	c.Exchange.ProxyURL = os.Getenv("EXCHANGE_PROXY_URL")
	c.Exchange.RecvWindowMs = intFromEnv("RECV_WINDOW_MS", 5000)
	c.Exchange.ClockSafetyMs = intFromEnv("CLOCK_SAFETY_MS", 500)
	c.Exchange.ClockSyncInterval = durationFromEnv("CLOCK_SYNC_INTERVAL", "10m")
	c.Exchange.ReadRetries = intFromEnv("READ_RETRIES", 3)
	c.Exchange.EntryRetries = intFromEnv("ENTRY_RETRIES", 3)
	c.Exchange.RequestTimeout = durationFromEnv("REQUEST_TIMEOUT", "10s")
	c.Exchange.RateLimitPerSecond = intFromEnv("RATE_LIMIT_PER_SECOND", 8)

	c.Aggregator.TimeWindow = durationFromEnv("SIGNAL_TIME_WINDOW", "5m")
	c.Aggregator.MinScore = floatFromEnv("SIGNAL_MIN_SCORE", 0.55)
	c.Aggregator.BearishHorizon = durationFromEnv("BEARISH_HORIZON", "3m")
	c.Aggregator.DedupCap = intFromEnv("SIGNAL_DEDUP_CAP", 500)
	c.Aggregator.SnapshotPath = getenvDefault("SIGNAL_SNAPSHOT_PATH", "data/aggregator.json")
	c.Aggregator.AllowShorts = boolFromEnv("ALLOW_SHORTS", true)

	c.Risk.DailyMaxTrades = intFromEnv("DAILY_MAX_TRADES", 10)
	c.Risk.DailyLossLimit = floatFromEnv("DAILY_LOSS_LIMIT", 150)
	c.Risk.MinReservePercent = floatFromEnv("MIN_RESERVE_PERCENT", 5)
	c.Risk.ExposureCapPercent = floatFromEnv("EXPOSURE_CAP_PERCENT", 300)

	c.Supervisor.PriceTolerance = floatFromEnv("SAFETY_PRICE_TOLERANCE", 0.005)
	c.Supervisor.MinActionInterval = durationFromEnv("SAFETY_MIN_ACTION_INTERVAL", "5m")

	c.Runner.TickInterval = durationFromEnv("TICK_INTERVAL", "1s")
	c.Runner.BalanceEveryTicks = intFromEnv("BALANCE_EVERY_TICKS", 30)
	c.Runner.MoversRefresh = durationFromEnv("MOVERS_REFRESH", "10m")
	c.Runner.MoversTopN = intFromEnv("MOVERS_TOP_N", 20)
	c.Runner.MaintenanceInterval = durationFromEnv("MAINTENANCE_INTERVAL", "10m")

	c.Debug = boolFromEnv("DEBUG", false)
	return c
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
