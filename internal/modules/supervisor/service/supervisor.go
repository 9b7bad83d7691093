package service

import (
	"context"
	"sync"
	"time"

	"signal_trader/internal/models"
	"signal_trader/internal/notify"
)

// Trader — то, что супервизору нужно от движка исполнения.
type Trader interface {
	PositionsSnapshot() map[string]models.Position
	Exit(ctx context.Context, symbol string, ratio float64, reason string) error
	OpenOrders(ctx context.Context, symbol string) ([]models.Order, error)
}

type Config struct {
	// относительный допуск при сверке цены защитного ордера, доля
	PriceTolerance float64
	// минимальный интервал форс-действий по символу
	MinActionInterval time.Duration
}

// Supervisor — три независимых вотчера над одним и тем же опрошенным срезом
// позиций: трейлинг, поэтапная фиксация, сейфти-нет. Каждый идемпотентен в
// рамках тика. Работают и при глобальном хальте: открытые позиции без
// присмотра не остаются.
type Supervisor struct {
	cfg      Config
	tracker  *Tracker
	trader   Trader
	notifier notify.Notifier

	mu         sync.Mutex
	lastForced map[string]time.Time

	now func() time.Time
}

func NewSupervisor(cfg Config, tracker *Tracker, trader Trader, notifier notify.Notifier) *Supervisor {
	if cfg.PriceTolerance <= 0 {
		cfg.PriceTolerance = 0.005
	}
	if cfg.MinActionInterval <= 0 {
		cfg.MinActionInterval = 5 * time.Minute
	}
	return &Supervisor{
		cfg:        cfg,
		tracker:    tracker,
		trader:     trader,
		notifier:   notifier,
		lastForced: make(map[string]time.Time),
		now:        time.Now,
	}
}

func (s *Supervisor) Tracker() *Tracker { return s.tracker }

func (s *Supervisor) sendf(format string, args ...any) {
	if s.notifier != nil {
		s.notifier.Sendf(format, args...)
	}
}

func (s *Supervisor) recentlyForced(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.lastForced[symbol]
	return ok && s.now().Sub(at) < s.cfg.MinActionInterval
}

func (s *Supervisor) markForced(symbol string) {
	s.mu.Lock()
	s.lastForced[symbol] = s.now()
	s.mu.Unlock()
}
