package service

import (
	"math"
	"sync"
	"time"

	"signal_trader/internal/models"
	"signal_trader/pkg/logger"
)

// CrowdList отвечает на вопрос "символ уже в списке разогнанных?".
// Кандидат на шорт годится, только если ответ — нет.
type CrowdList interface {
	Contains(symbol string) bool
}

type Config struct {
	TimeWindow     time.Duration
	MinScore       float64
	BearishHorizon time.Duration
	DedupCap       int
	SnapshotPath   string

	// источник времени; пустой — time.Now. Задаётся до load(), иначе
	// чистка на старте пойдёт по реальным часам
	Clock func() time.Time
}

// Aggregator превращает поток типизированных сигналов в кандидатов на сделку:
// пары A+B по одному символу внутри окна — в бычий confluence, медвежьи —
// в кандидатов на шорт под crowd-фильтром.
type Aggregator struct {
	mu    sync.Mutex
	cfg   Config
	crowd CrowdList

	// kind -> symbol -> pending, только для бычьих компонент (110/113)
	buckets map[int]map[string][]models.Signal

	seen      map[string]struct{}
	seenOrder []string

	now func() time.Time
}

func New(cfg Config, crowd CrowdList) *Aggregator {
	if cfg.DedupCap <= 0 {
		cfg.DedupCap = 500
	}
	a := &Aggregator{
		cfg:   cfg,
		crowd: crowd,
		buckets: map[int]map[string][]models.Signal{
			models.KindWhaleBuy:    {},
			models.KindVolumeSpike: {},
		},
		seen: make(map[string]struct{}),
		now:  time.Now,
	}
	if cfg.Clock != nil {
		a.now = cfg.Clock
	}
	if cfg.SnapshotPath != "" {
		if err := a.load(); err != nil {
			logger.Warn("aggregator snapshot load: %v", err)
		}
	}
	return a
}

// Process прогоняет один сигнал. Возвращает confluence и/или кандидата на
// шорт; дубль по id молча игнорируется.
func (a *Aggregator) Process(sig models.Signal) (*models.ConfluenceSignal, *models.BearishCandidate) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if sig.ID == "" || sig.Symbol == "" {
		return nil, nil
	}
	if _, dup := a.seen[sig.ID]; dup {
		return nil, nil
	}
	a.rememberLocked(sig.ID)

	var conf *models.ConfluenceSignal
	var bear *models.BearishCandidate

	switch {
	case sig.Bullish():
		conf = a.processBullishLocked(sig)
	case sig.Bearish():
		bear = a.processBearishLocked(sig)
	}

	// чистка и снэпшот после каждого изменения состояния
	a.sweepLocked()
	a.persistLocked()

	return conf, bear
}

func (a *Aggregator) processBullishLocked(sig models.Signal) *models.ConfluenceSignal {
	partnerKind := models.KindVolumeSpike
	if sig.Kind == models.KindVolumeSpike {
		partnerKind = models.KindWhaleBuy
	}

	// лучший партнёр = наименьший временной разрыв внутри окна
	pending := a.buckets[partnerKind][sig.Symbol]
	bestIdx := -1
	var bestGap time.Duration
	for i, p := range pending {
		gap := absDuration(sig.Timestamp.Sub(p.Timestamp))
		if gap >= a.cfg.TimeWindow {
			continue
		}
		if bestIdx < 0 || gap < bestGap {
			bestIdx = i
			bestGap = gap
		}
	}

	if bestIdx >= 0 {
		partner := pending[bestIdx]
		score := a.score(sig, partner, bestGap)
		if score >= a.cfg.MinScore {
			// at-most-one-match: партнёр уходит из бакета, сам сигнал в
			// бакет не попадает
			a.buckets[partnerKind][sig.Symbol] = append(pending[:bestIdx], pending[bestIdx+1:]...)
			if len(a.buckets[partnerKind][sig.Symbol]) == 0 {
				delete(a.buckets[partnerKind], sig.Symbol)
			}
			srcA, srcB := partner, sig
			if sig.Kind == models.KindWhaleBuy {
				srcA, srcB = sig, partner
			}
			return &models.ConfluenceSignal{
				Symbol:    sig.Symbol,
				SourceA:   srcA,
				SourceB:   srcB,
				TimeGap:   bestGap,
				Score:     score,
				Direction: models.DirectionLong,
			}
		}
	}

	a.buckets[sig.Kind][sig.Symbol] = append(a.buckets[sig.Kind][sig.Symbol], sig)
	return nil
}

// score: близость по времени + сила сигналов + свежесть (экспоненциальное
// затухание за ~час).
func (a *Aggregator) score(s1, s2 models.Signal, gap time.Duration) float64 {
	timeProx := 1.0 - float64(gap)/float64(a.cfg.TimeWindow)
	strength := (s1.Strength() + s2.Strength()) / 2

	newest := s1.Timestamp
	if s2.Timestamp.After(newest) {
		newest = s2.Timestamp
	}
	age := a.now().Sub(newest)
	if age < 0 {
		age = 0
	}
	freshness := math.Exp(-float64(age) / float64(time.Hour))

	return 0.4*timeProx + 0.3*strength + 0.3*freshness
}

var bearishWeights = map[string]float64{
	"escalation": 1.0,
	"outflow":    0.85,
	"composite":  0.7,
}

func (a *Aggregator) processBearishLocked(sig models.Signal) *models.BearishCandidate {
	age := a.now().Sub(sig.Timestamp)
	if a.cfg.BearishHorizon > 0 && age > a.cfg.BearishHorizon {
		// для шорта актуальность критична, протухшее выкидываем сразу
		return nil
	}
	if age < 0 {
		age = 0
	}

	category := sig.BearishCategory()
	weight, ok := bearishWeights[category]
	if !ok {
		weight = 0.7
	}
	freshness := math.Exp(-float64(age) / float64(time.Hour))
	score := weight * freshness * (0.5 + 0.5*sig.Strength())

	// eligible пересчитываем на месте, никакого кэша
	eligible := a.crowd == nil || !a.crowd.Contains(sig.Symbol)

	return &models.BearishCandidate{
		Symbol:   sig.Symbol,
		Signal:   sig,
		Category: category,
		Score:    score,
		Eligible: eligible,
	}
}

func (a *Aggregator) rememberLocked(id string) {
	a.seen[id] = struct{}{}
	a.seenOrder = append(a.seenOrder, id)
	for len(a.seenOrder) > a.cfg.DedupCap {
		oldest := a.seenOrder[0]
		a.seenOrder = a.seenOrder[1:]
		delete(a.seen, oldest)
	}
}

// sweepLocked выкидывает из бакетов всё старше 2×окна.
func (a *Aggregator) sweepLocked() {
	horizon := 2 * a.cfg.TimeWindow
	now := a.now()
	for kind, bySymbol := range a.buckets {
		for sym, pending := range bySymbol {
			kept := pending[:0]
			for _, s := range pending {
				if now.Sub(s.Timestamp) <= horizon {
					kept = append(kept, s)
				}
			}
			if len(kept) == 0 {
				delete(bySymbol, sym)
			} else {
				a.buckets[kind][sym] = kept
			}
		}
	}
}

// PendingCount — сколько сигналов вида kind висит по символу (для статуса).
func (a *Aggregator) PendingCount(kind int, symbol string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buckets[kind][symbol])
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
