package service

import (
	"path/filepath"
	"testing"
	"time"

	"signal_trader/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCrowd struct {
	crowded map[string]bool
}

func (s *stubCrowd) Contains(symbol string) bool { return s.crowded[symbol] }

func newTestAggregator(t *testing.T, cfg Config) (*Aggregator, time.Time) {
	t.Helper()
	if cfg.TimeWindow == 0 {
		cfg.TimeWindow = 5 * time.Minute
	}
	if cfg.MinScore == 0 {
		cfg.MinScore = 0.55
	}
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return base.Add(3 * time.Minute) }
	}
	return New(cfg, nil), base
}

func sig(id, symbol string, kind int, ts time.Time) models.Signal {
	return models.Signal{ID: id, Symbol: symbol, Kind: kind, Timestamp: ts}
}

func TestConfluence_PairWithinWindow(t *testing.T) {
	a, base := newTestAggregator(t, Config{})

	conf, bear := a.Process(sig("s1", "BTCUSDT", models.KindWhaleBuy, base))
	require.Nil(t, conf)
	require.Nil(t, bear)
	assert.Equal(t, 1, a.PendingCount(models.KindWhaleBuy, "BTCUSDT"))

	conf, _ = a.Process(sig("s2", "BTCUSDT", models.KindVolumeSpike, base.Add(2*time.Minute)))
	require.NotNil(t, conf)
	assert.Equal(t, "BTCUSDT", conf.Symbol)
	assert.Equal(t, models.DirectionLong, conf.Direction)
	assert.Equal(t, 2*time.Minute, conf.TimeGap)
	// SourceA всегда покупка кита, независимо от порядка прихода
	assert.Equal(t, models.KindWhaleBuy, conf.SourceA.Kind)
	assert.Equal(t, models.KindVolumeSpike, conf.SourceB.Kind)
	assert.Greater(t, conf.Score, 0.55)

	// партнёр потрачен, повторный спайк пары не образует
	assert.Equal(t, 0, a.PendingCount(models.KindWhaleBuy, "BTCUSDT"))
	conf, _ = a.Process(sig("s3", "BTCUSDT", models.KindVolumeSpike, base.Add(3*time.Minute)))
	assert.Nil(t, conf)
}

func TestConfluence_DifferentSymbolsNeverPair(t *testing.T) {
	a, base := newTestAggregator(t, Config{})

	a.Process(sig("s1", "BTCUSDT", models.KindWhaleBuy, base))
	conf, _ := a.Process(sig("s2", "ETHUSDT", models.KindVolumeSpike, base.Add(time.Minute)))
	assert.Nil(t, conf)
	assert.Equal(t, 1, a.PendingCount(models.KindWhaleBuy, "BTCUSDT"))
	assert.Equal(t, 1, a.PendingCount(models.KindVolumeSpike, "ETHUSDT"))
}

func TestConfluence_OutsideWindowStaysPending(t *testing.T) {
	a, base := newTestAggregator(t, Config{})

	a.Process(sig("s1", "BTCUSDT", models.KindWhaleBuy, base))
	conf, _ := a.Process(sig("s2", "BTCUSDT", models.KindVolumeSpike, base.Add(6*time.Minute)))
	assert.Nil(t, conf)
	assert.Equal(t, 1, a.PendingCount(models.KindVolumeSpike, "BTCUSDT"))
}

func TestConfluence_ClosestPartnerWins(t *testing.T) {
	a, base := newTestAggregator(t, Config{})

	a.Process(sig("far", "BTCUSDT", models.KindWhaleBuy, base))
	a.Process(sig("near", "BTCUSDT", models.KindWhaleBuy, base.Add(2*time.Minute)))

	conf, _ := a.Process(sig("spike", "BTCUSDT", models.KindVolumeSpike, base.Add(150*time.Second)))
	require.NotNil(t, conf)
	assert.Equal(t, "near", conf.SourceA.ID)
	// дальний остаётся ждать своего партнёра
	assert.Equal(t, 1, a.PendingCount(models.KindWhaleBuy, "BTCUSDT"))
}

func TestDuplicateID_Ignored(t *testing.T) {
	a, base := newTestAggregator(t, Config{})

	a.Process(sig("dup", "BTCUSDT", models.KindWhaleBuy, base))
	conf, bear := a.Process(sig("dup", "BTCUSDT", models.KindVolumeSpike, base))
	assert.Nil(t, conf)
	assert.Nil(t, bear)
	assert.Equal(t, 1, a.PendingCount(models.KindWhaleBuy, "BTCUSDT"))
	assert.Equal(t, 0, a.PendingCount(models.KindVolumeSpike, "BTCUSDT"))
}

func TestDedup_BoundedFIFO(t *testing.T) {
	a, base := newTestAggregator(t, Config{DedupCap: 2})

	a.Process(sig("a", "X1USDT", models.KindWhaleBuy, base))
	a.Process(sig("b", "X2USDT", models.KindWhaleBuy, base))
	a.Process(sig("c", "X3USDT", models.KindWhaleBuy, base))

	// "a" вытеснен и может прийти снова
	conf, _ := a.Process(sig("a", "X1USDT", models.KindVolumeSpike, base.Add(time.Minute)))
	require.NotNil(t, conf)
}

func TestSweep_ExpiredPendingDropped(t *testing.T) {
	a, base := newTestAggregator(t, Config{})

	a.Process(sig("old", "BTCUSDT", models.KindWhaleBuy, base))
	assert.Equal(t, 1, a.PendingCount(models.KindWhaleBuy, "BTCUSDT"))

	// старше 2×окна к моменту следующего сигнала
	a.now = func() time.Time { return base.Add(11 * time.Minute) }
	a.Process(sig("other", "ETHUSDT", models.KindWhaleBuy, base.Add(11*time.Minute)))
	assert.Equal(t, 0, a.PendingCount(models.KindWhaleBuy, "BTCUSDT"))
}

func TestBearish_ScoredAndCategorized(t *testing.T) {
	a, base := newTestAggregator(t, Config{BearishHorizon: 3 * time.Minute})
	a.now = func() time.Time { return base }

	_, esc := a.Process(sig("e1", "BTCUSDT", models.KindEscalation, base))
	require.NotNil(t, esc)
	assert.Equal(t, "escalation", esc.Category)
	assert.True(t, esc.Eligible)

	_, out := a.Process(sig("o1", "BTCUSDT", models.KindOutflow, base))
	require.NotNil(t, out)
	// эскалация весит больше оттока при прочих равных
	assert.Greater(t, esc.Score, out.Score)
}

func TestBearish_StaleDropped(t *testing.T) {
	a, base := newTestAggregator(t, Config{BearishHorizon: 3 * time.Minute})
	a.now = func() time.Time { return base.Add(10 * time.Minute) }

	_, bear := a.Process(sig("e1", "BTCUSDT", models.KindEscalation, base))
	assert.Nil(t, bear)
}

func TestBearish_CrowdedSymbolNotEligible(t *testing.T) {
	crowd := &stubCrowd{crowded: map[string]bool{"DOGEUSDT": true}}
	a := New(Config{TimeWindow: 5 * time.Minute, MinScore: 0.55, BearishHorizon: time.Hour}, crowd)
	now := time.Now()

	_, bear := a.Process(sig("b1", "DOGEUSDT", models.KindOutflow, now))
	require.NotNil(t, bear)
	assert.False(t, bear.Eligible)

	_, bear = a.Process(sig("b2", "BTCUSDT", models.KindOutflow, now))
	require.NotNil(t, bear)
	assert.True(t, bear.Eligible)
}

func TestComposite_SubtypeFromPayload(t *testing.T) {
	a, base := newTestAggregator(t, Config{BearishHorizon: time.Hour})

	s := sig("c1", "BTCUSDT", models.KindComposite, base)
	s.Payload = map[string]any{"subtype": "escalation"}
	_, bear := a.Process(s)
	require.NotNil(t, bear)
	assert.Equal(t, "escalation", bear.Category)
}

func TestSnapshot_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agg.json")
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	a1 := New(Config{
		TimeWindow:   5 * time.Minute,
		MinScore:     0.55,
		SnapshotPath: path,
		Clock:        func() time.Time { return base },
	}, nil)
	a1.Process(sig("s1", "BTCUSDT", models.KindWhaleBuy, base))

	// часы второго экземпляра заданы до load(): чистка на старте не должна
	// выбросить свежий pending
	a2 := New(Config{
		TimeWindow:   5 * time.Minute,
		MinScore:     0.55,
		SnapshotPath: path,
		Clock:        func() time.Time { return base.Add(time.Minute) },
	}, nil)

	// pending переехал, дубль по id всё так же режется
	assert.Equal(t, 1, a2.PendingCount(models.KindWhaleBuy, "BTCUSDT"))

	// а рестарт сильно позже окна тот же pending выметает при загрузке
	a3 := New(Config{
		TimeWindow:   5 * time.Minute,
		MinScore:     0.55,
		SnapshotPath: path,
		Clock:        func() time.Time { return base.Add(time.Hour) },
	}, nil)
	assert.Equal(t, 0, a3.PendingCount(models.KindWhaleBuy, "BTCUSDT"))
	conf, bear := a2.Process(sig("s1", "BTCUSDT", models.KindWhaleBuy, base))
	assert.Nil(t, conf)
	assert.Nil(t, bear)

	conf, _ = a2.Process(sig("s2", "BTCUSDT", models.KindVolumeSpike, base.Add(time.Minute)))
	require.NotNil(t, conf)
	assert.Equal(t, time.Minute, conf.TimeGap)
}
