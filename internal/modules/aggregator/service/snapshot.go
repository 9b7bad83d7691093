package service

import (
	"os"
	"path/filepath"

	"signal_trader/internal/models"
	"signal_trader/pkg/logger"

	"github.com/bytedance/sonic"
)

// snapshot — персистентное состояние агрегатора. Пишется атомарно
// (temp + rename) после каждой мутации, читается на старте, чтобы рестарт
// не поднимал заново уже сматченные пары.
type snapshot struct {
	TimeWindowSec    int64                              `json:"timeWindow"`
	MinScore         float64                            `json:"minScore"`
	BucketsByKind    map[int]map[string][]models.Signal `json:"bucketsByKind"`
	ProcessedIDOrder []string                           `json:"processedIdOrder"`
}

func (a *Aggregator) persistLocked() {
	if a.cfg.SnapshotPath == "" {
		return
	}

	snap := snapshot{
		TimeWindowSec:    int64(a.cfg.TimeWindow.Seconds()),
		MinScore:         a.cfg.MinScore,
		BucketsByKind:    a.buckets,
		ProcessedIDOrder: a.seenOrder,
	}
	data, err := sonic.Marshal(snap)
	if err != nil {
		logger.Error("aggregator snapshot marshal: %v", err)
		return
	}

	dir := filepath.Dir(a.cfg.SnapshotPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error("aggregator snapshot mkdir: %v", err)
		return
	}

	tmp := a.cfg.SnapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logger.Error("aggregator snapshot write: %v", err)
		return
	}
	if err := os.Rename(tmp, a.cfg.SnapshotPath); err != nil {
		logger.Error("aggregator snapshot rename: %v", err)
	}
}

func (a *Aggregator) load() error {
	data, err := os.ReadFile(a.cfg.SnapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var snap snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for kind, bySymbol := range snap.BucketsByKind {
		if _, ok := a.buckets[kind]; !ok {
			continue
		}
		a.buckets[kind] = bySymbol
	}
	a.seenOrder = snap.ProcessedIDOrder
	a.seen = make(map[string]struct{}, len(a.seenOrder))
	for _, id := range a.seenOrder {
		a.seen[id] = struct{}{}
	}

	a.sweepLocked()
	logger.Info("aggregator snapshot loaded: %d processed ids", len(a.seenOrder))
	return nil
}
