package runner

import (
	"context"
	"time"

	"signal_trader/internal/models"
	aggregator "signal_trader/internal/modules/aggregator/service"
	binance "signal_trader/internal/modules/binance_client/service"
	"signal_trader/internal/modules/config"
	engine "signal_trader/internal/modules/engine/service"
	health "signal_trader/internal/modules/health/service"
	risk "signal_trader/internal/modules/risk/service"
	supervisor "signal_trader/internal/modules/supervisor/service"
	"signal_trader/internal/notify"
	"signal_trader/pkg/logger"

	"github.com/opentracing/opentracing-go"
)

// Runner — единственная горутина принятия решений. Сигналы и тики
// сериализуются здесь, вход и сопровождение не работают одновременно.
type Runner struct {
	cfg *config.Config

	agg    *aggregator.Aggregator
	movers *aggregator.MoversCache
	risk   *risk.Manager
	eng    *engine.Engine
	sup    *supervisor.Supervisor
	client *binance.Client
	state  *health.State
	n      notify.Notifier

	sigs <-chan models.Signal

	ticks           int
	lastMaintenance time.Time
}

func New(
	cfg *config.Config,
	agg *aggregator.Aggregator,
	movers *aggregator.MoversCache,
	riskMgr *risk.Manager,
	eng *engine.Engine,
	sup *supervisor.Supervisor,
	client *binance.Client,
	state *health.State,
	n notify.Notifier,
	sigs chan models.Signal,
) *Runner {
	return &Runner{
		cfg:    cfg,
		agg:    agg,
		movers: movers,
		risk:   riskMgr,
		eng:    eng,
		sup:    sup,
		client: client,
		state:  state,
		n:      n,
		sigs:   sigs,
	}
}

// Run крутит основной цикл до отмены контекста.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Runner.TickInterval)
	defer ticker.Stop()

	logger.Info("runner started, tick=%s", r.cfg.Runner.TickInterval)
	r.n.Sendf("🚀 Бот запущен | тик %s | transport=%s", r.cfg.Runner.TickInterval, r.client.ActiveTransportName())

	for {
		select {
		case <-ctx.Done():
			logger.Info("runner stopped")
			return
		case sig := <-r.sigs:
			r.handleSignal(ctx, sig)
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick — один проход сопровождения: сверка позиций, потом вотчеры.
// Порядок важен: вотчеры работают по свежему кэшу.
func (r *Runner) tick(ctx context.Context) {
	if err := r.eng.PollPositions(ctx); err != nil {
		logger.Warn("poll positions: %v", err)
		// по протухшему кэшу решений не принимаем
		return
	}

	r.sup.CheckTrailing(ctx)
	r.sup.CheckStages(ctx)
	r.sup.CheckSafetyNet(ctx)

	r.ticks++
	if n := r.cfg.Runner.BalanceEveryTicks; n > 0 && r.ticks%n == 0 {
		if err := r.eng.RefreshBalance(ctx); err != nil {
			logger.Warn("refresh balance: %v", err)
		}
	}

	r.state.TouchTick(time.Now())
	r.state.SetReady(true)

	if time.Since(r.lastMaintenance) >= r.cfg.Runner.MaintenanceInterval {
		r.lastMaintenance = time.Now()
		r.maintenance(ctx)
	}
}

func (r *Runner) maintenance(ctx context.Context) {
	if err := r.movers.Refresh(ctx); err != nil {
		logger.Warn("movers refresh: %v", err)
	}
	if err := r.client.SyncClock(ctx); err != nil {
		logger.Warn("clock sync: %v", err)
	}
}

// handleSignal прогоняет сигнал через агрегатор и, если сложился кандидат,
// пробует вход.
func (r *Runner) handleSignal(ctx context.Context, sig models.Signal) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "runner.handleSignal")
	defer span.Finish()
	span.SetTag("symbol", sig.Symbol)
	span.SetTag("kind", sig.Kind)

	confluence, bearish := r.agg.Process(sig)

	if confluence != nil {
		logger.Info("[%s] confluence: gap=%s score=%.3f", confluence.Symbol, confluence.TimeGap, confluence.Score)
		r.tryEnter(ctx, confluence.Symbol, models.DirectionLong, confluence.Score)
		return
	}

	if bearish != nil {
		if !r.cfg.Aggregator.AllowShorts {
			logger.Info("[%s] bearish %s score=%.3f, shorts disabled", bearish.Symbol, bearish.Category, bearish.Score)
			return
		}
		if !bearish.Eligible {
			// символ в crowd-листе: шорт против толпы не открываем
			logger.Info("[%s] bearish %s score=%.3f skipped: crowded", bearish.Symbol, bearish.Category, bearish.Score)
			return
		}
		r.tryEnter(ctx, bearish.Symbol, models.DirectionShort, bearish.Score)
	}
}

func (r *Runner) tryEnter(ctx context.Context, symbol, direction string, score float64) {
	price, err := r.eng.ReferencePrice(ctx, symbol)
	if err != nil || price <= 0 {
		logger.Warn("[%s] no reference price: %v", symbol, err)
		return
	}

	plan := r.risk.Plan(symbol, direction, price, score, r.eng.AccountState())
	if plan.Action == models.ActionReject {
		logger.Info("[%s] entry rejected: %s", symbol, plan.Reason)
		return
	}

	if err := r.eng.Enter(ctx, plan); err != nil {
		logger.Error("[%s] enter failed: %v", symbol, err)
		r.n.Sendf("❌ [%s] Вход не удался: %v", symbol, err)
	}
}
