package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"signal_trader/internal/models"
	"signal_trader/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier — fire-and-forget. Ошибка доставки никогда не влияет на торговлю.
type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// PositionSource отдаёт живые позиции для команды /positions.
type PositionSource interface {
	PositionsSnapshot() map[string]models.Position
}

// RiskControl — ручной аварийный стоп и дневная статистика для команд.
type RiskControl interface {
	SetHalt(on bool)
	Halted() bool
	DayStats() (trades int, realized float64)
}

// Telegram — пассивный нотифайер + обработка одной команды /positions.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64

	mu   sync.Mutex
	src  PositionSource
	risk RiskControl
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:    b,
		chatID: chatID,
	}, nil
}

// BindPositions подвязывает источник позиций (движок) после его создания.
func (t *Telegram) BindPositions(src PositionSource) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.src = src
	t.mu.Unlock()
}

// BindRisk подвязывает риск-менеджер для /halt, /resume и /status.
func (t *Telegram) BindRisk(rc RiskControl) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.risk = rc
	t.mu.Unlock()
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	_, _ = t.bot.Send(tgbot.NewMessage(t.chatID, msg))
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// /positions — вывод позиций из кэша движка.
func (t *Telegram) handlePositions() {
	t.mu.Lock()
	src := t.src
	t.mu.Unlock()
	if src == nil {
		t.Send("❗️ Движок ещё не поднялся")
		return
	}

	positions := src.PositionsSnapshot()
	if len(positions) == 0 {
		t.Send("📭 Открытых позиций нет")
		return
	}

	var b strings.Builder
	b.WriteString("📊 Открытые позиции:\n")
	for _, p := range positions {
		fmt.Fprintf(&b, "- %s [%s] qty=%.4f @ %.4f mark=%.4f lev=%dx uPnL=%.2f\n",
			p.Symbol, p.Side(), p.AbsQuantity(), p.EntryPrice, p.MarkPrice, p.Leverage, p.UnrealizedPnl)
	}
	t.Send(b.String())
}

// /halt и /resume — глобальный стоп на новые входы. Сопровождение открытых
// позиций продолжается в любом случае.
func (t *Telegram) handleHalt(on bool) {
	t.mu.Lock()
	rc := t.risk
	t.mu.Unlock()
	if rc == nil {
		t.Send("❗️ Риск-менеджер ещё не подвязан")
		return
	}
	rc.SetHalt(on)
	if on {
		t.Send("🛑 Торговля остановлена вручную. Открытые позиции сопровождаются")
	} else {
		t.Send("▶️ Торговля возобновлена")
	}
}

func (t *Telegram) handleStatus() {
	t.mu.Lock()
	rc := t.risk
	src := t.src
	t.mu.Unlock()
	if rc == nil {
		t.Send("❗️ Риск-менеджер ещё не подвязан")
		return
	}
	trades, realized := rc.DayStats()
	open := 0
	if src != nil {
		open = len(src.PositionsSnapshot())
	}
	t.Sendf("🩺 Статус | halt=%v | сделок за день: %d | PnL за день: %.2f USDT | открыто: %d",
		rc.Halted(), trades, realized, open)
}

// Start: long-polling только ради команд, сообщения шлются и без него.
func (t *Telegram) Start(ctx context.Context) error {
	if t == nil || t.bot == nil {
		return nil
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd := <-updates:
				if upd.Message == nil || upd.Message.Chat == nil ||
					upd.Message.Chat.ID != t.chatID || !upd.Message.IsCommand() {
					continue
				}
				switch upd.Message.Command() {
				case "positions":
					go t.handlePositions()
				case "halt":
					t.handleHalt(true)
				case "resume":
					t.handleHalt(false)
				case "status":
					go t.handleStatus()
				}
			}
		}
	}()
	return nil
}

// Stdout — заглушка: всё в лог.
type Stdout struct{}

func NewStdout() *Stdout                           { return &Stdout{} }
func (s *Stdout) Send(msg string)                  { logger.Info("%s", msg) }
func (s *Stdout) Sendf(format string, args ...any) { logger.Info(format, args...) }
