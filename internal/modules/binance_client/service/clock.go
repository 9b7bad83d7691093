package service

import (
	"context"
	"net/http"
	"time"

	"signal_trader/pkg/logger"
)

// AdjustedNowMs — локальное время с учётом последнего синка с сервером.
// Оффсет читается на каждом подписанном вызове, поэтому под мьютексом.
func (c *Client) AdjustedNowMs() int64 {
	c.clockMu.Lock()
	off := c.offsetMs
	c.clockMu.Unlock()
	return time.Now().UnixMilli() + off
}

// ensureClock синкает часы, если кэшированный оффсет протух.
func (c *Client) ensureClock(ctx context.Context) error {
	c.clockMu.Lock()
	fresh := !c.syncedAt.IsZero() && time.Since(c.syncedAt) < c.cfg.ClockSyncInterval
	c.clockMu.Unlock()
	if fresh {
		return nil
	}
	return c.SyncClock(ctx)
}

// SyncClock считает serverTime - localTime минус страховочный зазор и кэширует
// результат. В полёте держим не больше одного ресинка.
func (c *Client) SyncClock(ctx context.Context) error {
	c.clockMu.Lock()
	if c.syncBusy {
		c.clockMu.Unlock()
		return nil
	}
	c.syncBusy = true
	c.clockMu.Unlock()

	defer func() {
		c.clockMu.Lock()
		c.syncBusy = false
		c.clockMu.Unlock()
	}()

	local := time.Now().UnixMilli()
	server, err := c.serverTimeMs(ctx)
	if err != nil {
		return err
	}

	off := server - local - int64(c.cfg.ClockSafetyMs)

	c.clockMu.Lock()
	c.offsetMs = off
	c.syncedAt = time.Now()
	c.clockMu.Unlock()

	logger.Info("clock synced: offset=%dms (safety=%dms)", off, c.cfg.ClockSafetyMs)
	return nil
}

func (c *Client) serverTimeMs(ctx context.Context) (int64, error) {
	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	t, _ := c.activeTransport()
	if err := c.do(ctx, t, http.MethodGet, "/fapi/v1/time", nil, false, &resp); err != nil {
		return 0, err
	}
	return resp.ServerTime, nil
}

// ServerTime — серверное время биржи.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	ms, err := c.serverTimeMs(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
