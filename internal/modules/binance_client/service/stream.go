package service

import (
	"context"
	"strconv"
	"time"

	"signal_trader/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

func (c *Client) SetPrice(symbol string, price float64) {
	c.priceMu.Lock()
	c.prices[symbol] = price
	c.priceMu.Unlock()
}

// LastPrice — последняя марк-цена из WS-кэша, 0 если по символу ещё не было.
func (c *Client) LastPrice(symbol string) float64 {
	c.priceMu.RLock()
	defer c.priceMu.RUnlock()
	return c.prices[symbol]
}

// StreamMarkPrices держит WS-подписку на марк-цены всех контрактов и кормит
// локальный кэш. onState дёргается при коннекте/дисконнекте (для health).
func (c *Client) StreamMarkPrices(ctx context.Context, onState func(connected bool)) {
	url := c.cfg.WSURL + "/!markPrice@arr@1s"
	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	retry := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			retry++
			logger.Warn("markprice ws dial: %v (retry %d)", err, retry)
			if sleepCtx(ctx, time.Duration(300*min(retry, 10))*time.Millisecond) != nil {
				return
			}
			continue
		}
		retry = 0
		if onState != nil {
			onState(true)
		}
		logger.Info("markprice ws connected")

		stopPing := make(chan struct{})
		go func() {
			t := time.NewTicker(3 * time.Minute)
			defer t.Stop()
			for {
				select {
				case <-stopPing:
					return
				case <-ctx.Done():
					return
				case <-t.C:
					_ = conn.WriteMessage(websocket.PongMessage, nil)
				}
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				close(stopPing)
				_ = conn.Close()
				if onState != nil {
					onState(false)
				}
				break
			}
			var frames []struct {
				EventType string `json:"e"`
				Symbol    string `json:"s"`
				Price     string `json:"p"`
			}
			if err := sonic.Unmarshal(msg, &frames); err != nil {
				continue
			}
			for _, f := range frames {
				if f.EventType != "markPriceUpdate" {
					continue
				}
				if px, err := strconv.ParseFloat(f.Price, 64); err == nil && px > 0 {
					c.SetPrice(f.Symbol, px)
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
			time.Sleep(1 * time.Second)
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
