package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"signal_trader/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
	WSURL     string
	ProxyURL  string

	RecvWindowMs       int
	ClockSafetyMs      int
	ClockSyncInterval  time.Duration
	ReadRetries        int
	RequestTimeout     time.Duration
	RateLimitPerSecond int
}

// transport — один конкретный путь до биржи. Меняется только целиком,
// вместе со своим http-клиентом.
type transport struct {
	name string
	http *http.Client
}

// Client — единый логический клиент биржи поверх двух транспортов
// (через прокси и напрямую) с коррекцией часов.
type Client struct {
	cfg  Config
	base string

	transports []*transport
	activeMu   sync.Mutex
	active     int

	clockMu   sync.Mutex
	offsetMs  int64
	syncedAt  time.Time
	syncBusy  bool

	limiter *rate.Limiter

	priceMu sync.RWMutex
	prices  map[string]float64
}

func New(cfg Config) (*Client, error) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.ReadRetries <= 0 {
		cfg.ReadRetries = 3
	}
	if cfg.RecvWindowMs <= 0 {
		cfg.RecvWindowMs = 5000
	}
	if cfg.ClockSyncInterval <= 0 {
		cfg.ClockSyncInterval = 10 * time.Minute
	}
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = 8
	}

	transports := make([]*transport, 0, 2)
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse proxy url")
		}
		transports = append(transports, &transport{
			name: "proxy",
			http: &http.Client{
				Timeout:   cfg.RequestTimeout,
				Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
			},
		})
	}
	transports = append(transports, &transport{
		name: "direct",
		http: &http.Client{Timeout: cfg.RequestTimeout},
	})

	return &Client{
		cfg:        cfg,
		base:       cfg.BaseURL,
		transports: transports,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitPerSecond),
		prices:     make(map[string]float64),
	}, nil
}

func (c *Client) activeTransport() (*transport, int) {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	return c.transports[c.active], c.active
}

func (c *Client) alternate(idx int) (*transport, int) {
	if len(c.transports) < 2 {
		return nil, -1
	}
	alt := (idx + 1) % len(c.transports)
	return c.transports[alt], alt
}

func (c *Client) promote(idx int) {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	if c.active != idx {
		logger.Warn("exchange transport failover: %s -> %s",
			c.transports[c.active].name, c.transports[idx].name)
		c.active = idx
	}
}

func (c *Client) ActiveTransportName() string {
	t, _ := c.activeTransport()
	return t.name
}

// readOnly — read-вызов: ограниченный ретрай с бэкоффом на активном
// транспорте, при стойкой сетевой ошибке — попытка через запасной, успех
// продвигает его в активные.
func (c *Client) readOnly(ctx context.Context, path string, params url.Values, signed bool, out any) error {
	t, idx := c.activeTransport()

	var lastErr error
	for attempt := 0; attempt < c.cfg.ReadRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff(attempt)); err != nil {
				return err
			}
		}
		err := c.do(ctx, t, http.MethodGet, path, params, signed, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !Retryable(err) {
			// авторитетный ответ — переключать транспорт бессмысленно
			return err
		}
	}

	alt, altIdx := c.alternate(idx)
	if alt == nil {
		return lastErr
	}
	if err := c.do(ctx, alt, http.MethodGet, path, params, signed, out); err != nil {
		return lastErr
	}
	c.promote(altIdx)
	return nil
}

// authoritative — state-changing вызов. Только активный транспорт: молча
// повторить на другом — получить дубль ордера. На рассинхроне часов один
// ресинк и один повтор.
func (c *Client) authoritative(ctx context.Context, method, path string, params url.Values, out any) error {
	if err := c.ensureClock(ctx); err != nil {
		logger.Warn("clock sync before call: %v", err)
	}

	t, _ := c.activeTransport()
	err := c.do(ctx, t, method, path, params, true, out)
	if err != nil && KindOf(err) == KindClockSkew {
		if sErr := c.SyncClock(ctx); sErr != nil {
			return err
		}
		err = c.do(ctx, t, method, path, params, true, out)
	}
	return err
}

func (c *Client) do(ctx context.Context, t *transport, method, path string, params url.Values, signed bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("timestamp", strconv.FormatInt(c.AdjustedNowMs(), 10))
		params.Set("recvWindow", strconv.Itoa(c.cfg.RecvWindowMs))
		params.Set("signature", c.sign(params.Encode()))
	}

	reqURL := c.base + path
	if enc := params.Encode(); enc != "" {
		reqURL += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s via %s", method, path, t.name)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if uErr := sonic.Unmarshal(data, &apiErr); uErr == nil && apiErr.Code != 0 {
			return &APIError{Code: apiErr.Code, Msg: apiErr.Msg, HTTPStatus: resp.StatusCode}
		}
		return &APIError{Msg: string(data), HTTPStatus: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w; body=%s", path, err, string(data))
	}
	return nil
}

func (c *Client) sign(query string) string {
	h := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil))
}

func backoff(attempt int) time.Duration {
	d := 300 * time.Millisecond
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
