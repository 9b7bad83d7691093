package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := New(Config{
		APIKey:             "k",
		APISecret:          "s",
		BaseURL:            serverURL,
		ReadRetries:        2,
		RequestTimeout:     2 * time.Second,
		RateLimitPerSecond: 100,
		ClockSyncInterval:  time.Hour,
	})
	require.NoError(t, err)
	return c
}

func TestKindOf_APICodes(t *testing.T) {
	cases := []struct {
		err  error
		want ErrKind
	}{
		{&APIError{Code: -1021}, KindClockSkew},
		{&APIError{Code: -1007}, KindTimeout},
		{&APIError{Code: -4061}, KindParamMismatch},
		{&APIError{Code: -2019, HTTPStatus: 400}, KindRejected},
		{&APIError{HTTPStatus: 504}, KindTimeout},
		{context.DeadlineExceeded, KindTimeout},
		{nil, KindUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, KindOf(tc.err), "%v", tc.err)
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("PlaceOrder: %w", &APIError{Code: -1021, Msg: "recvWindow"})
	assert.Equal(t, KindClockSkew, KindOf(err))
	assert.False(t, Retryable(err))
	assert.True(t, Retryable(&APIError{HTTPStatus: 504}))
}

func TestClockSync_OffsetWithSafetyMargin(t *testing.T) {
	const skewMs = 5000
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/time", r.URL.Path)
		fmt.Fprintf(w, `{"serverTime":%d}`, time.Now().UnixMilli()+skewMs)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.cfg.ClockSafetyMs = 500
	require.NoError(t, c.SyncClock(context.Background()))

	// оффсет = рассинхрон минус страховочный зазор
	adj := c.AdjustedNowMs() - time.Now().UnixMilli()
	assert.InDelta(t, skewMs-500, adj, 200)
}

func TestClockSync_CachedWithinTTL(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprintf(w, `{"serverTime":%d}`, time.Now().UnixMilli())
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()
	require.NoError(t, c.ensureClock(ctx))
	require.NoError(t, c.ensureClock(ctx))
	require.NoError(t, c.ensureClock(ctx))
	assert.Equal(t, int32(1), calls.Load())
}

func TestReadOnly_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// шлюз не дождался бэкенда — ретраябельно
			w.WriteHeader(http.StatusGatewayTimeout)
			return
		}
		fmt.Fprint(w, `{"markPrice":"123.45"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	px, err := c.MarkPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 123.45, px, 1e-9)
	assert.Equal(t, int32(2), calls.Load())
}

func TestReadOnly_AuthoritativeRejectionNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.MarkPrice(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Equal(t, KindRejected, KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestReadOnly_FailoverPromotesAlternate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"markPrice":"50.5"}`)
	}))
	defer srv.Close()

	// прокси-транспорт смотрит в мёртвый адрес, прямой — в живой сервер
	c, err := New(Config{
		BaseURL:            srv.URL,
		ProxyURL:           "http://127.0.0.1:1",
		ReadRetries:        2,
		RequestTimeout:     time.Second,
		RateLimitPerSecond: 100,
	})
	require.NoError(t, err)
	require.Equal(t, "proxy", c.ActiveTransportName())

	px, mErr := c.MarkPrice(context.Background(), "BTCUSDT")
	require.NoError(t, mErr)
	assert.InDelta(t, 50.5, px, 1e-9)
	assert.Equal(t, "direct", c.ActiveTransportName())
}

func TestAuthoritative_ClockSkewResyncRetryOnce(t *testing.T) {
	var orderCalls atomic.Int32
	var timeCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/time":
			timeCalls.Add(1)
			fmt.Fprintf(w, `{"serverTime":%d}`, time.Now().UnixMilli())
		case "/fapi/v1/order":
			require.Equal(t, http.MethodPost, r.Method)
			assert.NotEmpty(t, r.URL.Query().Get("signature"))
			assert.Equal(t, "k", r.Header.Get("X-MBX-APIKEY"))
			if orderCalls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"code":-1021,"msg":"Timestamp outside recvWindow"}`)
				return
			}
			fmt.Fprint(w, `{"orderId":777,"status":"FILLED"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	id, err := c.PlaceOrder(context.Background(), OrderReq{
		Symbol:   "BTCUSDT",
		Side:     SideBuy,
		Type:     OrderTypeMarket,
		Quantity: 1.5,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(777), id)
	assert.Equal(t, int32(2), orderCalls.Load())
	// стартовый ensure + ресинк после -1021
	assert.GreaterOrEqual(t, timeCalls.Load(), int32(2))
}

func TestPlaceOrder_ParamWire(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fapi/v1/time" {
			fmt.Fprintf(w, `{"serverTime":%d}`, time.Now().UnixMilli())
			return
		}
		q := r.URL.Query()
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "SELL", q.Get("side"))
		assert.Equal(t, "STOP_MARKET", q.Get("type"))
		assert.Equal(t, "true", q.Get("closePosition"))
		assert.Empty(t, q.Get("quantity"))
		assert.Empty(t, q.Get("reduceOnly"))
		assert.Equal(t, "MARK_PRICE", q.Get("workingType"))
		assert.NotEmpty(t, q.Get("stopPrice"))
		fmt.Fprint(w, `{"orderId":1}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.PlaceOrder(context.Background(), OrderReq{
		Symbol:        "BTCUSDT",
		Side:          SideSell,
		Type:          OrderTypeStopMarket,
		StopPrice:     98,
		ClosePosition: true,
		ReduceOnly:    true,
	})
	require.NoError(t, err)
}

func TestPriceCache(t *testing.T) {
	c := newTestClient(t, "http://unused")
	assert.Zero(t, c.LastPrice("BTCUSDT"))
	c.SetPrice("BTCUSDT", 101.5)
	assert.InDelta(t, 101.5, c.LastPrice("BTCUSDT"), 1e-9)
}
