package service

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"

	"signal_trader/internal/models"
)

// Balance возвращает USDT-кошелёк фьючерсного аккаунта.
func (c *Client) Balance(ctx context.Context) (models.Balance, error) {
	var resp []struct {
		Asset            string `json:"asset"`
		Balance          string `json:"balance"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := c.readOnly(ctx, "/fapi/v2/balance", nil, true, &resp); err != nil {
		return models.Balance{}, fmt.Errorf("Balance: %w", err)
	}
	for _, b := range resp {
		if b.Asset != "USDT" {
			continue
		}
		total, _ := strconv.ParseFloat(b.Balance, 64)
		avail, _ := strconv.ParseFloat(b.AvailableBalance, 64)
		return models.Balance{Total: total, Available: avail}, nil
	}
	return models.Balance{}, fmt.Errorf("Balance: no USDT asset in response")
}

// Positions вытаскивает открытые позиции и мапит их в упрощённую структуру.
// Локальные trailing-поля здесь не заполняются — это забота движка.
func (c *Client) Positions(ctx context.Context) ([]models.Position, error) {
	var resp []struct {
		Symbol           string `json:"symbol"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		MarkPrice        string `json:"markPrice"`
		LiquidationPrice string `json:"liquidationPrice"`
		Leverage         string `json:"leverage"`
		UnRealizedProfit string `json:"unRealizedProfit"`
	}
	if err := c.readOnly(ctx, "/fapi/v2/positionRisk", nil, true, &resp); err != nil {
		return nil, fmt.Errorf("Positions: %w", err)
	}

	res := make([]models.Position, 0, len(resp))
	for _, d := range resp {
		amt, _ := strconv.ParseFloat(d.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(d.EntryPrice, 64)
		mark, _ := strconv.ParseFloat(d.MarkPrice, 64)
		liq, _ := strconv.ParseFloat(d.LiquidationPrice, 64)
		upl, _ := strconv.ParseFloat(d.UnRealizedProfit, 64)
		lev, _ := strconv.Atoi(d.Leverage)

		res = append(res, models.Position{
			Symbol:           d.Symbol,
			Quantity:         amt,
			EntryPrice:       entry,
			MarkPrice:        mark,
			LiquidationPrice: liq,
			Leverage:         lev,
			UnrealizedPnl:    upl,
		})
	}
	return res, nil
}

// MarkPrice — REST-фоллбек; свежую цену обычно отдаёт WS-кэш (LastPrice).
func (c *Client) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	var resp struct {
		MarkPrice string `json:"markPrice"`
	}
	if err := c.readOnly(ctx, "/fapi/v1/premiumIndex", params, false, &resp); err != nil {
		return 0, fmt.Errorf("MarkPrice: %w", err)
	}
	px, err := strconv.ParseFloat(resp.MarkPrice, 64)
	if err != nil || px <= 0 {
		return 0, fmt.Errorf("MarkPrice: bad price %q", resp.MarkPrice)
	}
	return px, nil
}

// TopMovers — topN символов по абсолютному суточному ходу цены. Используется
// как crowd-лист: раз символ уже разогнан, шортить его поздно.
func (c *Client) TopMovers(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	var tickers []struct {
		Symbol             string `json:"symbol"`
		PriceChangePercent string `json:"priceChangePercent"`
		LastPrice          string `json:"lastPrice"`
	}
	if err := c.readOnly(ctx, "/fapi/v1/ticker/24hr", nil, false, &tickers); err != nil {
		return nil, fmt.Errorf("TopMovers: %w", err)
	}

	type rec struct {
		sym   string
		score float64
	}
	arr := make([]rec, 0, len(tickers))
	for _, t := range tickers {
		last, _ := strconv.ParseFloat(t.LastPrice, 64)
		if last <= 0 {
			continue
		}
		chg, _ := strconv.ParseFloat(t.PriceChangePercent, 64)
		arr = append(arr, rec{sym: t.Symbol, score: math.Abs(chg)})
	}
	sort.Slice(arr, func(i, j int) bool { return arr[i].score > arr[j].score })
	if n > len(arr) {
		n = len(arr)
	}
	res := make([]string, 0, n)
	for i := 0; i < n; i++ {
		res = append(res, arr[i].sym)
	}
	return res, nil
}

// DualSidePosition — включён ли hedge mode на аккаунте. Пробуем один раз на
// старте, дальше движок адаптируется по ошибке -4061.
func (c *Client) DualSidePosition(ctx context.Context) (bool, error) {
	var resp struct {
		DualSidePosition bool `json:"dualSidePosition"`
	}
	if err := c.readOnly(ctx, "/fapi/v1/positionSide/dual", nil, true, &resp); err != nil {
		return false, fmt.Errorf("DualSidePosition: %w", err)
	}
	return resp.DualSidePosition, nil
}
