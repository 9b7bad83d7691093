package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"signal_trader/internal/helper"
	"signal_trader/internal/models"

	"github.com/pkg/errors"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeMarket     = "MARKET"
	OrderTypeStopMarket = "STOP_MARKET"
	OrderTypeTakeProfit = "TAKE_PROFIT_MARKET"
)

type orderResp struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
}

// OrderReq — параметры ордера. PosSide пустой в однонаправленном режиме и
// LONG/SHORT в hedge mode.
type OrderReq struct {
	Symbol        string
	Side          string
	Type          string
	Quantity      float64
	StopPrice     float64
	ClientOrderID string
	ReduceOnly    bool
	ClosePosition bool
	PosSide       string
}

// PlaceOrder — единая точка постановки ордеров. Авторитетный вызов: без
// слепых ретраев и без смены транспорта.
func (c *Client) PlaceOrder(ctx context.Context, req OrderReq) (int64, error) {
	if req.Symbol == "" || req.Side == "" || req.Type == "" {
		return 0, fmt.Errorf("PlaceOrder: symbol/side/type required")
	}
	if !req.ClosePosition && req.Quantity <= 0 {
		return 0, fmt.Errorf("PlaceOrder: quantity <= 0")
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", strings.ToUpper(req.Side))
	params.Set("type", req.Type)
	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}
	if req.ClosePosition {
		// closePosition закрывает всё целиком вне зависимости от округления
		params.Set("closePosition", "true")
	} else {
		params.Set("quantity", helper.FormatQty(req.Quantity))
	}
	if req.StopPrice > 0 {
		params.Set("stopPrice", helper.FormatPrice(req.StopPrice))
		params.Set("workingType", "MARK_PRICE")
	}
	if req.PosSide != "" {
		params.Set("positionSide", req.PosSide)
	} else if req.ReduceOnly && !req.ClosePosition {
		// reduceOnly запрещён вместе с positionSide, биржа ругается
		params.Set("reduceOnly", "true")
	}

	var resp orderResp
	if err := c.authoritative(ctx, http.MethodPost, "/fapi/v1/order", params, &resp); err != nil {
		return 0, errors.Wrap(err, "PlaceOrder")
	}
	return resp.OrderID, nil
}

// OpenOrders — открытые ордера по символу (read-путь, можно ретраить).
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp []struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		Type          string `json:"type"`
		StopPrice     string `json:"stopPrice"`
		OrigQty       string `json:"origQty"`
		ReduceOnly    bool   `json:"reduceOnly"`
		ClosePosition bool   `json:"closePosition"`
	}
	if err := c.readOnly(ctx, "/fapi/v1/openOrders", params, true, &resp); err != nil {
		return nil, fmt.Errorf("OpenOrders: %w", err)
	}

	res := make([]models.Order, 0, len(resp))
	for _, o := range resp {
		stop, _ := strconv.ParseFloat(o.StopPrice, 64)
		qty, _ := strconv.ParseFloat(o.OrigQty, 64)
		res = append(res, models.Order{
			OrderID:       o.OrderID,
			ClientOrderID: o.ClientOrderID,
			Symbol:        o.Symbol,
			Side:          o.Side,
			Type:          o.Type,
			StopPrice:     stop,
			Quantity:      qty,
			ReduceOnly:    o.ReduceOnly,
			ClosePosition: o.ClosePosition,
		})
	}
	return res, nil
}

// CancelAllOrders снимает все открытые ордера по символу.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	if err := c.authoritative(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", params, nil); err != nil {
		return errors.Wrap(err, "CancelAllOrders")
	}
	return nil
}

// SetLeverage выставляет плечо по символу.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))
	if err := c.authoritative(ctx, http.MethodPost, "/fapi/v1/leverage", params, nil); err != nil {
		return errors.Wrap(err, "SetLeverage")
	}
	return nil
}

// SetMarginType переключает тип маржи. "Уже так и стоит" ошибкой не считаем.
func (c *Client) SetMarginType(ctx context.Context, symbol, marginType string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("marginType", marginType)
	err := c.authoritative(ctx, http.MethodPost, "/fapi/v1/marginType", params, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeNoNeedMarginType {
			return nil
		}
		return errors.Wrap(err, "SetMarginType")
	}
	return nil
}
