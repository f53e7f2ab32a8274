package service

import (
	"context"
	"fmt"

	"crypto_bot/internal/models"

	"github.com/bytedance/sonic"
)

type orderCreateResponse struct {
	RetCode int    `json:"ret_code"`
	RetMsg  string `json:"ret_msg"`
	Result  struct {
		OrderID string `json:"order_id"`
	} `json:"result"`
}

// AddBuyOrder пушит отложенную докупку лимиткой по цене ордера.
func (c *Client) AddBuyOrder(ctx context.Context, o *models.Order) (string, error) {
	side, err := posSideToOrderSide(o.PosSide)
	if err != nil {
		return "", fmt.Errorf("AddBuyOrder: %w", err)
	}
	if o.Volume <= 0 {
		return "", fmt.Errorf("AddBuyOrder: volume <= 0")
	}

	params := map[string]string{
		"symbol":        o.Symbol,
		"side":          side,
		"order_type":    "Limit",
		"qty":           formatSize(o.Volume),
		"price":         formatPrice(o.Price),
		"time_in_force": "GoodTillCancel",
	}

	data, err := c.post(ctx, "AddBuyOrder", "/v2/private/order/create", params)
	if err != nil {
		return "", err
	}

	var r orderCreateResponse
	if err := sonic.Unmarshal(data, &r); err != nil {
		return "", fmt.Errorf("AddBuyOrder decode: %w; body=%s", err, string(data))
	}
	if r.RetCode != 0 {
		return "", &APIError{RetCode: r.RetCode, RetMsg: r.RetMsg, Call: "AddBuyOrder"}
	}
	if r.Result.OrderID == "" {
		return "", fmt.Errorf("AddBuyOrder: empty order_id RAW=%s", string(data))
	}

	return r.Result.OrderID, nil
}

// MarketBuy — немедленная докупка по рынку.
func (c *Client) MarketBuy(ctx context.Context, symbol, posSide string, volume float64) (string, error) {
	side, err := posSideToOrderSide(posSide)
	if err != nil {
		return "", fmt.Errorf("MarketBuy: %w", err)
	}
	if volume <= 0 {
		return "", fmt.Errorf("MarketBuy: volume <= 0")
	}

	params := map[string]string{
		"symbol":        symbol,
		"side":          side,
		"order_type":    "Market",
		"qty":           formatSize(volume),
		"time_in_force": "GoodTillCancel",
	}

	data, err := c.post(ctx, "MarketBuy", "/v2/private/order/create", params)
	if err != nil {
		return "", err
	}

	var r orderCreateResponse
	if err := sonic.Unmarshal(data, &r); err != nil {
		return "", fmt.Errorf("MarketBuy decode: %w; body=%s", err, string(data))
	}
	if r.RetCode != 0 {
		return "", &APIError{RetCode: r.RetCode, RetMsg: r.RetMsg, Call: "MarketBuy"}
	}

	return r.Result.OrderID, nil
}

// CloseByMarket закрывает часть позиции по рынку (reduce-only).
func (c *Client) CloseByMarket(ctx context.Context, pos *models.Position, volume float64) error {
	side, err := posSideToCloseSide(pos.PosSide)
	if err != nil {
		return fmt.Errorf("CloseByMarket: %w", err)
	}
	if volume <= 0 {
		return fmt.Errorf("CloseByMarket: volume <= 0")
	}

	params := map[string]string{
		"symbol":        pos.Symbol,
		"side":          side,
		"order_type":    "Market",
		"qty":           formatSize(volume),
		"reduce_only":   "true",
		"time_in_force": "GoodTillCancel",
	}

	data, err := c.post(ctx, "CloseByMarket", "/v2/private/order/create", params)
	if err != nil {
		return err
	}

	var r orderCreateResponse
	if err := sonic.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("CloseByMarket decode: %w; body=%s", err, string(data))
	}
	if r.RetCode != 0 {
		return &APIError{RetCode: r.RetCode, RetMsg: r.RetMsg, Call: "CloseByMarket"}
	}

	return nil
}
