package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"crypto_bot/internal/models"

	"github.com/bytedance/sonic"
)

// Значения trigger_by условного ордера.
const (
	TriggerByIndexPrice = "IndexPrice"
	TriggerByMarkPrice  = "MarkPrice"
	TriggerByLastPrice  = "LastPrice"
)

type ConditionalOrder struct {
	StopOrderID string  `json:"stop_order_id"`
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Price       float64 `json:"price"`
	Qty         float64 `json:"qty"`
	StopPx      string  `json:"stop_px"`
	Status      string  `json:"stop_order_status"`
}

// AddConditionalStop выставляет защитный условный стоп по отложенному ордеру.
// triggerBy выбирает базу триггера: около ликвидации движок биржи идёт по
// mark price, и наш стоп должен идти по той же базе.
func (c *Client) AddConditionalStop(ctx context.Context, o *models.Order, triggerBy string) (string, error) {
	side, err := posSideToCloseSide(o.PosSide)
	if err != nil {
		return "", fmt.Errorf("AddConditionalStop: %w", err)
	}
	if o.Volume <= 0 {
		return "", fmt.Errorf("AddConditionalStop: volume <= 0")
	}

	params := map[string]string{
		"symbol":       o.Symbol,
		"side":         side,
		"order_type":   "Market",
		"qty":          formatSize(o.Volume),
		"base_price":   formatPrice(o.Price),
		"stop_px":      formatPrice(o.Price),
		"trigger_by":   triggerBy,
		"close_on_trigger": "true",
		"time_in_force":    "GoodTillCancel",
	}

	data, err := c.post(ctx, "AddConditionalStop", "/v2/private/stop-order/create", params)
	if err != nil {
		return "", err
	}

	var r struct {
		RetCode int    `json:"ret_code"`
		RetMsg  string `json:"ret_msg"`
		Result  struct {
			StopOrderID string `json:"stop_order_id"`
		} `json:"result"`
	}
	if err := sonic.Unmarshal(data, &r); err != nil {
		return "", fmt.Errorf("AddConditionalStop decode: %w; body=%s", err, string(data))
	}
	if r.RetCode != 0 {
		return "", &APIError{RetCode: r.RetCode, RetMsg: r.RetMsg, Call: "AddConditionalStop"}
	}
	if r.Result.StopOrderID == "" {
		return "", fmt.Errorf("AddConditionalStop: empty stop_order_id RAW=%s", string(data))
	}

	return r.Result.StopOrderID, nil
}

func (c *Client) CancelConditional(ctx context.Context, symbol, stopOrderID string) error {
	params := map[string]string{
		"symbol":        symbol,
		"stop_order_id": stopOrderID,
	}

	data, err := c.post(ctx, "CancelConditional", "/v2/private/stop-order/cancel", params)
	if err != nil {
		return err
	}

	var r struct {
		RetCode int    `json:"ret_code"`
		RetMsg  string `json:"ret_msg"`
	}
	if err := sonic.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("CancelConditional decode: %w; body=%s", err, string(data))
	}
	if r.RetCode != 0 {
		return &APIError{RetCode: r.RetCode, RetMsg: r.RetMsg, Call: "CancelConditional"}
	}
	return nil
}

func (c *Client) ActiveConditionalOrders(ctx context.Context, symbol string) ([]ConditionalOrder, error) {
	params := c.signedParams(map[string]string{
		"symbol":            symbol,
		"stop_order_status": "Untriggered",
	})

	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+"/v2/private/stop-order/list?"+q.Encode(),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("ActiveConditionalOrders new request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ActiveConditionalOrders do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("ActiveConditionalOrders http %d: %s", resp.StatusCode, string(data))
	}

	var r struct {
		RetCode int    `json:"ret_code"`
		RetMsg  string `json:"ret_msg"`
		Result  struct {
			Data []ConditionalOrder `json:"data"`
		} `json:"result"`
	}
	if err := sonic.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("ActiveConditionalOrders decode: %w; body=%s", err, string(data))
	}
	if r.RetCode != 0 {
		return nil, &APIError{RetCode: r.RetCode, RetMsg: r.RetMsg, Call: "ActiveConditionalOrders"}
	}

	return r.Result.Data, nil
}
