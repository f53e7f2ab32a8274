package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"crypto_bot/internal/models"

	"github.com/bytedance/sonic"
)

type positionDto struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"` // Buy/Sell
	Size          float64 `json:"size"`
	PositionValue float64 `json:"position_value"`
	EntryPrice    float64 `json:"entry_price"`
	LiqPrice      float64 `json:"liq_price"`
	UnrealisedPnl float64 `json:"unrealised_pnl"`
}

// GetPosition возвращает nil без ошибки, если позиции по паре нет
// (size == 0 у биржи означает закрытую позицию).
func (c *Client) GetPosition(ctx context.Context, symbol, posSide string) (*models.Position, error) {
	params := c.signedParams(map[string]string{"symbol": symbol})

	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+"/v2/private/position/list?"+q.Encode(),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("GetPosition new request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GetPosition do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("GetPosition http %d: %s", resp.StatusCode, string(data))
	}

	var r struct {
		RetCode int           `json:"ret_code"`
		RetMsg  string        `json:"ret_msg"`
		Result  []positionDto `json:"result"`
	}
	if err := sonic.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("GetPosition decode: %w; body=%s", err, string(data))
	}
	if r.RetCode != 0 {
		return nil, &APIError{RetCode: r.RetCode, RetMsg: r.RetMsg, Call: "GetPosition"}
	}

	wantSide, err := posSideToOrderSide(posSide)
	if err != nil {
		return nil, fmt.Errorf("GetPosition: %w", err)
	}

	for _, p := range r.Result {
		if !strings.EqualFold(p.Side, wantSide) || p.Size <= 0 {
			continue
		}
		return &models.Position{
			Symbol:           p.Symbol,
			PosSide:          posSide,
			EntryPrice:       p.EntryPrice,
			Size:             p.Size,
			LiquidationPrice: p.LiqPrice,
			UnrealisedPnl:    p.UnrealisedPnl,
			PositionValue:    p.PositionValue,
		}, nil
	}

	return nil, nil
}
