package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"crypto_bot/internal/models"

	"github.com/bytedance/sonic"
)

func (c *Client) Ticker(ctx context.Context, symbol string) (*models.Ticker, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+"/v2/public/tickers?symbol="+url.QueryEscape(symbol),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("Ticker new request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Ticker do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("Ticker http %d: %s", resp.StatusCode, string(data))
	}

	var r struct {
		RetCode int    `json:"ret_code"`
		RetMsg  string `json:"ret_msg"`
		Result  []struct {
			Symbol     string `json:"symbol"`
			IndexPrice string `json:"index_price"`
			MarkPrice  string `json:"mark_price"`
			LastPrice  string `json:"last_price"`
		} `json:"result"`
	}
	if err := sonic.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("Ticker decode: %w; body=%s", err, string(data))
	}
	if r.RetCode != 0 {
		return nil, &APIError{RetCode: r.RetCode, RetMsg: r.RetMsg, Call: "Ticker"}
	}
	if len(r.Result) == 0 {
		return nil, fmt.Errorf("Ticker: empty result for %s", symbol)
	}

	t := r.Result[0]
	index, err := strconv.ParseFloat(t.IndexPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("Ticker parse index_price %q: %w", t.IndexPrice, err)
	}
	mark, err := strconv.ParseFloat(t.MarkPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("Ticker parse mark_price %q: %w", t.MarkPrice, err)
	}
	last, err := strconv.ParseFloat(t.LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("Ticker parse last_price %q: %w", t.LastPrice, err)
	}

	return &models.Ticker{
		Symbol:     t.Symbol,
		IndexPrice: index,
		MarkPrice:  mark,
		LastPrice:  last,
	}, nil
}
