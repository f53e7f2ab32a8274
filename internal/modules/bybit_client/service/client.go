package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"crypto_bot/internal/modules/config"

	"github.com/bytedance/sonic"
)

type Client struct {
	http      *http.Client
	baseURL   string
	apiKey    string
	apiSecret string
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		baseURL:   cfg.Bybit.BaseURL,
		apiKey:    cfg.Bybit.APIKey,
		apiSecret: cfg.Bybit.APISecret,
	}
}

// sign — HMAC-SHA256 по отсортированной строке key=value&...
// (подпись ByBit v2, считается до маршалинга тела).
func (c *Client) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
	}

	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(sb.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// signedParams дополняет параметры запроса api_key/timestamp/sign.
func (c *Client) signedParams(params map[string]string) map[string]string {
	params["api_key"] = c.apiKey
	params["timestamp"] = strconv.FormatInt(time.Now().UnixMilli(), 10)
	params["sign"] = c.sign(params)
	return params
}

func formatSize(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// post подписывает параметры, шлёт JSON и возвращает сырое тело ответа.
func (c *Client) post(ctx context.Context, call, path string, params map[string]string) ([]byte, error) {
	payload, err := sonic.Marshal(c.signedParams(params))
	if err != nil {
		return nil, fmt.Errorf("%s marshal: %w", call, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s new request: %w", call, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s do: %w", call, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%s http %d: %s", call, resp.StatusCode, string(data))
	}
	return data, nil
}

// posSideToOrderSide: сторона ордера, увеличивающего позицию.
func posSideToOrderSide(posSide string) (string, error) {
	switch strings.ToLower(posSide) {
	case "long":
		return "Buy", nil
	case "short":
		return "Sell", nil
	default:
		return "", fmt.Errorf("unsupported posSide=%q", posSide)
	}
}

// posSideToCloseSide: сторона ордера, закрывающего позицию.
func posSideToCloseSide(posSide string) (string, error) {
	side, err := posSideToOrderSide(posSide)
	if err != nil {
		return "", err
	}
	if side == "Buy" {
		return "Sell", nil
	}
	return "Buy", nil
}
