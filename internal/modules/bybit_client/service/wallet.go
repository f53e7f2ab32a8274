package service

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/google/uuid"
)

// TransferFromReserve переводит сумму с резервного кошелька на торговый.
// Вызывается best-effort после закрытий по рынку, чтобы вернуть маржу.
func (c *Client) TransferFromReserve(ctx context.Context, coin string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("TransferFromReserve: amount <= 0")
	}

	params := map[string]string{
		"transfer_id":       uuid.NewString(),
		"coin":              coin,
		"amount":            formatSize(amount),
		"from_account_type": "INVESTMENT",
		"to_account_type":   "CONTRACT",
	}

	data, err := c.post(ctx, "TransferFromReserve", "/asset/v1/private/transfer", params)
	if err != nil {
		return err
	}

	var r struct {
		RetCode int    `json:"ret_code"`
		RetMsg  string `json:"ret_msg"`
	}
	if err := sonic.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("TransferFromReserve decode: %w; body=%s", err, string(data))
	}
	if r.RetCode != 0 {
		return &APIError{RetCode: r.RetCode, RetMsg: r.RetMsg, Call: "TransferFromReserve"}
	}

	return nil
}
