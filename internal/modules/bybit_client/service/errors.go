package service

import (
	"fmt"
	"strings"
)

// Коды ByBit, на которые завязан классификатор отказов.
const (
	retCodeRateLimit           = 10006
	retCodeInsufficientBalance = 30031
	retCodeTooManyConditional  = 30013
	retCodeExpectedRising      = 30041
	retCodeExpectedFalling     = 30042
)

// APIError — отказ биржи с кодом. Транспортные ошибки (сеть, http != 2xx)
// сюда не попадают и классифицируются как unrecoverable.
type APIError struct {
	RetCode int
	RetMsg  string
	Call    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: bybit ret_code=%d: %s", e.Call, e.RetCode, e.RetMsg)
}

// RateLimited — упёрлись в лимит запросов.
func (e *APIError) RateLimited() bool {
	return e.RetCode == retCodeRateLimit || strings.Contains(strings.ToLower(e.RetMsg), "too many visits")
}

// CapacityExceeded — достигнут максимум активных условных ордеров.
func (e *APIError) CapacityExceeded() bool {
	return e.RetCode == retCodeTooManyConditional ||
		strings.Contains(strings.ToLower(e.RetMsg), "max active conditional orders")
}

// PriceRace — тикер пересёк триггер между решением и отправкой,
// биржа отвергает условный ордер с "expect price rising/falling".
func (e *APIError) PriceRace() bool {
	if e.RetCode == retCodeExpectedRising || e.RetCode == retCodeExpectedFalling {
		return true
	}
	msg := strings.ToLower(e.RetMsg)
	return strings.Contains(msg, "expect price rising") || strings.Contains(msg, "expect price falling")
}

// NotAffordable — не хватает средств на покупку.
func (e *APIError) NotAffordable() bool {
	return e.RetCode == retCodeInsufficientBalance ||
		strings.Contains(strings.ToLower(e.RetMsg), "insufficient available balance")
}
