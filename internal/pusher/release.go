package pusher

import (
	"context"

	"crypto_bot/pkg/logger"
)

// ReleaseHandler снимает с биржи условные ордера, которых наша база уже
// не знает (осиротевшие после рестарта или ручных действий). Вызывается,
// когда пуш упёрся в лимит активных условных ордеров.
type ReleaseHandler struct {
	ex    Exchange
	store OrderStore
}

func NewReleaseHandler(ex Exchange, store OrderStore) *ReleaseHandler {
	return &ReleaseHandler{ex: ex, store: store}
}

func (r *ReleaseHandler) Release(ctx context.Context, symbol string) error {
	active, err := r.ex.ActiveConditionalOrders(ctx, symbol)
	if err != nil {
		return err
	}
	known, err := r.store.PushedExchangeIDs(ctx, symbol)
	if err != nil {
		return err
	}

	freed := 0
	for _, ao := range active {
		if _, ok := known[ao.StopOrderID]; ok {
			continue
		}
		if err := r.ex.CancelConditional(ctx, symbol, ao.StopOrderID); err != nil {
			logger.Error("[%s] cancel orphan conditional %s: %v", symbol, ao.StopOrderID, err)
			continue
		}
		freed++
	}
	logger.Info("[%s] released %d orphan conditional orders of %d active", symbol, freed, len(active))
	return nil
}
