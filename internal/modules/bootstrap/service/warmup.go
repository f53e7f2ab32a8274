package service

import (
	"context"

	"crypto_bot/internal/models"
	bybitws "crypto_bot/internal/modules/bybit_websocket/service"
	healthsvc "crypto_bot/internal/modules/health/service"
	"crypto_bot/internal/notify"
	"crypto_bot/internal/pusher"
	"crypto_bot/internal/store"
	"crypto_bot/pkg/logger"
)

// Warmuper поднимает движок после рестарта: собирает символы с живыми
// отложенными ордерами, прогоняет по ним полный пуш (за время простоя цена
// могла уйти) и только потом подключает стример и открывает readiness.
type Warmuper struct {
	orders *store.Orders
	ws     *bybitws.Client
	bus    pusher.CommandBus
	state  *healthsvc.State
	n      notify.Notifier
}

func NewWarmuper(orders *store.Orders, ws *bybitws.Client, bus pusher.CommandBus,
	state *healthsvc.State, n notify.Notifier) *Warmuper {
	return &Warmuper{orders: orders, ws: ws, bus: bus, state: state, n: n}
}

func (w *Warmuper) Warmup(ctx context.Context) error {
	symbols, err := w.orders.ActiveSymbols(ctx)
	if err != nil {
		return err
	}

	for _, sym := range symbols {
		for _, side := range []string{models.PosSideLong, models.PosSideShort} {
			w.bus.Publish(ctx, models.PushMessage{Command: models.CmdPushStops, Symbol: sym, PosSide: side})
			w.bus.Publish(ctx, models.PushMessage{Command: models.CmdPushBuyOrders, Symbol: sym, PosSide: side})
		}
	}

	w.ws.Start(ctx, symbols)
	w.state.SetReady(true)

	logger.Info("warmup done: %d symbols", len(symbols))
	w.n.Sendf("engine up: %d symbols under push", len(symbols))
	return nil
}
