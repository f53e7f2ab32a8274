package pusher

import (
	"go.uber.org/fx"

	"crypto_bot/internal/modules/bybit_client/service"
	"crypto_bot/internal/notify"
	"crypto_bot/internal/store"
)

func Module() fx.Option {
	return fx.Module("pusher",
		fx.Provide(
			NewDispatcher,
			NewSnapshotCache,
			NewSelector,
			NewBuyPusher,
			NewStopPusher,
			NewReleaseHandler,

			func(f *store.Factory) OrderFactory { return f },
			func(f *store.Factory) *Hedge { return NewHedge(f) },
			func(c *service.Client) Exchange { return c },
			func(o *store.Orders) OrderStore { return o },
			func(h *Hedge) HedgeService { return h },
			func(d *Dispatcher) CommandBus { return d },
			func(n notify.Notifier) Notifier { return n },
			notify.New,
		),
		fx.Invoke(func(d *Dispatcher, buy *BuyPusher, stop *StopPusher, release *ReleaseHandler) {
			d.Register(buy, stop, release)
		}),
	)
}
