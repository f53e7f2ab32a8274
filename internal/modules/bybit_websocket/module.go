package bybit_websocket

import (
	"go.uber.org/fx"

	"crypto_bot/internal/modules/bybit_websocket/service"
)

func Module() fx.Option {
	return fx.Module("bybit_websocket",
		fx.Provide(
			service.NewClient,
		),
	)
}
