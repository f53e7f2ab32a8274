package bybit_client

import (
	"go.uber.org/fx"

	"crypto_bot/internal/modules/bybit_client/service"
)

func Module() fx.Option {
	return fx.Module("bybit_client",
		fx.Provide(
			service.NewClient,
		),
	)
}
