package bootstrap

import (
	"context"

	"go.uber.org/fx"

	bootstrap "crypto_bot/internal/modules/bootstrap/service"
	"crypto_bot/pkg/logger"
)

func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			bootstrap.NewWarmuper,
		),
		fx.Invoke(func(lc fx.Lifecycle, appCtx context.Context, wu *bootstrap.Warmuper) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					go func() {
						if err := wu.Warmup(appCtx); err != nil {
							logger.Error("warmup: %v", err)
						}
					}()
					return nil
				},
			})
		}),
	)
}
