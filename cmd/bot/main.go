package main

import (
	"context"
	"log"

	"go.uber.org/fx"

	"crypto_bot/internal/modules/bootstrap"
	"crypto_bot/internal/modules/bybit_client"
	"crypto_bot/internal/modules/bybit_websocket"
	"crypto_bot/internal/modules/config"
	"crypto_bot/internal/modules/health"
	"crypto_bot/internal/modules/postgres"
	"crypto_bot/internal/pusher"
	"crypto_bot/internal/store"
	"crypto_bot/pkg/logger"
	"crypto_bot/pkg/tracing"
)

const serviceName = "crypto_bot"

func main() {
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}
	logger.SetServiceName(serviceName)
	tracing.SetServiceName(serviceName)

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) error {
			_, closeTracer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Jaeger.Host,
				Port: cfg.Jaeger.Port,
			})
			if err != nil {
				return err
			}
			lc.Append(fx.Hook{OnStop: func(context.Context) error {
				closeTracer()
				return nil
			}})
			return nil
		}),
		config.Module(),
		postgres.Module(),
		store.Module(),
		bybit_client.Module(),
		pusher.Module(),
		bybit_websocket.Module(),
		health.Module(),
		bootstrap.Module(),
	)
	if err := app.Start(context.Background()); err != nil {
		logger.Fatal("start: %v", err)
	}
	<-app.Done()
	if err := app.Stop(context.Background()); err != nil {
		logger.Fatal("stop: %v", err)
	}
}
