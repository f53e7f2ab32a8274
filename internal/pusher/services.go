package pusher

import (
	"context"

	"crypto_bot/internal/models"
	bybit "crypto_bot/internal/modules/bybit_client/service"
)

// Exchange — всё, что движку нужно от биржи. Реализуется bybit-клиентом,
// в тестах — фейком.
type Exchange interface {
	Ticker(ctx context.Context, symbol string) (*models.Ticker, error)
	GetPosition(ctx context.Context, symbol, posSide string) (*models.Position, error)

	AddConditionalStop(ctx context.Context, o *models.Order, triggerBy string) (string, error)
	AddBuyOrder(ctx context.Context, o *models.Order) (string, error)
	MarketBuy(ctx context.Context, symbol, posSide string, volume float64) (string, error)
	CloseByMarket(ctx context.Context, pos *models.Position, volume float64) error

	ActiveConditionalOrders(ctx context.Context, symbol string) ([]bybit.ConditionalOrder, error)
	CancelConditional(ctx context.Context, symbol, stopOrderID string) error

	TransferFromReserve(ctx context.Context, coin string, amount float64) error
}

// OrderStore — хранилище отложенных ордеров (единственный источник правды).
type OrderStore interface {
	FindActiveStops(ctx context.Context, symbol, posSide string) ([]*models.Order, error)
	FindActiveBuys(ctx context.Context, symbol, posSide string) ([]*models.Order, error)
	FindActiveBuysInBand(ctx context.Context, symbol, posSide string, from, to float64) ([]*models.Order, error)
	FindNearestStop(ctx context.Context, symbol, posSide string, ref float64, below bool) (*models.Order, error)
	PushedExchangeIDs(ctx context.Context, symbol string) (map[string]struct{}, error)
	Save(ctx context.Context, o *models.Order) error
	Remove(ctx context.Context, o *models.Order) error
}

// OrderFactory реализует заготовки противоположных ордеров.
type OrderFactory interface {
	CreateStop(ctx context.Context, symbol, posSide string, spec models.OppositeSpec, flags models.OrderFlags) (*models.Order, error)
	CreateBuys(ctx context.Context, symbol, posSide string, specs []models.OppositeSpec) ([]*models.Order, error)
}

// HedgeService — сведения о хедж-паре и побочные действия по ней.
type HedgeService interface {
	IsSupportPosition(pos *models.Position) bool
	NeedIncreaseSupport(main, support *models.Position) bool
	NeedKeepSupportSize(main, support *models.Position) bool
	CreateStopIncrementalGridBySupport(ctx context.Context, support *models.Position) error
}

// CommandBus — исходящие команды движка.
type CommandBus interface {
	Publish(ctx context.Context, msg models.PushMessage)
}

// Notifier — сообщения оператору (телеграм либо stdout).
type Notifier interface {
	Sendf(format string, args ...any)
}
