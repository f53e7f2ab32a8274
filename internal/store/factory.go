package store

import (
	"context"
	"fmt"

	"crypto_bot/internal/models"

	"github.com/google/uuid"
)

// Factory реализует заготовки противоположных ордеров в строки хранилища.
type Factory struct {
	orders *Orders
}

func NewFactory(orders *Orders) *Factory {
	return &Factory{orders: orders}
}

// CreateStop — защитный стоп после исполненной докупки.
func (f *Factory) CreateStop(ctx context.Context, symbol, posSide string, spec models.OppositeSpec, flags models.OrderFlags) (*models.Order, error) {
	o := &models.Order{
		ID:           uuid.NewString(),
		Kind:         models.OrderKindStop,
		Symbol:       symbol,
		PosSide:      posSide,
		Price:        spec.Price,
		Volume:       spec.Volume,
		TriggerDelta: spec.TriggerDelta,
		Flags:        flags,
	}
	if spec.ActivationOrderID != "" {
		o.SetCtxValue(models.CtxActivationOrderID, spec.ActivationOrderID)
	}

	if err := f.orders.Save(ctx, o); err != nil {
		return nil, fmt.Errorf("factory.CreateStop: %w", err)
	}
	return o, nil
}

// CreateBuys — докупки-перезаходы после исполненного стопа. Вся лесенка
// получает общий batch_id и зависимость от exchange id исходного стопа:
// до его реального исполнения на бирже эти ордера не считаются живыми.
func (f *Factory) CreateBuys(ctx context.Context, symbol, posSide string, specs []models.OppositeSpec) ([]*models.Order, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	batchID := uuid.NewString()
	out := make([]*models.Order, 0, len(specs))
	for _, spec := range specs {
		o := &models.Order{
			ID:           uuid.NewString(),
			Kind:         models.OrderKindBuy,
			Symbol:       symbol,
			PosSide:      posSide,
			Price:        spec.Price,
			Volume:       spec.Volume,
			TriggerDelta: spec.TriggerDelta,
			Flags:        models.OrderFlags{WithOpposite: true},
		}
		if spec.ActivationOrderID != "" {
			o.SetCtxValue(models.CtxActivationOrderID, spec.ActivationOrderID)
		}
		if len(specs) > 1 {
			o.SetCtxValue(models.CtxBatchID, batchID)
		}

		if err := f.orders.Save(ctx, o); err != nil {
			return out, fmt.Errorf("factory.CreateBuys: %w", err)
		}
		out = append(out, o)
	}
	return out, nil
}
