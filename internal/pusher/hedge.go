package pusher

import (
	"context"

	"crypto_bot/internal/models"
	"crypto_bot/pkg/logger"
)

const (
	// support-нога держится не меньше половины главной
	supportSizeRatio = 0.5

	// сетка роспуска support: три ступени от входа
	supportGridSteps      = 3
	supportGridStepOffset = 10.0
)

// Hedge — правила хедж-пары main/support. Support-нога распознаётся по
// отсутствию цены ликвидации: кросс-маржа её не ликвидирует.
type Hedge struct {
	factory OrderFactory
}

func NewHedge(factory OrderFactory) *Hedge {
	return &Hedge{factory: factory}
}

func (h *Hedge) IsSupportPosition(pos *models.Position) bool {
	return !pos.CanLiquidate()
}

// NeedIncreaseSupport — support отстала от главной ноги.
func (h *Hedge) NeedIncreaseSupport(main, support *models.Position) bool {
	return support.Size < main.Size*supportSizeRatio
}

// NeedKeepSupportSize — support ещё нужна в текущем размере.
func (h *Hedge) NeedKeepSupportSize(main, support *models.Position) bool {
	return support.Size <= main.Size*supportSizeRatio
}

// CreateStopIncrementalGridBySupport распускает support-ногу ступенчатой
// сеткой стопов от её входа. Перезаходы сетке не нужны: это сервисные стопы.
func (h *Hedge) CreateStopIncrementalGridBySupport(ctx context.Context, support *models.Position) error {
	dir := 1.0
	if support.PosSide == models.PosSideLong {
		dir = -1.0
	}
	volume := support.Size / supportGridSteps
	for i := 1; i <= supportGridSteps; i++ {
		spec := models.OppositeSpec{
			Price:  support.EntryPrice + dir*supportGridStepOffset*float64(i),
			Volume: volume,
		}
		o, err := h.factory.CreateStop(ctx, support.Symbol, support.PosSide, spec,
			models.OrderFlags{WithoutOpposite: true})
		if err != nil {
			return err
		}
		logger.Info("[%s %s] support grid stop %s: price=%.2f volume=%.6f",
			support.Symbol, support.PosSide, o.ID, o.Price, o.Volume)
	}
	return nil
}
