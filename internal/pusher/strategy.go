package pusher

import (
	"math"

	"crypto_bot/internal/models"
)

const (
	// финальный триггер отступает от якоря на единицу,
	// чтобы свежий стоп не сработал немедленно
	anchorNudge = 1.0

	shortStopDistance     = 10.0
	anchorVolumeThreshold = 0.01
	// позиция "только что в минусе": вход ещё рядом с индексом
	freshLossBand = 25.0

	// дистанция дефолтного стопа растёт с объёмом филла
	defaultStopDistanceBase      = 25.0
	defaultStopDistancePerVolume = 1000.0

	// порог, с которого перезаход после стопа режется лесенкой
	ladderSplitVolume = 0.006

	// базовые дистанции перезахода: regular для обычных стопов,
	// addition для стопов, добавленных обработчиком ликвидации
	oppositeRegularLong   = 50.0
	oppositeRegularShort  = 60.0
	oppositeAdditionLong  = 100.0
	oppositeAdditionShort = 120.0
)

// HedgeContext — окружение для выбора якоря: тикер, противоположная нога
// и ближайшие существующие стопы с защитной стороны.
type HedgeContext struct {
	Ticker   *models.Ticker
	Opposite *models.Position
	// ближайший стоп с защитной стороны от входа позиции
	NearestStopToEntry *models.Order
	// ближайший стоп с защитной стороны от индекса
	NearestStopToIndex *models.Order
}

// AnchorResult — якорная цена и дополнительная дистанция от неё.
type AnchorResult struct {
	Anchor   float64
	Distance float64
}

type anchorStrategy struct {
	name         string
	selectAnchor func(o *models.Order, pos *models.Position, h HedgeContext) (AnchorResult, bool)
}

// Selector синтезирует противоположный ордер для исполненного.
// Матрица стратегий — явный список по приоритету, а не клубок условий:
// каждая стратегия тестируется отдельно.
type Selector struct {
	strategies []anchorStrategy
}

func NewSelector() *Selector {
	return &Selector{
		strategies: []anchorStrategy{
			{name: "short_stop", selectAnchor: shortStopAnchor},
			{name: "under_position", selectAnchor: underPositionAnchor},
			{name: "after_first_stop_under_position", selectAnchor: afterFirstStopUnderPositionAnchor},
			{name: "after_first_position_stop", selectAnchor: afterFirstPositionStopAnchor},
		},
	}
}

func shortStopAnchor(o *models.Order, pos *models.Position, h HedgeContext) (AnchorResult, bool) {
	if o.Flags.WithShortStop {
		return AnchorResult{Anchor: o.Price, Distance: shortStopDistance}, true
	}
	// позиция только ушла в минус — стоп держим коротким
	if pos.UnrealisedPnl < 0 && math.Abs(h.Ticker.IndexPrice-pos.EntryPrice) <= freshLossBand {
		return AnchorResult{Anchor: o.Price, Distance: shortStopDistance}, true
	}
	return AnchorResult{}, false
}

func underPositionAnchor(_ *models.Order, pos *models.Position, _ HedgeContext) (AnchorResult, bool) {
	if pos.Size <= 0 || pos.EntryPrice <= 0 {
		return AnchorResult{}, false
	}
	return AnchorResult{Anchor: pos.EntryPrice}, true
}

func afterFirstStopUnderPositionAnchor(o *models.Order, _ *models.Position, h HedgeContext) (AnchorResult, bool) {
	if o.Volume < anchorVolumeThreshold || h.NearestStopToEntry == nil {
		return AnchorResult{}, false
	}
	return AnchorResult{Anchor: h.NearestStopToEntry.Price}, true
}

func afterFirstPositionStopAnchor(_ *models.Order, _ *models.Position, h HedgeContext) (AnchorResult, bool) {
	if h.NearestStopToIndex == nil {
		return AnchorResult{}, false
	}
	return AnchorResult{Anchor: h.NearestStopToIndex.Price}, true
}

// protectiveStopPrice — цена стопа с защитной стороны позиции.
func protectiveStopPrice(posSide string, r AnchorResult) float64 {
	if posSide == models.PosSideLong {
		return r.Anchor - r.Distance - anchorNudge
	}
	return r.Anchor + r.Distance + anchorNudge
}

// stopPriceCrossed — индекс уже за ценой стопа.
func stopPriceCrossed(posSide string, index, price float64) bool {
	if posSide == models.PosSideLong {
		return index <= price
	}
	return index >= price
}

// OppositeStop выбирает стратегию для защитного стопа после исполненной
// докупки. Возвращает заготовку и имя сработавшей стратегии. Если якорь
// уже пересечён индексом — откатываемся на дефолтную дистанцию.
func (s *Selector) OppositeStop(o *models.Order, pos *models.Position, h HedgeContext) (models.OppositeSpec, string) {
	for _, st := range s.strategies {
		r, ok := st.selectAnchor(o, pos, h)
		if !ok {
			continue
		}
		price := protectiveStopPrice(pos.PosSide, r)
		if stopPriceCrossed(pos.PosSide, h.Ticker.IndexPrice, price) {
			continue
		}
		return models.OppositeSpec{Price: price, Volume: o.Volume}, st.name
	}

	r := AnchorResult{
		Anchor:   o.Price,
		Distance: defaultStopDistanceBase + o.Volume*defaultStopDistancePerVolume,
	}
	return models.OppositeSpec{Price: protectiveStopPrice(pos.PosSide, r), Volume: o.Volume}, "default"
}

// baseOppositeDistance — базовая дистанция перезахода по стороне и типу стопа.
func baseOppositeDistance(o *models.Order) float64 {
	if o.Flags.AdditionalFromLiquidation {
		if o.PosSide == models.PosSideLong {
			return oppositeAdditionLong
		}
		return oppositeAdditionShort
	}
	if o.PosSide == models.PosSideLong {
		return oppositeRegularLong
	}
	return oppositeRegularShort
}

// OppositeBuys синтезирует перезаходы после исполненного стопа.
// Крупный объём режется лесенкой из трёх ордеров с нарастающими отступами
// и дробными объёмами, мелкий уходит одним ордером на базовой дистанции.
func (s *Selector) OppositeBuys(o *models.Order) []models.OppositeSpec {
	d := baseOppositeDistance(o)
	dir := 1.0
	if o.PosSide == models.PosSideLong {
		dir = -1.0
	}

	if o.Volume < ladderSplitVolume {
		return []models.OppositeSpec{
			{Price: o.Price + dir*d, Volume: o.Volume},
		}
	}

	return []models.OppositeSpec{
		{Price: o.Price + dir*d, Volume: o.Volume / 3},
		{Price: o.Price + dir*(d+d/3.8), Volume: o.Volume / 4.5},
		{Price: o.Price + dir*(d+d/2), Volume: o.Volume / 3.5},
	}
}
