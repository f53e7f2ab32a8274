package pusher

import (
	"testing"

	"crypto_bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOppositeBuysLadderShort(t *testing.T) {
	s := NewSelector()
	o := &models.Order{
		Kind: models.OrderKindStop, Symbol: "BTCUSD", PosSide: models.PosSideShort,
		Price: 29045, Volume: 0.02,
	}

	specs := s.OppositeBuys(o)
	require.Len(t, specs, 3)

	d := 60.0 // базовая дистанция шорта
	assert.InDelta(t, 29045+d, specs[0].Price, 1e-9)
	assert.InDelta(t, 29045+d+d/3.8, specs[1].Price, 1e-9)
	assert.InDelta(t, 29045+d+d/2, specs[2].Price, 1e-9)

	assert.InDelta(t, 0.02/3, specs[0].Volume, 1e-12)
	assert.InDelta(t, 0.02/4.5, specs[1].Volume, 1e-12)
	assert.InDelta(t, 0.02/3.5, specs[2].Volume, 1e-12)
}

func TestOppositeBuysLadderLongGoesDown(t *testing.T) {
	s := NewSelector()
	o := &models.Order{
		Kind: models.OrderKindStop, Symbol: "BTCUSD", PosSide: models.PosSideLong,
		Price: 29045, Volume: 0.009,
	}

	specs := s.OppositeBuys(o)
	require.Len(t, specs, 3)
	d := 50.0
	assert.InDelta(t, 29045-d, specs[0].Price, 1e-9)
	assert.InDelta(t, 29045-(d+d/3.8), specs[1].Price, 1e-9)
	assert.InDelta(t, 29045-(d+d/2), specs[2].Price, 1e-9)
}

func TestOppositeBuysSmallVolumeSingle(t *testing.T) {
	s := NewSelector()
	o := &models.Order{
		Kind: models.OrderKindStop, Symbol: "BTCUSD", PosSide: models.PosSideShort,
		Price: 29045, Volume: 0.005,
	}

	specs := s.OppositeBuys(o)
	require.Len(t, specs, 1)
	assert.InDelta(t, 29045+60, specs[0].Price, 1e-9)
	assert.InDelta(t, 0.005, specs[0].Volume, 1e-12)
}

func TestOppositeBuysLiquidationAdditionDistance(t *testing.T) {
	s := NewSelector()
	o := &models.Order{
		Kind: models.OrderKindStop, Symbol: "BTCUSD", PosSide: models.PosSideLong,
		Price: 29000, Volume: 0.004,
		Flags: models.OrderFlags{AdditionalFromLiquidation: true},
	}

	specs := s.OppositeBuys(o)
	require.Len(t, specs, 1)
	assert.InDelta(t, 29000-100, specs[0].Price, 1e-9)
}

func TestOppositeStopShortStopFlag(t *testing.T) {
	s := NewSelector()
	o := &models.Order{
		Kind: models.OrderKindBuy, PosSide: models.PosSideLong,
		Price: 29000, Volume: 0.004,
		Flags: models.OrderFlags{WithShortStop: true},
	}
	pos := &models.Position{PosSide: models.PosSideLong, EntryPrice: 29100, Size: 0.05, UnrealisedPnl: 10}
	h := HedgeContext{Ticker: &models.Ticker{IndexPrice: 29010}}

	spec, name := s.OppositeStop(o, pos, h)
	assert.Equal(t, "short_stop", name)
	assert.InDelta(t, 29000-10-1, spec.Price, 1e-9)
	assert.InDelta(t, o.Volume, spec.Volume, 1e-12)
}

func TestOppositeStopFreshLossKeepsShortDistance(t *testing.T) {
	s := NewSelector()
	o := &models.Order{Kind: models.OrderKindBuy, PosSide: models.PosSideShort, Price: 29000, Volume: 0.004}
	pos := &models.Position{PosSide: models.PosSideShort, EntryPrice: 29010, Size: 0.05, UnrealisedPnl: -3}
	// вход ещё в 25 единицах от индекса
	h := HedgeContext{Ticker: &models.Ticker{IndexPrice: 29005}}

	spec, name := s.OppositeStop(o, pos, h)
	assert.Equal(t, "short_stop", name)
	assert.InDelta(t, 29000+10+1, spec.Price, 1e-9)
}

func TestOppositeStopUnderPosition(t *testing.T) {
	s := NewSelector()
	o := &models.Order{Kind: models.OrderKindBuy, PosSide: models.PosSideLong, Price: 29000, Volume: 0.004}
	pos := &models.Position{PosSide: models.PosSideLong, EntryPrice: 28950, Size: 0.05, UnrealisedPnl: 40}
	h := HedgeContext{Ticker: &models.Ticker{IndexPrice: 29010}}

	spec, name := s.OppositeStop(o, pos, h)
	assert.Equal(t, "under_position", name)
	assert.InDelta(t, 28950-1, spec.Price, 1e-9)
}

func TestOppositeStopCrossedAnchorFallsThrough(t *testing.T) {
	s := NewSelector()
	o := &models.Order{Kind: models.OrderKindBuy, PosSide: models.PosSideLong, Price: 29000, Volume: 0.004}
	// вход выше индекса: стоп под входом оказался бы уже пересечён
	pos := &models.Position{PosSide: models.PosSideLong, EntryPrice: 29050, Size: 0.05, UnrealisedPnl: 40}
	h := HedgeContext{Ticker: &models.Ticker{IndexPrice: 29010}}

	spec, name := s.OppositeStop(o, pos, h)
	assert.Equal(t, "default", name)
	want := 29000 - (25 + 0.004*1000) - 1
	assert.InDelta(t, want, spec.Price, 1e-9)
}

func TestOppositeStopAnchorsToNearestStop(t *testing.T) {
	s := NewSelector()
	o := &models.Order{Kind: models.OrderKindBuy, PosSide: models.PosSideLong, Price: 29000, Volume: 0.02}
	pos := &models.Position{PosSide: models.PosSideLong, Size: 0.05, UnrealisedPnl: 40} // входа нет
	h := HedgeContext{
		Ticker:             &models.Ticker{IndexPrice: 29010},
		NearestStopToEntry: &models.Order{Price: 28900},
	}

	spec, name := s.OppositeStop(o, pos, h)
	assert.Equal(t, "after_first_stop_under_position", name)
	assert.InDelta(t, 28900-1, spec.Price, 1e-9)
}

func TestOppositeStopNearestStopNeedsVolume(t *testing.T) {
	s := NewSelector()
	o := &models.Order{Kind: models.OrderKindBuy, PosSide: models.PosSideLong, Price: 29000, Volume: 0.004}
	pos := &models.Position{PosSide: models.PosSideLong, Size: 0.05, UnrealisedPnl: 40}
	h := HedgeContext{
		Ticker:             &models.Ticker{IndexPrice: 29010},
		NearestStopToEntry: &models.Order{Price: 28900},
		NearestStopToIndex: &models.Order{Price: 28950},
	}

	// объём мал для якоря по стопу у входа — следующий уровень берёт стоп у индекса
	spec, name := s.OppositeStop(o, pos, h)
	assert.Equal(t, "after_first_position_stop", name)
	assert.InDelta(t, 28950-1, spec.Price, 1e-9)
}
