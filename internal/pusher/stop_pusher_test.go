package pusher

import (
	"context"
	"testing"
	"time"

	"crypto_bot/internal/models"
	bybit "crypto_bot/internal/modules/bybit_client/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stopFixture struct {
	ex       *fakeExchange
	store    *fakeStore
	factory  *fakeFactory
	hedge    *fakeHedge
	bus      *fakeBus
	notifier *fakeNotifier
	pusher   *StopPusher
	now      time.Time
}

func newStopFixture() *stopFixture {
	f := &stopFixture{
		ex:       newFakeExchange(),
		store:    newFakeStore(),
		factory:  &fakeFactory{},
		hedge:    &fakeHedge{},
		bus:      &fakeBus{},
		notifier: &fakeNotifier{},
		now:      time.Unix(1700000000, 0),
	}
	cache := NewSnapshotCache(f.ex, testConfig())
	cache.now = func() time.Time { return f.now }
	f.pusher = NewStopPusher(f.ex, f.store, f.factory, cache, NewSelector(), f.hedge, f.bus, f.notifier, testConfig())
	return f
}

// шорт с ликвидацией далеко наверху: проход идёт по индексу
func (f *stopFixture) setupShort() {
	f.ex.ticker = &models.Ticker{Symbol: "BTCUSD", IndexPrice: 29060, MarkPrice: 29058, LastPrice: 29059}
	f.ex.setPosition(&models.Position{
		Symbol: "BTCUSD", PosSide: models.PosSideShort,
		EntryPrice: 29000, Size: 0.1, LiquidationPrice: 30000,
	})
}

func shortStop(id string, price, volume float64) *models.Order {
	return &models.Order{
		ID: id, Kind: models.OrderKindStop,
		Symbol: "BTCUSD", PosSide: models.PosSideShort,
		Price: price, Volume: volume,
	}
}

func TestStopPushNoPositionIsNoop(t *testing.T) {
	f := newStopFixture()
	f.ex.ticker = &models.Ticker{Symbol: "BTCUSD", IndexPrice: 29060}
	f.store.stops = []*models.Order{shortStop("s1", 29070, 0.02)}

	require.NoError(t, f.pusher.Push(context.Background(), "BTCUSD", models.PosSideShort, false))
	assert.Empty(t, f.ex.stops)
}

func TestStopPushSkipsAlreadyPushed(t *testing.T) {
	f := newStopFixture()
	f.setupShort()
	done := shortStop("s1", 29070, 0.02)
	done.ExchangeOrderID = "stop-old"
	f.store.stops = []*models.Order{done}

	require.NoError(t, f.pusher.Push(context.Background(), "BTCUSD", models.PosSideShort, false))
	assert.Empty(t, f.ex.stops)
	assert.Empty(t, f.store.saved)
}

func TestStopPushSkipsFarFromPrice(t *testing.T) {
	f := newStopFixture()
	f.setupShort()
	f.store.stops = []*models.Order{shortStop("far", 29200, 0.02)} // 140 от индекса

	require.NoError(t, f.pusher.Push(context.Background(), "BTCUSD", models.PosSideShort, false))
	assert.Empty(t, f.ex.stops)
}

func TestStopPushNearByIndexPrice(t *testing.T) {
	f := newStopFixture()
	f.setupShort()
	f.store.stops = []*models.Order{shortStop("s1", 29080, 0.02)} // 20 от индекса

	require.NoError(t, f.pusher.Push(context.Background(), "BTCUSD", models.PosSideShort, false))

	require.Len(t, f.ex.stops, 1)
	assert.Equal(t, bybit.TriggerByIndexPrice, f.ex.stopTriggers[0])
	assert.InDelta(t, 29080, f.ex.stops[0].Price, 1e-9)
	require.Len(t, f.store.saved, 1)
	assert.Equal(t, "stop-1", f.store.saved[0].ExchangeOrderID)

	// перезаходы: объём 0.02 режется лесенкой из трёх
	require.Len(t, f.factory.buys, 1)
	require.Len(t, f.factory.buys[0], 3)
	assert.Equal(t, "stop-1", f.factory.buys[0][0].ActivationOrderID)
}

func TestStopPushSwitchesToMarkNearLiquidation(t *testing.T) {
	f := newStopFixture()
	f.ex.ticker = &models.Ticker{Symbol: "BTCUSD", IndexPrice: 29060, MarkPrice: 29058, LastPrice: 29059}
	// до ликвидации 42 по mark — warning-зона
	f.ex.setPosition(&models.Position{
		Symbol: "BTCUSD", PosSide: models.PosSideShort,
		EntryPrice: 29000, Size: 0.1, LiquidationPrice: 29100,
	})
	f.store.stops = []*models.Order{shortStop("s1", 29078, 0.02)} // 20 от mark

	require.NoError(t, f.pusher.Push(context.Background(), "BTCUSD", models.PosSideShort, false))

	require.Len(t, f.ex.stops, 1)
	assert.Equal(t, bybit.TriggerByMarkPrice, f.ex.stopTriggers[0])
}

func TestStopPushBasisSwitchBoundary(t *testing.T) {
	cases := []struct {
		name    string
		liq     float64
		trigger string
	}{
		{"at warning delta", 29058 + 50, bybit.TriggerByMarkPrice},
		{"past warning delta", 29058 + 51, bybit.TriggerByIndexPrice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newStopFixture()
			f.ex.ticker = &models.Ticker{Symbol: "BTCUSD", IndexPrice: 29060, MarkPrice: 29058, LastPrice: 29059}
			f.ex.setPosition(&models.Position{
				Symbol: "BTCUSD", PosSide: models.PosSideShort,
				EntryPrice: 29000, Size: 0.1, LiquidationPrice: tc.liq,
			})
			f.store.stops = []*models.Order{shortStop("s1", 29075, 0.02)}

			require.NoError(t, f.pusher.Push(context.Background(), "BTCUSD", models.PosSideShort, false))
			require.Len(t, f.ex.stopTriggers, 1)
			assert.Equal(t, tc.trigger, f.ex.stopTriggers[0])
		})
	}
}

func TestStopPushCriticalDeltaBoundary(t *testing.T) {
	run := func(liq float64) *stopFixture {
		f := newStopFixture()
		f.ex.ticker = &models.Ticker{Symbol: "BTCUSD", IndexPrice: 29060, MarkPrice: 29058, LastPrice: 29059}
		f.ex.setPosition(&models.Position{
			Symbol: "BTCUSD", PosSide: models.PosSideShort,
			EntryPrice: 29000, Size: 0.1, LiquidationPrice: liq,
		})
		// стоп уже пересечён ценой сравнения (mark)
		f.store.stops = []*models.Order{shortStop("s1", 29050, 0.02)}
		require.NoError(t, f.pusher.Push(context.Background(), "BTCUSD", models.PosSideShort, false))
		return f
	}

	// ровно на пороге — маркет-клоуз
	f := run(29058 + 35)
	assert.Empty(t, f.ex.stops)
	assert.Equal(t, []float64{0.02}, f.ex.closes)

	// на единицу дальше — репрайс условным ордером
	f = run(29058 + 36)
	assert.Empty(t, f.ex.closes)
	require.Len(t, f.ex.stops, 1)
	assert.InDelta(t, 29058+15, f.ex.stops[0].Price, 1e-9)
}

func TestStopPushRepricesCrossedStop(t *testing.T) {
	f := newStopFixture()
	f.setupShort()
	// индекс 29060 уже выше уровня 29055
	f.store.stops = []*models.Order{shortStop("s1", 29055, 0.02)}

	require.NoError(t, f.pusher.Push(context.Background(), "BTCUSD", models.PosSideShort, false))

	require.Len(t, f.ex.stops, 1)
	pushed := f.ex.stops[0]
	assert.InDelta(t, 29075, pushed.Price, 1e-9, "moved behind the current price")
	assert.InDelta(t, 32, pushed.TriggerDelta, 1e-9, "default delta widened by 7")
	assert.InDelta(t, 29055, pushed.OriginalPrice, 1e-9)
}

func TestStopPushForcedCloseNearLiquidation(t *testing.T) {
	f := newStopFixture()
	f.ex.ticker = &models.Ticker{Symbol: "BTCUSD", IndexPrice: 29060, MarkPrice: 29058, LastPrice: 29059}
	// до ликвидации 22 по mark — critical-зона
	f.ex.setPosition(&models.Position{
		Symbol: "BTCUSD", PosSide: models.PosSideShort,
		EntryPrice: 29000, Size: 0.1, LiquidationPrice: 29080,
	})
	f.store.stops = []*models.Order{shortStop("s1", 29050, 0.02)} // пересечён mark

	require.NoError(t, f.pusher.Push(context.Background(), "BTCUSD", models.PosSideShort, false))

	assert.Empty(t, f.ex.stops, "no conditional order near liquidation")
	require.Equal(t, []float64{0.02}, f.ex.closes)
	assert.Equal(t, []string{"s1"}, f.store.removed)

	// убыток (29058-29000)*0.02 компенсируется из резерва
	require.Len(t, f.ex.transfers, 1)
	assert.InDelta(t, 58*0.02, f.ex.transfers[0], 1e-9)
	require.Len(t, f.notifier.sent, 1)

	// маркет-клоуз — тоже исполненный стоп: перезаходы создаются
	require.Len(t, f.factory.buys, 1)
}

func TestStopPushPriceRaceFallsBackToMarketClose(t *testing.T) {
	f := newStopFixture()
	f.setupShort()
	f.ex.stopErr = &bybit.APIError{RetCode: 30041, Call: "AddConditionalStop"}
	f.store.stops = []*models.Order{shortStop("s1", 29080, 0.02)}

	require.NoError(t, f.pusher.Push(context.Background(), "BTCUSD", models.PosSideShort, false))

	assert.Empty(t, f.ex.stops)
	require.Equal(t, []float64{0.02}, f.ex.closes)
	assert.Equal(t, []string{"s1"}, f.store.removed)
}

func TestStopPushDustRemovedExceptHedgeService(t *testing.T) {
	f := newStopFixture()
	f.setupShort()
	dust := shortStop("dust", 29080, 0.004)
	svc := shortStop("svc", 29082, 0.004)
	svc.Flags.SupportFromMainHedgeStop = true
	svc.Flags.WithoutOpposite = true
	f.store.stops = []*models.Order{dust, svc}

	require.NoError(t, f.pusher.Push(context.Background(), "BTCUSD", models.PosSideShort, false))

	require.Len(t, f.ex.stops, 2)
	assert.Equal(t, []string{"dust"}, f.store.removed)
	require.Len(t, f.store.saved, 1)
	assert.Equal(t, "svc", f.store.saved[0].ID)
}

func TestStopPushWithoutOppositeSuppressesReentry(t *testing.T) {
	f := newStopFixture()
	f.setupShort()
	o := shortStop("s1", 29080, 0.02)
	o.Flags.WithoutOpposite = true
	f.store.stops = []*models.Order{o}

	require.NoError(t, f.pusher.Push(context.Background(), "BTCUSD", models.PosSideShort, false))

	require.Len(t, f.ex.stops, 1)
	assert.Empty(t, f.factory.buys)
}

func TestStopPushTakeProfit(t *testing.T) {
	f := newStopFixture()
	f.ex.ticker = &models.Ticker{Symbol: "BTCUSD", IndexPrice: 29060, MarkPrice: 29058, LastPrice: 29059}
	// шорт в прибыли: вход выше текущей цены
	f.ex.setPosition(&models.Position{
		Symbol: "BTCUSD", PosSide: models.PosSideShort,
		EntryPrice: 29200, Size: 0.1, LiquidationPrice: 30000,
	})
	// тейк шорта срабатывает снизу: last 29059 ещё не дошёл до 29040
	pending := shortStop("tp-far", 29040, 0.02)
	pending.Flags.TakeProfit = true
	reached := shortStop("tp-hit", 29060, 0.02)
	reached.Flags.TakeProfit = true
	f.store.stops = []*models.Order{pending, reached}

	require.NoError(t, f.pusher.Push(context.Background(), "BTCUSD", models.PosSideShort, false))

	assert.Empty(t, f.ex.stops)
	require.Equal(t, []float64{0.02}, f.ex.closes)
	assert.Equal(t, []string{"tp-hit"}, f.store.removed)
	assert.Empty(t, f.ex.transfers, "profit does not touch the reserve")
}

func TestStopPushSupportLagTriggersMainStop(t *testing.T) {
	f := newStopFixture()
	f.ex.ticker = &models.Ticker{Symbol: "BTCUSD", IndexPrice: 29060, MarkPrice: 29058, LastPrice: 29059}
	support := &models.Position{Symbol: "BTCUSD", PosSide: models.PosSideLong, EntryPrice: 29000, Size: 0.02}
	main := &models.Position{Symbol: "BTCUSD", PosSide: models.PosSideShort, EntryPrice: 29100, Size: 0.1, LiquidationPrice: 30000}
	f.ex.setPosition(support)
	f.ex.setPosition(main)
	f.hedge.support = map[string]bool{"BTCUSD:long": true}
	f.hedge.needIncrease = true

	require.NoError(t, f.pusher.Push(context.Background(), "BTCUSD", models.PosSideLong, false))

	require.Len(t, f.factory.stops, 1)
	created := f.factory.stops[0]
	assert.Equal(t, models.PosSideShort, created.posSide)
	assert.True(t, created.flags.SupportFromMainHedgeStop)
	assert.InDelta(t, 29060-2, created.spec.Price, 1e-9)
	assert.InDelta(t, 0.1/2-0.02, created.spec.Volume, 1e-9)

	require.Len(t, f.bus.published, 1)
	assert.Equal(t, models.CmdIncreaseHedgeSupportByMainProfit, f.bus.published[0].Command)
}

func TestIncreaseSupportBuysDeficitByMarket(t *testing.T) {
	f := newStopFixture()
	f.ex.ticker = &models.Ticker{Symbol: "BTCUSD", IndexPrice: 29060, MarkPrice: 29058, LastPrice: 29059}
	main := &models.Position{Symbol: "BTCUSD", PosSide: models.PosSideShort, EntryPrice: 29000, Size: 0.1, LiquidationPrice: 30000}
	support := &models.Position{Symbol: "BTCUSD", PosSide: models.PosSideLong, EntryPrice: 29010, Size: 0.02}
	f.ex.setPosition(main)
	f.ex.setPosition(support)
	f.hedge.support = map[string]bool{"BTCUSD:long": true}
	f.hedge.needIncrease = true

	require.NoError(t, f.pusher.IncreaseSupport(context.Background(), "BTCUSD", models.PosSideShort))

	require.Len(t, f.ex.marketBuys, 1)
	assert.InDelta(t, 0.1/2-0.02, f.ex.marketBuys[0], 1e-9)
	assert.Equal(t, models.PosSideLong, f.ex.marketBuySides[0])
}

func TestIncreaseSupportNoopWhenBalanced(t *testing.T) {
	f := newStopFixture()
	main := &models.Position{Symbol: "BTCUSD", PosSide: models.PosSideShort, EntryPrice: 29000, Size: 0.1, LiquidationPrice: 30000}
	support := &models.Position{Symbol: "BTCUSD", PosSide: models.PosSideLong, EntryPrice: 29010, Size: 0.06}
	f.ex.setPosition(main)
	f.ex.setPosition(support)
	f.hedge.support = map[string]bool{"BTCUSD:long": true}
	f.hedge.needIncrease = false

	require.NoError(t, f.pusher.IncreaseSupport(context.Background(), "BTCUSD", models.PosSideShort))
	assert.Empty(t, f.ex.marketBuys)
}

func TestStopPushMainLossReleasesSupportGrid(t *testing.T) {
	f := newStopFixture()
	f.ex.ticker = &models.Ticker{Symbol: "BTCUSD", IndexPrice: 29060, MarkPrice: 29058, LastPrice: 29059}
	main := &models.Position{Symbol: "BTCUSD", PosSide: models.PosSideShort, EntryPrice: 29000, Size: 0.1, LiquidationPrice: 30000, UnrealisedPnl: -5}
	support := &models.Position{Symbol: "BTCUSD", PosSide: models.PosSideLong, EntryPrice: 29010, Size: 0.08}
	f.ex.setPosition(main)
	f.ex.setPosition(support)
	f.hedge.support = map[string]bool{"BTCUSD:long": true}
	f.hedge.needKeep = false

	require.NoError(t, f.pusher.Push(context.Background(), "BTCUSD", models.PosSideShort, false))

	require.Len(t, f.hedge.gridCalls, 1)
	assert.Equal(t, support.PosSide, f.hedge.gridCalls[0].PosSide)
}
