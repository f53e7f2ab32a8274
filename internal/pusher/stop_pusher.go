package pusher

import (
	"context"
	"math"
	"strings"
	"time"

	"crypto_bot/internal/models"
	bybit "crypto_bot/internal/modules/bybit_client/service"
	"crypto_bot/internal/modules/config"
	"crypto_bot/internal/modules/metrics"
	"crypto_bot/pkg/logger"
)

const (
	// дистанции до ликвидации: warning переключает базис на mark,
	// critical закрывает пересечённые стопы маркетом без условного ордера
	liquidationWarningDelta  = 50.0
	liquidationCriticalDelta = 35.0

	stopDefaultTriggerDelta   = 25.0
	closeByMarketTriggerDelta = 0.3

	// репрайс пересечённого стопа: отступ от текущей цены и расширение дельты
	repriceOffset     = 15.0
	repriceDeltaWiden = 7.0

	// полоса релевантности для WS-прохода по стопам
	relevantStopBand = 50.0

	// отступ сервисного стопа главной ноги хеджа от индекса
	supportStopOffset = 2.0
)

// StopPusher — координатор пуша стопов. Помимо отправки условных ордеров
// отвечает за аварийные маркет-клоузы у ликвидации, компенсацию убытка
// из резерва и сервисные стопы хедж-пары.
type StopPusher struct {
	ex       Exchange
	store    OrderStore
	factory  OrderFactory
	cache    *SnapshotCache
	selector *Selector
	hedge    HedgeService
	bus      CommandBus
	notifier Notifier

	backoffStep    time.Duration
	backoffCeiling time.Duration
}

func NewStopPusher(ex Exchange, store OrderStore, factory OrderFactory,
	cache *SnapshotCache, selector *Selector, hedge HedgeService,
	bus CommandBus, notifier Notifier, cfg *config.Config) *StopPusher {
	return &StopPusher{
		ex:             ex,
		store:          store,
		factory:        factory,
		cache:          cache,
		selector:       selector,
		hedge:          hedge,
		bus:            bus,
		notifier:       notifier,
		backoffStep:    cfg.BackoffStep,
		backoffCeiling: cfg.BackoffCeiling,
	}
}

// pushBasis — цена сравнения и триггер для условных ордеров этого прохода.
// Возле ликвидации (warning-зона) переключаемся с индекса на mark: mark
// ближе к цене, по которой биржа реально ликвидирует.
func pushBasis(pos *models.Position, tick *models.Ticker, deltaToLiq float64) (float64, string) {
	if deltaToLiq <= liquidationWarningDelta {
		return tick.MarkPrice, bybit.TriggerByMarkPrice
	}
	return tick.IndexPrice, bybit.TriggerByIndexPrice
}

func deltaToLiquidation(pos *models.Position, tick *models.Ticker) float64 {
	if !pos.CanLiquidate() {
		return math.Inf(1)
	}
	return math.Abs(pos.LiquidationPrice - tick.MarkPrice)
}

// stopCrossed — цена сравнения уже прошла уровень стопа в сторону убытка.
func stopCrossed(posSide string, cmp, price float64) bool {
	if posSide == models.PosSideShort {
		return cmp >= price
	}
	return cmp <= price
}

// takeProfitReached — last дошёл до тейка в сторону прибыли.
func takeProfitReached(posSide string, last, price float64) bool {
	if posSide == models.PosSideLong {
		return last >= price
	}
	return last <= price
}

func effectiveTriggerDelta(o *models.Order) float64 {
	if o.Flags.CloseByMarket {
		return closeByMarketTriggerDelta
	}
	if o.TriggerDelta > 0 {
		return o.TriggerDelta
	}
	return stopDefaultTriggerDelta
}

// estimateLoss — убыток закрытия volume по closePrice против входа.
func estimateLoss(pos *models.Position, closePrice, volume float64) float64 {
	if pos.PosSide == models.PosSideLong {
		return (pos.EntryPrice - closePrice) * volume
	}
	return (closePrice - pos.EntryPrice) * volume
}

// Push прогоняет неотправленные стопы пары: близкие к цене уходят условными
// ордерами, пересечённые у ликвидации закрываются маркетом немедленно.
func (p *StopPusher) Push(ctx context.Context, symbol, posSide string, relevantOnly bool) error {
	pos, err := p.cache.Position(ctx, symbol, posSide)
	if err != nil {
		return err
	}
	if pos == nil {
		return nil
	}

	tick, err := p.cache.Ticker(ctx, symbol)
	if err != nil {
		return err
	}

	deltaToLiq := deltaToLiquidation(pos, tick)
	cmp, triggerBy := pushBasis(pos, tick, deltaToLiq)

	orders, err := p.store.FindActiveStops(ctx, symbol, posSide)
	if err != nil {
		return err
	}

	backoff := &Backoff{step: p.backoffStep, ceiling: p.backoffCeiling, sleep: sleepCtx}
	var lossTotal float64
	for _, o := range orders {
		if o.Pushed() {
			continue
		}
		if relevantOnly && math.Abs(cmp-o.Price) > relevantStopBand {
			continue
		}
		loss, err := p.evalOne(ctx, o, pos, tick, cmp, triggerBy, deltaToLiq, backoff)
		if err != nil {
			return err
		}
		if loss > 0 {
			lossTotal += loss
		}
	}

	if lossTotal > 0 {
		p.compensateLoss(ctx, symbol, lossTotal)
	}

	return p.hedgeSideEffects(ctx, pos, tick)
}

// evalOne решает судьбу одного стопа. Возвращает зафиксированный убыток,
// если стоп ушёл маркет-клоузом.
func (p *StopPusher) evalOne(ctx context.Context, o *models.Order, pos *models.Position,
	tick *models.Ticker, cmp float64, triggerBy string, deltaToLiq float64, backoff *Backoff) (float64, error) {

	if o.Flags.TakeProfit {
		if !takeProfitReached(o.PosSide, tick.LastPrice, o.Price) {
			return 0, nil
		}
		return p.closeByMarket(ctx, o, pos, tick.LastPrice)
	}

	effDelta := effectiveTriggerDelta(o)
	crossed := stopCrossed(o.PosSide, cmp, o.Price)
	if !crossed && math.Abs(cmp-o.Price) > effDelta {
		return 0, nil
	}

	if o.Flags.CloseByMarket {
		return p.closeByMarket(ctx, o, pos, cmp)
	}

	if crossed {
		// у ликвидации ждать биржевой триггер уже нельзя
		if deltaToLiq <= liquidationCriticalDelta {
			logger.Error("[%s %s] stop %s crossed at liq delta %.1f, closing by market",
				o.Symbol, o.PosSide, o.ID, deltaToLiq)
			return p.closeByMarket(ctx, o, pos, cmp)
		}
		// условный ордер с ценой позади рынка биржа отвергнет:
		// переносим уровень за текущую цену и расширяем дельту
		if o.PosSide == models.PosSideShort {
			o.MarkRepriced(cmp + repriceOffset)
		} else {
			o.MarkRepriced(cmp - repriceOffset)
		}
		o.TriggerDelta = effDelta + repriceDeltaWiden
		logger.Info("[%s %s] stop %s repriced: %.2f -> %.2f delta=%.1f",
			o.Symbol, o.PosSide, o.ID, o.OriginalPrice, o.Price, o.TriggerDelta)
	}

	id, err := p.ex.AddConditionalStop(ctx, o, triggerBy)
	if err != nil {
		kind := Classify(err)
		metrics.ExchangeFailures.WithLabelValues(kind.String()).Inc()
		switch kind {
		case FailurePriceRace:
			// цена пересекла триггер между проверкой и отправкой
			return p.closeByMarket(ctx, o, pos, cmp)
		case FailureThrottle:
			logger.Info("[%s %s] stop %s: rate limited", o.Symbol, o.PosSide, o.ID)
			backoff.Throttle(ctx)
		case FailureCapacity:
			p.bus.Publish(ctx, models.PushMessage{
				Command: models.CmdTryReleaseActiveOrders,
				Symbol:  o.Symbol,
				PosSide: o.PosSide,
			})
		default:
			logger.Error("[%s %s] stop %s push failed: %v", o.Symbol, o.PosSide, o.ID, err)
		}
		return 0, nil
	}

	o.ExchangeOrderID = id
	if o.IsDust() && !o.Flags.SupportFromMainHedgeStop {
		if err := p.store.Remove(ctx, o); err != nil {
			return 0, err
		}
	} else if err := p.store.Save(ctx, o); err != nil {
		return 0, err
	}
	metrics.OrdersPushed.WithLabelValues(string(o.Kind), "conditional").Inc()
	logger.Info("[%s %s] stop pushed: price=%.2f volume=%.6f delta=%.1f exchange_id=%s",
		o.Symbol, o.PosSide, o.Price, o.Volume, o.TriggerDelta, id)

	if !o.Flags.WithoutOpposite {
		if err := p.createOppositeBuys(ctx, o); err != nil {
			logger.Error("[%s %s] opposite buys for stop %s: %v", o.Symbol, o.PosSide, o.ID, err)
		}
	}
	return 0, nil
}

// closeByMarket закрывает объём стопа маркетом и снимает ордер из базы.
// Перезаходы синтезируются и здесь: маркет-клоуз — тот же исполненный стоп.
func (p *StopPusher) closeByMarket(ctx context.Context, o *models.Order, pos *models.Position, closePrice float64) (float64, error) {
	if err := p.ex.CloseByMarket(ctx, pos, o.Volume); err != nil {
		logger.Error("[%s %s] market close for stop %s: %v", o.Symbol, o.PosSide, o.ID, err)
		return 0, nil
	}
	metrics.OrdersPushed.WithLabelValues(string(o.Kind), "market_close").Inc()
	logger.Info("[%s %s] stop %s closed by market at %.2f volume=%.6f",
		o.Symbol, o.PosSide, o.ID, closePrice, o.Volume)

	loss := estimateLoss(pos, closePrice, o.Volume)
	if err := p.store.Remove(ctx, o); err != nil {
		return 0, err
	}
	if !o.Flags.WithoutOpposite {
		if err := p.createOppositeBuys(ctx, o); err != nil {
			logger.Error("[%s %s] opposite buys for stop %s: %v", o.Symbol, o.PosSide, o.ID, err)
		}
	}
	return loss, nil
}

func (p *StopPusher) createOppositeBuys(ctx context.Context, o *models.Order) error {
	specs := p.selector.OppositeBuys(o)
	for i := range specs {
		specs[i].ActivationOrderID = o.ExchangeOrderID
	}
	buys, err := p.factory.CreateBuys(ctx, o.Symbol, o.PosSide, specs)
	if err != nil {
		return err
	}
	logger.Info("[%s %s] %d re-entry buys created for stop %s", o.Symbol, o.PosSide, len(buys), o.ID)
	return nil
}

// compensateLoss переводит зафиксированный убыток из резервного кошелька.
// Ошибка перевода не валит проход: резерв может быть пуст.
func (p *StopPusher) compensateLoss(ctx context.Context, symbol string, loss float64) {
	coin := strings.TrimSuffix(symbol, "USD")
	if err := p.ex.TransferFromReserve(ctx, coin, loss); err != nil {
		logger.Error("[%s] reserve transfer %.8f %s failed: %v", symbol, loss, coin, err)
		return
	}
	p.notifier.Sendf("%s: closed at loss %.8f %s, compensated from reserve", symbol, loss, coin)
}

// IncreaseSupport докупает support-ногу по рынку до половины главной.
// Вызывается командой, опубликованной после сервисного стопа главной ноги:
// стоп освободил маржу, она сразу уходит в support.
func (p *StopPusher) IncreaseSupport(ctx context.Context, symbol, posSide string) error {
	main, err := p.cache.Position(ctx, symbol, posSide)
	if err != nil {
		return err
	}
	if main == nil {
		return nil
	}
	support, err := p.cache.Opposite(ctx, main)
	if err != nil {
		return err
	}
	if support == nil || !p.hedge.IsSupportPosition(support) || !p.hedge.NeedIncreaseSupport(main, support) {
		return nil
	}

	deficit := main.Size*supportSizeRatio - support.Size
	id, err := p.ex.MarketBuy(ctx, symbol, support.PosSide, deficit)
	if err != nil {
		logger.Error("[%s %s] support increase by %.6f failed: %v", symbol, support.PosSide, deficit, err)
		return nil
	}
	logger.Info("[%s %s] support increased by %.6f, order %s", symbol, support.PosSide, deficit, id)
	return nil
}

// hedgeSideEffects — обслуживание хедж-пары после прохода по стопам.
func (p *StopPusher) hedgeSideEffects(ctx context.Context, pos *models.Position, tick *models.Ticker) error {
	opp, err := p.cache.Opposite(ctx, pos)
	if err != nil {
		return err
	}
	if opp == nil {
		return nil
	}

	if p.hedge.IsSupportPosition(pos) {
		if !p.hedge.NeedIncreaseSupport(opp, pos) {
			return nil
		}
		// support отстала от главной ноги: короткий стоп на главной ноге
		// скинет кусок объёма, профит уйдёт на докачку support
		price := tick.IndexPrice + supportStopOffset
		if opp.PosSide == models.PosSideShort {
			price = tick.IndexPrice - supportStopOffset
		}
		deficit := opp.Size/2 - pos.Size
		_, err := p.factory.CreateStop(ctx, opp.Symbol, opp.PosSide,
			models.OppositeSpec{Price: price, Volume: deficit},
			models.OrderFlags{SupportFromMainHedgeStop: true, WithoutOpposite: true})
		if err != nil {
			return err
		}
		p.bus.Publish(ctx, models.PushMessage{
			Command: models.CmdIncreaseHedgeSupportByMainProfit,
			Symbol:  opp.Symbol,
			PosSide: opp.PosSide,
		})
		return nil
	}

	// главная нога в минусе, а support уже можно распускать сеткой
	if pos.UnrealisedPnl < 0 && p.hedge.IsSupportPosition(opp) && !p.hedge.NeedKeepSupportSize(pos, opp) {
		return p.hedge.CreateStopIncrementalGridBySupport(ctx, opp)
	}
	return nil
}
