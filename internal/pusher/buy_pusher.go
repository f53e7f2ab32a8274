package pusher

import (
	"context"
	"math"
	"sync"
	"time"

	"crypto_bot/internal/helper"
	"crypto_bot/internal/models"
	"crypto_bot/internal/modules/config"
	"crypto_bot/internal/modules/metrics"
	"crypto_bot/pkg/logger"
)

const (
	// дистанция от индекса, с которой докупка уходит на биржу
	buyDefaultTriggerDelta = 25.0

	// полоса релевантности вокруг индекса: против позиции шире, чем по ней
	buyBandAdverse   = 20.0
	buyBandFavorable = 15.0
)

type affordGate struct {
	at    time.Time
	price float64
}

// BuyPusher — координатор пуша докупок. На пару (symbol, side) работает
// строго один проход за раз, это гарантирует партиционирование диспетчера.
type BuyPusher struct {
	ex       Exchange
	store    OrderStore
	factory  OrderFactory
	cache    *SnapshotCache
	selector *Selector
	bus      CommandBus

	backoffStep    time.Duration
	backoffCeiling time.Duration
	affordWindow   time.Duration
	affordBand     float64
	now            func() time.Time

	mu     sync.Mutex
	afford map[string]affordGate // symbol -> последний отказ по средствам
}

func NewBuyPusher(ex Exchange, store OrderStore, factory OrderFactory,
	cache *SnapshotCache, selector *Selector, bus CommandBus, cfg *config.Config) *BuyPusher {
	return &BuyPusher{
		ex:             ex,
		store:          store,
		factory:        factory,
		cache:          cache,
		selector:       selector,
		bus:            bus,
		backoffStep:    cfg.BackoffStep,
		backoffCeiling: cfg.BackoffCeiling,
		affordWindow:   cfg.AffordWindow,
		affordBand:     cfg.AffordPriceBand,
		now:            time.Now,
		afford:         make(map[string]affordGate),
	}
}

// affordGateActive — после отказа "не хватает средств" проход подавлен,
// пока не истечёт окно или цена не уйдёт из полосы вокруг отказной.
func (p *BuyPusher) affordGateActive(symbol string, index float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	g, ok := p.afford[symbol]
	if !ok {
		return false
	}
	if p.now().Sub(g.at) >= p.affordWindow || math.Abs(index-g.price) > p.affordBand {
		delete(p.afford, symbol)
		return false
	}
	return true
}

func (p *BuyPusher) setAffordGate(symbol string, index float64) {
	p.mu.Lock()
	p.afford[symbol] = affordGate{at: p.now(), price: index}
	p.mu.Unlock()
}

// relevantBand — [from, to] вокруг индекса; against стороны полоса шире.
func relevantBand(posSide string, index float64) (float64, float64) {
	if posSide == models.PosSideLong {
		return index - buyBandAdverse, index + buyBandFavorable
	}
	return index - buyBandFavorable, index + buyBandAdverse
}

func (p *BuyPusher) candidates(ctx context.Context, symbol, posSide string, index float64, relevantOnly bool) ([]*models.Order, error) {
	if !relevantOnly {
		return p.store.FindActiveBuys(ctx, symbol, posSide)
	}
	from, to := relevantBand(posSide, index)
	return p.store.FindActiveBuysInBand(ctx, symbol, posSide, from, to)
}

// Push прогоняет все неотправленные докупки пары. relevantOnly ограничивает
// выборку полосой вокруг индекса — так работает WS-драйвер, чтобы не гонять
// весь список на каждый тик.
func (p *BuyPusher) Push(ctx context.Context, symbol, posSide string, relevantOnly bool) error {
	tick, err := p.cache.Ticker(ctx, symbol)
	if err != nil {
		return err
	}

	pos, err := p.cache.Position(ctx, symbol, posSide)
	if err != nil {
		return err
	}
	if pos == nil {
		if posSide == models.PosSideShort {
			// шорт без позиции не открываем докупками
			return nil
		}
		// у лонга докупки и есть вход: считаем позицию от индекса
		pos = &models.Position{Symbol: symbol, PosSide: posSide, EntryPrice: tick.IndexPrice}
	}

	if p.affordGateActive(symbol, tick.IndexPrice) {
		return nil
	}

	orders, err := p.candidates(ctx, symbol, posSide, tick.IndexPrice, relevantOnly)
	if err != nil {
		return err
	}

	backoff := &Backoff{step: p.backoffStep, ceiling: p.backoffCeiling, sleep: sleepCtx}
	for _, o := range orders {
		if o.Pushed() {
			continue
		}
		delta := o.TriggerDelta
		if delta == 0 {
			delta = buyDefaultTriggerDelta
		}
		if math.Abs(tick.IndexPrice-o.Price) > delta {
			continue
		}

		id, err := p.ex.AddBuyOrder(ctx, o)
		if err != nil {
			kind := Classify(err)
			metrics.ExchangeFailures.WithLabelValues(kind.String()).Inc()
			switch kind {
			case FailureAfford:
				logger.Info("[%s %s] buy %s: insufficient funds, gate for %s", symbol, posSide, o.ID, p.affordWindow)
				p.setAffordGate(symbol, tick.IndexPrice)
				return nil
			case FailureThrottle:
				logger.Info("[%s %s] buy %s: rate limited", symbol, posSide, o.ID)
				backoff.Throttle(ctx)
			case FailureCapacity:
				p.bus.Publish(ctx, models.PushMessage{
					Command: models.CmdTryReleaseActiveOrders,
					Symbol:  symbol,
					PosSide: posSide,
				})
			default:
				logger.Error("[%s %s] buy %s push failed: %v", symbol, posSide, o.ID, err)
			}
			continue
		}

		o.ExchangeOrderID = id
		if o.IsDust() {
			if err := p.store.Remove(ctx, o); err != nil {
				return err
			}
		} else if err := p.store.Save(ctx, o); err != nil {
			return err
		}
		metrics.OrdersPushed.WithLabelValues(string(o.Kind), "limit").Inc()
		logger.Info("[%s %s] buy pushed: price=%.2f volume=%.6f exchange_id=%s",
			symbol, posSide, o.Price, o.Volume, id)

		if o.Flags.WithOpposite {
			if err := p.createOppositeStop(ctx, o, pos, tick); err != nil {
				logger.Error("[%s %s] opposite stop for buy %s: %v", symbol, posSide, o.ID, err)
			}
		}
	}
	return nil
}

// createOppositeStop реализует защитный стоп под свежей докупкой.
func (p *BuyPusher) createOppositeStop(ctx context.Context, o *models.Order, pos *models.Position, tick *models.Ticker) error {
	h := HedgeContext{Ticker: tick}

	opp, err := p.cache.Opposite(ctx, pos)
	if err != nil {
		return err
	}
	h.Opposite = opp

	// защитная сторона: у лонга стопы ниже опорной цены, у шорта выше
	below := pos.PosSide == models.PosSideLong
	h.NearestStopToEntry, err = p.store.FindNearestStop(ctx, o.Symbol, o.PosSide, pos.EntryPrice, below)
	if err != nil {
		return err
	}
	h.NearestStopToIndex, err = p.store.FindNearestStop(ctx, o.Symbol, o.PosSide, tick.IndexPrice, below)
	if err != nil {
		return err
	}

	spec, strategy := p.selector.OppositeStop(o, pos, h)
	spec.ActivationOrderID = o.ExchangeOrderID

	stop, err := p.factory.CreateStop(ctx, o.Symbol, o.PosSide, spec, models.OrderFlags{})
	if err != nil {
		return err
	}
	logger.Info("[%s] stop %s created by %q: price=%.2f volume=%.6f",
		helper.PairKey(o.Symbol, o.PosSide), stop.ID, strategy, stop.Price, stop.Volume)
	return nil
}
