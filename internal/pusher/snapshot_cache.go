package pusher

import (
	"context"
	"sync"
	"time"

	"crypto_bot/internal/helper"
	"crypto_bot/internal/models"
	"crypto_bot/internal/modules/config"
	"crypto_bot/pkg/logger"
)

type posEntry struct {
	pos *models.Position // nil — позиции нет, это тоже кешируем
	at  time.Time
}

type tickEntry struct {
	t  *models.Ticker
	at time.Time
}

// SnapshotCache держит последний снапшот позиции и тикера на пару
// (symbol, side). Один инстанс на координатор: оба координатора видят
// согласованную картину в пределах своего прохода.
type SnapshotCache struct {
	ex      Exchange
	posTTL  time.Duration
	tickTTL time.Duration
	now     func() time.Time

	mu    sync.Mutex
	pos   map[string]posEntry
	ticks map[string]tickEntry
}

func NewSnapshotCache(ex Exchange, cfg *config.Config) *SnapshotCache {
	return &SnapshotCache{
		ex:      ex,
		posTTL:  cfg.PositionTTL,
		tickTTL: cfg.TickerTTL,
		now:     time.Now,
		pos:     make(map[string]posEntry),
		ticks:   make(map[string]tickEntry),
	}
}

// Position возвращает кешированный снапшот, пока тот не протух.
// Ошибки лукапа не глотаются — уходят вызывающему.
func (c *SnapshotCache) Position(ctx context.Context, symbol, posSide string) (*models.Position, error) {
	key := helper.PairKey(symbol, posSide)

	c.mu.Lock()
	e, ok := c.pos[key]
	c.mu.Unlock()
	if ok && c.now().Sub(e.at) < c.posTTL {
		return e.pos, nil
	}

	pos, err := c.ex.GetPosition(ctx, symbol, posSide)
	if err != nil {
		return nil, err
	}
	if pos != nil {
		logger.Info("[%s %s] position: size=%.6f value=%.2f entry=%.2f liq=%.2f",
			symbol, posSide, pos.Size, pos.PositionValue, pos.EntryPrice, pos.LiquidationPrice)
	}

	c.mu.Lock()
	c.pos[key] = posEntry{pos: pos, at: c.now()}
	c.mu.Unlock()

	return pos, nil
}

// Opposite — парная нога хеджа для этой позиции.
func (c *SnapshotCache) Opposite(ctx context.Context, pos *models.Position) (*models.Position, error) {
	return c.Position(ctx, pos.Symbol, models.OppositeSide(pos.PosSide))
}

// Ticker фетчится один раз в начале прохода координатора и
// переиспользуется на все ордера этого батча.
func (c *SnapshotCache) Ticker(ctx context.Context, symbol string) (*models.Ticker, error) {
	c.mu.Lock()
	e, ok := c.ticks[symbol]
	c.mu.Unlock()
	if ok && c.now().Sub(e.at) < c.tickTTL {
		return e.t, nil
	}

	t, err := c.ex.Ticker(ctx, symbol)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.ticks[symbol] = tickEntry{t: t, at: c.now()}
	c.mu.Unlock()

	return t, nil
}
