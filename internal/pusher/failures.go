package pusher

import (
	"context"
	"errors"
	"time"

	bybit "crypto_bot/internal/modules/bybit_client/service"
)

// FailureKind — политика обработки отказа биржи.
type FailureKind int

const (
	// FailureUnrecoverable — неизвестная ошибка API: критичный лог, идём дальше.
	FailureUnrecoverable FailureKind = iota
	// FailureThrottle — рейт-лимит: спим и продолжаем со следующего ордера.
	FailureThrottle
	// FailureCapacity — упёрлись в максимум активных условных ордеров:
	// просим освободить слоты и пропускаем ордер в этом цикле.
	FailureCapacity
	// FailurePriceRace — тикер пересёк триггер до отправки:
	// откатываемся на немедленный маркет-клоуз того же объёма.
	FailurePriceRace
	// FailureAfford — не хватает средств: остаток прохода баев прерывается.
	FailureAfford
)

func (k FailureKind) String() string {
	switch k {
	case FailureThrottle:
		return "throttle"
	case FailureCapacity:
		return "capacity"
	case FailurePriceRace:
		return "price_race"
	case FailureAfford:
		return "afford"
	default:
		return "unrecoverable"
	}
}

// Classify маппит ошибку биржевого вызова на политику обработки.
func Classify(err error) FailureKind {
	var api *bybit.APIError
	if !errors.As(err, &api) {
		return FailureUnrecoverable
	}
	switch {
	case api.RateLimited():
		return FailureThrottle
	case api.CapacityExceeded():
		return FailureCapacity
	case api.PriceRace():
		return FailurePriceRace
	case api.NotAffordable():
		return FailureAfford
	default:
		return FailureUnrecoverable
	}
}

// Backoff — ограниченный линейный backoff по троттлингу. Живёт один проход
// координатора: внутри повторных троттлов пауза растёт на шаг, а как только
// счётчик перевалил потолок — сбрасывается в ноль.
type Backoff struct {
	step    time.Duration
	ceiling time.Duration
	counter time.Duration
	sleep   func(ctx context.Context, d time.Duration)
}

func NewBackoff(step, ceiling time.Duration) *Backoff {
	return &Backoff{
		step:    step,
		ceiling: ceiling,
		sleep:   sleepCtx,
	}
}

// Throttle блокирует на текущее значение счётчика.
func (b *Backoff) Throttle(ctx context.Context) {
	b.counter += b.step
	if b.counter > b.ceiling {
		b.counter = 0
		return
	}
	b.sleep(ctx, b.counter)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
