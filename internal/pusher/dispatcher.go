package pusher

import (
	"context"
	"sync"

	"github.com/opentracing/opentracing-go"

	"crypto_bot/internal/models"
	"crypto_bot/internal/modules/metrics"
	"crypto_bot/pkg/logger"
)

const partitionBuffer = 64

// Dispatcher раскладывает команды по партициям (symbol, side): на партицию
// ровно одна горутина-консьюмер, так что по одной паре никогда не идут два
// прохода одновременно и порядок команд сохраняется.
type Dispatcher struct {
	baseCtx context.Context

	mu    sync.Mutex
	parts map[string]chan models.PushMessage

	buy     *BuyPusher
	stop    *StopPusher
	release *ReleaseHandler
}

func NewDispatcher(ctx context.Context) *Dispatcher {
	return &Dispatcher{
		baseCtx: ctx,
		parts:   make(map[string]chan models.PushMessage),
	}
}

// Register подключает обработчики. Отдельный шаг из-за цикла: пушеры
// публикуют команды в диспетчер, который их же и вызывает.
func (d *Dispatcher) Register(buy *BuyPusher, stop *StopPusher, release *ReleaseHandler) {
	d.buy = buy
	d.stop = stop
	d.release = release
}

// Publish кладёт команду в партицию без блокировки: при забитом буфере
// команда дропается — следующий тик всё равно принесёт свежую.
func (d *Dispatcher) Publish(_ context.Context, msg models.PushMessage) {
	select {
	case d.partition(msg.PartitionKey()) <- msg:
	default:
		metrics.CommandsDropped.WithLabelValues(string(msg.Command)).Inc()
		logger.Warn("[%s] partition full, dropped %s", msg.PartitionKey(), msg.Command)
	}
}

func (d *Dispatcher) partition(key string) chan models.PushMessage {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch, ok := d.parts[key]
	if !ok {
		ch = make(chan models.PushMessage, partitionBuffer)
		d.parts[key] = ch
		go d.consume(key, ch)
	}
	return ch
}

func (d *Dispatcher) consume(key string, ch chan models.PushMessage) {
	for {
		select {
		case <-d.baseCtx.Done():
			return
		case msg := <-ch:
			d.handle(msg)
		}
	}
}

func (d *Dispatcher) handle(msg models.PushMessage) {
	span := opentracing.StartSpan(string(msg.Command))
	span.SetTag("symbol", msg.Symbol)
	span.SetTag("pos_side", msg.PosSide)
	defer span.Finish()
	ctx := opentracing.ContextWithSpan(d.baseCtx, span)

	var err error
	switch msg.Command {
	case models.CmdPushBuyOrders:
		err = d.buy.Push(ctx, msg.Symbol, msg.PosSide, false)
	case models.CmdPushRelevantBuyOrders:
		err = d.buy.Push(ctx, msg.Symbol, msg.PosSide, true)
	case models.CmdPushStops:
		err = d.stop.Push(ctx, msg.Symbol, msg.PosSide, false)
	case models.CmdIncreaseHedgeSupportByMainProfit:
		err = d.stop.IncreaseSupport(ctx, msg.Symbol, msg.PosSide)
	case models.CmdPushRelevantStopOrders:
		err = d.stop.Push(ctx, msg.Symbol, msg.PosSide, true)
	case models.CmdTryReleaseActiveOrders:
		err = d.release.Release(ctx, msg.Symbol)
	default:
		logger.Warn("[%s] unknown command %q", msg.PartitionKey(), msg.Command)
		return
	}
	if err != nil {
		logger.Error("[%s] %s failed: %v", msg.PartitionKey(), msg.Command, err)
	}
}
