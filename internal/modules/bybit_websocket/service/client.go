package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"crypto_bot/internal/models"
	"crypto_bot/internal/modules/config"
	healthsvc "crypto_bot/internal/modules/health/service"
	"crypto_bot/internal/pusher"
	"crypto_bot/pkg/logger"

	"github.com/bytedance/sonic"
)

// Client — WS-драйвер пушей: каждый тик instrument_info по символу
// превращается в пару relevant-команд (стопы и докупки, обе стороны).
// Частота гасится PushInterval, полный проход по всем ордерам не нужен —
// полосу релевантности режут сами координаторы.
type Client struct {
	cfg    *config.Config
	bus    pusher.CommandBus
	state  *healthsvc.State
	dialer *websocket.Dialer

	mu       sync.Mutex
	lastPush map[string]time.Time
}

func NewClient(cfg *config.Config, bus pusher.CommandBus, state *healthsvc.State) *Client {
	return &Client{
		cfg:      cfg,
		bus:      bus,
		state:    state,
		dialer:   &websocket.Dialer{},
		lastPush: make(map[string]time.Time),
	}
}

// Start держит подключение к стриму, пока жив ctx. Разрывы переподключаются
// с паузой в секунду, подписка восстанавливается целиком.
func (c *Client) Start(ctx context.Context, symbols []string) {
	if len(symbols) == 0 {
		logger.Warn("ws: no symbols to stream")
		return
	}
	go c.run(ctx, symbols)
}

func (c *Client) run(ctx context.Context, symbols []string) {
	args := make([]string, 0, len(symbols))
	for _, s := range symbols {
		args = append(args, "instrument_info.100ms."+s)
	}

	for {
		logger.Info("ws: connect %s, %d symbols", c.cfg.Bybit.WSURL, len(symbols))
		conn, _, err := c.dialer.Dial(c.cfg.Bybit.WSURL, nil)
		if err != nil {
			logger.Error("ws dial: %v", err)
			if !sleepOrDone(ctx, time.Second) {
				return
			}
			continue
		}
		c.state.SetWSConnected(true)

		sub := map[string]any{"op": "subscribe", "args": args}
		if err := conn.WriteJSON(sub); err != nil {
			logger.Error("ws subscribe: %v", err)
			_ = conn.Close()
			c.state.SetWSConnected(false)
			continue
		}

		// keepalive ping каждые 30s, иначе bybit рвёт соединение
		stopPing := make(chan struct{})
		go func() {
			t := time.NewTicker(30 * time.Second)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-stopPing:
					return
				case <-t.C:
					_ = conn.WriteJSON(map[string]string{"op": "ping"})
				}
			}
		}()

		c.readLoop(ctx, conn)
		close(stopPing)
		_ = conn.Close()
		c.state.SetWSConnected(false)

		select {
		case <-ctx.Done():
			return
		default:
			time.Sleep(time.Second)
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Error("ws read: %v", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		var frame struct {
			Topic string `json:"topic"`
		}
		if err := sonic.Unmarshal(msg, &frame); err != nil || frame.Topic == "" {
			continue
		}
		// topic: instrument_info.100ms.BTCUSD
		i := strings.LastIndexByte(frame.Topic, '.')
		if i < 0 || !strings.HasPrefix(frame.Topic, "instrument_info.") {
			continue
		}
		c.onTick(ctx, frame.Topic[i+1:])
	}
}

// onTick публикует relevant-проходы по обеим сторонам символа,
// не чаще PushInterval на символ.
func (c *Client) onTick(ctx context.Context, symbol string) {
	now := time.Now()
	c.state.TouchTick(now)

	c.mu.Lock()
	if now.Sub(c.lastPush[symbol]) < c.cfg.PushInterval {
		c.mu.Unlock()
		return
	}
	c.lastPush[symbol] = now
	c.mu.Unlock()

	for _, side := range []string{models.PosSideLong, models.PosSideShort} {
		c.bus.Publish(ctx, models.PushMessage{
			Command: models.CmdPushRelevantStopOrders,
			Symbol:  symbol,
			PosSide: side,
		})
		c.bus.Publish(ctx, models.PushMessage{
			Command: models.CmdPushRelevantBuyOrders,
			Symbol:  symbol,
			PosSide: side,
		})
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
