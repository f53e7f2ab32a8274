package store

import (
	"context"
	"fmt"

	"crypto_bot/internal/models"
	"crypto_bot/pkg/db"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
)

// Orders — pg-хранилище отложенных ордеров. Единственный источник правды:
// каждая мутация (цена, дельта, exchange_order_id, удаление) коммитится до
// обработки следующего кандидата, потому что выборка следующего прохода
// опирается на заперсищенное состояние.
type Orders struct {
	db *db.PgTxManager
}

func NewOrders(txm *db.PgTxManager) *Orders {
	return &Orders{db: txm}
}

const orderColumns = `id, kind, symbol, pos_side, price, volume, trigger_delta,
	original_price, COALESCE(exchange_order_id, ''), flags, context`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		o          models.Order
		flagsRaw   []byte
		contextRaw []byte
	)
	err := row.Scan(
		&o.ID, &o.Kind, &o.Symbol, &o.PosSide, &o.Price, &o.Volume,
		&o.TriggerDelta, &o.OriginalPrice, &o.ExchangeOrderID,
		&flagsRaw, &contextRaw,
	)
	if err != nil {
		return nil, err
	}
	if len(flagsRaw) > 0 {
		if err := sonic.Unmarshal(flagsRaw, &o.Flags); err != nil {
			return nil, fmt.Errorf("decode flags: %w", err)
		}
	}
	if len(contextRaw) > 0 {
		if err := sonic.Unmarshal(contextRaw, &o.Context); err != nil {
			return nil, fmt.Errorf("decode context: %w", err)
		}
	}
	return &o, nil
}

func (s *Orders) findActive(ctx context.Context, query string, args ...any) (out []*models.Order, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("store.findActive: %w", err)
		}
	}()

	rows, err := s.db.Conn().Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// FindActiveStops — непушенные стопы пары, ближайший к неблагоприятной цене
// первым: для шорта неблагоприятное движение вверх, стопы выше входа,
// первым идёт самый нижний; для лонга зеркально.
func (s *Orders) FindActiveStops(ctx context.Context, symbol, posSide string) ([]*models.Order, error) {
	order := "price DESC"
	if posSide == models.PosSideShort {
		order = "price ASC"
	}
	return s.findActive(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE kind = 'stop' AND symbol = $1 AND pos_side = $2
		  AND (exchange_order_id IS NULL OR exchange_order_id = '')
		ORDER BY `+order,
		symbol, posSide)
}

// FindActiveBuys — непушенные докупки: сначала меньший объём, при равном
// объёме дешёвый филл. Если по дороге упрёмся в потолок средств, мелкие
// ордера уже будут забраны, а не потрачены впустую на один крупный.
func (s *Orders) FindActiveBuys(ctx context.Context, symbol, posSide string) ([]*models.Order, error) {
	order := "volume ASC, price ASC"
	if posSide == models.PosSideShort {
		order = "volume ASC, price DESC"
	}
	return s.findActive(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE kind = 'buy' AND symbol = $1 AND pos_side = $2
		  AND (exchange_order_id IS NULL OR exchange_order_id = '')
		ORDER BY `+order,
		symbol, posSide)
}

// FindActiveBuysInBand — то же, но в асимметричной полосе вокруг индекса.
func (s *Orders) FindActiveBuysInBand(ctx context.Context, symbol, posSide string, from, to float64) ([]*models.Order, error) {
	order := "volume ASC, price ASC"
	if posSide == models.PosSideShort {
		order = "volume ASC, price DESC"
	}
	return s.findActive(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE kind = 'buy' AND symbol = $1 AND pos_side = $2
		  AND (exchange_order_id IS NULL OR exchange_order_id = '')
		  AND price >= $3 AND price <= $4
		ORDER BY `+order,
		symbol, posSide, from, to)
}

// FindNearestStop — ближайший к ref стоп пары снизу либо сверху
// (якорь для селектора стратегий). nil без ошибки, если стопов нет.
func (s *Orders) FindNearestStop(ctx context.Context, symbol, posSide string, ref float64, below bool) (*models.Order, error) {
	cmp, order := "<", "price DESC"
	if !below {
		cmp, order = ">", "price ASC"
	}
	orders, err := s.findActive(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE kind = 'stop' AND symbol = $1 AND pos_side = $2
		  AND price `+cmp+` $3
		ORDER BY `+order+`
		LIMIT 1`,
		symbol, posSide, ref)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return orders[0], nil
}

// PushedExchangeIDs — exchange id всех уже отправленных ордеров символа.
// Нужен обработчику освобождения слотов условных ордеров.
func (s *Orders) PushedExchangeIDs(ctx context.Context, symbol string) (map[string]struct{}, error) {
	rows, err := s.db.Conn().Query(ctx, `
		SELECT exchange_order_id
		FROM orders
		WHERE symbol = $1 AND exchange_order_id IS NOT NULL AND exchange_order_id <> ''`,
		symbol)
	if err != nil {
		return nil, fmt.Errorf("store.PushedExchangeIDs: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store.PushedExchangeIDs: %w", err)
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// ActiveSymbols — символы с живыми отложенными ордерами (для warmup/подписки).
func (s *Orders) ActiveSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.Conn().Query(ctx, `
		SELECT DISTINCT symbol
		FROM orders
		WHERE exchange_order_id IS NULL OR exchange_order_id = ''`)
	if err != nil {
		return nil, fmt.Errorf("store.ActiveSymbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Save — upsert состояния ордера.
func (s *Orders) Save(ctx context.Context, o *models.Order) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("store.Save: %w", err)
		}
	}()

	flagsRaw, err := sonic.Marshal(o.Flags)
	if err != nil {
		return err
	}
	contextRaw, err := sonic.Marshal(o.Context)
	if err != nil {
		return err
	}

	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			INSERT INTO orders (id, kind, symbol, pos_side, price, volume, trigger_delta,
				original_price, exchange_order_id, flags, context)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				price = EXCLUDED.price,
				volume = EXCLUDED.volume,
				trigger_delta = EXCLUDED.trigger_delta,
				original_price = EXCLUDED.original_price,
				exchange_order_id = EXCLUDED.exchange_order_id,
				flags = EXCLUDED.flags,
				context = EXCLUDED.context,
				updated_at = now()`,
			o.ID, o.Kind, o.Symbol, o.PosSide, o.Price, o.Volume, o.TriggerDelta,
			o.OriginalPrice, o.ExchangeOrderID, flagsRaw, contextRaw)
		return err
	})
}

func (s *Orders) Remove(ctx context.Context, o *models.Order) error {
	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `DELETE FROM orders WHERE id = $1`, o.ID)
		if err != nil {
			return fmt.Errorf("store.Remove: %w", err)
		}
		return nil
	})
}
