package models

// OrderKind — стоп или докупка. Обе стороны живут в одной таблице,
// различаются только дискриминантом и набором флагов.
type OrderKind string

const (
	OrderKindStop OrderKind = "stop"
	OrderKindBuy  OrderKind = "buy"
)

const (
	// DustVolume — остаток, который не имеет смысла держать в базе.
	DustVolume = 0.005

	// CtxActivationOrderID — ордер считается живым на бирже только после
	// исполнения ордера с этим exchange id.
	CtxActivationOrderID = "activation_order_id"
	// CtxBatchID — корреляция ордеров одной лесенки.
	CtxBatchID = "batch_id"
)

type OrderFlags struct {
	// стоп-флаги
	TakeProfit                bool `json:"take_profit,omitempty"`
	CloseByMarket             bool `json:"close_by_market,omitempty"`
	WithoutOpposite           bool `json:"without_opposite,omitempty"`
	AdditionalFromLiquidation bool `json:"additional_from_liquidation,omitempty"`
	SupportFromMainHedgeStop  bool `json:"support_from_main_hedge_stop,omitempty"`

	// бай-флаги
	WithOpposite  bool `json:"with_opposite,omitempty"`
	WithShortStop bool `json:"with_short_stop,omitempty"`
}

// Order — локальный "отложенный" ордер. Пока ExchangeOrderID пустой,
// ордер не отправлен на биржу и участвует в выборке кандидатов.
type Order struct {
	ID      string
	Kind    OrderKind
	Symbol  string
	PosSide string // long/short

	Price        float64
	Volume       float64
	TriggerDelta float64
	// OriginalPrice заполняется один раз при первом репрайсе,
	// повторный репрайс его не перетирает.
	OriginalPrice float64

	ExchangeOrderID string

	Flags   OrderFlags
	Context map[string]string
}

// Pushed — ордер уже ушёл на биржу.
func (o *Order) Pushed() bool { return o.ExchangeOrderID != "" }

// IsDust — остаток меньше порога, строку можно удалять.
func (o *Order) IsDust() bool { return o.Volume <= DustVolume }

func (o *Order) CtxValue(key string) string {
	if o.Context == nil {
		return ""
	}
	return o.Context[key]
}

func (o *Order) SetCtxValue(key, value string) {
	if o.Context == nil {
		o.Context = make(map[string]string)
	}
	o.Context[key] = value
}

// OppositeSpec — транзиентная заготовка противоположного ордера от селектора
// стратегий. Не персистится сама по себе: сразу реализуется фабрикой в Order.
type OppositeSpec struct {
	Price             float64
	Volume            float64
	TriggerDelta      float64
	ActivationOrderID string // exchange id исходного ордера
}

// MarkRepriced переписывает цену, сохранив самую первую в OriginalPrice.
func (o *Order) MarkRepriced(newPrice float64) {
	if o.OriginalPrice == 0 {
		o.OriginalPrice = o.Price
	}
	o.Price = newPrice
}
