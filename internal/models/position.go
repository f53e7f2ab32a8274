package models

const (
	PosSideLong  = "long"
	PosSideShort = "short"
)

// Position — снапшот позиции с биржи. Не мутируется после фетча.
// LiquidationPrice == 0 у support-ноги хеджа: её ликвидировать нельзя.
type Position struct {
	Symbol           string
	PosSide          string // long/short
	EntryPrice       float64
	Size             float64
	LiquidationPrice float64
	UnrealisedPnl    float64
	PositionValue    float64
}

// CanLiquidate — нога вообще способна ликвидироваться.
func (p *Position) CanLiquidate() bool { return p.LiquidationPrice > 0 }

func OppositeSide(posSide string) string {
	if posSide == PosSideLong {
		return PosSideShort
	}
	return PosSideLong
}

// Ticker — цены одного фетча, переиспользуются на весь проход координатора.
type Ticker struct {
	Symbol     string
	IndexPrice float64
	MarkPrice  float64
	LastPrice  float64
}
