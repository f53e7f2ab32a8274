package helper

import (
	"math"
	"strings"
)

func PairKey(symbol, posSide string) string { return symbol + ":" + posSide }

func SplitPairKey(key string) (symbol string, posSide string, ok bool) {
	// ожидаем формат "symbol:posSide"
	i := strings.LastIndexByte(key, ':')
	if i <= 0 || i >= len(key)-1 {
		return "", "", false
	}

	symbol = key[:i]
	posSide = key[i+1:]

	if symbol == "" {
		return "", "", false
	}

	switch posSide {
	case "long", "short":
		// ok
	default:
		return "", "", false
	}

	return symbol, posSide, true
}

func RoundDownToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Floor(px/tick + 1e-12)
	return steps * tick
}

func RoundUpToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Ceil(px/tick - 1e-12)
	return steps * tick
}
