package projector

import (
	"math"

	"github.com/shopspring/decimal"

	"tradepulse/internal/event"
)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// RiskDistance is the absolute distance between entry and stop, the unit
// of one R.
func RiskDistance(entry, stop float64) float64 {
	if entry <= 0 || stop <= 0 {
		return 0
	}
	return decToFloat(decFromFloat(entry).Sub(decFromFloat(stop)).Abs())
}

// ExcursionR converts a price into a signed R-multiple relative to entry,
// positive in the trade's favor.
func ExcursionR(entry, risk, price float64, dir event.Direction) float64 {
	if entry <= 0 || risk <= 0 || price <= 0 {
		return 0
	}
	move := decFromFloat(price).Sub(decFromFloat(entry))
	if dir == event.DirectionBearish {
		move = move.Neg()
	}
	return decToFloat(move.Div(decFromFloat(risk)))
}

// ImpliedPrice reverse-solves ExcursionR: the price at which a trade with
// the given entry/risk shows the given favorable excursion.
func ImpliedPrice(entry, risk, mfe float64, dir event.Direction) float64 {
	if entry <= 0 || risk <= 0 {
		return 0
	}
	offset := decFromFloat(mfe).Mul(decFromFloat(risk))
	base := decFromFloat(entry)
	if dir == event.DirectionBearish {
		return decToFloat(base.Sub(offset))
	}
	return decToFloat(base.Add(offset))
}

func maxFloat(a, b float64) float64 {
	if decFromFloat(b).Cmp(decFromFloat(a)) > 0 {
		return b
	}
	return a
}
