package settlement

import "github.com/shopspring/decimal"

// CommissionCalculator decides the platform's cut of a winning bid. The
// seller is credited the final price minus this amount.
type CommissionCalculator interface {
	Commission(finalPrice decimal.Decimal) decimal.Decimal
}

type bpsCalculator struct {
	bps decimal.Decimal
}

// NewBpsCalculator takes commission in basis points, so 250 means 2.5%.
// Zero or negative basis points mean no commission.
func NewBpsCalculator(bps int) CommissionCalculator {
	if bps <= 0 {
		return bpsCalculator{bps: decimal.Zero}
	}
	return bpsCalculator{bps: decimal.NewFromInt(int64(bps))}
}

func (c bpsCalculator) Commission(finalPrice decimal.Decimal) decimal.Decimal {
	if c.bps.IsZero() || !finalPrice.IsPositive() {
		return decimal.Zero
	}
	return finalPrice.Mul(c.bps).Div(decimal.NewFromInt(10000)).Round(2)
}
