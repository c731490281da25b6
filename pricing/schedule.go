package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
	ten     = decimal.NewFromInt(10)
)

var (
	ErrInvalidFeeSchedule   = errors.New("invalid fee schedule")
	ErrNonMonotonicSchedule = errors.New("fee schedule is not monotonic in price")
)

// FeeSchedule holds the marketplace tier table. Surcharges are tax-inclusive
// flat amounts; prices at or above Threshold3 fall in the free-shipping zone.
type FeeSchedule struct {
	Threshold1 decimal.Decimal `json:"threshold_1"`
	Threshold2 decimal.Decimal `json:"threshold_2"`
	Threshold3 decimal.Decimal `json:"threshold_3"`

	SurchargeBelowT1 decimal.Decimal `json:"surcharge_below_t1"`
	SurchargeT1T2    decimal.Decimal `json:"surcharge_t1_t2"`
	SurchargeT2T3    decimal.Decimal `json:"surcharge_t2_t3"`
}

func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		Threshold1:       decimal.NewFromInt(15000),
		Threshold2:       decimal.NewFromInt(25000),
		Threshold3:       decimal.NewFromInt(33000),
		SurchargeBelowT1: decimal.NewFromInt(1200),
		SurchargeT1T2:    decimal.NewFromInt(900),
		SurchargeT2T3:    decimal.NewFromInt(600),
	}
}

// TierSurcharge returns the tax-inclusive flat surcharge for price.
func (s FeeSchedule) TierSurcharge(price decimal.Decimal) decimal.Decimal {
	switch {
	case price.LessThan(s.Threshold1):
		return s.SurchargeBelowT1
	case price.LessThan(s.Threshold2):
		return s.SurchargeT1T2
	case price.LessThan(s.Threshold3):
		return s.SurchargeT2T3
	default:
		return decimal.Zero
	}
}

// FreeShipping reports whether price falls in the zone where the seller
// subsidises shipping instead of paying a tier surcharge.
func (s FeeSchedule) FreeShipping(price decimal.Decimal) bool {
	return price.GreaterThanOrEqual(s.Threshold3)
}

// Validate rejects schedules under which markup cannot be non-decreasing in
// price, which the bisection solver depends on.
func (s FeeSchedule) Validate(shippingCost, basePercent, miscPercent decimal.Decimal) error {
	if !s.Threshold1.IsPositive() || !s.Threshold1.LessThan(s.Threshold2) || !s.Threshold2.LessThan(s.Threshold3) {
		return fmt.Errorf("%w: thresholds must be positive and ascending (%s, %s, %s)",
			ErrInvalidFeeSchedule, s.Threshold1, s.Threshold2, s.Threshold3)
	}
	if s.SurchargeT2T3.IsNegative() || shippingCost.IsNegative() {
		return fmt.Errorf("%w: negative surcharge or shipping cost", ErrInvalidFeeSchedule)
	}
	if s.SurchargeT1T2.GreaterThan(s.SurchargeBelowT1) || s.SurchargeT2T3.GreaterThan(s.SurchargeT1T2) {
		return fmt.Errorf("%w: tier surcharges increase with price", ErrNonMonotonicSchedule)
	}
	if shippingCost.GreaterThan(s.SurchargeT2T3) {
		return fmt.Errorf("%w: shipping cost %s exceeds last tier surcharge %s",
			ErrNonMonotonicSchedule, shippingCost, s.SurchargeT2T3)
	}
	if basePercent.Add(miscPercent).GreaterThanOrEqual(hundred) {
		return fmt.Errorf("%w: commission percentages reach 100%%", ErrNonMonotonicSchedule)
	}
	return nil
}

func taxFactor(taxPercent decimal.Decimal) decimal.Decimal {
	return one.Add(taxPercent.Div(hundred))
}
