package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestCalculateCommission_BelowFirstThreshold(t *testing.T) {
	got := CalculateCommission(d(12100), d(10), d(21), d(5), DefaultFeeSchedule())

	assert.True(t, got.BaseCommission.Equal(d(1000)), "base=%s", got.BaseCommission)
	assert.True(t, got.MiscFee.Equal(d(500)), "misc=%s", got.MiscFee)
	assert.InDelta(t, 1200/1.21, got.TierSurcharge.InexactFloat64(), 1e-6)
	assert.True(t, got.Total.Equal(got.BaseCommission.Add(got.TierSurcharge).Add(got.MiscFee)))
}

func TestFeeSchedule_TierSurchargeSteps(t *testing.T) {
	s := DefaultFeeSchedule()
	cases := []struct {
		price float64
		want  float64
	}{
		{1, 1200},
		{14999, 1200},
		{15000, 900},
		{24999, 900},
		{25000, 600},
		{32999, 600},
		{33000, 0},
		{500000, 0},
	}
	for _, c := range cases {
		assert.True(t, s.TierSurcharge(d(c.price)).Equal(d(c.want)), "price=%v", c.price)
	}
}

func TestTierBoundary_AtThirdThreshold(t *testing.T) {
	s := DefaultFeeSchedule()
	p := MarketplaceParams{
		Cost:                  d(10000),
		TaxPercent:            d(21),
		BaseCommissionPercent: d(15),
		MiscPercent:           d(6.5),
		ShippingCost:          d(500),
		Schedule:              s,
	}

	at := EvaluateMarketplace(s.Threshold3, p)
	assert.True(t, at.Commission.TierSurcharge.IsZero())
	assert.InDelta(t, 500/1.21, at.ShippingSubsidy.InexactFloat64(), 1e-6)

	below := EvaluateMarketplace(s.Threshold3.Sub(d(1)), p)
	assert.InDelta(t, 600/1.21, below.Commission.TierSurcharge.InexactFloat64(), 1e-6)
	assert.True(t, below.ShippingSubsidy.IsZero())
}

func TestMarkup_ZeroCost(t *testing.T) {
	assert.True(t, Markup(d(100), decimal.Zero).IsZero())
	assert.True(t, Markup(d(100), d(-5)).IsZero())
	assert.True(t, Markup(d(130), d(100)).Equal(d(0.3)))
}

func TestFeeSchedule_Validate(t *testing.T) {
	s := DefaultFeeSchedule()
	require.NoError(t, s.Validate(d(600), d(15), d(6.5)))

	assert.ErrorIs(t, s.Validate(d(601), d(15), d(6.5)), ErrNonMonotonicSchedule)
	assert.ErrorIs(t, s.Validate(d(0), d(95), d(6.5)), ErrNonMonotonicSchedule)

	increasing := s
	increasing.SurchargeT2T3 = d(1000)
	assert.ErrorIs(t, increasing.Validate(decimal.Zero, d(15), d(6.5)), ErrNonMonotonicSchedule)

	unordered := s
	unordered.Threshold2 = d(40000)
	assert.ErrorIs(t, unordered.Validate(decimal.Zero, d(15), d(6.5)), ErrInvalidFeeSchedule)
}
