package pricing

import "github.com/shopspring/decimal"

// CommissionBreakdown is the marketplace fee for one candidate price.
// All amounts are tax-exclusive.
type CommissionBreakdown struct {
	BaseCommission decimal.Decimal `json:"base_commission"`
	TierSurcharge  decimal.Decimal `json:"tier_surcharge"`
	MiscFee        decimal.Decimal `json:"misc_fee"`
	Total          decimal.Decimal `json:"total"`
}

// CalculateCommission computes the marketplace fee for a tax-inclusive price.
func CalculateCommission(price, basePercent, taxPercent, miscPercent decimal.Decimal, schedule FeeSchedule) CommissionBreakdown {
	factor := taxFactor(taxPercent)
	priceExTax := price.Div(factor)

	base := priceExTax.Mul(basePercent).Div(hundred)
	tier := schedule.TierSurcharge(price).Div(factor)
	misc := priceExTax.Mul(miscPercent).Div(hundred)

	return CommissionBreakdown{
		BaseCommission: base,
		TierSurcharge:  tier,
		MiscFee:        misc,
		Total:          base.Add(tier).Add(misc),
	}
}
