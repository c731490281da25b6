package pricing

import "github.com/shopspring/decimal"

// ShippingSubsidy is the tax-exclusive shipping cost the seller absorbs.
// It only applies in the free-shipping zone.
func ShippingSubsidy(price, shippingCost, taxPercent decimal.Decimal, schedule FeeSchedule) decimal.Decimal {
	if !schedule.FreeShipping(price) {
		return decimal.Zero
	}
	return shippingCost.Div(taxFactor(taxPercent))
}

// NetProceeds is what the seller keeps from a tax-inclusive price.
func NetProceeds(price, taxPercent, shippingSubsidy decimal.Decimal, commission CommissionBreakdown) decimal.Decimal {
	return price.Div(taxFactor(taxPercent)).Sub(shippingSubsidy).Sub(commission.Total)
}

// Markup returns net/cost - 1 as a fraction, or zero when cost is not positive.
func Markup(net, cost decimal.Decimal) decimal.Decimal {
	if !cost.IsPositive() {
		return decimal.Zero
	}
	return net.Div(cost).Sub(one)
}

// MarketplaceEvaluation is the full fee picture at one price.
type MarketplaceEvaluation struct {
	Price           decimal.Decimal     `json:"price"`
	Commission      CommissionBreakdown `json:"commission"`
	ShippingSubsidy decimal.Decimal     `json:"shipping_subsidy"`
	Net             decimal.Decimal     `json:"net"`
	Markup          decimal.Decimal     `json:"markup"`
}

// EvaluateMarketplace runs the commission calculator and the markup
// evaluator for a single candidate price.
func EvaluateMarketplace(price decimal.Decimal, p MarketplaceParams) MarketplaceEvaluation {
	commission := CalculateCommission(price, p.BaseCommissionPercent, p.TaxPercent, p.MiscPercent, p.Schedule)
	subsidy := ShippingSubsidy(price, p.ShippingCost, p.TaxPercent, p.Schedule)
	net := NetProceeds(price, p.TaxPercent, subsidy, commission)
	return MarketplaceEvaluation{
		Price:           price,
		Commission:      commission,
		ShippingSubsidy: subsidy,
		Net:             net,
		Markup:          Markup(net, p.Cost),
	}
}
