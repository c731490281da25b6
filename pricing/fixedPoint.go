package pricing

import "github.com/shopspring/decimal"

const DefaultDirectTransferMaxIterations = 100

var (
	// PaymentProcessingPercent is the flat processor commission on the
	// tax-inclusive price.
	PaymentProcessingPercent = decimal.NewFromFloat(0.73)
	// GrossReceiptsPercent is charged on the tax-exclusive price.
	GrossReceiptsPercent = decimal.NewFromInt(5)

	fixedPointTolerance = decimal.NewFromFloat(0.0001)
	seedMargin          = decimal.NewFromFloat(1.1)
)

// DirectTransferParams are the inputs of the direct-transfer solver.
// TargetMarkup is a fraction (0.20 = 20%).
type DirectTransferParams struct {
	Cost          decimal.Decimal
	TaxPercent    decimal.Decimal
	TargetMarkup  decimal.Decimal
	MaxIterations int
}

type DirectTransferEvaluation struct {
	Price            decimal.Decimal `json:"price"`
	Commission       decimal.Decimal `json:"commission"`
	CommissionTax    decimal.Decimal `json:"commission_tax"`
	PriceExTax       decimal.Decimal `json:"price_ex_tax"`
	GrossReceiptsTax decimal.Decimal `json:"gross_receipts_tax"`
	NetTaxIncluded   decimal.Decimal `json:"net_tax_included"`
	Net              decimal.Decimal `json:"net"`
	Markup           decimal.Decimal `json:"markup"`
}

type DirectTransferResult struct {
	DirectTransferEvaluation
	RealizedMarkup decimal.Decimal `json:"realized_markup"`
	Iterations     int             `json:"iterations"`
	Converged      bool            `json:"converged"`
}

func EvaluateDirectTransfer(price decimal.Decimal, p DirectTransferParams) DirectTransferEvaluation {
	factor := taxFactor(p.TaxPercent)
	commission := price.Mul(PaymentProcessingPercent).Div(hundred)
	commissionTax := commission.Mul(p.TaxPercent).Div(hundred)
	priceExTax := price.Div(factor)
	grossReceipts := priceExTax.Mul(GrossReceiptsPercent).Div(hundred)
	netTaxIncluded := price.Sub(commission).Sub(commissionTax)
	net := netTaxIncluded.Div(factor).Sub(grossReceipts)
	return DirectTransferEvaluation{
		Price:            price,
		Commission:       commission,
		CommissionTax:    commissionTax,
		PriceExTax:       priceExTax,
		GrossReceiptsTax: grossReceipts,
		NetTaxIncluded:   netTaxIncluded,
		Net:              net,
		Markup:           Markup(net, p.Cost),
	}
}

// SolveDirectTransfer rescales the price by (1+target)/(1+realized) until
// the realized markup is within tolerance, then rounds to the nearest
// multiple of 10 and reports the markup of that rounded price.
// Converged is false when MaxIterations ran out; the price is still usable.
func SolveDirectTransfer(p DirectTransferParams) DirectTransferResult {
	if !p.Cost.IsPositive() {
		return DirectTransferResult{}
	}
	maxIterations := p.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultDirectTransferMaxIterations
	}

	targetFactor := one.Add(p.TargetMarkup)
	price := p.Cost.Mul(taxFactor(p.TaxPercent)).Mul(targetFactor).Mul(seedMargin)

	var (
		iterations int
		converged  bool
	)
	for iterations < maxIterations {
		iterations++
		realized := EvaluateDirectTransfer(price, p).Markup
		if realized.Sub(p.TargetMarkup).Abs().LessThan(fixedPointTolerance) {
			converged = true
			break
		}
		realizedFactor := one.Add(realized)
		if !realizedFactor.IsPositive() {
			break
		}
		price = price.Mul(targetFactor).Div(realizedFactor)
	}

	rounded := price.Div(ten).Round(0).Mul(ten)
	eval := EvaluateDirectTransfer(rounded, p)
	return DirectTransferResult{
		DirectTransferEvaluation: eval,
		RealizedMarkup:           eval.Markup,
		Iterations:               iterations,
		Converged:                converged,
	}
}
