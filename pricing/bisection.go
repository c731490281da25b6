package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const bisectionMaxIterations = 50

var (
	bisectionTolerance   = decimal.NewFromFloat(0.001)
	bisectionMinWidth    = decimal.NewFromInt(1)
	monotonicityEpsilon  = decimal.New(1, -9)
	bisectionUpperFactor = decimal.NewFromInt(10)
	two                  = decimal.NewFromInt(2)
)

// MarketplaceParams are the inputs of the marketplace solver. Cost is in
// local currency; percentages are expressed as 0-100.
type MarketplaceParams struct {
	Cost                  decimal.Decimal
	TargetMarkupPercent   decimal.Decimal
	TaxPercent            decimal.Decimal
	BaseCommissionPercent decimal.Decimal
	MiscPercent           decimal.Decimal
	ShippingCost          decimal.Decimal
	Schedule              FeeSchedule
}

type MarketplaceResult struct {
	MarketplaceEvaluation
	RealizedMarkupPercent decimal.Decimal `json:"realized_markup_percent"`
	Iterations            int             `json:"iterations"`
	Converged             bool            `json:"converged"`
}

// SolveMarketplace finds the integer price whose realized markup is closest
// to the target by bisecting [cost, 10*cost]. Degenerate inputs (cost or
// target not positive) return a zero result.
//
// Markup must be non-decreasing in price; a bracket that contradicts this
// returns ErrNonMonotonicSchedule instead of a wrong price.
func SolveMarketplace(p MarketplaceParams) (MarketplaceResult, error) {
	if !p.Cost.IsPositive() || !p.TargetMarkupPercent.IsPositive() {
		return MarketplaceResult{}, nil
	}
	target := p.TargetMarkupPercent.Div(hundred)

	lo := p.Cost
	hi := p.Cost.Mul(bisectionUpperFactor)
	markupLo := EvaluateMarketplace(lo, p).Markup
	markupHi := EvaluateMarketplace(hi, p).Markup
	if markupLo.GreaterThan(markupHi.Add(monotonicityEpsilon)) {
		return MarketplaceResult{}, fmt.Errorf("%w: markup(%s)=%s > markup(%s)=%s",
			ErrNonMonotonicSchedule, lo, markupLo, hi, markupHi)
	}

	var (
		candidate  = lo
		iterations int
		converged  bool
	)
	for iterations < bisectionMaxIterations {
		iterations++
		candidate = lo.Add(hi).Div(two)
		realized := EvaluateMarketplace(candidate, p).Markup

		if realized.LessThan(markupLo.Sub(monotonicityEpsilon)) || realized.GreaterThan(markupHi.Add(monotonicityEpsilon)) {
			return MarketplaceResult{}, fmt.Errorf("%w: markup(%s)=%s outside [%s, %s]",
				ErrNonMonotonicSchedule, candidate, realized, markupLo, markupHi)
		}

		diff := target.Sub(realized)
		if diff.Abs().LessThan(bisectionTolerance) {
			converged = true
			break
		}
		if diff.IsPositive() {
			lo, markupLo = candidate, realized
		} else {
			hi, markupHi = candidate, realized
		}
		if hi.Sub(lo).LessThan(bisectionMinWidth) {
			converged = true
			break
		}
	}

	eval := EvaluateMarketplace(candidate.Round(0), p)
	return MarketplaceResult{
		MarketplaceEvaluation: eval,
		RealizedMarkupPercent: eval.Markup.Mul(hundred),
		Iterations:            iterations,
		Converged:             converged,
	}, nil
}
