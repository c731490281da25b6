package workflow

import (
	"sort"
	"time"

	"github.com/mmdatafocus/pricing_backend/models"
)

// ScopeMatch is one sale attributed to the budget that claimed it.
type ScopeMatch struct {
	Sale   models.SaleMargin
	Budget *models.PromotionalBudget
}

// SaleQueryForBudget narrows the sale scan for one budget. ok is false when
// the budget has no recognised scope.
func SaleQueryForBudget(budget *models.PromotionalBudget) (models.SaleQuery, bool) {
	scope := budget.Scope()
	if scope.IsZero() {
		return models.SaleQuery{}, false
	}
	return models.SaleQuery{
		From:   budget.EffectiveFrom,
		To:     budget.EffectiveTo,
		Scope:  scope.Kind(),
		Values: []string{scope.Value()},
	}, true
}

// budgetClaims is the whole matching rule for a single budget.
func budgetClaims(budget *models.PromotionalBudget, scope models.BudgetScope, sale *models.SaleMargin) bool {
	return budget.InEffect(sale.SaleDate) &&
		budget.AppliesTo(sale.Channel) &&
		scope.Matches(sale)
}

// MatchBudget returns the sales a standalone budget applies to, in
// (sale date, sale id) order.
func MatchBudget(budget *models.PromotionalBudget, sales []models.SaleMargin) []ScopeMatch {
	scope := budget.Scope()
	if scope.IsZero() {
		return nil
	}
	var matches []ScopeMatch
	for i := range sales {
		if budgetClaims(budget, scope, &sales[i]) {
			matches = append(matches, ScopeMatch{Sale: sales[i], Budget: budget})
		}
	}
	sortMatches(matches)
	return matches
}

// groupItemMembers returns the members taking part in group matching:
// item-scoped budgets, lowest id first.
func groupItemMembers(members []models.PromotionalBudget) []*models.PromotionalBudget {
	var out []*models.PromotionalBudget
	for i := range members {
		if members[i].Scope().Kind() == models.ScopeItem {
			out = append(out, &members[i])
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// SaleQueryForGroup covers every item member's scope and effective window.
func SaleQueryForGroup(members []models.PromotionalBudget) (models.SaleQuery, bool) {
	items := groupItemMembers(members)
	if len(items) == 0 {
		return models.SaleQuery{}, false
	}
	q := models.SaleQuery{Scope: models.ScopeItem, From: items[0].EffectiveFrom}
	var (
		to        *time.Time
		openEnded bool
		values    []string
	)
	for _, m := range items {
		if m.EffectiveFrom.Before(q.From) {
			q.From = m.EffectiveFrom
		}
		if m.EffectiveTo == nil {
			openEnded = true
		} else if to == nil || m.EffectiveTo.After(*to) {
			t := *m.EffectiveTo
			to = &t
		}
		values = append(values, m.Scope().Value())
	}
	if !openEnded {
		q.To = to
	}
	q.Values = models.NormalizeScopeValues(values)
	return q, true
}

// MatchGroup is the union of item-level matches across the group's members.
// A sale claimed by more than one member is attributed to the lowest id.
func MatchGroup(members []models.PromotionalBudget, sales []models.SaleMargin) []ScopeMatch {
	items := groupItemMembers(members)
	if len(items) == 0 {
		return nil
	}
	var matches []ScopeMatch
	for i := range sales {
		for _, m := range items {
			if budgetClaims(m, m.Scope(), &sales[i]) {
				matches = append(matches, ScopeMatch{Sale: sales[i], Budget: m})
				break
			}
		}
	}
	sortMatches(matches)
	return matches
}

func sortMatches(matches []ScopeMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].Sale, matches[j].Sale
		if !a.SaleDate.Equal(b.SaleDate) {
			return a.SaleDate.Before(b.SaleDate)
		}
		if a.SaleId != b.SaleId {
			return a.SaleId < b.SaleId
		}
		return a.ID < b.ID
	})
}
