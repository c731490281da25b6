package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BudgetScope is exactly one of Item, Brand, Category or Subcategory.
// The zero value is the unrecognised scope and matches nothing.
type BudgetScope struct {
	kind  ScopeKind
	value string
}

func ItemScope(itemId string) BudgetScope { return newScope(ScopeItem, itemId) }

func BrandScope(brand string) BudgetScope { return newScope(ScopeBrand, brand) }

func CategoryScope(category string) BudgetScope { return newScope(ScopeCategory, category) }

func SubcategoryScope(subcategory string) BudgetScope {
	return newScope(ScopeSubcategory, subcategory)
}

func newScope(kind ScopeKind, value string) BudgetScope {
	value = strings.TrimSpace(value)
	if value == "" {
		return BudgetScope{}
	}
	return BudgetScope{kind: kind, value: value}
}

// ParseBudgetScope rebuilds a scope from its stored columns. Unknown kinds
// and empty values give the zero scope.
func ParseBudgetScope(kind ScopeKind, value string) BudgetScope {
	switch kind {
	case ScopeItem, ScopeBrand, ScopeCategory, ScopeSubcategory:
		return newScope(kind, value)
	}
	return BudgetScope{}
}

func (s BudgetScope) Kind() ScopeKind { return s.kind }

func (s BudgetScope) Value() string { return s.value }

func (s BudgetScope) IsZero() bool { return s.kind == ScopeNone }

// Matches applies the scope rule to one sale.
func (s BudgetScope) Matches(sale *SaleMargin) bool {
	switch s.kind {
	case ScopeItem:
		return sale.ItemId == s.value
	case ScopeBrand:
		return strings.EqualFold(sale.Brand, s.value)
	case ScopeCategory:
		return strings.EqualFold(sale.Category, s.value)
	case ScopeSubcategory:
		return sale.Subcategory == s.value
	}
	return false
}

// PromotionalBudget ("offset") subsidises margin on the sales in its scope,
// optionally capped by units and/or a foreign-currency amount.
// Members of a shared group carry GroupId; their own scope is optional and
// only item scopes take part in group matching.
type PromotionalBudget struct {
	ID         int       `gorm:"primary_key" json:"id"`
	Name       string    `gorm:"size:150;not null" json:"name"`
	ScopeKind  ScopeKind `gorm:"size:20;index:idx_budget_scope,priority:1" json:"scope_kind"`
	ScopeValue string    `gorm:"size:100;index:idx_budget_scope,priority:2" json:"scope_value"`
	GroupId    *int      `gorm:"index" json:"group_id"`

	Kind     BudgetKind      `gorm:"size:20;not null" json:"kind"`
	Amount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Percent  decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"percent"`
	Currency BudgetCurrency  `gorm:"size:10;not null;default:'local'" json:"currency"`

	EffectiveFrom time.Time  `gorm:"not null" json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to"`

	MaxUnits  *decimal.Decimal `gorm:"type:decimal(20,4)" json:"max_units"`
	MaxAmount *decimal.Decimal `gorm:"type:decimal(20,4)" json:"max_amount"`

	Marketplace    bool `gorm:"not null;default:true" json:"marketplace"`
	DirectTransfer bool `gorm:"not null;default:false" json:"direct_transfer"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b *PromotionalBudget) Scope() BudgetScope {
	return ParseBudgetScope(b.ScopeKind, b.ScopeValue)
}

func (b *PromotionalBudget) SetScope(s BudgetScope) {
	b.ScopeKind = s.Kind()
	b.ScopeValue = s.Value()
}

func (b *PromotionalBudget) HasCap() bool {
	return b.MaxUnits != nil || b.MaxAmount != nil
}

// AppliesTo reports whether the budget is enabled for channel.
func (b *PromotionalBudget) AppliesTo(channel Channel) bool {
	switch channel {
	case ChannelMarketplace:
		return b.Marketplace
	case ChannelDirectTransfer:
		return b.DirectTransfer
	}
	return false
}

// InEffect reports whether date falls inside [EffectiveFrom, EffectiveTo].
func (b *PromotionalBudget) InEffect(date time.Time) bool {
	if date.Before(b.EffectiveFrom) {
		return false
	}
	return b.EffectiveTo == nil || !date.After(*b.EffectiveTo)
}

// SharedGroup pools one cap across its member budgets. The cap is read from
// the first capped member.
type SharedGroup struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:150;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
