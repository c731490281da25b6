package models

import (
	"encoding/json"
	"errors"
)

type Channel string

const (
	ChannelMarketplace    Channel = "marketplace"
	ChannelDirectTransfer Channel = "direct_transfer"
)

func (c Channel) IsValid() bool {
	return c == ChannelMarketplace || c == ChannelDirectTransfer
}

// convert input to enum type
func (c *Channel) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("channel must be string")
	}
	switch Channel(str) {
	case ChannelMarketplace, ChannelDirectTransfer:
		*c = Channel(str)
	default:
		return errors.New("invalid channel")
	}
	return nil
}

type BudgetKind string

const (
	BudgetKindFixed         BudgetKind = "fixed"
	BudgetKindPerUnit       BudgetKind = "per_unit"
	BudgetKindPercentOfCost BudgetKind = "percent_of_cost"
)

func (k BudgetKind) IsValid() bool {
	switch k {
	case BudgetKindFixed, BudgetKindPerUnit, BudgetKindPercentOfCost:
		return true
	}
	return false
}

// BudgetCurrency says which currency a budget amount is expressed in.
type BudgetCurrency string

const (
	BudgetCurrencyLocal   BudgetCurrency = "local"
	BudgetCurrencyForeign BudgetCurrency = "foreign"
)

type ScopeKind string

const (
	ScopeNone        ScopeKind = ""
	ScopeItem        ScopeKind = "item"
	ScopeBrand       ScopeKind = "brand"
	ScopeCategory    ScopeKind = "category"
	ScopeSubcategory ScopeKind = "subcategory"
)

type BreachKind string

const (
	BreachNone   BreachKind = "none"
	BreachUnits  BreachKind = "units"
	BreachAmount BreachKind = "amount"
)

type LedgerOwnerType string

const (
	LedgerOwnerBudget LedgerOwnerType = "budget"
	LedgerOwnerGroup  LedgerOwnerType = "group"
)

func (t LedgerOwnerType) IsValid() bool {
	return t == LedgerOwnerBudget || t == LedgerOwnerGroup
}
