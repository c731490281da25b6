package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleMargin is one historical sale line as mirrored from the ERP margin
// report. UnitCost is in local currency; ExchangeRate is the rate that was
// in force on SaleDate (zero when the ERP did not record one).
type SaleMargin struct {
	ID           int             `gorm:"primary_key" json:"id"`
	SaleId       string          `gorm:"size:64;not null;index" json:"sale_id"`
	SaleDate     time.Time       `gorm:"not null;index" json:"sale_date"`
	ItemId       string          `gorm:"size:64;not null;index" json:"item_id"`
	Brand        string          `gorm:"size:100;index" json:"brand"`
	Category     string          `gorm:"size:100;index" json:"category"`
	Subcategory  string          `gorm:"size:100;index" json:"subcategory"`
	Quantity     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitCost     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	ExchangeRate decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"exchange_rate"`
	Channel      Channel         `gorm:"size:20;not null;index" json:"channel"`
}

// SaleQuery narrows the sale scan for a ledger rebuild. The matcher still
// applies the exact rules; the query only has to return a superset.
type SaleQuery struct {
	From   time.Time
	To     *time.Time
	Scope  ScopeKind
	Values []string
}
