package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerOwner identifies the budget or shared group a ledger belongs to.
type LedgerOwner struct {
	Type LedgerOwnerType `json:"owner_type"`
	Id   int             `json:"owner_id"`
}

func BudgetOwner(id int) LedgerOwner { return LedgerOwner{Type: LedgerOwnerBudget, Id: id} }

func GroupOwner(id int) LedgerOwner { return LedgerOwner{Type: LedgerOwnerGroup, Id: id} }

func (o LedgerOwner) String() string {
	return fmt.Sprintf("%s:%d", o.Type, o.Id)
}

// ConsumptionRecord attributes one sale's incentive to a budget or group.
// Rows are derived data: every rebuild deletes and regenerates them.
type ConsumptionRecord struct {
	ID            int             `gorm:"primary_key" json:"id"`
	OwnerType     LedgerOwnerType `gorm:"size:10;not null;index:idx_consumption_owner,priority:1" json:"owner_type"`
	OwnerId       int             `gorm:"not null;index:idx_consumption_owner,priority:2" json:"owner_id"`
	BudgetId      int             `gorm:"not null" json:"budget_id"`
	SaleId        string          `gorm:"size:64;not null" json:"sale_id"`
	SaleDate      time.Time       `gorm:"not null" json:"sale_date"`
	ItemId        string          `gorm:"size:64;not null" json:"item_id"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	LocalAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"local_amount"`
	ForeignAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"foreign_amount"`
	ExchangeRate  decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"exchange_rate"`
	Channel       Channel         `gorm:"size:20;not null" json:"channel"`
}

// ConsumptionSummary is the rolled-up ledger of one budget or group.
//
// Grain: (owner_type, owner_id). Upserted by each rebuild, never duplicated.
type ConsumptionSummary struct {
	OwnerType          LedgerOwnerType `gorm:"primaryKey;size:10" json:"owner_type"`
	OwnerId            int             `gorm:"primaryKey" json:"owner_id"`
	TotalUnits         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_units"`
	TotalLocalAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_local_amount"`
	TotalForeignAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_foreign_amount"`
	SaleCount          int             `gorm:"not null;default:0" json:"sale_count"`
	Breach             BreachKind      `gorm:"size:10;not null;default:'none'" json:"breach"`
	BreachDate         *time.Time      `json:"breach_date"`
}

func (s ConsumptionSummary) Owner() LedgerOwner {
	return LedgerOwner{Type: s.OwnerType, Id: s.OwnerId}
}
