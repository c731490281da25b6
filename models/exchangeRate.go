package models

import (
	"time"

	"github.com/mmdatafocus/pricing_backend/exchange"
	"github.com/shopspring/decimal"
)

// ExchangeRate is the authoritative daily rate table. Rows are immutable.
type ExchangeRate struct {
	ID       int             `gorm:"primary_key" json:"id"`
	Currency string          `gorm:"size:3;not null;uniqueIndex:uniq_rate_currency_date,priority:1" json:"currency"`
	RateDate time.Time       `gorm:"type:date;not null;uniqueIndex:uniq_rate_currency_date,priority:2" json:"rate_date"`
	Buy      decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"buy"`
	Sell     decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"sell"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// LegacyExchangeRate is the older ERP exchange history, consulted only when
// exchange_rates has nothing on or before the requested date.
type LegacyExchangeRate struct {
	ID       int             `gorm:"primary_key" json:"id"`
	Currency string          `gorm:"size:3;not null;index:idx_legacy_rate_currency_date,priority:1" json:"currency"`
	RateDate time.Time       `gorm:"type:date;not null;index:idx_legacy_rate_currency_date,priority:2" json:"rate_date"`
	Buy      decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"buy"`
	Sell     decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"sell"`
}

func (LegacyExchangeRate) TableName() string {
	return "legacy_exchange_rates"
}

type rateRow struct {
	Currency string
	RateDate time.Time
	Buy      decimal.Decimal
	Sell     decimal.Decimal
}

func (r rateRow) toRate() *exchange.Rate {
	return &exchange.Rate{
		Currency: r.Currency,
		Date:     r.RateDate,
		Buy:      r.Buy,
		Sell:     r.Sell,
	}
}
