package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/pricing_backend/exchange"
	"gorm.io/gorm"
)

// GormRateSource reads one exchange-rate table.
type GormRateSource struct {
	db    *gorm.DB
	table string
}

func NewExchangeRateSource(db *gorm.DB) *GormRateSource {
	return &GormRateSource{db: db, table: "exchange_rates"}
}

func NewLegacyExchangeRateSource(db *gorm.DB) *GormRateSource {
	return &GormRateSource{db: db, table: LegacyExchangeRate{}.TableName()}
}

func (s *GormRateSource) ExactRate(ctx context.Context, currency string, date time.Time) (*exchange.Rate, error) {
	var row rateRow
	err := s.db.WithContext(ctx).Table(s.table).
		Select("currency, rate_date, buy, sell").
		Where("currency = ? AND rate_date = ?", currency, date).
		Take(&row).Error
	return rowOrNil(row, err)
}

func (s *GormRateSource) LatestRateBefore(ctx context.Context, currency string, date time.Time) (*exchange.Rate, error) {
	var row rateRow
	err := s.db.WithContext(ctx).Table(s.table).
		Select("currency, rate_date, buy, sell").
		Where("currency = ? AND rate_date < ?", currency, date).
		Order("rate_date desc").
		Take(&row).Error
	return rowOrNil(row, err)
}

func rowOrNil(row rateRow, err error) (*exchange.Rate, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toRate(), nil
}
