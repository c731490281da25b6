package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/pricing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionSchedule is the marketplace base commission for a
// (price list, category group) pair.
type CommissionSchedule struct {
	ID          int             `gorm:"primary_key" json:"id"`
	PriceListId int             `gorm:"not null;uniqueIndex:uniq_commission_pl_group,priority:1" json:"price_list_id"`
	GroupId     int             `gorm:"not null;uniqueIndex:uniq_commission_pl_group,priority:2" json:"group_id"`
	BasePercent decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"base_percent"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// InstallmentSurcharge is the extra percent charged when the buyer pays in
// Installments (3, 6, 9 or 12).
type InstallmentSurcharge struct {
	ID               int             `gorm:"primary_key" json:"id"`
	Installments     int             `gorm:"not null;uniqueIndex" json:"installments"`
	SurchargePercent decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"surcharge_percent"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

var ValidInstallments = []int{3, 6, 9, 12}

// GormPricingStore serves the commission and installment lookups used by
// the quote service.
type GormPricingStore struct {
	db *gorm.DB
}

func NewPricingStore(db *gorm.DB) *GormPricingStore {
	return &GormPricingStore{db: db}
}

// GetCommissionSchedule returns utils.ErrorRecordNotFound when the pair has
// no schedule yet.
func (s *GormPricingStore) GetCommissionSchedule(ctx context.Context, priceListId int, groupId int) (*CommissionSchedule, error) {
	var result CommissionSchedule
	err := s.db.WithContext(ctx).
		Where("price_list_id = ? AND group_id = ?", priceListId, groupId).
		Take(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetInstallmentSurcharges flattens the table into installments -> percent.
func (s *GormPricingStore) GetInstallmentSurcharges(ctx context.Context) (map[int]decimal.Decimal, error) {
	var rows []InstallmentSurcharge
	if err := s.db.WithContext(ctx).Order("installments").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[int]decimal.Decimal, len(rows))
	for _, r := range rows {
		out[r.Installments] = r.SurchargePercent
	}
	return out, nil
}
