package models

import (
	"gorm.io/gorm"
)

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&ExchangeRate{}, &LegacyExchangeRate{},
		&CommissionSchedule{}, &InstallmentSurcharge{},
		&PromotionalBudget{}, &SharedGroup{},
		&SaleMargin{},
		&ConsumptionRecord{}, &ConsumptionSummary{},
	)
}
