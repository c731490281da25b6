package main

import (
	"context"
	"sync/atomic"

	"github.com/mmdatafocus/pricing_backend/config"
	"github.com/mmdatafocus/pricing_backend/exchange"
	"github.com/mmdatafocus/pricing_backend/models"
	"github.com/mmdatafocus/pricing_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// engine bundles the services behind the HTTP handlers. It is built once
// the database is reachable.
type engine struct {
	quotes    *workflow.QuoteService
	recalc    *workflow.Recalculator
	ledger    models.LedgerStore
	rateCache exchange.RateCache
}

var current atomic.Pointer[engine]

func getEngine() *engine {
	return current.Load()
}

func newEngine(db *gorm.DB, logger *logrus.Logger) *engine {
	var (
		rateCache exchange.RateCache
		locker    workflow.RebuildLocker
	)
	if rdb := config.GetRedisDB(); rdb != nil {
		rateCache = exchange.NewRedisRateCache(rdb, config.RateCacheTTL())
		locker = workflow.NewRedisRebuildLocker(config.GetRedisLock(), config.RebuildLockTTL())
	} else {
		rateCache = exchange.NewMemoryRateCache(config.RateCacheTTL())
		locker = workflow.NewLocalRebuildLocker()
	}

	normalizer := exchange.NewNormalizer(
		config.LocalCurrency(),
		config.ForeignCurrency(),
		config.ExchangeRateSide(),
		models.NewExchangeRateSource(db),
		models.NewLegacyExchangeRateSource(db),
		rateCache,
		logger,
	)
	ledger := models.NewLedgerStore(db)
	return &engine{
		quotes: workflow.NewQuoteService(
			models.NewPricingStore(db),
			normalizer,
			config.MarketplaceFeeSchedule(),
			config.MarketplaceMiscPercent(),
			logger,
		),
		recalc:    workflow.NewRecalculator(ledger, normalizer, normalizer.ForeignCurrency, locker, logger),
		ledger:    ledger,
		rateCache: rateCache,
	}
}

func (e *engine) invalidateRates(ctx context.Context) error {
	return e.rateCache.Invalidate(ctx)
}
