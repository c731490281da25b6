package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/pricing_backend/exchange"
	"github.com/mmdatafocus/pricing_backend/pricing"
	"github.com/shopspring/decimal"
)

// LocalCurrency is the seller's accounting currency.
//
// Set via env:
// - LOCAL_CURRENCY=ARS
func LocalCurrency() string {
	return stringFromEnv("LOCAL_CURRENCY", "ARS")
}

// ForeignCurrency is the currency monetary caps are expressed in.
func ForeignCurrency() string {
	return stringFromEnv("FOREIGN_CURRENCY", "USD")
}

// ExchangeRateSide selects which side of the quote converts amounts.
// EXCHANGE_RATE_SIDE=buy|sell (default sell).
func ExchangeRateSide() exchange.Side {
	if strings.EqualFold(strings.TrimSpace(os.Getenv("EXCHANGE_RATE_SIDE")), string(exchange.SideBuy)) {
		return exchange.SideBuy
	}
	return exchange.SideSell
}

func RateCacheTTL() time.Duration {
	return time.Duration(intFromEnv("RATE_CACHE_TTL_SECONDS", 900)) * time.Second
}

func RebuildLockTTL() time.Duration {
	return time.Duration(intFromEnv("REBUILD_LOCK_TTL_SECONDS", 300)) * time.Second
}

// RebuildWorkers bounds how many budgets are rebuilt in parallel.
func RebuildWorkers() int {
	n := intFromEnv("REBUILD_WORKERS", 4)
	if n <= 0 {
		return 1
	}
	return n
}

// MarketplaceFeeSchedule reads the tier table, falling back to defaults.
//
// Set via env:
// - MARKETPLACE_TIER_T1, MARKETPLACE_TIER_T2, MARKETPLACE_TIER_T3
// - MARKETPLACE_TIER_S1, MARKETPLACE_TIER_S2, MARKETPLACE_TIER_S3
func MarketplaceFeeSchedule() pricing.FeeSchedule {
	def := pricing.DefaultFeeSchedule()
	return pricing.FeeSchedule{
		Threshold1:       decimalFromEnv("MARKETPLACE_TIER_T1", def.Threshold1),
		Threshold2:       decimalFromEnv("MARKETPLACE_TIER_T2", def.Threshold2),
		Threshold3:       decimalFromEnv("MARKETPLACE_TIER_T3", def.Threshold3),
		SurchargeBelowT1: decimalFromEnv("MARKETPLACE_TIER_S1", def.SurchargeBelowT1),
		SurchargeT1T2:    decimalFromEnv("MARKETPLACE_TIER_S2", def.SurchargeT1T2),
		SurchargeT2T3:    decimalFromEnv("MARKETPLACE_TIER_S3", def.SurchargeT2T3),
	}
}

// MarketplaceMiscPercent is the fixed miscellaneous fee on the tax-exclusive price.
func MarketplaceMiscPercent() decimal.Decimal {
	return decimalFromEnv("MARKETPLACE_MISC_PERCENT", decimal.NewFromFloat(6.5))
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func decimalFromEnv(key string, def decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	dec, err := decimal.NewFromString(v)
	if err != nil {
		return def
	}
	return dec
}

func stringFromEnv(key string, def string) string {
	v := strings.ToUpper(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v
}

func EnvBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
