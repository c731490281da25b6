package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/pricing_backend/config"
	"github.com/mmdatafocus/pricing_backend/exchange"
	"github.com/mmdatafocus/pricing_backend/models"
	"github.com/mmdatafocus/pricing_backend/utils"
	"github.com/mmdatafocus/pricing_backend/workflow"
)

func main() {
	budgetID := flag.Int("budget-id", 0, "Rebuild one promotional budget (group members rebuild their group).")
	groupID := flag.Int("group-id", 0, "Rebuild one shared group.")
	all := flag.Bool("all", false, "Rebuild every standalone budget and every shared group.")
	workers := flag.Int("workers", config.RebuildWorkers(), "Parallel rebuilds when -all is set.")
	migrate := flag.Bool("migrate", false, "Run AutoMigrate before rebuilding.")
	flag.Parse()

	selected := 0
	for _, set := range []bool{*budgetID > 0, *groupID > 0, *all} {
		if set {
			selected++
		}
	}
	if selected != 1 {
		fmt.Fprintln(os.Stderr, "exactly one of -budget-id, -group-id or -all is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, cid := utils.EnsureCorrelationId(context.Background())
	ctx = utils.SetRequestedByInContext(ctx, "ledger-rebuild")
	logger := config.GetLogger()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	if *migrate {
		if err := models.MigrateTable(db); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
	}

	// With Redis the CLI shares the server's lock keys, so the same ledger
	// cannot be rebuilt from both at once.
	var locker workflow.RebuildLocker = workflow.NewLocalRebuildLocker()
	if config.RedisConfigured() {
		config.ConnectRedisWithRetry()
		if config.GetRedisLock() != nil {
			locker = workflow.NewRedisRebuildLocker(config.GetRedisLock(), config.RebuildLockTTL())
		}
	}

	normalizer := exchange.NewNormalizer(
		config.LocalCurrency(),
		config.ForeignCurrency(),
		config.ExchangeRateSide(),
		models.NewExchangeRateSource(db),
		models.NewLegacyExchangeRateSource(db),
		exchange.NewMemoryRateCache(config.RateCacheTTL()),
		logger,
	)
	recalc := workflow.NewRecalculator(models.NewLedgerStore(db), normalizer, normalizer.ForeignCurrency, locker, logger)

	fmt.Fprintf(os.Stderr, "Rebuilding consumption ledgers correlation_id=%s\n", cid)

	var (
		results []workflow.RebuildResult
		err     error
	)
	switch {
	case *all:
		results, err = recalc.RecalculateAll(ctx, *workers)
	case *budgetID > 0:
		var res *workflow.RebuildResult
		if res, err = recalc.RecalculateBudget(ctx, *budgetID); res != nil {
			results = append(results, *res)
		}
	default:
		var res *workflow.RebuildResult
		if res, err = recalc.RecalculateGroup(ctx, *groupID); res != nil {
			results = append(results, *res)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(results); encErr != nil {
		fmt.Fprintf(os.Stderr, "encode results: %v\n", encErr)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Done. ledgers=%d\n", len(results))
}
