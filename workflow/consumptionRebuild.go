package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/pricing_backend/config"
	"github.com/mmdatafocus/pricing_backend/exchange"
	"github.com/mmdatafocus/pricing_backend/models"
	"github.com/mmdatafocus/pricing_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrRebuildInProgress = errors.New("ledger rebuild already in progress")
	// ErrRebuildFailed wraps any failure inside the rebuild transaction.
	// Nothing was committed; the caller may retry the whole rebuild.
	ErrRebuildFailed = errors.New("ledger rebuild failed")
)

const amountPlaces = 4

var tracer = otel.Tracer("pricing_backend/workflow")

// RateResolver is the part of the currency normalizer the ledger uses.
type RateResolver interface {
	Rate(ctx context.Context, currency string, date time.Time, def decimal.Decimal) (decimal.Decimal, error)
}

type RebuildResult struct {
	RunId              string                 `json:"run_id"`
	OwnerType          models.LedgerOwnerType `json:"owner_type"`
	OwnerId            int                    `json:"owner_id"`
	BudgetId           int                    `json:"budget_id,omitempty"`
	NoOp               bool                   `json:"no_op"`
	RecordsPurged      int64                  `json:"records_purged"`
	RecordsCreated     int                    `json:"records_created"`
	TotalUnits         decimal.Decimal        `json:"total_units"`
	TotalLocalAmount   decimal.Decimal        `json:"total_local_amount"`
	TotalForeignAmount decimal.Decimal        `json:"total_foreign_amount"`
	SaleCount          int                    `json:"sale_count"`
	Breach             models.BreachKind      `json:"breach"`
	BreachDate         *time.Time             `json:"breach_date"`
}

type ledgerCaps struct {
	maxUnits  *decimal.Decimal
	maxAmount *decimal.Decimal
}

// Recalculator rebuilds consumption ledgers from historical sales.
type Recalculator struct {
	store           models.LedgerStore
	rates           RateResolver
	foreignCurrency string
	locker          RebuildLocker
	logger          *logrus.Logger
}

func NewRecalculator(store models.LedgerStore, rates RateResolver, foreignCurrency string, locker RebuildLocker, logger *logrus.Logger) *Recalculator {
	if locker == nil {
		locker = NewLocalRebuildLocker()
	}
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Recalculator{
		store:           store,
		rates:           rates,
		foreignCurrency: foreignCurrency,
		locker:          locker,
		logger:          logger,
	}
}

// RecalculateBudget rebuilds one budget's ledger. A budget that belongs to
// a shared group rebuilds the group instead.
func (r *Recalculator) RecalculateBudget(ctx context.Context, budgetId int) (*RebuildResult, error) {
	budget, err := r.store.GetBudget(ctx, budgetId)
	if err != nil {
		return nil, fmt.Errorf("load budget %d: %w", budgetId, err)
	}
	if budget.GroupId != nil {
		return r.RecalculateGroup(ctx, *budget.GroupId)
	}

	owner := models.BudgetOwner(budget.ID)
	q, ok := SaleQueryForBudget(budget)
	if !ok {
		return r.noOp(ctx, owner, "budget has no recognised scope"), nil
	}
	caps := ledgerCaps{maxUnits: budget.MaxUnits, maxAmount: budget.MaxAmount}
	result, err := r.rebuild(ctx, owner, q, caps, func(sales []models.SaleMargin) []ScopeMatch {
		return MatchBudget(budget, sales)
	})
	if result != nil {
		result.BudgetId = budget.ID
	}
	return result, err
}

// RecalculateGroup rebuilds the pooled ledger of a shared group.
func (r *Recalculator) RecalculateGroup(ctx context.Context, groupId int) (*RebuildResult, error) {
	_, members, err := r.store.GetGroupMembers(ctx, groupId)
	if err != nil {
		return nil, fmt.Errorf("load group %d: %w", groupId, err)
	}

	owner := models.GroupOwner(groupId)
	q, ok := SaleQueryForGroup(members)
	if !ok {
		return r.noOp(ctx, owner, "group has no item-scoped members"), nil
	}
	return r.rebuild(ctx, owner, q, groupCaps(members), func(sales []models.SaleMargin) []ScopeMatch {
		return MatchGroup(members, sales)
	})
}

// groupCaps reads the pooled cap from the first capped member.
func groupCaps(members []models.PromotionalBudget) ledgerCaps {
	var first *models.PromotionalBudget
	for i := range members {
		if members[i].HasCap() && (first == nil || members[i].ID < first.ID) {
			first = &members[i]
		}
	}
	if first == nil {
		return ledgerCaps{}
	}
	return ledgerCaps{maxUnits: first.MaxUnits, maxAmount: first.MaxAmount}
}

// Recalculate dispatches on the owner type.
func (r *Recalculator) Recalculate(ctx context.Context, owner models.LedgerOwner) (*RebuildResult, error) {
	switch owner.Type {
	case models.LedgerOwnerBudget:
		return r.RecalculateBudget(ctx, owner.Id)
	case models.LedgerOwnerGroup:
		return r.RecalculateGroup(ctx, owner.Id)
	}
	return nil, fmt.Errorf("unknown ledger owner type %q", owner.Type)
}

// RecalculateAll rebuilds every standalone budget and every group with at
// most workers rebuilds in flight. Results keep the owner listing order;
// failed owners are left out of the results and joined into the error.
func (r *Recalculator) RecalculateAll(ctx context.Context, workers int) ([]RebuildResult, error) {
	owners, err := r.store.ListLedgerOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ledger owners: %w", err)
	}
	if workers <= 0 {
		workers = 1
	}

	results := make([]*RebuildResult, len(owners))
	errs := make([]error, len(owners))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(workers, len(owners)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i], errs[i] = r.Recalculate(ctx, owners[i])
			}
		}()
	}
	for i := range owners {
		if ctx.Err() != nil {
			errs[i] = ctx.Err()
			continue
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var out []RebuildResult
	for _, res := range results {
		if res != nil {
			out = append(out, *res)
		}
	}
	return out, errors.Join(errs...)
}

func (r *Recalculator) noOp(ctx context.Context, owner models.LedgerOwner, reason string) *RebuildResult {
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	r.logger.WithFields(logrus.Fields{
		"owner":          owner.String(),
		"reason":         reason,
		"correlation_id": cid,
	}).Info("ledger.rebuild.noop")
	return &RebuildResult{
		OwnerType:          owner.Type,
		OwnerId:            owner.Id,
		NoOp:               true,
		TotalUnits:         decimal.Zero,
		TotalLocalAmount:   decimal.Zero,
		TotalForeignAmount: decimal.Zero,
		Breach:             models.BreachNone,
	}
}

func (r *Recalculator) rebuild(
	ctx context.Context,
	owner models.LedgerOwner,
	q models.SaleQuery,
	caps ledgerCaps,
	match func([]models.SaleMargin) []ScopeMatch,
) (*RebuildResult, error) {
	release, err := r.locker.TryLock(ctx, owner.String())
	if err != nil {
		return nil, err
	}
	defer release(context.WithoutCancel(ctx))

	ctx, span := tracer.Start(ctx, "ledger.rebuild", trace.WithAttributes(
		attribute.String("ledger.owner", owner.String()),
	))
	defer span.End()

	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	result := &RebuildResult{RunId: uuid.NewString(), OwnerType: owner.Type, OwnerId: owner.Id}
	fields := logrus.Fields{
		"run_id":         result.RunId,
		"owner":          owner.String(),
		"correlation_id": cid,
	}
	r.logger.WithFields(fields).Info("ledger.rebuild.start")

	err = r.store.Rebuild(ctx, owner, func(tx models.LedgerTx) error {
		purged, err := tx.PurgeConsumption(ctx, owner)
		if err != nil {
			return fmt.Errorf("purge: %w", err)
		}
		result.RecordsPurged = purged

		sales, err := tx.FindSales(ctx, q)
		if err != nil {
			return fmt.Errorf("find sales: %w", err)
		}
		records, summary, err := r.priceMatches(ctx, owner, match(sales), caps)
		if err != nil {
			return err
		}
		if err := tx.InsertConsumption(ctx, records); err != nil {
			return fmt.Errorf("insert consumption: %w", err)
		}
		if err := tx.UpsertSummary(ctx, summary); err != nil {
			return fmt.Errorf("upsert summary: %w", err)
		}

		result.RecordsCreated = len(records)
		result.TotalUnits = summary.TotalUnits
		result.TotalLocalAmount = summary.TotalLocalAmount
		result.TotalForeignAmount = summary.TotalForeignAmount
		result.SaleCount = summary.SaleCount
		result.Breach = summary.Breach
		result.BreachDate = summary.BreachDate
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		config.LogError(r.logger, "consumptionRebuild.go", "rebuild", owner.String(), fields, err)
		return nil, fmt.Errorf("%w: %s: %w", ErrRebuildFailed, owner, err)
	}

	r.logger.WithFields(logrus.Fields{
		"run_id":          result.RunId,
		"owner":           owner.String(),
		"correlation_id":  cid,
		"records_purged":  result.RecordsPurged,
		"records_created": result.RecordsCreated,
		"total_units":     result.TotalUnits.String(),
		"total_foreign":   result.TotalForeignAmount.String(),
		"breach":          result.Breach,
	}).Info("ledger.rebuild.done")
	return result, nil
}

// priceMatches turns matched sales into consumption rows and the rolled-up
// summary. Matches must already be in (sale date, sale id) order.
func (r *Recalculator) priceMatches(ctx context.Context, owner models.LedgerOwner, matches []ScopeMatch, caps ledgerCaps) ([]models.ConsumptionRecord, *models.ConsumptionSummary, error) {
	summary := &models.ConsumptionSummary{
		OwnerType:          owner.Type,
		OwnerId:            owner.Id,
		TotalUnits:         decimal.Zero,
		TotalLocalAmount:   decimal.Zero,
		TotalForeignAmount: decimal.Zero,
		Breach:             models.BreachNone,
	}
	records := make([]models.ConsumptionRecord, 0, len(matches))
	var unitsReachedAt, amountReachedAt *time.Time

	for _, m := range matches {
		rate, err := r.saleRate(ctx, &m.Sale)
		if err != nil {
			return nil, nil, err
		}
		local, foreign := incentiveAmounts(m.Budget, &m.Sale, rate)

		records = append(records, models.ConsumptionRecord{
			OwnerType:     owner.Type,
			OwnerId:       owner.Id,
			BudgetId:      m.Budget.ID,
			SaleId:        m.Sale.SaleId,
			SaleDate:      m.Sale.SaleDate,
			ItemId:        m.Sale.ItemId,
			Quantity:      m.Sale.Quantity,
			LocalAmount:   local,
			ForeignAmount: foreign,
			ExchangeRate:  rate,
			Channel:       m.Sale.Channel,
		})

		summary.TotalUnits = summary.TotalUnits.Add(m.Sale.Quantity)
		summary.TotalLocalAmount = summary.TotalLocalAmount.Add(local)
		summary.TotalForeignAmount = summary.TotalForeignAmount.Add(foreign)
		summary.SaleCount++

		saleDate := m.Sale.SaleDate
		if unitsReachedAt == nil && caps.maxUnits != nil && summary.TotalUnits.GreaterThanOrEqual(*caps.maxUnits) {
			unitsReachedAt = &saleDate
		}
		if amountReachedAt == nil && caps.maxAmount != nil && summary.TotalForeignAmount.GreaterThanOrEqual(*caps.maxAmount) {
			amountReachedAt = &saleDate
		}
	}

	switch {
	case unitsReachedAt != nil:
		summary.Breach = models.BreachUnits
		summary.BreachDate = unitsReachedAt
	case amountReachedAt != nil:
		summary.Breach = models.BreachAmount
		summary.BreachDate = amountReachedAt
	}
	return records, summary, nil
}

// saleRate prefers the rate recorded on the sale; without one it resolves
// the foreign rate for the sale date. Missing rates give zero.
func (r *Recalculator) saleRate(ctx context.Context, sale *models.SaleMargin) (decimal.Decimal, error) {
	if sale.ExchangeRate.IsPositive() {
		return sale.ExchangeRate, nil
	}
	if r.rates == nil {
		return decimal.Zero, nil
	}
	rate, err := r.rates.Rate(ctx, r.foreignCurrency, sale.SaleDate, decimal.Zero)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate for sale %s: %w", sale.SaleId, err)
	}
	return rate, nil
}

// incentiveAmounts prices one occurrence in local and foreign currency.
// Percent-of-cost budgets are based on the local unit cost.
func incentiveAmounts(budget *models.PromotionalBudget, sale *models.SaleMargin, rate decimal.Decimal) (local, foreign decimal.Decimal) {
	var amount decimal.Decimal
	currency := budget.Currency
	switch budget.Kind {
	case models.BudgetKindFixed:
		amount = budget.Amount
	case models.BudgetKindPerUnit:
		amount = budget.Amount.Mul(sale.Quantity)
	case models.BudgetKindPercentOfCost:
		amount = budget.Percent.Div(decimal.NewFromInt(100)).Mul(sale.UnitCost).Mul(sale.Quantity)
		currency = models.BudgetCurrencyLocal
	default:
		return decimal.Zero, decimal.Zero
	}

	if currency == models.BudgetCurrencyForeign {
		foreign = amount
		local = amount.Mul(rate)
	} else {
		local = amount
		foreign = exchange.ToForeign(amount, rate)
	}
	return local.Round(amountPlaces), foreign.Round(amountPlaces)
}
