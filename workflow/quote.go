package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/pricing_backend/config"
	"github.com/mmdatafocus/pricing_backend/models"
	"github.com/mmdatafocus/pricing_backend/pricing"
	"github.com/mmdatafocus/pricing_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type QuoteStatus string

const (
	QuoteStatusOK          QuoteStatus = "ok"
	QuoteStatusCannotPrice QuoteStatus = "cannot_price"
)

// CommissionSource is the schedule lookup behind a quote.
type CommissionSource interface {
	GetCommissionSchedule(ctx context.Context, priceListId int, groupId int) (*models.CommissionSchedule, error)
	GetInstallmentSurcharges(ctx context.Context) (map[int]decimal.Decimal, error)
}

// CostNormalizer converts the quoted cost to local currency.
type CostNormalizer interface {
	IsLocal(currency string) bool
	Rate(ctx context.Context, currency string, date time.Time, def decimal.Decimal) (decimal.Decimal, error)
	ToLocal(amount decimal.Decimal, currency string, rate decimal.Decimal) decimal.Decimal
}

type QuoteRequest struct {
	Cost                decimal.Decimal `json:"cost"`
	Currency            string          `json:"currency" validate:"required,len=3"`
	Date                *time.Time      `json:"date"`
	TargetMarkupPercent decimal.Decimal `json:"target_markup_percent"`
	TaxPercent          decimal.Decimal `json:"tax_percent"`
	Channel             models.Channel  `json:"channel" validate:"required,oneof=marketplace direct_transfer"`
	PriceListId         int             `json:"price_list_id" validate:"required_if=Channel marketplace"`
	GroupId             int             `json:"group_id" validate:"required_if=Channel marketplace"`
	ShippingCost        decimal.Decimal `json:"shipping_cost"`
	MaxIterations       int             `json:"max_iterations" validate:"gte=0,lte=1000"`
}

func (req *QuoteRequest) Validate() error {
	if err := utils.ValidateStruct(req); err != nil {
		return err
	}
	if req.Cost.IsNegative() {
		return errors.New("cost must not be negative")
	}
	if req.TaxPercent.IsNegative() || req.ShippingCost.IsNegative() {
		return errors.New("tax_percent and shipping_cost must not be negative")
	}
	return nil
}

type QuoteResult struct {
	Status                QuoteStatus                       `json:"status"`
	Reason                string                            `json:"reason,omitempty"`
	Channel               models.Channel                    `json:"channel"`
	Price                 decimal.Decimal                   `json:"price"`
	CostLocal             decimal.Decimal                   `json:"cost_local"`
	ExchangeRate          decimal.Decimal                   `json:"exchange_rate"`
	Commission            *pricing.CommissionBreakdown      `json:"commission,omitempty"`
	DirectTransfer        *pricing.DirectTransferEvaluation `json:"direct_transfer,omitempty"`
	ShippingSubsidy       decimal.Decimal                   `json:"shipping_subsidy"`
	Net                   decimal.Decimal                   `json:"net"`
	RealizedMarkupPercent decimal.Decimal                   `json:"realized_markup_percent"`
	Iterations            int                               `json:"iterations"`
	Converged             bool                              `json:"converged"`
	InstallmentPrices     map[int]decimal.Decimal           `json:"installment_prices,omitempty"`
}

func cannotPrice(channel models.Channel, reason string) *QuoteResult {
	return &QuoteResult{Status: QuoteStatusCannotPrice, Channel: channel, Reason: reason}
}

type QuoteService struct {
	commissions CommissionSource
	normalizer  CostNormalizer
	schedule    pricing.FeeSchedule
	miscPercent decimal.Decimal
	logger      *logrus.Logger
}

func NewQuoteService(commissions CommissionSource, normalizer CostNormalizer, schedule pricing.FeeSchedule, miscPercent decimal.Decimal, logger *logrus.Logger) *QuoteService {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &QuoteService{
		commissions: commissions,
		normalizer:  normalizer,
		schedule:    schedule,
		miscPercent: miscPercent,
		logger:      logger,
	}
}

// Quote prices one product. Missing configuration gives a cannot_price
// result rather than an error; errors are invalid requests, read failures
// and fee schedules that cannot be solved.
func (s *QuoteService) Quote(ctx context.Context, req QuoteRequest) (*QuoteResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "pricing.quote", trace.WithAttributes(
		attribute.String("quote.channel", string(req.Channel)),
		attribute.String("quote.currency", req.Currency),
	))
	defer span.End()

	date := time.Now().UTC()
	if req.Date != nil {
		date = *req.Date
	}
	rate := decimal.NewFromInt(1)
	if !s.normalizer.IsLocal(req.Currency) {
		var err error
		rate, err = s.normalizer.Rate(ctx, req.Currency, date, decimal.Zero)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if !rate.IsPositive() {
			return cannotPrice(req.Channel, fmt.Sprintf("no exchange rate for %s on %s", req.Currency, date.Format("2006-01-02"))), nil
		}
	}
	costLocal := s.normalizer.ToLocal(req.Cost, req.Currency, rate)

	var (
		result *QuoteResult
		err    error
	)
	switch req.Channel {
	case models.ChannelMarketplace:
		result, err = s.quoteMarketplace(ctx, req, costLocal)
	case models.ChannelDirectTransfer:
		result = s.quoteDirectTransfer(req, costLocal)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if result.Status != QuoteStatusOK {
		return result, nil
	}
	result.ExchangeRate = rate

	surcharges, err := s.commissions.GetInstallmentSurcharges(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("installment surcharges: %w", err)
	}
	result.InstallmentPrices = InstallmentPrices(result.Price, surcharges)
	return result, nil
}

func (s *QuoteService) quoteMarketplace(ctx context.Context, req QuoteRequest, costLocal decimal.Decimal) (*QuoteResult, error) {
	sched, err := s.commissions.GetCommissionSchedule(ctx, req.PriceListId, req.GroupId)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		s.logger.WithFields(logrus.Fields{
			"price_list_id": req.PriceListId,
			"group_id":      req.GroupId,
		}).Info("pricing.quote.no_commission_schedule")
		return cannotPrice(req.Channel, fmt.Sprintf("no commission schedule for price list %d and group %d", req.PriceListId, req.GroupId)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("commission schedule: %w", err)
	}
	if err := s.schedule.Validate(req.ShippingCost, sched.BasePercent, s.miscPercent); err != nil {
		return nil, err
	}

	solved, err := pricing.SolveMarketplace(pricing.MarketplaceParams{
		Cost:                  costLocal,
		TargetMarkupPercent:   req.TargetMarkupPercent,
		TaxPercent:            req.TaxPercent,
		BaseCommissionPercent: sched.BasePercent,
		MiscPercent:           s.miscPercent,
		ShippingCost:          req.ShippingCost,
		Schedule:              s.schedule,
	})
	if err != nil {
		return nil, err
	}
	commission := solved.Commission
	return &QuoteResult{
		Status:                QuoteStatusOK,
		Channel:               req.Channel,
		Price:                 solved.Price,
		CostLocal:             costLocal,
		Commission:            &commission,
		ShippingSubsidy:       solved.ShippingSubsidy,
		Net:                   solved.Net,
		RealizedMarkupPercent: solved.RealizedMarkupPercent,
		Iterations:            solved.Iterations,
		Converged:             solved.Converged,
	}, nil
}

func (s *QuoteService) quoteDirectTransfer(req QuoteRequest, costLocal decimal.Decimal) *QuoteResult {
	solved := pricing.SolveDirectTransfer(pricing.DirectTransferParams{
		Cost:          costLocal,
		TaxPercent:    req.TaxPercent,
		TargetMarkup:  req.TargetMarkupPercent.Div(decimal.NewFromInt(100)),
		MaxIterations: req.MaxIterations,
	})
	if !solved.Converged {
		s.logger.WithFields(logrus.Fields{
			"cost":       costLocal.String(),
			"iterations": solved.Iterations,
		}).Warn("pricing.quote.not_converged")
	}
	eval := solved.DirectTransferEvaluation
	return &QuoteResult{
		Status:                QuoteStatusOK,
		Channel:               req.Channel,
		Price:                 solved.Price,
		CostLocal:             costLocal,
		DirectTransfer:        &eval,
		Net:                   solved.Net,
		RealizedMarkupPercent: solved.RealizedMarkup.Mul(decimal.NewFromInt(100)),
		Iterations:            solved.Iterations,
		Converged:             solved.Converged,
	}
}

// InstallmentPrices adds each installment surcharge to price, rounded to
// whole currency units. Counts outside 3/6/9/12 are ignored.
func InstallmentPrices(price decimal.Decimal, surcharges map[int]decimal.Decimal) map[int]decimal.Decimal {
	if !price.IsPositive() || len(surcharges) == 0 {
		return nil
	}
	out := make(map[int]decimal.Decimal)
	for _, n := range models.ValidInstallments {
		pct, ok := surcharges[n]
		if !ok {
			continue
		}
		out[n] = price.Mul(decimal.NewFromInt(100).Add(pct)).Div(decimal.NewFromInt(100)).Round(0)
	}
	return out
}
