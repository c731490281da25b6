package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Rate is one exchange-rate row: units of local currency per unit of Currency.
type Rate struct {
	Currency string          `json:"currency"`
	Date     time.Time       `json:"date"`
	Buy      decimal.Decimal `json:"buy"`
	Sell     decimal.Decimal `json:"sell"`
}

func (r Rate) Value(side Side) decimal.Decimal {
	if side == SideBuy {
		return r.Buy
	}
	return r.Sell
}

// RateSource is one exchange-rate table. Both lookups return (nil, nil)
// when no row qualifies.
type RateSource interface {
	ExactRate(ctx context.Context, currency string, date time.Time) (*Rate, error)
	LatestRateBefore(ctx context.Context, currency string, date time.Time) (*Rate, error)
}

// Normalizer resolves rates through primary then legacy sources and converts
// amounts between local and foreign currency.
type Normalizer struct {
	LocalCurrency   string
	ForeignCurrency string
	Side            Side

	sources []RateSource
	cache   RateCache
	logger  *logrus.Logger
}

// NewNormalizer builds a normalizer. legacy and cache may be nil.
func NewNormalizer(localCurrency, foreignCurrency string, side Side, primary, legacy RateSource, cache RateCache, logger *logrus.Logger) *Normalizer {
	n := &Normalizer{
		LocalCurrency:   strings.ToUpper(strings.TrimSpace(localCurrency)),
		ForeignCurrency: strings.ToUpper(strings.TrimSpace(foreignCurrency)),
		Side:            side,
		cache:           cache,
		logger:          logger,
	}
	if n.Side == "" {
		n.Side = SideSell
	}
	for _, s := range []RateSource{primary, legacy} {
		if s != nil {
			n.sources = append(n.sources, s)
		}
	}
	return n
}

func (n *Normalizer) IsLocal(currency string) bool {
	return strings.EqualFold(strings.TrimSpace(currency), n.LocalCurrency)
}

// Rate returns the rate for currency on date. Lookup order per source is
// exact date, then latest date strictly before; sources are tried in order.
// When nothing is found def is returned with a nil error. Only read
// failures produce an error.
func (n *Normalizer) Rate(ctx context.Context, currency string, date time.Time, def decimal.Decimal) (decimal.Decimal, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if n.IsLocal(currency) {
		return decimal.NewFromInt(1), nil
	}
	day := truncateDay(date)
	key := cacheKey(currency, day, n.Side)
	if n.cache != nil {
		if v, ok := n.cache.Get(ctx, key); ok {
			return v, nil
		}
	}

	for i, src := range n.sources {
		r, err := src.ExactRate(ctx, currency, day)
		if err != nil {
			return decimal.Zero, fmt.Errorf("exact rate %s %s (source %d): %w", currency, day.Format("2006-01-02"), i, err)
		}
		if r == nil {
			r, err = src.LatestRateBefore(ctx, currency, day)
			if err != nil {
				return decimal.Zero, fmt.Errorf("latest rate %s before %s (source %d): %w", currency, day.Format("2006-01-02"), i, err)
			}
		}
		if r != nil && r.Value(n.Side).IsPositive() {
			v := r.Value(n.Side)
			if n.cache != nil {
				n.cache.Set(ctx, key, v)
			}
			return v, nil
		}
	}

	if n.logger != nil {
		n.logger.WithFields(logrus.Fields{
			"currency": currency,
			"date":     day.Format("2006-01-02"),
			"default":  def.String(),
		}).Warn("exchange.rate.missing")
	}
	return def, nil
}

// ToLocal converts amount expressed in currency to local currency.
// Local amounts are returned unchanged without looking at rate.
func (n *Normalizer) ToLocal(amount decimal.Decimal, currency string, rate decimal.Decimal) decimal.Decimal {
	if n.IsLocal(currency) {
		return amount
	}
	return amount.Mul(rate)
}

// ToForeign converts a local amount using rate; a non-positive rate yields zero.
func ToForeign(localAmount, rate decimal.Decimal) decimal.Decimal {
	if !rate.IsPositive() {
		return decimal.Zero
	}
	return localAmount.Div(rate)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func cacheKey(currency string, day time.Time, side Side) string {
	return fmt.Sprintf("%s:%s:%s", currency, day.Format("2006-01-02"), side)
}
