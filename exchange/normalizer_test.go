package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	rates []Rate
	calls int
	err   error
}

func (f *fakeSource) ExactRate(_ context.Context, currency string, date time.Time) (*Rate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.rates {
		if f.rates[i].Currency == currency && f.rates[i].Date.Equal(date) {
			return &f.rates[i], nil
		}
	}
	return nil, nil
}

func (f *fakeSource) LatestRateBefore(_ context.Context, currency string, date time.Time) (*Rate, error) {
	f.calls++
	var best *Rate
	for i := range f.rates {
		r := &f.rates[i]
		if r.Currency != currency || !r.Date.Before(date) {
			continue
		}
		if best == nil || r.Date.After(best.Date) {
			best = r
		}
	}
	return best, nil
}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func rate(date string, buy, sell float64) Rate {
	return Rate{Currency: "USD", Date: day(date), Buy: decimal.NewFromFloat(buy), Sell: decimal.NewFromFloat(sell)}
}

func TestNormalizer_RateLookupChain(t *testing.T) {
	ctx := context.Background()
	primary := &fakeSource{rates: []Rate{rate("2024-03-01", 990, 1000), rate("2024-03-05", 1040, 1050)}}
	legacy := &fakeSource{rates: []Rate{rate("2023-06-01", 490, 500)}}
	n := NewNormalizer("ARS", "USD", SideSell, primary, legacy, nil, nil)

	got, err := n.Rate(ctx, "usd", day("2024-03-05"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(1050)), "exact: %s", got)

	got, err = n.Rate(ctx, "USD", day("2024-03-04"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(1000)), "latest before: %s", got)

	got, err = n.Rate(ctx, "USD", day("2024-01-10"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(500)), "legacy: %s", got)

	got, err = n.Rate(ctx, "USD", day("2020-01-01"), decimal.NewFromInt(7))
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(7)), "default: %s", got)
}

func TestNormalizer_BuySide(t *testing.T) {
	primary := &fakeSource{rates: []Rate{rate("2024-03-01", 990, 1000)}}
	n := NewNormalizer("ARS", "USD", SideBuy, primary, nil, nil, nil)

	got, err := n.Rate(context.Background(), "USD", day("2024-03-01"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(990)))
}

func TestNormalizer_LocalCurrencyNeverConsultsSources(t *testing.T) {
	primary := &fakeSource{}
	n := NewNormalizer("ARS", "USD", SideSell, primary, nil, nil, nil)

	got, err := n.Rate(context.Background(), "ars", day("2024-03-01"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(1)))

	amount := decimal.NewFromInt(250)
	assert.True(t, n.ToLocal(amount, "ARS", decimal.NewFromInt(999)).Equal(amount))
	assert.Zero(t, primary.calls)
}

func TestNormalizer_ToLocalAndForeign(t *testing.T) {
	n := NewNormalizer("ARS", "USD", SideSell, nil, nil, nil, nil)

	assert.True(t, n.ToLocal(decimal.NewFromInt(3), "USD", decimal.NewFromInt(1000)).Equal(decimal.NewFromInt(3000)))
	assert.True(t, ToForeign(decimal.NewFromInt(3000), decimal.NewFromInt(1000)).Equal(decimal.NewFromInt(3)))
	assert.True(t, ToForeign(decimal.NewFromInt(3000), decimal.Zero).IsZero())
}

func TestNormalizer_ReadErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	n := NewNormalizer("ARS", "USD", SideSell, &fakeSource{err: boom}, nil, nil, nil)

	_, err := n.Rate(context.Background(), "USD", day("2024-03-01"), decimal.Zero)
	assert.ErrorIs(t, err, boom)
}

func TestNormalizer_CacheAndInvalidate(t *testing.T) {
	ctx := context.Background()
	primary := &fakeSource{rates: []Rate{rate("2024-03-01", 990, 1000)}}
	cache := NewMemoryRateCache(time.Minute)
	n := NewNormalizer("ARS", "USD", SideSell, primary, nil, cache, nil)

	_, err := n.Rate(ctx, "USD", day("2024-03-01"), decimal.Zero)
	require.NoError(t, err)
	callsAfterFirst := primary.calls

	got, err := n.Rate(ctx, "USD", day("2024-03-01").Add(15*time.Hour), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, callsAfterFirst, primary.calls, "second lookup should hit the cache")

	primary.rates[0].Sell = decimal.NewFromInt(1200)
	require.NoError(t, cache.Invalidate(ctx))

	got, err = n.Rate(ctx, "USD", day("2024-03-01"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(1200)))
}

func TestNormalizer_DefaultIsNotCached(t *testing.T) {
	ctx := context.Background()
	primary := &fakeSource{}
	cache := NewMemoryRateCache(time.Minute)
	n := NewNormalizer("ARS", "USD", SideSell, primary, nil, cache, nil)

	_, err := n.Rate(ctx, "USD", day("2024-03-01"), decimal.NewFromInt(5))
	require.NoError(t, err)

	primary.rates = []Rate{rate("2024-03-01", 990, 1000)}
	got, err := n.Rate(ctx, "USD", day("2024-03-01"), decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(1000)))
}
