package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/pricing_backend/exchange"
	"github.com/mmdatafocus/pricing_backend/models"
	"github.com/mmdatafocus/pricing_backend/pricing"
	"github.com/mmdatafocus/pricing_backend/utils"
	"github.com/mmdatafocus/pricing_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCommissions struct{}

func (stubCommissions) GetCommissionSchedule(_ context.Context, priceListId int, groupId int) (*models.CommissionSchedule, error) {
	if priceListId == 1 && groupId == 10 {
		return &models.CommissionSchedule{PriceListId: 1, GroupId: 10, BasePercent: decimal.NewFromInt(15)}, nil
	}
	return nil, utils.ErrorRecordNotFound
}

func (stubCommissions) GetInstallmentSurcharges(context.Context) (map[int]decimal.Decimal, error) {
	return map[int]decimal.Decimal{3: decimal.NewFromInt(10)}, nil
}

// emptyLedger knows no budgets, groups or ledgers.
type emptyLedger struct{}

func (emptyLedger) GetBudget(context.Context, int) (*models.PromotionalBudget, error) {
	return nil, utils.ErrorRecordNotFound
}

func (emptyLedger) GetGroupMembers(context.Context, int) (*models.SharedGroup, []models.PromotionalBudget, error) {
	return nil, nil, utils.ErrorRecordNotFound
}

func (emptyLedger) ListLedgerOwners(context.Context) ([]models.LedgerOwner, error) { return nil, nil }

func (emptyLedger) ListConsumption(context.Context, models.LedgerOwner) ([]models.ConsumptionRecord, error) {
	return nil, nil
}

func (emptyLedger) GetSummary(context.Context, models.LedgerOwner) (*models.ConsumptionSummary, error) {
	return nil, utils.ErrorRecordNotFound
}

func (emptyLedger) Rebuild(context.Context, models.LedgerOwner, func(models.LedgerTx) error) error {
	return errors.New("not reachable")
}

func setupEngine(t *testing.T) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cache := exchange.NewMemoryRateCache(time.Minute)
	normalizer := exchange.NewNormalizer("MMK", "USD", exchange.SideSell, nil, nil, cache, logger)
	current.Store(&engine{
		quotes:    workflow.NewQuoteService(stubCommissions{}, normalizer, pricing.DefaultFeeSchedule(), decimal.Zero, logger),
		recalc:    workflow.NewRecalculator(emptyLedger{}, normalizer, "USD", workflow.NewLocalRebuildLocker(), logger),
		ledger:    emptyLedger{},
		rateCache: cache,
	})
	t.Cleanup(func() { current.Store(nil) })
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouterUnavailableUntilEngineReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	current.Store(nil)
	r := newRouter(logrus.New())

	w := doJSON(t, r, http.MethodPost, "/quote", map[string]any{})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestQuoteHandler(t *testing.T) {
	setupEngine(t)
	r := newRouter(logrus.New())

	t.Run("marketplace", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/quote", map[string]any{
			"cost":                  "10000",
			"currency":              "MMK",
			"target_markup_percent": "30",
			"tax_percent":           "5",
			"channel":               "marketplace",
			"price_list_id":         1,
			"group_id":              10,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var res workflow.QuoteResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, workflow.QuoteStatusOK, res.Status)
		assert.True(t, res.Price.GreaterThan(decimal.NewFromInt(10000)))
		assert.Contains(t, res.InstallmentPrices, 3)
	})

	t.Run("no schedule is cannot_price", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/quote", map[string]any{
			"cost":                  "10000",
			"currency":              "MMK",
			"target_markup_percent": "30",
			"tax_percent":           "5",
			"channel":               "marketplace",
			"price_list_id":         2,
			"group_id":              10,
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), string(workflow.QuoteStatusCannotPrice))
	})

	t.Run("missing price list is a field error", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/quote", map[string]any{
			"cost":     "10000",
			"currency": "MMK",
			"channel":  "marketplace",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "fields")
	})
}

func TestRebuildHandler(t *testing.T) {
	setupEngine(t)
	r := newRouter(logrus.New())

	w := doJSON(t, r, http.MethodPost, "/ledger/rebuild", map[string]any{"owner_type": "offset", "owner_id": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/ledger/rebuild", map[string]any{"owner_type": "budget", "owner_id": 99})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, w.Header().Get("x-correlation-id"))
}

func TestLedgerHandlers(t *testing.T) {
	setupEngine(t)
	r := newRouter(logrus.New())

	w := doJSON(t, r, http.MethodGet, "/ledger/budget/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, "/ledger/budget/7", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodGet, "/ledger/group/7/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, utils.XlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "ledger-group-7.xlsx")

	w = doJSON(t, r, http.MethodPost, "/internal/ops/exchange-rates/invalidate", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestLedgerPubSubHandlerAcks(t *testing.T) {
	setupEngine(t)
	r := newRouter(logrus.New())

	push := func(data string) *httptest.ResponseRecorder {
		return doJSON(t, r, http.MethodPost, "/pubsub/ledger", map[string]any{
			"message": map[string]any{
				"id":   "m-1",
				"data": base64.StdEncoding.EncodeToString([]byte(data)),
			},
			"subscription": "projects/p/subscriptions/ledger",
		})
	}

	// Malformed and unknown owners are acked so Pub/Sub stops redelivering.
	assert.Equal(t, http.StatusNoContent, push("not json").Code)
	assert.Equal(t, http.StatusNoContent, push(`{"owner_type":"budget","owner_id":0}`).Code)
	assert.Equal(t, http.StatusNoContent, push(`{"owner_type":"budget","owner_id":42}`).Code)
}

func TestRebuildErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: budget:1", workflow.ErrRebuildInProgress), http.StatusConflict},
		{fmt.Errorf("budget 1: %w", utils.ErrorRecordNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: budget:1: boom", workflow.ErrRebuildFailed), http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, rebuildErrorStatus(tc.err), tc.err.Error())
	}
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim("  "))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, splitAndTrim(" https://a.example, ,https://b.example "))
}
