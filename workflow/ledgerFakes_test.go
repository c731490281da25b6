package workflow

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/mmdatafocus/pricing_backend/models"
	"github.com/mmdatafocus/pricing_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// memLedgerStore keeps the ledger in maps and restores a snapshot when a
// rebuild callback fails.
type memLedgerStore struct {
	mu        sync.Mutex
	budgets   map[int]models.PromotionalBudget
	groups    map[int]models.SharedGroup
	sales     []models.SaleMargin
	records   map[models.LedgerOwner][]models.ConsumptionRecord
	summaries map[models.LedgerOwner]models.ConsumptionSummary
	nextId    int

	insertErr    error
	rebuildCalls int
	// entered/proceed let a test hold a rebuild open.
	entered chan struct{}
	proceed chan struct{}
}

func newMemLedgerStore() *memLedgerStore {
	return &memLedgerStore{
		budgets:   make(map[int]models.PromotionalBudget),
		groups:    make(map[int]models.SharedGroup),
		records:   make(map[models.LedgerOwner][]models.ConsumptionRecord),
		summaries: make(map[models.LedgerOwner]models.ConsumptionSummary),
	}
}

func (s *memLedgerStore) addBudget(b models.PromotionalBudget) {
	s.budgets[b.ID] = b
}

func (s *memLedgerStore) addSale(sale models.SaleMargin) {
	sale.ID = len(s.sales) + 1
	s.sales = append(s.sales, sale)
}

func (s *memLedgerStore) GetBudget(_ context.Context, id int) (*models.PromotionalBudget, error) {
	b, ok := s.budgets[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return &b, nil
}

func (s *memLedgerStore) GetGroupMembers(_ context.Context, groupId int) (*models.SharedGroup, []models.PromotionalBudget, error) {
	g, ok := s.groups[groupId]
	if !ok {
		return nil, nil, utils.ErrorRecordNotFound
	}
	var members []models.PromotionalBudget
	for _, b := range s.budgets {
		if b.GroupId != nil && *b.GroupId == groupId {
			members = append(members, b)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return &g, members, nil
}

func (s *memLedgerStore) ListLedgerOwners(context.Context) ([]models.LedgerOwner, error) {
	var owners []models.LedgerOwner
	var budgetIds, groupIds []int
	for id, b := range s.budgets {
		if b.GroupId == nil {
			budgetIds = append(budgetIds, id)
		}
	}
	for id := range s.groups {
		groupIds = append(groupIds, id)
	}
	sort.Ints(budgetIds)
	sort.Ints(groupIds)
	for _, id := range budgetIds {
		owners = append(owners, models.BudgetOwner(id))
	}
	for _, id := range groupIds {
		owners = append(owners, models.GroupOwner(id))
	}
	return owners, nil
}

func (s *memLedgerStore) ListConsumption(_ context.Context, owner models.LedgerOwner) ([]models.ConsumptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ConsumptionRecord(nil), s.records[owner]...), nil
}

func (s *memLedgerStore) GetSummary(_ context.Context, owner models.LedgerOwner) (*models.ConsumptionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.summaries[owner]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return &sum, nil
}

func (s *memLedgerStore) Rebuild(ctx context.Context, owner models.LedgerOwner, fn func(tx models.LedgerTx) error) error {
	s.mu.Lock()
	s.rebuildCalls++
	recordsSnap := make(map[models.LedgerOwner][]models.ConsumptionRecord, len(s.records))
	for k, v := range s.records {
		recordsSnap[k] = v
	}
	summariesSnap := make(map[models.LedgerOwner]models.ConsumptionSummary, len(s.summaries))
	for k, v := range s.summaries {
		summariesSnap[k] = v
	}
	s.mu.Unlock()

	if s.entered != nil {
		s.entered <- struct{}{}
		<-s.proceed
	}

	if err := fn(&memLedgerTx{store: s}); err != nil {
		s.mu.Lock()
		s.records = recordsSnap
		s.summaries = summariesSnap
		s.mu.Unlock()
		return err
	}
	return nil
}

type memLedgerTx struct {
	store *memLedgerStore
}

func (t *memLedgerTx) FindSales(_ context.Context, q models.SaleQuery) ([]models.SaleMargin, error) {
	var out []models.SaleMargin
	for _, sale := range t.store.sales {
		if sale.SaleDate.Before(q.From) {
			continue
		}
		if q.To != nil && sale.SaleDate.After(*q.To) {
			continue
		}
		out = append(out, sale)
	}
	return out, nil
}

func (t *memLedgerTx) PurgeConsumption(_ context.Context, owner models.LedgerOwner) (int64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	n := int64(len(t.store.records[owner]))
	delete(t.store.records, owner)
	return n, nil
}

func (t *memLedgerTx) InsertConsumption(_ context.Context, rows []models.ConsumptionRecord) error {
	if t.store.insertErr != nil {
		return t.store.insertErr
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, r := range rows {
		t.store.nextId++
		r.ID = t.store.nextId
		owner := models.LedgerOwner{Type: r.OwnerType, Id: r.OwnerId}
		t.store.records[owner] = append(t.store.records[owner], r)
	}
	return nil
}

func (t *memLedgerTx) UpsertSummary(_ context.Context, summary *models.ConsumptionSummary) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.summaries[summary.Owner()] = *summary
	return nil
}

// fixedRates resolves every foreign lookup to one rate.
type fixedRates struct {
	rate  decimal.Decimal
	calls int
}

func (f *fixedRates) Rate(_ context.Context, _ string, _ time.Time, def decimal.Decimal) (decimal.Decimal, error) {
	f.calls++
	if f.rate.IsZero() {
		return def, nil
	}
	return f.rate, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func dp(v float64) *decimal.Decimal {
	x := decimal.NewFromFloat(v)
	return &x
}

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func itemBudget(id int, item string) models.PromotionalBudget {
	b := models.PromotionalBudget{
		ID:            id,
		Name:          "offset",
		Kind:          models.BudgetKindPerUnit,
		Amount:        d(100),
		Currency:      models.BudgetCurrencyLocal,
		EffectiveFrom: date("2024-01-01"),
		Marketplace:   true,
	}
	b.SetScope(models.ItemScope(item))
	return b
}

func sale(saleId, item, day string, qty float64) models.SaleMargin {
	return models.SaleMargin{
		SaleId:       saleId,
		SaleDate:     date(day),
		ItemId:       item,
		Brand:        "Acme",
		Category:     "Audio",
		Subcategory:  "Headphones",
		Quantity:     d(qty),
		UnitCost:     d(2000),
		ExchangeRate: d(1000),
		Channel:      models.ChannelMarketplace,
	}
}
