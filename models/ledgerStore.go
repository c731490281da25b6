package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmdatafocus/pricing_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerTx is the write side of one rebuild. Everything done through it
// commits or rolls back together.
type LedgerTx interface {
	FindSales(ctx context.Context, q SaleQuery) ([]SaleMargin, error)
	PurgeConsumption(ctx context.Context, owner LedgerOwner) (int64, error)
	InsertConsumption(ctx context.Context, rows []ConsumptionRecord) error
	UpsertSummary(ctx context.Context, summary *ConsumptionSummary) error
}

// LedgerStore is what the ledger recalculator needs from persistence.
type LedgerStore interface {
	GetBudget(ctx context.Context, id int) (*PromotionalBudget, error)
	GetGroupMembers(ctx context.Context, groupId int) (*SharedGroup, []PromotionalBudget, error)
	ListLedgerOwners(ctx context.Context) ([]LedgerOwner, error)
	ListConsumption(ctx context.Context, owner LedgerOwner) ([]ConsumptionRecord, error)
	GetSummary(ctx context.Context, owner LedgerOwner) (*ConsumptionSummary, error)
	// Rebuild runs fn in one transaction holding the owner's advisory lock.
	Rebuild(ctx context.Context, owner LedgerOwner, fn func(tx LedgerTx) error) error
}

type GormLedgerStore struct {
	db *gorm.DB
}

func NewLedgerStore(db *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{db: db}
}

func (s *GormLedgerStore) GetBudget(ctx context.Context, id int) (*PromotionalBudget, error) {
	var result PromotionalBudget
	err := s.db.WithContext(ctx).Take(&result, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *GormLedgerStore) GetGroupMembers(ctx context.Context, groupId int) (*SharedGroup, []PromotionalBudget, error) {
	var group SharedGroup
	err := s.db.WithContext(ctx).Take(&group, groupId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	var members []PromotionalBudget
	if err := s.db.WithContext(ctx).Where("group_id = ?", groupId).Order("id").Find(&members).Error; err != nil {
		return nil, nil, err
	}
	return &group, members, nil
}

// ListLedgerOwners returns every standalone budget and every shared group.
func (s *GormLedgerStore) ListLedgerOwners(ctx context.Context) ([]LedgerOwner, error) {
	var budgetIds, groupIds []int
	if err := s.db.WithContext(ctx).Model(&PromotionalBudget{}).
		Where("group_id IS NULL").Order("id").Pluck("id", &budgetIds).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&SharedGroup{}).Order("id").Pluck("id", &groupIds).Error; err != nil {
		return nil, err
	}
	owners := make([]LedgerOwner, 0, len(budgetIds)+len(groupIds))
	for _, id := range budgetIds {
		owners = append(owners, BudgetOwner(id))
	}
	for _, id := range groupIds {
		owners = append(owners, GroupOwner(id))
	}
	return owners, nil
}

func (s *GormLedgerStore) ListConsumption(ctx context.Context, owner LedgerOwner) ([]ConsumptionRecord, error) {
	var rows []ConsumptionRecord
	err := s.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", owner.Type, owner.Id).
		Order("sale_date, sale_id, id").
		Find(&rows).Error
	return rows, err
}

func (s *GormLedgerStore) GetSummary(ctx context.Context, owner LedgerOwner) (*ConsumptionSummary, error) {
	var result ConsumptionSummary
	err := s.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", owner.Type, owner.Id).
		Take(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *GormLedgerStore) Rebuild(ctx context.Context, owner LedgerOwner, fn func(tx LedgerTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := acquireLedgerRebuildLock(tx, owner); err != nil {
			return err
		}
		defer releaseLedgerRebuildLock(tx, owner)
		return fn(&gormLedgerTx{tx: tx})
	})
}

// GET_LOCK is connection-scoped, so it must run on the transaction's connection.
func acquireLedgerRebuildLock(tx *gorm.DB, owner LedgerOwner) error {
	lockName := fmt.Sprintf("ledger_rebuild:%s", owner)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire ledger rebuild lock for %s", owner)
	}
	return nil
}

func releaseLedgerRebuildLock(tx *gorm.DB, owner LedgerOwner) {
	lockName := fmt.Sprintf("ledger_rebuild:%s", owner)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

type gormLedgerTx struct {
	tx *gorm.DB
}

func (t *gormLedgerTx) FindSales(ctx context.Context, q SaleQuery) ([]SaleMargin, error) {
	dbCtx := t.tx.WithContext(ctx).Where("sale_date >= ?", q.From)
	if q.To != nil {
		dbCtx = dbCtx.Where("sale_date <= ?", *q.To)
	}
	if column := scopeColumn(q.Scope); column != "" && len(q.Values) > 0 {
		dbCtx = dbCtx.Where(column+" IN ?", q.Values)
	}
	var rows []SaleMargin
	err := dbCtx.Order("sale_date, sale_id, id").Find(&rows).Error
	return rows, err
}

func scopeColumn(kind ScopeKind) string {
	switch kind {
	case ScopeItem:
		return "item_id"
	case ScopeBrand:
		return "brand"
	case ScopeCategory:
		return "category"
	case ScopeSubcategory:
		return "subcategory"
	}
	return ""
}

func (t *gormLedgerTx) PurgeConsumption(ctx context.Context, owner LedgerOwner) (int64, error) {
	res := t.tx.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", owner.Type, owner.Id).
		Delete(&ConsumptionRecord{})
	return res.RowsAffected, res.Error
}

func (t *gormLedgerTx) InsertConsumption(ctx context.Context, rows []ConsumptionRecord) error {
	if len(rows) == 0 {
		return nil
	}
	return t.tx.WithContext(ctx).CreateInBatches(rows, 500).Error
}

func (t *gormLedgerTx) UpsertSummary(ctx context.Context, summary *ConsumptionSummary) error {
	if summary == nil || !summary.OwnerType.IsValid() {
		return fmt.Errorf("upsert summary: invalid owner %v", summary)
	}
	return t.tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_type"}, {Name: "owner_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_units", "total_local_amount", "total_foreign_amount",
			"sale_count", "breach", "breach_date",
		}),
	}).Create(summary).Error
}

// NormalizeScopeValues trims and de-duplicates values for a SaleQuery.
func NormalizeScopeValues(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
