package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/mmdatafocus/pricing_backend/models"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	recordSheet  = "Records"
)

var recordHeadings = []string{
	"SaleId", "SaleDate", "ItemId", "BudgetId", "Channel",
	"Quantity", "ExchangeRate", "LocalAmount", "ForeignAmount",
}

// ExportLedgerWorkbook renders a consumption ledger as an XLSX workbook with
// a summary sheet and one row per consumption record.
func ExportLedgerWorkbook(summary *models.ConsumptionSummary, records []models.ConsumptionRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(recordSheet); err != nil {
		return nil, err
	}

	if err := writeSummary(f, summary); err != nil {
		return nil, err
	}

	for i, h := range recordHeadings {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(recordSheet, cell, h); err != nil {
			return nil, err
		}
	}
	for i, r := range records {
		row := []interface{}{
			r.SaleId,
			r.SaleDate.Format("2006-01-02"),
			r.ItemId,
			r.BudgetId,
			string(r.Channel),
			r.Quantity.InexactFloat64(),
			r.ExchangeRate.InexactFloat64(),
			r.LocalAmount.InexactFloat64(),
			r.ForeignAmount.InexactFloat64(),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(recordSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, s *models.ConsumptionSummary) error {
	if s == nil {
		return f.SetCellValue(summarySheet, "A1", "No summary")
	}
	breachDate := ""
	if s.BreachDate != nil {
		breachDate = s.BreachDate.Format("2006-01-02")
	}
	rows := [][]interface{}{
		{"Owner", s.Owner().String()},
		{"TotalUnits", s.TotalUnits.InexactFloat64()},
		{"TotalLocalAmount", s.TotalLocalAmount.InexactFloat64()},
		{"TotalForeignAmount", s.TotalForeignAmount.InexactFloat64()},
		{"SaleCount", s.SaleCount},
		{"Breach", string(s.Breach)},
		{"BreachDate", breachDate},
	}
	for i, row := range rows {
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return err
		}
	}
	return nil
}

// LedgerExportObjectName is the storage object name of an exported ledger.
func LedgerExportObjectName(owner models.LedgerOwner, at time.Time) string {
	return fmt.Sprintf("ledger-exports/%s/%d/%s.xlsx", owner.Type, owner.Id, at.UTC().Format("20060102T150405Z"))
}
