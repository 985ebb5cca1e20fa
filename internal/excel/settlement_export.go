package excel

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"labcafe/internal/domain"
	"labcafe/internal/money"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet   = "Summary"
	breakdownSheet = "Breakdown"
)

// SettlementFileName is the download name for an export, e.g. settlement-7-2026-03.xlsx.
func SettlementFileName(st domain.Settlement, ext string) string {
	return fmt.Sprintf("settlement-%d-%s.%s", st.Number, st.StartDate.Format("2006-01"), strings.TrimPrefix(ext, "."))
}

// WriteSettlementCSV writes one row per breakdown entry, members in line order.
func WriteSettlementCSV(w io.Writer, lines []domain.PreviewLine, currency string) error {
	out := csv.NewWriter(w)
	if err := out.Write([]string{"user_id", "display_name", "email", "item", "quantity", "unit_price", "line_total", "member_total", "currency"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	code := money.NormalizeCurrency(currency)
	for _, line := range lines {
		for _, row := range line.Breakdown {
			record := []string{
				line.UserID,
				line.DisplayName,
				line.Email,
				row.ItemName,
				strconv.Itoa(row.Quantity),
				money.Format(row.UnitPriceCents, code),
				money.Format(row.TotalCents, code),
				money.Format(line.TotalCents, code),
				code,
			}
			if err := out.Write(record); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	out.Flush()
	return out.Error()
}

// WriteSettlementWorkbook writes a two-sheet workbook: member totals and the
// per-item breakdown behind them.
func WriteSettlementWorkbook(w io.Writer, st domain.Settlement, lines []domain.PreviewLine, currency string) error {
	file := excelize.NewFile()
	defer file.Close()

	code := money.NormalizeCurrency(currency)
	if err := file.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := file.NewSheet(breakdownSheet); err != nil {
		return fmt.Errorf("create breakdown sheet: %w", err)
	}

	headerStyle, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	numFmt := "#,##0.00"
	if money.Decimals(code) == 0 {
		numFmt = "#,##0"
	}
	amountStyle, err := file.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return fmt.Errorf("create amount style: %w", err)
	}

	title := fmt.Sprintf("Settlement #%d %s (%s)", st.Number, st.StartDate.Format("2006-01"), st.Status)
	summary := [][]any{
		{title},
		{"Member", "Email", "Items", "Total (" + code + ")"},
	}
	var grand int64
	for _, line := range lines {
		summary = append(summary, []any{line.DisplayName, line.Email, line.ItemCount, majorUnits(line.TotalCents, code)})
		grand += line.TotalCents
	}
	summary = append(summary, []any{"Total", "", "", majorUnits(grand, code)})
	if err := writeRows(file, summarySheet, summary); err != nil {
		return err
	}
	if err := styleSheet(file, summarySheet, headerStyle, amountStyle, "D", len(summary)); err != nil {
		return err
	}

	breakdown := [][]any{
		{title},
		{"Member", "Item", "Quantity", "Unit price (" + code + ")", "Total (" + code + ")"},
	}
	for _, line := range lines {
		for _, row := range line.Breakdown {
			breakdown = append(breakdown, []any{
				line.DisplayName, row.ItemName, row.Quantity,
				majorUnits(row.UnitPriceCents, code), majorUnits(row.TotalCents, code),
			})
		}
	}
	if err := writeRows(file, breakdownSheet, breakdown); err != nil {
		return err
	}
	if err := styleSheet(file, breakdownSheet, headerStyle, amountStyle, "E", len(breakdown)); err != nil {
		return err
	}
	if err := file.SetCellStyle(breakdownSheet, "D3", fmt.Sprintf("D%d", max(len(breakdown), 3)), amountStyle); err != nil {
		return fmt.Errorf("style unit prices: %w", err)
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(file *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := file.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func styleSheet(file *excelize.File, sheet string, headerStyle, amountStyle int, amountCol string, rowCount int) error {
	if err := file.SetCellStyle(sheet, "A1", "A1", headerStyle); err != nil {
		return fmt.Errorf("style %s title: %w", sheet, err)
	}
	if err := file.SetCellStyle(sheet, "A2", amountCol+"2", headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	if rowCount > 2 {
		if err := file.SetCellStyle(sheet, amountCol+"3", fmt.Sprintf("%s%d", amountCol, rowCount), amountStyle); err != nil {
			return fmt.Errorf("style %s amounts: %w", sheet, err)
		}
	}
	if err := file.SetColWidth(sheet, "A", "B", 28); err != nil {
		return fmt.Errorf("size %s columns: %w", sheet, err)
	}
	return file.SetColWidth(sheet, "C", amountCol, 16)
}

func majorUnits(cents int64, currency string) float64 {
	return decimal.New(cents, -money.Decimals(currency)).InexactFloat64()
}
