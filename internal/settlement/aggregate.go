// Package settlement turns unsettled consumptions into per-member bills.
package settlement

import (
	"sort"
	"strings"
	"time"

	"labcafe/internal/domain"
	"labcafe/internal/money"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type breakdownKey struct {
	itemID    string
	unitPrice int64
}

type userGroup struct {
	line domain.PreviewLine
	rows map[breakdownKey]*domain.BreakdownRow
}

// ComputePreviewLines groups consumptions by member and, within a member, by
// item and frozen unit price. The result does not depend on input order.
// Reversed or already settled consumptions are ignored.
func ComputePreviewLines(consumptions []domain.ConsumptionDetail) []domain.PreviewLine {
	groups := make(map[string]*userGroup)
	for _, c := range consumptions {
		if c.ReversedAt != nil || c.SettlementID != nil || c.Quantity <= 0 {
			continue
		}
		group, ok := groups[c.UserID]
		if !ok {
			group = &userGroup{
				line: domain.PreviewLine{
					UserID:      c.UserID,
					DisplayName: c.UserDisplayName,
					Email:       c.UserEmail,
				},
				rows: make(map[breakdownKey]*domain.BreakdownRow),
			}
			groups[c.UserID] = group
		}

		key := breakdownKey{itemID: c.ItemID, unitPrice: c.PriceAtTxCents}
		row, ok := group.rows[key]
		if !ok {
			row = &domain.BreakdownRow{
				ItemID:         c.ItemID,
				ItemName:       c.ItemName,
				UnitPriceCents: c.PriceAtTxCents,
			}
			group.rows[key] = row
		}
		row.Quantity += c.Quantity
		row.TotalCents = money.LineTotal(row.Quantity, row.UnitPriceCents)
	}

	col := collate.New(language.Und, collate.IgnoreCase)
	lines := make([]domain.PreviewLine, 0, len(groups))
	for _, group := range groups {
		line := group.line
		line.Breakdown = make([]domain.BreakdownRow, 0, len(group.rows))
		for _, row := range group.rows {
			line.Breakdown = append(line.Breakdown, *row)
			line.ItemCount += row.Quantity
			line.TotalCents += row.TotalCents
		}
		sortBreakdown(col, line.Breakdown)
		lines = append(lines, line)
	}

	sort.Slice(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if c := col.CompareString(a.DisplayName, b.DisplayName); c != 0 {
			return c < 0
		}
		if c := strings.Compare(strings.ToLower(a.Email), strings.ToLower(b.Email)); c != 0 {
			return c < 0
		}
		return a.UserID < b.UserID
	})
	return lines
}

func sortBreakdown(col *collate.Collator, rows []domain.BreakdownRow) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.TotalCents != b.TotalCents {
			return a.TotalCents > b.TotalCents
		}
		if c := col.CompareString(a.ItemName, b.ItemName); c != 0 {
			return c < 0
		}
		if a.UnitPriceCents != b.UnitPriceCents {
			return a.UnitPriceCents < b.UnitPriceCents
		}
		return a.ItemID < b.ItemID
	})
}

// GrandTotal sums the member totals.
func GrandTotal(lines []domain.PreviewLine) int64 {
	var total int64
	for _, line := range lines {
		total += line.TotalCents
	}
	return total
}

// MonthBounds returns the inclusive UTC range of a YYYY-MM month:
// the first instant of day 1 through 23:59:59.999 of its last day.
func MonthBounds(month string) (time.Time, time.Time, error) {
	parsed, err := time.Parse("2006-01", strings.TrimSpace(month))
	if err != nil {
		return time.Time{}, time.Time{}, domain.ErrValidation.WithDetails(map[string]string{"month": "expected YYYY-MM"})
	}
	year, mon := parsed.Year(), parsed.Month()
	start := time.Date(year, mon, 1, 0, 0, 0, 0, time.UTC)
	lastDay := time.Date(year, mon+1, 0, 0, 0, 0, 0, time.UTC).Day()
	end := time.Date(year, mon, lastDay, 23, 59, 59, int(999*time.Millisecond), time.UTC)
	return start, end, nil
}
