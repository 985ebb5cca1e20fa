package excel

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"labcafe/internal/domain"
	"labcafe/internal/money"

	"github.com/xuri/excelize/v2"
)

var headerAliases = map[string]string{
	"name":                "name",
	"item":                "name",
	"item name":           "name",
	"product":             "name",
	"product name":        "name",
	"snack":               "name",
	"price":               "price",
	"unit price":          "price",
	"sell price":          "price",
	"sales price":         "price",
	"currency":            "currency",
	"stock":               "stock",
	"quantity":            "stock",
	"qty":                 "stock",
	"count":               "stock",
	"low stock threshold": "low_stock_threshold",
	"low stock":           "low_stock_threshold",
	"threshold":           "low_stock_threshold",
	"alarm":               "low_stock_threshold",
}

var digitsReplacer = strings.NewReplacer(
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
)

// ParseCatalogue reads a price list from a .csv or .xlsx upload. The format
// follows the file extension; unknown extensions try a workbook, then CSV.
// Prices are major units in the row's currency or defaultCurrency.
func ParseCatalogue(fileName string, reader io.Reader, defaultCurrency string) ([]domain.CatalogueRow, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("input file is empty")
	}

	switch strings.ToLower(strings.TrimSpace(filepath.Ext(fileName))) {
	case ".csv":
		rows, err := parseCSVRows(data)
		if err != nil {
			return nil, err
		}
		return parseCatalogueTable(rows, defaultCurrency)
	case ".xlsx", ".xlsm":
		rows, err := parseExcelRows(data)
		if err != nil {
			return nil, err
		}
		return parseCatalogueTable(rows, defaultCurrency)
	default:
		if rows, err := parseExcelRows(data); err == nil {
			if items, err := parseCatalogueTable(rows, defaultCurrency); err == nil {
				return items, nil
			}
		}
		rows, err := parseCSVRows(data)
		if err != nil {
			return nil, fmt.Errorf("unsupported or invalid catalogue file format")
		}
		return parseCatalogueTable(rows, defaultCurrency)
	}
}

func parseCSVRows(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("csv file is empty")
	}
	return rows, nil
}

func parseExcelRows(data []byte) ([][]string, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open excel file: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("excel file has no sheets")
	}
	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("excel file is empty")
	}
	return rows, nil
}

func parseCatalogueTable(rows [][]string, defaultCurrency string) ([]domain.CatalogueRow, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("input file is empty")
	}
	colMap := mapColumns(rows[0])
	for _, required := range []string{"name", "price"} {
		if _, ok := colMap[required]; !ok {
			return nil, fmt.Errorf("missing required column: %s", required)
		}
	}

	result := make([]domain.CatalogueRow, 0, len(rows)-1)
	for index := 1; index < len(rows); index++ {
		cells := rows[index]
		name := cleanText(readCell(cells, colMap["name"]))
		if name == "" {
			continue
		}

		currency := money.NormalizeCurrency(defaultCurrency)
		if idx, ok := colMap["currency"]; ok {
			if raw := cleanText(readCell(cells, idx)); raw != "" {
				currency = money.NormalizeCurrency(raw)
			}
		}

		price, err := money.Parse(normalizeNumericValue(readCell(cells, colMap["price"])), currency)
		if err != nil {
			return nil, fmt.Errorf("row %d invalid price: %w", index+1, err)
		}
		if price < 0 {
			return nil, fmt.Errorf("row %d invalid price: cannot be negative", index+1)
		}

		row := domain.CatalogueRow{Name: name, PriceCents: price, Currency: currency}
		if idx, ok := colMap["stock"]; ok {
			if raw := normalizeNumericValue(readCell(cells, idx)); raw != "" {
				stock, err := parseInt(raw)
				if err != nil {
					return nil, fmt.Errorf("row %d invalid stock: %w", index+1, err)
				}
				row.Stock = stock
			}
		}
		if idx, ok := colMap["low_stock_threshold"]; ok {
			if raw := normalizeNumericValue(readCell(cells, idx)); raw != "" {
				threshold, err := parseInt(raw)
				if err != nil {
					return nil, fmt.Errorf("row %d invalid low_stock_threshold: %w", index+1, err)
				}
				row.LowStockThreshold = &threshold
			}
		}
		result = append(result, row)
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("file has no valid catalogue rows")
	}
	return result, nil
}

func mapColumns(header []string) map[string]int {
	mapped := make(map[string]int)
	for idx, col := range header {
		normalized := normalizeHeader(col)
		if normalized == "" {
			continue
		}
		canonical, ok := headerAliases[normalized]
		if !ok {
			continue
		}
		if _, exists := mapped[canonical]; !exists {
			mapped[canonical] = idx
		}
	}
	return mapped
}

func normalizeHeader(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "\ufeff")
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", " ")
	return strings.Join(strings.Fields(value), " ")
}

func readCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func cleanText(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func normalizeNumericValue(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "\ufeff")
	value = digitsReplacer.Replace(value)
	value = strings.ReplaceAll(value, "٬", "")
	value = strings.ReplaceAll(value, "٫", ".")
	return strings.TrimSpace(value)
}

func parseInt(raw string) (int, error) {
	value := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if value == "" {
		return 0, fmt.Errorf("value is empty")
	}
	asFloat, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if math.Mod(asFloat, 1) != 0 {
		return 0, fmt.Errorf("must be an integer")
	}
	return int(asFloat), nil
}
