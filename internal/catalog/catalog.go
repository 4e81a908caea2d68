package catalog

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"skuradar/internal/pricing"
)

// Column headers expected in the supplier spreadsheet. The price column is
// either USD (converted on load) or ARS, never both.
const (
	colSKU         = "SKU"
	colDescription = "Descripción"
	colPriceUSD    = "Precio USD"
	colPriceARS    = "Precio ARS"
)

// SupplierRow is one catalog entry. Rows are immutable after load; the
// description is already normalized and the price is always in ARS.
type SupplierRow struct {
	SKU         string
	Description string
	PriceARS    float64
}

// Load reads the supplier catalog from an xlsx file.
func Load(path string, exchangeRate float64) ([]SupplierRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()
	return LoadReader(f, exchangeRate)
}

// LoadReader parses the first sheet of the workbook. USD prices are converted
// to ARS with the given rate; descriptions are lowercased and trimmed.
func LoadReader(r io.Reader, exchangeRate float64) ([]SupplierRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("spreadsheet has no sheets")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("spreadsheet is empty")
	}

	cols, err := mapColumns(rows[0])
	if err != nil {
		return nil, err
	}

	var catalog []SupplierRow
	for i, row := range rows[1:] {
		rowNum := i + 2

		description := strings.ToLower(strings.TrimSpace(cell(row, cols.description)))
		if description == "" {
			log.Debug().Int("row", rowNum).Msg("Skipping row without description")
			continue
		}

		priceStr := cell(row, cols.price)
		price, err := strconv.ParseFloat(strings.TrimSpace(priceStr), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid price %q", rowNum, priceStr)
		}
		if cols.priceIsUSD {
			price = pricing.ToLocalCurrency(price, exchangeRate)
		}

		catalog = append(catalog, SupplierRow{
			SKU:         strings.TrimSpace(cell(row, cols.sku)),
			Description: description,
			PriceARS:    price,
		})
	}

	log.Info().Int("rows", len(catalog)).Msg("Loaded supplier catalog")
	return catalog, nil
}

type columnMap struct {
	sku         int
	description int
	price       int
	priceIsUSD  bool
}

func mapColumns(header []string) (columnMap, error) {
	cols := columnMap{sku: -1, description: -1, price: -1}

	for i, h := range header {
		switch strings.TrimSpace(h) {
		case colSKU:
			cols.sku = i
		case colDescription:
			cols.description = i
		case colPriceUSD:
			if cols.price >= 0 {
				return cols, fmt.Errorf("catalog has both %q and %q columns, expected exactly one", colPriceUSD, colPriceARS)
			}
			cols.price = i
			cols.priceIsUSD = true
		case colPriceARS:
			if cols.price >= 0 {
				return cols, fmt.Errorf("catalog has both %q and %q columns, expected exactly one", colPriceUSD, colPriceARS)
			}
			cols.price = i
		}
	}

	if cols.description < 0 {
		return cols, fmt.Errorf("catalog is missing required column %q", colDescription)
	}
	if cols.price < 0 {
		return cols, fmt.Errorf("catalog is missing a price column (%q or %q)", colPriceUSD, colPriceARS)
	}
	return cols, nil
}

func cell(row []string, index int) string {
	if index >= 0 && index < len(row) {
		return row[index]
	}
	return ""
}
