package report

import (
	"sort"
	"time"
)

// NotFoundTitle is the sentinel written in place of a listing title when the
// marketplace returned no match for a row.
const NotFoundTitle = "No encontrado"

// EnrichedRow joins a supplier catalog row with its resolved listing. When
// unmatched, numeric fields are zero and text fields are empty or sentinel,
// keeping the schema uniform for sorting, filtering and export.
type EnrichedRow struct {
	SKU                string
	Description        string
	SupplierPriceARS   float64
	MatchedTitle       string
	MatchedPriceARS    float64
	SoldQuantity       int
	Condition          string
	DifferentialARS    float64
	MarginPercent      float64
	EstimatedProfitARS float64
	ListingURL         string
}

// Unmatched builds the sentinel form of an EnrichedRow.
func Unmatched(sku, description string, supplierPriceARS float64) EnrichedRow {
	return EnrichedRow{
		SKU:              sku,
		Description:      description,
		SupplierPriceARS: supplierPriceARS,
		MatchedTitle:     NotFoundTitle,
	}
}

// Report is the final, filtered and ranked result of a pipeline run.
type Report struct {
	Rows        []EnrichedRow
	GeneratedAt time.Time
}

// Finalize filters out rows without a valid market price and ranks the rest
// by margin, highest first. Ties keep their original catalog order.
func Finalize(rows []EnrichedRow, generatedAt time.Time) *Report {
	filtered := make([]EnrichedRow, 0, len(rows))
	for _, row := range rows {
		if row.MatchedPriceARS > 0 {
			filtered = append(filtered, row)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].MarginPercent > filtered[j].MarginPercent
	})

	return &Report{Rows: filtered, GeneratedAt: generatedAt}
}

// Top returns up to n highest-margin rows.
func (r *Report) Top(n int) []EnrichedRow {
	if n > len(r.Rows) {
		n = len(r.Rows)
	}
	return r.Rows[:n]
}
