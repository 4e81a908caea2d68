package pricing

import "math"

// Config holds the process-wide cost constants. They are passed in
// explicitly so tests can vary rates without touching shared state.
type Config struct {
	ExchangeRate     float64 // source currency (USD) to ARS
	CommissionRate   float64 // marketplace commission, fraction of sale price
	ShippingEstimate float64 // flat shipping cost estimate in ARS
}

// DefaultConfig matches the rates the tool has historically used.
var DefaultConfig = Config{
	ExchangeRate:     950,
	CommissionRate:   0.13,
	ShippingEstimate: 800,
}

// ToLocalCurrency converts a source-currency price to ARS. No validation:
// negative or zero inputs pass through unchanged.
func ToLocalCurrency(price, rate float64) float64 {
	return price * rate
}

// ComputeProfitability derives the price differential, margin percentage and
// estimated profit for a supplier cost against a matched listing price.
// A non-positive listing price means there is no valid market price, so all
// three outputs are zero. Outputs are rounded to 2 decimal places.
func ComputeProfitability(supplierPriceARS, listingPriceARS float64, cfg Config) (differential, marginPercent, estimatedProfit float64) {
	if listingPriceARS <= 0 {
		return 0, 0, 0
	}

	totalCost := supplierPriceARS + cfg.ShippingEstimate
	commission := listingPriceARS * cfg.CommissionRate
	profit := listingPriceARS - totalCost - commission
	margin := profit / listingPriceARS * 100

	return round2(listingPriceARS - supplierPriceARS), round2(margin), round2(profit)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
