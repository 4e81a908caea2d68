package radar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"skuradar/internal/catalog"
	"skuradar/internal/meli"
	"skuradar/internal/pricing"
	"skuradar/internal/report"
)

// Resolver finds the marketplace listing for one catalog row.
type Resolver interface {
	Resolve(ctx context.Context, accessToken, sku, description string) (*meli.Listing, error)
}

// TokenSource supplies a usable access token for the run.
type TokenSource interface {
	GetValidToken(ctx context.Context) (meli.AccessToken, error)
	ForceRefresh(ctx context.Context) (meli.AccessToken, error)
}

// Exporter writes the final report artifact. Optional; export failure is
// reported but never discards the in-memory report.
type Exporter interface {
	Export(r *report.Report) (string, error)
}

// Pipeline runs the catalog enrichment: one sequential pass over the rows,
// one lookup each, paced to respect the marketplace's rate limits.
type Pipeline struct {
	pricing  pricing.Config
	resolver Resolver
	tokens   TokenSource
	exporter Exporter
	pacing   time.Duration
	now      func() time.Time
}

func New(cfg pricing.Config, resolver Resolver, tokens TokenSource, exporter Exporter, pacing time.Duration) *Pipeline {
	return &Pipeline{
		pricing:  cfg,
		resolver: resolver,
		tokens:   tokens,
		exporter: exporter,
		pacing:   pacing,
		now:      time.Now,
	}
}

// Run enriches every catalog row and returns the filtered, margin-ranked
// report. An auth failure aborts the run before any row is processed; a
// failed lookup only marks its row as unmatched.
func (p *Pipeline) Run(ctx context.Context, rows []catalog.SupplierRow) (*report.Report, error) {
	token, err := p.tokens.GetValidToken(ctx)
	if err != nil {
		return report.Finalize(nil, p.now()), fmt.Errorf("run aborted: %w", err)
	}

	log.Info().Int("rows", len(rows)).Msg("Starting catalog analysis")

	refreshed := false
	enriched := make([]report.EnrichedRow, 0, len(rows))

	for i, row := range rows {
		log.Debug().
			Str("sku", row.SKU).
			Str("description", row.Description).
			Msg("Resolving catalog row")

		listing, err := p.resolver.Resolve(ctx, token.Value, row.SKU, row.Description)
		if errors.Is(err, meli.ErrUnauthorized) {
			// Refresh once per run; a second rejection means the
			// credentials are bad and every further row would be a
			// silent false negative.
			if refreshed {
				return report.Finalize(nil, p.now()), fmt.Errorf("token rejected again after refresh: %w", err)
			}
			refreshed = true

			token, err = p.tokens.ForceRefresh(ctx)
			if err != nil {
				return report.Finalize(nil, p.now()), fmt.Errorf("run aborted: %w", err)
			}
			listing, err = p.resolver.Resolve(ctx, token.Value, row.SKU, row.Description)
			if errors.Is(err, meli.ErrUnauthorized) {
				return report.Finalize(nil, p.now()), fmt.Errorf("token rejected again after refresh: %w", err)
			}
		}
		if err != nil && !errors.Is(err, meli.ErrUnauthorized) {
			log.Warn().Err(err).Str("sku", row.SKU).Msg("Lookup failed, recording row as unmatched")
			listing = nil
		}

		enriched = append(enriched, p.enrich(row, listing))

		if i < len(rows)-1 && p.pacing > 0 {
			select {
			case <-ctx.Done():
				return report.Finalize(nil, p.now()), ctx.Err()
			case <-time.After(p.pacing):
			}
		}
	}

	rep := report.Finalize(enriched, p.now())
	log.Info().
		Int("analyzed", len(rows)).
		Int("winners", len(rep.Rows)).
		Msg("Catalog analysis complete")

	if p.exporter != nil {
		path, err := p.exporter.Export(rep)
		if err != nil {
			log.Error().Err(err).Msg("Failed to export report artifact")
		} else {
			log.Info().Str("path", path).Msg("Exported report artifact")
		}
	}

	return rep, nil
}

func (p *Pipeline) enrich(row catalog.SupplierRow, listing *meli.Listing) report.EnrichedRow {
	if listing == nil {
		log.Info().
			Str("sku", row.SKU).
			Str("description", row.Description).
			Msg("No marketplace match")
		return report.Unmatched(row.SKU, row.Description, row.PriceARS)
	}

	differential, margin, profit := pricing.ComputeProfitability(row.PriceARS, listing.Price, p.pricing)

	log.Info().
		Str("sku", row.SKU).
		Str("title", listing.Title).
		Float64("listing_price", listing.Price).
		Float64("margin_percent", margin).
		Msg("Matched listing")

	return report.EnrichedRow{
		SKU:                row.SKU,
		Description:        row.Description,
		SupplierPriceARS:   row.PriceARS,
		MatchedTitle:       listing.Title,
		MatchedPriceARS:    listing.Price,
		SoldQuantity:       listing.SoldQuantity,
		Condition:          listing.Condition.Label(),
		DifferentialARS:    differential,
		MarginPercent:      margin,
		EstimatedProfitARS: profit,
		ListingURL:         listing.Permalink,
	}
}
