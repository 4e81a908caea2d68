package main

import (
	"context"
	"os"
	"time"

	"skuradar/internal/app"
	"skuradar/internal/catalog"
	"skuradar/internal/meli"
	"skuradar/internal/notifications"
	"skuradar/internal/radar"
	"skuradar/internal/report"
	"skuradar/internal/sheets"

	"github.com/rs/zerolog/log"
)

func main() {
	app.SetupEnvironment()

	if len(os.Args) < 2 {
		log.Fatal().Msg("usage: skuradar <catalog.xlsx>")
	}
	catalogPath := os.Args[1]

	cfg := app.LoadConfig()
	ctx := context.Background()

	rows, err := catalog.Load(catalogPath, cfg.ExchangeRate)
	if err != nil {
		log.Fatal().Err(err).Str("path", catalogPath).Msg("Failed to load supplier catalog")
	}

	client := meli.NewClient(cfg.ClientID, cfg.ClientSecret, cfg.Site)
	tokens := meli.NewTokenManager(client, meli.NewFileStore(cfg.TokenCacheFile))
	resolver := meli.NewResolver(client)
	exporter := report.NewFileExporter(cfg.ResultsDir)

	pipeline := radar.New(cfg.Pricing(), resolver, tokens, exporter, cfg.PacingDelay)

	rep, err := pipeline.Run(ctx, rows)
	if err != nil {
		log.Fatal().Err(err).Msg("Analysis run failed")
	}

	log.Info().
		Int64("api_calls", client.GetAPICallCount()).
		Msg("Marketplace API usage for this run")

	logTopWinners(rep)
	mirrorToSheet(ctx, cfg, rep)
	notifySummary(ctx, cfg, rep, len(rows))
}

func logTopWinners(rep *report.Report) {
	for i, row := range rep.Top(10) {
		log.Info().
			Int("rank", i+1).
			Str("sku", row.SKU).
			Str("title", row.MatchedTitle).
			Float64("margin_percent", row.MarginPercent).
			Float64("estimated_profit", row.EstimatedProfitARS).
			Str("url", row.ListingURL).
			Msg("Winner product")
	}
}

func mirrorToSheet(ctx context.Context, cfg app.Config, rep *report.Report) {
	if cfg.SpreadsheetID == "" {
		log.Debug().Msg("No spreadsheet configured, skipping sheet mirror")
		return
	}

	sheetsClient, err := sheets.NewClient(ctx, cfg.CredentialsFile)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create sheets client, skipping sheet mirror")
		return
	}

	// Errors are already logged inside; the xlsx artifact is the canonical output.
	_ = sheets.AppendReport(ctx, sheetsClient, cfg.SpreadsheetID, cfg.SheetRange, rep)
}

func notifySummary(ctx context.Context, cfg app.Config, rep *report.Report, analyzed int) {
	if !cfg.NtfyEnabled {
		return
	}

	client := notifications.NewClient(cfg.NtfyURL, cfg.NtfyTopic, cfg.NtfyEnabled, cfg.NtfyPriority, 3, time.Second, 30*time.Second)

	winners := make([]notifications.WinnerInfo, 0, len(rep.Rows))
	for _, row := range rep.Rows {
		winners = append(winners, notifications.WinnerInfo{
			SKU:           row.SKU,
			Title:         row.MatchedTitle,
			MarginPercent: row.MarginPercent,
		})
	}
	// Wait for the background send so process exit cannot truncate a retry.
	<-client.NotifyRunSummary(ctx, winners, analyzed)
}
