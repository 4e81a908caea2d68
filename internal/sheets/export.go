package sheets

import (
	"context"

	"github.com/rs/zerolog/log"

	"skuradar/internal/config"
	"skuradar/internal/report"
	"skuradar/internal/retry"
)

// AppendReport mirrors the final report into a Google Sheet, one row per
// winner, after a header row. Transient append failures are retried; a final
// failure is logged and returned but never invalidates the in-memory report.
func AppendReport(ctx context.Context, client *Client, spreadsheetID, range_ string, rep *report.Report) error {
	rows := make([][]interface{}, 0, len(rep.Rows)+1)

	header := make([]interface{}, len(report.Headers))
	for i, h := range report.Headers {
		header[i] = h
	}
	rows = append(rows, header)

	for _, row := range rep.Rows {
		rows = append(rows, row.Values())
	}

	_, err := retry.WithRetry(ctx, config.DefaultResilienceConfig.SheetAppend, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, client.AppendRows(ctx, spreadsheetID, range_, rows)
	})
	if err != nil {
		log.Error().Err(err).Str("spreadsheet_id", spreadsheetID).Msg("Failed to append report to sheet")
		return err
	}

	log.Info().
		Int("rows", len(rep.Rows)).
		Str("spreadsheet_id", spreadsheetID).
		Msg("Appended report to sheet")
	return nil
}
