package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Headers of the exported artifact, in column order.
var Headers = []string{
	"SKU",
	"Descripción Proveedor",
	"Precio Proveedor (ARS)",
	"Título en ML",
	"Precio ML (ARS)",
	"Ventas Estimadas",
	"Condición",
	"Diferencial (ARS)",
	"Margen (%)",
	"Ganancia Estimada (ARS)",
	"URL",
}

var titleCaser = cases.Title(language.Spanish)

// Values renders a row in export column order. The supplier description is
// title-cased for readability, matching the input normalization to lowercase.
func (row EnrichedRow) Values() []interface{} {
	return []interface{}{
		row.SKU,
		titleCaser.String(row.Description),
		row.SupplierPriceARS,
		row.MatchedTitle,
		row.MatchedPriceARS,
		row.SoldQuantity,
		row.Condition,
		row.DifferentialARS,
		row.MarginPercent,
		row.EstimatedProfitARS,
		row.ListingURL,
	}
}

// WriteXLSX writes the report as an xlsx workbook.
func (r *Report) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := f.GetSheetName(0)

	for col, header := range Headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to build header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, row := range r.Rows {
		for col, value := range row.Values() {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("failed to build cell name: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("failed to write row %d: %w", i+1, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// Bytes renders the xlsx artifact in memory, for direct download by a caller.
func (r *Report) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.WriteXLSX(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileExporter writes report artifacts into a results directory, one
// timestamped file per run.
type FileExporter struct {
	Dir string
}

func NewFileExporter(dir string) *FileExporter {
	return &FileExporter{Dir: dir}
}

// Export writes the artifact and returns its path.
func (e *FileExporter) Export(r *Report) (string, error) {
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}

	name := fmt.Sprintf("skuradar_resultados_%s.xlsx", r.GeneratedAt.Format("20060102_1504"))
	path := filepath.Join(e.Dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create artifact: %w", err)
	}
	defer f.Close()

	if err := r.WriteXLSX(f); err != nil {
		return "", err
	}
	return path, nil
}
