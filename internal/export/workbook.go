package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"statementsync/internal/run"

	"github.com/xuri/excelize/v2"
)

const summarySheet = "Sheet1"

// Workbook writes the run summary as a single sheet spreadsheet.
type Workbook struct{}

func NewWorkbook() Workbook {
	return Workbook{}
}

func (Workbook) ExportSummary(_ context.Context, path string, summary run.Summary) error {
	file := excelize.NewFile()
	defer file.Close()

	header := make([]any, len(run.SummaryHeader))
	for i, h := range run.SummaryHeader {
		header[i] = h
	}
	err := file.SetSheetRow(summarySheet, "A1", &header)
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range summary.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		err = file.SetSheetRow(summarySheet, cell, &[]any{row.Id, row.Name, row.Balance})
		if err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	err = os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return err
	}
	err = file.SaveAs(path)
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
