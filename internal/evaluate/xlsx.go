package evaluate

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	fieldsSheet  = "Fields"
	summarySheet = "Summary"
)

// WriteXLSX writes report as a workbook with a per-field sheet and a
// summary sheet.
func WriteXLSX(w io.Writer, r *Report, run *Run) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", fieldsSheet); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}
	pct, err := f.NewStyle(&excelize.Style{NumFmt: 10}) // 0.00%
	if err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}

	headers := []string{"Field", "Rollup", "TP", "FP", "FN", "Precision", "Recall", "F1", "Accuracy"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(fieldsSheet, cell, h)
	}
	_ = f.SetRowStyle(fieldsSheet, 1, 1, bold)

	row := 2
	for _, fr := range r.Rows {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(fieldsSheet, cell, v)
		}
		write(1, fr.Field)
		write(2, fr.Rollup)
		write(3, fr.Counts.TP)
		write(4, fr.Counts.FP)
		write(5, fr.Counts.FN)
		write(6, fr.Metrics.Precision)
		write(7, fr.Metrics.Recall)
		write(8, fr.Metrics.F1)
		write(9, fr.Metrics.Accuracy)
		if fr.Rollup {
			_ = f.SetRowStyle(fieldsSheet, row, row, bold)
		}
		row++
	}
	if row > 2 {
		start, _ := excelize.CoordinatesToCellName(6, 2)
		end, _ := excelize.CoordinatesToCellName(9, row-1)
		_ = f.SetCellStyle(fieldsSheet, start, end, pct)
	}
	_ = f.SetColWidth(fieldsSheet, "A", "A", 32)
	_ = f.SetColWidth(fieldsSheet, "F", "I", 12)

	summary := [][]any{
		{"Records", r.Records},
		{"TP", r.Totals.TP},
		{"FP", r.Totals.FP},
		{"FN", r.Totals.FN},
		{"Micro precision", r.Micro.Precision},
		{"Micro recall", r.Micro.Recall},
		{"Micro F1", r.Micro.F1},
		{"Micro accuracy", r.Micro.Accuracy},
		{"Macro precision", r.Macro.Precision},
		{"Macro recall", r.Macro.Recall},
		{"Macro F1", r.Macro.F1},
		{"Macro accuracy", r.Macro.Accuracy},
	}
	if run != nil {
		summary = append([][]any{
			{"Run", run.Name},
			{"Timestamp", run.Timestamp.Format("2006-01-02 15:04")},
			{"Notes", run.Notes},
		}, summary...)
	}
	for i, kv := range summary {
		for j, v := range kv {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+1)
			_ = f.SetCellValue(summarySheet, cell, v)
			if _, isFloat := v.(float64); isFloat {
				_ = f.SetCellStyle(summarySheet, cell, cell, pct)
			}
		}
	}
	_ = f.SetColStyle(summarySheet, "A", bold)
	_ = f.SetColWidth(summarySheet, "A", "A", 20)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
