package assignments

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

func WriteReport(out Outcome, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	const (
		successSheet = "Успешно"
		errorsSheet  = "Ошибки"
		skippedSheet = "Пропущено"
	)
	if err := f.SetSheetName(f.GetSheetName(0), successSheet); err != nil {
		return err
	}
	for _, name := range []string{errorsSheet, skippedSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	setRow := func(sheet string, r int, values []any) {
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	setRow(successSheet, 1, []any{"row", "operator", "machine", "assignment_id"})
	for i, e := range out.Success {
		setRow(successSheet, i+2, []any{e.Row, e.Operator, e.Machine, e.AssignmentID})
	}

	errHeader := []any{"row", "error"}
	for _, field := range RequiredFields {
		errHeader = append(errHeader, field)
	}
	setRow(errorsSheet, 1, errHeader)
	for i, e := range out.Errors {
		values := []any{e.Row, e.Error}
		for _, field := range RequiredFields {
			values = append(values, e.Data[field])
		}
		setRow(errorsSheet, i+2, values)
	}

	setRow(skippedSheet, 1, []any{"row", "reason"})
	for i, e := range out.Skipped {
		setRow(skippedSheet, i+2, []any{e.Row, e.Reason})
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}
