package assignments

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const templateRows = 500

var templateColumns = []string{
	FieldShiftDate,
	FieldShiftType,
	FieldOperatorLogin,
	FieldMachineNumber,
	FieldCustomer,
	FieldOrderName,
	FieldPlannedQty,
}

func WriteTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Смены"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	for i, name := range templateColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return err
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(templateColumns), 1)
	if err := f.SetCellStyle(sheet, "A1", lastHeader, headerStyle); err != nil {
		return err
	}

	lastCol, _ := excelize.ColumnNumberToName(len(templateColumns))
	if err := f.SetColWidth(sheet, "A", lastCol, 22); err != nil {
		return err
	}

	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A2", fmt.Sprintf("A%d", templateRows+1), dateStyle); err != nil {
		return err
	}

	dv := excelize.NewDataValidation(true)
	dv.Sqref = fmt.Sprintf("B2:B%d", templateRows+1)
	if err := dv.SetDropList([]string{"День", "Ночь"}); err != nil {
		return err
	}
	if err := f.AddDataValidation(sheet, dv); err != nil {
		return err
	}

	_, err = f.WriteTo(w)
	return err
}
