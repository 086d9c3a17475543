package assignments

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var (
	ErrNoSheet        = errors.New("workbook has no sheets")
	ErrUnreadableFile = errors.New("cannot read workbook")
)

// Sheet is the tabular source of one import. Rows and columns are 1-based and
// row 1 is the header.
type Sheet interface {
	Header() (HeaderRow, error)
	RowCount() int
	Cell(row, col int) (any, error)
}

type Workbook struct {
	file       *excelize.File
	sheet      string
	rows       [][]string
	date1904   bool
	dateStyles map[int]bool
}

func OpenWorkbook(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	return newWorkbook(f)
}

func ReadWorkbook(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	return newWorkbook(f)
}

func newWorkbook(f *excelize.File) (*Workbook, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		_ = f.Close()
		return nil, ErrNoSheet
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}

	wb := &Workbook{file: f, sheet: sheets[0], rows: rows, dateStyles: map[int]bool{}}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		wb.date1904 = *props.Date1904
	}
	return wb, nil
}

func (w *Workbook) Close() error {
	return w.file.Close()
}

func (w *Workbook) SheetName() string {
	return w.sheet
}

func (w *Workbook) RowCount() int {
	return len(w.rows)
}

func (w *Workbook) Header() (HeaderRow, error) {
	header := HeaderRow{}
	if len(w.rows) == 0 {
		return header, nil
	}
	for col := 1; col <= len(w.rows[0]); col++ {
		v, err := w.Cell(1, col)
		if err != nil {
			continue
		}
		if text := NormalizeCell(v); text != "" {
			header[col] = text
		}
	}
	return header, nil
}

func (w *Workbook) Cell(row, col int) (any, error) {
	if row < 1 || row > len(w.rows) || col < 1 || col > len(w.rows[row-1]) {
		return nil, nil
	}
	raw := w.rows[row-1][col-1]
	if raw == "" {
		return nil, nil
	}

	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return nil, err
	}
	typ, err := w.file.GetCellType(w.sheet, axis)
	if err != nil {
		return nil, err
	}

	switch typ {
	case excelize.CellTypeError:
		return nil, &CellError{Cell: axis, Value: raw}
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString:
		runs, err := w.file.GetCellRichText(w.sheet, axis)
		if err != nil {
			return nil, err
		}
		if len(runs) > 1 {
			return RichText(runs), nil
		}
		return raw, nil
	case excelize.CellTypeDate:
		if t, ok := parseISODateTime(raw); ok {
			return t, nil
		}
		return raw, nil
	case excelize.CellTypeBool:
		return w.file.GetCellValue(w.sheet, axis)
	case excelize.CellTypeFormula:
		return raw, nil
	}

	isDate, err := w.isDateCell(axis)
	if err != nil {
		return nil, err
	}
	if isDate {
		serial, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return raw, nil
		}
		return excelize.ExcelDateToTime(serial, w.date1904)
	}
	return raw, nil
}

func (w *Workbook) isDateCell(axis string) (bool, error) {
	styleID, err := w.file.GetCellStyle(w.sheet, axis)
	if err != nil || styleID == 0 {
		return false, err
	}
	if cached, ok := w.dateStyles[styleID]; ok {
		return cached, nil
	}
	style, err := w.file.GetStyle(styleID)
	if err != nil {
		return false, err
	}
	isDate := isDateNumFmt(style.NumFmt, style.CustomNumFmt)
	w.dateStyles[styleID] = isDate
	return isDate, nil
}

var numFmtLiterals = regexp.MustCompile(`"[^"]*"|\[[^\]]*\]|\\.`)

func isDateNumFmt(id int, custom *string) bool {
	if custom != nil && *custom != "" {
		code := strings.ToLower(numFmtLiterals.ReplaceAllString(*custom, ""))
		return strings.ContainsAny(code, "yd")
	}
	switch {
	case id >= 14 && id <= 22:
		return true
	case id >= 27 && id <= 36:
		return true
	case id >= 50 && id <= 58:
		return true
	}
	return false
}

func parseISODateTime(raw string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
