package assignments

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

type RichText []excelize.RichTextRun

func (r RichText) PlainText() string {
	var b strings.Builder
	for _, run := range r {
		b.WriteString(run.Text)
	}
	return b.String()
}

type CellError struct {
	Cell  string
	Value string
}

func (e *CellError) Error() string {
	return fmt.Sprintf("cell %s holds error value %s", e.Cell, e.Value)
}

type plainTexter interface {
	PlainText() string
}

func NormalizeCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case plainTexter:
		return t.PlainText()
	case []excelize.RichTextRun:
		return RichText(t).PlainText()
	case time.Time:
		return t.Format(time.DateOnly)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format(time.DateOnly)
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
