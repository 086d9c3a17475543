package assignments

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"portal/internal"
	"portal/internal/util"
)

type RawRow map[string]string

func (r RawRow) get(field string) string {
	return strings.TrimSpace(r[field])
}

// extractRow reads every mapped field of a row. A cell that cannot be read
// becomes an empty string; it is logged unless quiet is set.
func extractRow(sheet Sheet, row int, cols ColumnIndex, logger *zap.Logger, quiet bool) RawRow {
	out := make(RawRow, len(cols))
	for field, col := range cols {
		v, err := sheet.Cell(row, col)
		if err != nil {
			if !quiet {
				logger.Warn("cell extraction failed",
					zap.Int("row", row),
					zap.Int("column", col),
					zap.String("field", field),
					zap.Error(err))
			}
			out[field] = ""
			continue
		}
		out[field] = NormalizeCell(v)
	}
	return out
}

func isEmptyRow(r RawRow) bool {
	return r.get(FieldOperatorLogin) == "" && r.get(FieldMachineNumber) == ""
}

func classifyShift(text string) internal.ShiftType {
	lower := strings.ToLower(text)
	for _, token := range nightTokens {
		if strings.Contains(lower, token) {
			return internal.ShiftNight
		}
	}
	return internal.ShiftDay
}

func parsePlannedQuantity(text string) int {
	return util.IntOrDefault(strings.TrimSpace(text), 0)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func describeTask(orderName, customer, machine string) string {
	return fmt.Sprintf("Изготовление заказа «%s» для %s на станке №%s", orderName, customer, machine)
}
