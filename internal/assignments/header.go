package assignments

import (
	"sort"
	"strings"
)

type HeaderRow map[int]string

type ColumnIndex map[string]int

type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return "missing required columns: " + strings.Join(e.Missing, ", ")
}

func (h HeaderRow) columns() []int {
	out := make([]int, 0, len(h))
	for col, text := range h {
		if text != "" {
			out = append(out, col)
		}
	}
	sort.Ints(out)
	return out
}

func ValidateHeader(h HeaderRow) error {
	cols := h.columns()
	var missing []string
	for _, field := range RequiredFields {
		found := false
		for _, col := range cols {
			if strings.Contains(h[col], field) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Missing: missing}
	}
	return nil
}

// ResolveColumns builds the field to column map of a validated header. Columns
// are visited left to right, so when two cells contain the same field name the
// rightmost one wins. A single cell containing several field names is mapped
// for each of them.
func ResolveColumns(h HeaderRow) ColumnIndex {
	idx := ColumnIndex{}
	for _, col := range h.columns() {
		for _, field := range RequiredFields {
			if strings.Contains(h[col], field) {
				idx[field] = col
			}
		}
	}
	return idx
}

func DuplicateColumns(h HeaderRow) map[string][]int {
	seen := map[string][]int{}
	for _, col := range h.columns() {
		for _, field := range RequiredFields {
			if strings.Contains(h[col], field) {
				seen[field] = append(seen[field], col)
			}
		}
	}
	out := map[string][]int{}
	for field, cols := range seen {
		if len(cols) > 1 {
			out[field] = cols
		}
	}
	return out
}
