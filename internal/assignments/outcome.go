package assignments

import "portal/internal"

type SuccessEntry struct {
	Row          int    `json:"row"`
	Operator     string `json:"operator"`
	Machine      string `json:"machine"`
	AssignmentID int64  `json:"assignmentId"`
}

type ErrorEntry struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
	Data  RawRow `json:"data"`
}

type SkippedEntry struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Outcome is the report of one import run. Every visited data row is in
// exactly one of the three lists, in row order.
type Outcome struct {
	Success []SuccessEntry `json:"success"`
	Errors  []ErrorEntry   `json:"errors"`
	Skipped []SkippedEntry `json:"skipped"`
}

func newOutcome() Outcome {
	return Outcome{
		Success: []SuccessEntry{},
		Errors:  []ErrorEntry{},
		Skipped: []SkippedEntry{},
	}
}

func (o Outcome) Counts() (succeeded, failed, skipped int) {
	return len(o.Success), len(o.Errors), len(o.Skipped)
}

type rowKind int

const (
	rowSucceeded rowKind = iota
	rowFailed
	rowSkipped
)

type rowResult struct {
	kind       rowKind
	row        int
	assignment *internal.Assignment
	err        error
	data       RawRow
	reason     string
}

func succeeded(row int, a *internal.Assignment) rowResult {
	return rowResult{kind: rowSucceeded, row: row, assignment: a}
}

func failed(row int, err error, data RawRow) rowResult {
	return rowResult{kind: rowFailed, row: row, err: err, data: data}
}

func skipped(row int, reason string) rowResult {
	return rowResult{kind: rowSkipped, row: row, reason: reason}
}

func (o *Outcome) add(r rowResult) {
	switch r.kind {
	case rowSucceeded:
		o.Success = append(o.Success, SuccessEntry{
			Row:          r.row,
			Operator:     r.assignment.OperatorUsername,
			Machine:      r.assignment.MachineNumber,
			AssignmentID: r.assignment.ID,
		})
	case rowFailed:
		o.Errors = append(o.Errors, ErrorEntry{Row: r.row, Error: r.err.Error(), Data: r.data})
	case rowSkipped:
		o.Skipped = append(o.Skipped, SkippedEntry{Row: r.row, Reason: r.reason})
	}
}
