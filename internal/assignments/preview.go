package assignments

import (
	"context"
	"fmt"

	"portal/internal"
)

type PreviewRow struct {
	Row    int                        `json:"row"`
	Status string                     `json:"status"`
	Reason string                     `json:"reason,omitempty"`
	Error  string                     `json:"error,omitempty"`
	Fields *internal.AssignmentFields `json:"fields,omitempty"`
	Data   RawRow                     `json:"data"`
}

type PreviewResult struct {
	Columns    ColumnIndex      `json:"columns"`
	Duplicates map[string][]int `json:"duplicates,omitempty"`
	Rows       []PreviewRow     `json:"rows"`
}

const (
	PreviewReady   = "ready"
	PreviewError   = "error"
	PreviewSkipped = "skipped"
)

func (im *Importer) Preview(ctx context.Context, sheet Sheet) (PreviewResult, error) {
	header, err := sheet.Header()
	if err != nil {
		return PreviewResult{}, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	if err := ValidateHeader(header); err != nil {
		return PreviewResult{}, err
	}

	res := PreviewResult{
		Columns:    ResolveColumns(header),
		Duplicates: DuplicateColumns(header),
		Rows:       []PreviewRow{},
	}
	state := carry{}
	for row := 2; row <= sheet.RowCount(); row++ {
		raw := extractRow(sheet, row, res.Columns, im.logger, true)
		pr := PreviewRow{Row: row, Data: raw}
		if isEmptyRow(raw) {
			pr.Status = PreviewSkipped
			pr.Reason = ReasonEmptyRow
			res.Rows = append(res.Rows, pr)
			continue
		}

		fields, next, err := im.resolveRow(ctx, state, raw)
		state = next
		if err != nil {
			pr.Status = PreviewError
			pr.Error = err.Error()
		} else {
			pr.Status = PreviewReady
			pr.Fields = &fields
		}
		res.Rows = append(res.Rows, pr)
	}
	return res, nil
}
