package assignments

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"portal/internal"
)

// Store is the data store an import writes through. FindUserByUsername
// returns nil, nil when no user has that username.
type Store interface {
	FindUserByUsername(ctx context.Context, username string) (*internal.User, error)
	CreateAssignment(ctx context.Context, fields internal.AssignmentFields) (*internal.Assignment, error)
}

type Option func(*Importer)

func WithLogger(logger *zap.Logger) Option {
	return func(im *Importer) {
		if logger != nil {
			im.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(im *Importer) {
		if now != nil {
			im.now = now
		}
	}
}

func WithTechCard(id *int64) Option {
	return func(im *Importer) { im.techCardID = id }
}

// Importer turns shift sheets into assignments. It holds no per-run state and
// may be shared by concurrent imports.
type Importer struct {
	store      Store
	logger     *zap.Logger
	now        func() time.Time
	techCardID *int64
}

func NewImporter(store Store, opts ...Option) *Importer {
	im := &Importer{store: store, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

func (im *Importer) Import(ctx context.Context, sheet Sheet, uploadedBy string) (Outcome, error) {
	cols, err := im.columns(sheet)
	if err != nil {
		return Outcome{}, err
	}

	out := newOutcome()
	state := carry{}
	for row := 2; row <= sheet.RowCount(); row++ {
		raw := extractRow(sheet, row, cols, im.logger, false)
		var res rowResult
		res, state = im.handleRow(ctx, state, row, raw)
		out.add(res)
	}

	ok, failedRows, skippedRows := out.Counts()
	im.logger.Info("assignment import finished",
		zap.String("uploadedBy", uploadedBy),
		zap.Int("success", ok),
		zap.Int("errors", failedRows),
		zap.Int("skipped", skippedRows))
	return out, nil
}

func (im *Importer) ImportFile(ctx context.Context, path, uploadedBy string) (Outcome, error) {
	wb, err := OpenWorkbook(path)
	if err != nil {
		return Outcome{}, err
	}
	defer wb.Close()
	return im.Import(ctx, wb, uploadedBy)
}

func (im *Importer) ImportReader(ctx context.Context, r io.Reader, uploadedBy string) (Outcome, error) {
	wb, err := ReadWorkbook(r)
	if err != nil {
		return Outcome{}, err
	}
	defer wb.Close()
	return im.Import(ctx, wb, uploadedBy)
}

func (im *Importer) columns(sheet Sheet) (ColumnIndex, error) {
	header, err := sheet.Header()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	if err := ValidateHeader(header); err != nil {
		return nil, err
	}
	for field, cols := range DuplicateColumns(header) {
		im.logger.Warn("field found in several columns, using the last one",
			zap.String("field", field),
			zap.Ints("columns", cols))
	}
	return ResolveColumns(header), nil
}
