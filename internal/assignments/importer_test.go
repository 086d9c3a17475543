package assignments

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"portal/internal"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
}

func newTestImporter(t *testing.T, store Store) *Importer {
	return NewImporter(store, WithLogger(zaptest.NewLogger(t)), WithClock(fixedClock))
}

func TestImportScenario(t *testing.T) {
	store := newMemStore("op1")
	sheet := &memSheet{
		header: stdHeader,
		rows: [][]any{
			shiftRow("2024-01-10", "День", "op1", "5", "ООО Ромашка", "Вал", "10"),
			shiftRow("", "", "", "", "ООО Ромашка", "", ""),
			shiftRow("", "ночь", "unknown_user", "7", "", "", ""),
		},
	}

	out, err := newTestImporter(t, store).Import(context.Background(), sheet, "planner")
	require.NoError(t, err)

	assert.Equal(t, []SuccessEntry{{Row: 2, Operator: "op1", Machine: "5", AssignmentID: 1}}, out.Success)
	assert.Equal(t, []SkippedEntry{{Row: 3, Reason: ReasonEmptyRow}}, out.Skipped)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, 4, out.Errors[0].Row)
	assert.Contains(t, out.Errors[0].Error, "unknown_user")
	assert.Equal(t, "unknown_user", out.Errors[0].Data[FieldOperatorLogin])
	assert.Equal(t, "ночь", out.Errors[0].Data[FieldShiftType])

	require.Len(t, store.created, 1)
	got := store.created[0].AssignmentFields
	assert.Equal(t, internal.AssignmentFields{
		OperatorID:      1,
		ShiftDate:       "2024-01-10",
		ShiftType:       internal.ShiftDay,
		TaskDescription: "Изготовление заказа «Вал» для ООО Ромашка на станке №5",
		MachineNumber:   "5",
		DetailName:      "Вал",
		CustomerName:    "ООО Ромашка",
		PlannedQuantity: 10,
		Status:          internal.StatusAssigned,
	}, got)

	// The failing night row would have been classified as a night shift.
	store.users["unknown_user"] = internal.User{ID: 2, Username: "unknown_user"}
	out, err = newTestImporter(t, store).Import(context.Background(), sheet, "planner")
	require.NoError(t, err)
	require.Len(t, out.Success, 2)
	assert.Equal(t, internal.ShiftNight, store.created[2].ShiftType)
}

func TestImportCarriesShiftDate(t *testing.T) {
	store := newMemStore("op1", "op2")
	sheet := &memSheet{
		header: stdHeader,
		rows: [][]any{
			shiftRow("", "День", "op1", "1", "", "", 1),
			shiftRow("2024-01-10", "День", "op1", "2", "", "", 1),
			shiftRow("", "Ночь", "op2", "3", "", "", 1),
			shiftRow("", "", "", "", "", "", ""),
			shiftRow("", "Ночь", "op2", "4", "", "", 1),
			shiftRow(time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC), "День", "op1", "5", "", "", 1),
			shiftRow("", "День", "op1", "6", "", "", 1),
		},
	}

	out, err := newTestImporter(t, store).Import(context.Background(), sheet, "planner")
	require.NoError(t, err)
	require.Len(t, out.Success, 6)

	var dates []string
	for _, a := range store.created {
		dates = append(dates, a.ShiftDate)
	}
	assert.Equal(t, []string{"2024-03-01", "2024-01-10", "2024-01-10", "2024-01-10", "2024-01-11", "2024-01-11"}, dates)
}

func TestImportUnknownOperatorDoesNotCarryDate(t *testing.T) {
	store := newMemStore("op1")
	sheet := &memSheet{
		header: stdHeader,
		rows: [][]any{
			shiftRow("2024-01-10", "", "op1", "1", "", "", ""),
			shiftRow("2024-02-20", "", "ghost", "2", "", "", ""),
			shiftRow("", "", "op1", "3", "", "", ""),
		},
	}

	out, err := newTestImporter(t, store).Import(context.Background(), sheet, "planner")
	require.NoError(t, err)
	require.Len(t, out.Errors, 1)
	require.Len(t, store.created, 2)
	assert.Equal(t, "2024-01-10", store.created[1].ShiftDate)
}

func TestImportAppliesDefaults(t *testing.T) {
	store := newMemStore("op1")
	techCard := int64(99)
	sheet := &memSheet{
		header: stdHeader,
		rows:   [][]any{shiftRow("2024-01-10", "", " op1 ", "12", "  ", "", "много")},
	}

	im := NewImporter(store, WithClock(fixedClock), WithTechCard(&techCard))
	out, err := im.Import(context.Background(), sheet, "planner")
	require.NoError(t, err)
	require.Len(t, out.Success, 1)
	assert.Equal(t, "op1", out.Success[0].Operator)

	a := store.created[0]
	assert.Equal(t, NotSpecified, a.CustomerName)
	assert.Equal(t, NotSpecified, a.DetailName)
	assert.Equal(t, 0, a.PlannedQuantity)
	assert.Equal(t, internal.ShiftDay, a.ShiftType)
	require.NotNil(t, a.TechCardID)
	assert.EqualValues(t, 99, *a.TechCardID)
}

func TestImportPersistenceFailureIsRowScoped(t *testing.T) {
	store := newMemStore("op1")
	store.createErr["13"] = errors.New("disk full")
	sheet := &memSheet{
		header: stdHeader,
		rows: [][]any{
			shiftRow("2024-01-10", "", "op1", "12", "", "", 1),
			shiftRow("2024-01-10", "", "op1", "13", "", "", 1),
			shiftRow("2024-01-10", "", "op1", "14", "", "", 1),
		},
	}

	out, err := newTestImporter(t, store).Import(context.Background(), sheet, "planner")
	require.NoError(t, err)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, 3, out.Errors[0].Row)
	assert.Equal(t, "failed to save assignment: disk full", out.Errors[0].Error)
	assert.Len(t, out.Success, 2)
	assert.Len(t, store.created, 2)
}

func TestImportStoreReturningNothingIsSkipped(t *testing.T) {
	store := newMemStore("op1")
	store.noop["8"] = true
	sheet := &memSheet{
		header: stdHeader,
		rows:   [][]any{shiftRow("2024-01-10", "", "op1", "8", "", "", 1)},
	}

	out, err := newTestImporter(t, store).Import(context.Background(), sheet, "planner")
	require.NoError(t, err)
	assert.Empty(t, out.Success)
	assert.Empty(t, out.Errors)
	assert.Equal(t, []SkippedEntry{{Row: 2, Reason: ReasonNoAssignment}}, out.Skipped)
}

func TestImportRejectsMissingColumnsBeforeRows(t *testing.T) {
	store := newMemStore("op1")
	sheet := &memSheet{
		header: []string{"Дата смены", "Логин оператора", "Номер станка"},
		rows:   [][]any{{"2024-01-10", "op1", "5"}},
	}

	out, err := newTestImporter(t, store).Import(context.Background(), sheet, "planner")
	var missing *MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{FieldCustomer, FieldOrderName, FieldShiftType, FieldPlannedQty}, missing.Missing)
	assert.Equal(t, Outcome{}, out)
	assert.Zero(t, store.lookups)
}

func TestImportCellErrorsDoNotFailRows(t *testing.T) {
	store := newMemStore("op1")
	sheet := &memSheet{
		header: stdHeader,
		rows: [][]any{
			shiftRow("2024-01-10", "", "op1", "5", "ООО Ромашка", "", 3),
			shiftRow("2024-01-10", "", "op1", "6", "", "", 3),
		},
		errs: map[[2]int]error{
			{2, 5}: &CellError{Cell: "E2", Value: "#N/A"},
			{3, 3}: &CellError{Cell: "C3", Value: "#REF!"},
			{3, 4}: &CellError{Cell: "D3", Value: "#REF!"},
		},
	}

	out, err := newTestImporter(t, store).Import(context.Background(), sheet, "planner")
	require.NoError(t, err)
	require.Len(t, out.Success, 1)
	assert.Equal(t, NotSpecified, store.created[0].CustomerName)
	assert.Equal(t, []SkippedEntry{{Row: 3, Reason: ReasonEmptyRow}}, out.Skipped)
}

func TestImportThousandRowsHalfUnknown(t *testing.T) {
	store := newMemStore("op1")
	sheet := &memSheet{header: stdHeader}
	for i := 0; i < 1000; i++ {
		login := "op1"
		if i%2 == 1 {
			login = fmt.Sprintf("ghost%d", i)
		}
		sheet.rows = append(sheet.rows, shiftRow("2024-01-10", "День", login, fmt.Sprint(i), "", "", i))
	}

	out, err := newTestImporter(t, store).Import(context.Background(), sheet, "planner")
	require.NoError(t, err)
	assert.Len(t, out.Success, 500)
	assert.Len(t, out.Errors, 500)
	assert.Empty(t, out.Skipped)

	seen := map[int]int{}
	for _, e := range out.Success {
		seen[e.Row]++
	}
	for _, e := range out.Errors {
		seen[e.Row]++
	}
	for row := 2; row <= 1001; row++ {
		assert.Equal(t, 1, seen[row], "row %d", row)
	}
}

func TestImportIsNotIdempotent(t *testing.T) {
	store := newMemStore("op1")
	sheet := &memSheet{
		header: stdHeader,
		rows:   [][]any{shiftRow("2024-01-10", "", "op1", "5", "", "", 1)},
	}
	im := newTestImporter(t, store)

	first, err := im.Import(context.Background(), sheet, "planner")
	require.NoError(t, err)
	second, err := im.Import(context.Background(), sheet, "planner")
	require.NoError(t, err)

	require.Len(t, first.Success, 1)
	require.Len(t, second.Success, 1)
	assert.NotEqual(t, first.Success[0].AssignmentID, second.Success[0].AssignmentID)
	assert.Len(t, store.created, 2)
}

func TestImportHeaderOnly(t *testing.T) {
	out, err := newTestImporter(t, newMemStore()).Import(context.Background(), &memSheet{header: stdHeader}, "planner")
	require.NoError(t, err)
	assert.Equal(t, newOutcome(), out)
}

func TestPreviewDoesNotCreate(t *testing.T) {
	store := newMemStore("op1")
	sheet := &memSheet{
		header: append(append([]string{}, stdHeader...), "Номер станка (старый)"),
		rows: [][]any{
			append(shiftRow("2024-01-10", "Ночь", "op1", "5", "", "", 4), "7"),
			shiftRow("", "", "", "", "", "", ""),
			shiftRow("", "", "ghost", "9", "", "", ""),
		},
	}

	res, err := newTestImporter(t, store).Preview(context.Background(), sheet)
	require.NoError(t, err)
	assert.Empty(t, store.created)
	assert.Equal(t, map[string][]int{FieldMachineNumber: {4, 8}}, res.Duplicates)

	require.Len(t, res.Rows, 3)
	assert.Equal(t, PreviewReady, res.Rows[0].Status)
	require.NotNil(t, res.Rows[0].Fields)
	assert.Equal(t, "7", res.Rows[0].Fields.MachineNumber)
	assert.Equal(t, internal.ShiftNight, res.Rows[0].Fields.ShiftType)
	assert.Equal(t, PreviewSkipped, res.Rows[1].Status)
	assert.Equal(t, PreviewError, res.Rows[2].Status)
	assert.Contains(t, res.Rows[2].Error, "ghost")
}
