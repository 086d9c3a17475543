package assignments

import (
	"context"
	"fmt"
	"time"

	"portal/internal"
)

// carry is the state one row hands to the next. lastKnownDate assumes the
// sheet lists rows grouped by shift date; it is not validated.
type carry struct {
	lastKnownDate string
}

// resolveRow turns a non-empty row into the fields of a new assignment. The
// operator is looked up first: a row whose operator is unknown does not
// update the carried date.
func (im *Importer) resolveRow(ctx context.Context, c carry, raw RawRow) (internal.AssignmentFields, carry, error) {
	login := raw.get(FieldOperatorLogin)
	user, err := im.store.FindUserByUsername(ctx, login)
	if err != nil {
		return internal.AssignmentFields{}, c, fmt.Errorf("look up operator %q: %w", login, err)
	}
	if user == nil {
		return internal.AssignmentFields{}, c, fmt.Errorf("operator with username %q not found", login)
	}

	shiftDate := raw.get(FieldShiftDate)
	if shiftDate == "" {
		shiftDate = c.lastKnownDate
		if shiftDate == "" {
			shiftDate = im.now().Format(time.DateOnly)
		}
	} else {
		c.lastKnownDate = shiftDate
	}

	customer := orDefault(raw.get(FieldCustomer), NotSpecified)
	orderName := orDefault(raw.get(FieldOrderName), NotSpecified)
	machine := raw.get(FieldMachineNumber)

	return internal.AssignmentFields{
		OperatorID:      user.ID,
		ShiftDate:       shiftDate,
		ShiftType:       classifyShift(raw.get(FieldShiftType)),
		TaskDescription: describeTask(orderName, customer, machine),
		MachineNumber:   machine,
		DetailName:      orderName,
		CustomerName:    customer,
		PlannedQuantity: parsePlannedQuantity(raw.get(FieldPlannedQty)),
		TechCardID:      im.techCardID,
		Status:          internal.StatusAssigned,
	}, c, nil
}

// processRow resolves and persists one row. A nil assignment with a nil error
// means the store accepted the row without creating anything.
func (im *Importer) processRow(ctx context.Context, c carry, raw RawRow) (*internal.Assignment, carry, error) {
	fields, next, err := im.resolveRow(ctx, c, raw)
	if err != nil {
		return nil, next, err
	}

	a, err := im.store.CreateAssignment(ctx, fields)
	if err != nil {
		return nil, next, fmt.Errorf("failed to save assignment: %w", err)
	}
	if a == nil {
		return nil, next, nil
	}
	a.OperatorUsername = raw.get(FieldOperatorLogin)
	return a, next, nil
}

func (im *Importer) handleRow(ctx context.Context, c carry, row int, raw RawRow) (rowResult, carry) {
	if isEmptyRow(raw) {
		return skipped(row, ReasonEmptyRow), c
	}

	a, next, err := im.processRow(ctx, c, raw)
	switch {
	case err != nil:
		return failed(row, err, raw), next
	case a == nil:
		return skipped(row, ReasonNoAssignment), next
	}
	return succeeded(row, a), next
}
