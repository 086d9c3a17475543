package assignments

// Canonical column names of a shift assignment sheet. A header cell matches a
// field when it contains the name as a case-sensitive substring.
const (
	FieldCustomer      = "Заказчик"
	FieldOrderName     = "Наименование заказа"
	FieldShiftDate     = "Дата смены"
	FieldShiftType     = "Тип смены"
	FieldOperatorLogin = "Логин оператора"
	FieldPlannedQty    = "Плановое количество"
	FieldMachineNumber = "Номер станка"
)

var RequiredFields = []string{
	FieldCustomer,
	FieldOrderName,
	FieldShiftDate,
	FieldShiftType,
	FieldOperatorLogin,
	FieldPlannedQty,
	FieldMachineNumber,
}

const NotSpecified = "Не указан"

const (
	ReasonEmptyRow     = "empty row or missing key fields"
	ReasonNoAssignment = "row did not produce an assignment"
)

var nightTokens = []string{"ноч", "night"}
