package assignments

import (
	"context"

	"portal/internal"
)

var stdHeader = []string{
	"Дата смены", "Тип смены", "Логин оператора", "Номер станка",
	"Заказчик", "Наименование заказа", "Плановое количество",
}

func shiftRow(date any, shift, login, machine, customer, order string, qty any) []any {
	return []any{date, shift, login, machine, customer, order, qty}
}

// memSheet is a Sheet backed by slices; rows[0] is physical row 2.
type memSheet struct {
	header []string
	rows   [][]any
	errs   map[[2]int]error
}

func (s *memSheet) Header() (HeaderRow, error) {
	h := HeaderRow{}
	for i, text := range s.header {
		if text != "" {
			h[i+1] = text
		}
	}
	return h, nil
}

func (s *memSheet) RowCount() int { return len(s.rows) + 1 }

func (s *memSheet) Cell(row, col int) (any, error) {
	if err, ok := s.errs[[2]int{row, col}]; ok {
		return nil, err
	}
	r := row - 2
	if r < 0 || r >= len(s.rows) || col < 1 || col > len(s.rows[r]) {
		return nil, nil
	}
	return s.rows[r][col-1], nil
}

type memStore struct {
	users     map[string]internal.User
	created   []internal.Assignment
	createErr map[string]error
	noop      map[string]bool
	lookups   int
}

func newMemStore(usernames ...string) *memStore {
	s := &memStore{users: map[string]internal.User{}, createErr: map[string]error{}, noop: map[string]bool{}}
	for i, name := range usernames {
		s.users[name] = internal.User{ID: int64(i + 1), Username: name}
	}
	return s
}

func (s *memStore) FindUserByUsername(_ context.Context, username string) (*internal.User, error) {
	s.lookups++
	u, ok := s.users[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *memStore) CreateAssignment(_ context.Context, fields internal.AssignmentFields) (*internal.Assignment, error) {
	if err := s.createErr[fields.MachineNumber]; err != nil {
		return nil, err
	}
	if s.noop[fields.MachineNumber] {
		return nil, nil
	}
	a := internal.Assignment{ID: int64(len(s.created) + 1), AssignmentFields: fields}
	s.created = append(s.created, a)
	return &a, nil
}
