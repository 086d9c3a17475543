package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"portal/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS users (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  username TEXT NOT NULL UNIQUE,
  fullName TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL DEFAULT '',
  department TEXT NOT NULL DEFAULT '',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS assignments (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  operatorId INTEGER NOT NULL,
  shiftDate TEXT NOT NULL,
  shiftType TEXT NOT NULL,
  taskDescription TEXT NOT NULL,
  machineNumber TEXT NOT NULL,
  detailName TEXT NOT NULL,
  customerName TEXT NOT NULL,
  plannedQuantity INTEGER NOT NULL DEFAULT 0,
  techCardId INTEGER,
  status TEXT NOT NULL DEFAULT 'assigned',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(operatorId) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_assignments_shiftDate ON assignments(shiftDate);
CREATE INDEX IF NOT EXISTS idx_assignments_operatorId ON assignments(operatorId);

CREATE TABLE IF NOT EXISTS import_runs (
  id TEXT PRIMARY KEY,
  source TEXT NOT NULL,
  fileName TEXT NOT NULL,
  uploadedBy TEXT NOT NULL,
  succeeded INTEGER NOT NULL DEFAULT 0,
  failed INTEGER NOT NULL DEFAULT 0,
  skipped INTEGER NOT NULL DEFAULT 0,
  error TEXT NOT NULL DEFAULT '',
  reportJson TEXT NOT NULL DEFAULT '{}',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) UpsertUsers(users []internal.User) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO users (username, fullName, role, department)
VALUES (?, ?, ?, ?)
ON CONFLICT(username) DO UPDATE SET
  fullName=excluded.fullName,
  role=excluded.role,
  department=excluded.department,
  updatedAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, u := range users {
		username := strings.TrimSpace(u.Username)
		if username == "" {
			continue
		}
		if _, err := stmt.Exec(username, u.FullName, u.Role, u.Department); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) FindUserByUsername(ctx context.Context, username string) (*internal.User, error) {
	var u internal.User
	err := d.conn.QueryRowContext(ctx, `
SELECT id, username, fullName, role, department FROM users WHERE username = ?
`, username).Scan(&u.ID, &u.Username, &u.FullName, &u.Role, &u.Department)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (d *DB) ListUsers() ([]internal.User, error) {
	rows, err := d.conn.Query(`SELECT id, username, fullName, role, department FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.User
	for rows.Next() {
		var u internal.User
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName, &u.Role, &u.Department); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (d *DB) CreateAssignment(ctx context.Context, f internal.AssignmentFields) (*internal.Assignment, error) {
	status := f.Status
	if status == "" {
		status = internal.StatusAssigned
	}
	result, err := d.conn.ExecContext(ctx, `
INSERT INTO assignments (
  operatorId, shiftDate, shiftType, taskDescription, machineNumber,
  detailName, customerName, plannedQuantity, techCardId, status
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, f.OperatorID, f.ShiftDate, string(f.ShiftType), f.TaskDescription, f.MachineNumber,
		f.DetailName, f.CustomerName, f.PlannedQuantity, f.TechCardID, string(status))
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	a, err := d.GetAssignment(id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("assignment %d vanished after insert", id)
	}
	return a, nil
}

const assignmentColumns = `id, operatorId, shiftDate, shiftType, taskDescription, machineNumber,
  detailName, customerName, plannedQuantity, techCardId, status, createdAt`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(s rowScanner) (internal.Assignment, error) {
	var a internal.Assignment
	var shiftType, status string
	err := s.Scan(
		&a.ID, &a.OperatorID, &a.ShiftDate, &shiftType, &a.TaskDescription, &a.MachineNumber,
		&a.DetailName, &a.CustomerName, &a.PlannedQuantity, &a.TechCardID, &status, &a.CreatedAt,
	)
	a.ShiftType = internal.ShiftType(shiftType)
	a.Status = internal.AssignmentStatus(status)
	return a, err
}

func (d *DB) GetAssignment(id int64) (*internal.Assignment, error) {
	a, err := scanAssignment(d.conn.QueryRow(`SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (d *DB) ListAssignments(filter internal.AssignmentFilter) ([]internal.Assignment, error) {
	var where []string
	var args []any
	if filter.ShiftDate != "" {
		where = append(where, "shiftDate = ?")
		args = append(args, filter.ShiftDate)
	}
	if filter.OperatorID != 0 {
		where = append(where, "operatorId = ?")
		args = append(args, filter.OperatorID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + assignmentColumns + ` FROM assignments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY shiftDate ASC, id ASC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (d *DB) UpdateAssignmentStatus(id int64, status internal.AssignmentStatus) (bool, error) {
	if !internal.ValidAssignmentStatus(status) {
		return false, fmt.Errorf("unknown assignment status: %s", status)
	}
	result, err := d.conn.Exec(`UPDATE assignments SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, string(status), id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func (d *DB) InsertImportRun(run internal.ImportRun) error {
	reportJSON := run.ReportJSON
	if reportJSON == "" {
		reportJSON = "{}"
	}
	_, err := d.conn.Exec(`
INSERT INTO import_runs (id, source, fileName, uploadedBy, succeeded, failed, skipped, error, reportJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, run.ID, run.Source, run.FileName, run.UploadedBy, run.Succeeded, run.Failed, run.Skipped, run.Error, reportJSON)
	return err
}

const importRunColumns = `id, source, fileName, uploadedBy, succeeded, failed, skipped, error, reportJson, createdAt`

func scanImportRun(s rowScanner) (internal.ImportRun, error) {
	var r internal.ImportRun
	err := s.Scan(&r.ID, &r.Source, &r.FileName, &r.UploadedBy, &r.Succeeded, &r.Failed, &r.Skipped, &r.Error, &r.ReportJSON, &r.CreatedAt)
	return r, err
}

func (d *DB) GetImportRun(id string) (*internal.ImportRun, error) {
	r, err := scanImportRun(d.conn.QueryRow(`SELECT `+importRunColumns+` FROM import_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *DB) ListImportRuns(limit int) ([]internal.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.Query(`SELECT `+importRunColumns+` FROM import_runs ORDER BY createdAt DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.ImportRun{}
	for rows.Next() {
		r, err := scanImportRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, errors.New("failed to upsert email")
	}
	return *row, nil
}

const emailColumns = `id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef`

func scanEmail(s rowScanner) (internal.EmailRow, error) {
	var row internal.EmailRow
	err := s.Scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef)
	return row, err
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE provider = ? AND messageId = ?`, provider, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetEmailByID(id int) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`SELECT `+emailColumns+` FROM emails WHERE status = ? ORDER BY receivedAt ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		row, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

func (d *DB) MustEmailByProviderMessageID(provider, messageID string) (internal.EmailRow, error) {
	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, fmt.Errorf("email not found: provider=%s messageId=%s", provider, messageID)
	}
	return *row, nil
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
