package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"

	"portal/internal"
	"portal/internal/assignments"
	"portal/internal/storage"
)

var header = []string{
	"Дата смены", "Тип смены", "Логин оператора", "Номер станка",
	"Заказчик", "Наименование заказа", "Плановое количество",
}

type fixture struct {
	db     *storage.DB
	router http.Handler
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "portal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.UpsertUsers([]internal.User{{Username: "op1"}}))

	logger := zaptest.NewLogger(t)
	importer := assignments.NewImporter(db, assignments.WithLogger(logger))
	srv := New(importer, db, map[string]string{"secret": "planner"}, logger)
	return fixture{db: db, router: srv.Router()}
}

func workbook(t *testing.T, head []string, rows ...[]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range append([][]string{head}, rows...) {
		for c, v := range row {
			if v == "" {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	buf := bytes.NewBuffer(nil)
	_, err := f.WriteTo(buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func uploadRequest(t *testing.T, target string, content []byte) *http.Request {
	t.Helper()
	body := bytes.NewBuffer(nil)
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", "shifts.xlsx")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer secret")
	return req
}

func authed(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthNeedsNoToken(t *testing.T) {
	fx := newFixture(t)
	rec := serve(fx.router, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnauthorized(t *testing.T) {
	fx := newFixture(t)
	rec := serve(fx.router, httptest.NewRequest(http.MethodGet, "/api/assignments", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/assignments", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(fx.router, req).Code)
}

func TestImportRecordsRun(t *testing.T) {
	fx := newFixture(t)
	content := workbook(t, header,
		[]string{"2024-01-10", "Ночь", "op1", "5", "ООО Ромашка", "Вал", "10"},
		[]string{"", "", "", "", "", "", ""},
		[]string{"", "День", "ghost", "6", "", "", ""},
	)

	rec := serve(fx.router, uploadRequest(t, "/api/assignments/import", content))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp importResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Success, 1)
	assert.Equal(t, "op1", resp.Success[0].Operator)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, 4, resp.Errors[0].Row)
	assert.NotEmpty(t, resp.RunID)

	run, err := fx.db.GetImportRun(resp.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "planner", run.UploadedBy)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Failed)

	list, err := fx.db.ListAssignments(internal.AssignmentFilter{ShiftDate: "2024-01-10"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, internal.ShiftNight, list[0].ShiftType)

	rec = serve(fx.router, authed(http.MethodGet, "/api/imports/"+resp.RunID, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"report":{"success"`)
}

func TestImportMissingColumns(t *testing.T) {
	fx := newFixture(t)
	content := workbook(t, []string{"Дата смены", "Логин оператора"}, []string{"2024-01-10", "op1"})

	rec := serve(fx.router, uploadRequest(t, "/api/assignments/import", content))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missingColumns")

	runs, err := fx.db.ListImportRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Error, "missing required columns")
}

func TestImportGarbage(t *testing.T) {
	fx := newFixture(t)
	rec := serve(fx.router, uploadRequest(t, "/api/assignments/import", []byte("not a workbook")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func sheetlessWorkbook(t *testing.T) []byte {
	t.Helper()
	src := workbook(t, header)
	zr, err := zip.NewReader(bytes.NewReader(src), int64(len(src)))
	require.NoError(t, err)

	buf := bytes.NewBuffer(nil)
	zw := zip.NewWriter(buf)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		if f.Name == "xl/workbook.xml" {
			content = regexp.MustCompile(`<sheet [^>]*?(/>|>\s*</sheet>)`).ReplaceAll(content, nil)
		}
		w, err := zw.Create(f.Name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestImportWorkbookWithoutSheets(t *testing.T) {
	fx := newFixture(t)
	rec := serve(fx.router, uploadRequest(t, "/api/assignments/import", sheetlessWorkbook(t)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), assignments.ErrNoSheet.Error())

	runs, err := fx.db.ListImportRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, assignments.ErrNoSheet.Error(), runs[0].Error)
}

func TestDryRunCreatesNothing(t *testing.T) {
	fx := newFixture(t)
	content := workbook(t, header, []string{"2024-01-10", "День", "op1", "5", "", "", ""})

	rec := serve(fx.router, uploadRequest(t, "/api/assignments/import?dryRun=true", content))
	require.Equal(t, http.StatusOK, rec.Code)
	var preview assignments.PreviewResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	require.Len(t, preview.Rows, 1)
	assert.Equal(t, assignments.PreviewReady, preview.Rows[0].Status)

	list, err := fx.db.ListAssignments(internal.AssignmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListAndUpdateStatus(t *testing.T) {
	fx := newFixture(t)
	op, err := fx.db.FindUserByUsername(context.Background(), "op1")
	require.NoError(t, err)
	a, err := fx.db.CreateAssignment(context.Background(), internal.AssignmentFields{OperatorID: op.ID, ShiftDate: "2024-01-10", ShiftType: internal.ShiftDay})
	require.NoError(t, err)

	rec := serve(fx.router, authed(http.MethodGet, "/api/assignments?date=10.01.2024", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(fx.router, authed(http.MethodGet, "/api/assignments?date=2024-01-10", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []internal.Assignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = serve(fx.router, authed(http.MethodPatch, "/api/assignments/999/status", `{"status":"completed"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(fx.router, authed(http.MethodPatch, "/api/assignments/1/status", `{"status":"lost"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := "/api/assignments/" + strconv.FormatInt(a.ID, 10) + "/status"
	rec = serve(fx.router, authed(http.MethodPatch, path, `{"status":"in_progress"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := fx.db.GetAssignment(a.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.StatusInProgress, got.Status)
}

func TestTemplateDownload(t *testing.T) {
	fx := newFixture(t)
	rec := serve(fx.router, authed(http.MethodGet, "/api/assignments/template", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))

	wb, err := assignments.ReadWorkbook(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer wb.Close()
	h, err := wb.Header()
	require.NoError(t, err)
	assert.NoError(t, assignments.ValidateHeader(h))
}

func TestUnknownImportRun(t *testing.T) {
	fx := newFixture(t)
	rec := serve(fx.router, authed(http.MethodGet, "/api/imports/nope", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
