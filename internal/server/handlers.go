package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"portal/internal"
	"portal/internal/assignments"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type importResponse struct {
	RunID string `json:"runId"`
	assignments.Outcome
}

type statusRequest struct {
	Status internal.AssignmentStatus `json:"status" binding:"required"`
}

func (s *Server) importAssignments(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	wb, err := assignments.ReadWorkbook(f)
	if err != nil {
		s.fail(c, header.Filename, err)
		return
	}
	defer wb.Close()

	if dryRun, _ := strconv.ParseBool(c.Query("dryRun")); dryRun {
		preview, err := s.importer.Preview(c.Request.Context(), wb)
		if err != nil {
			s.fail(c, "", err)
			return
		}
		c.JSON(http.StatusOK, preview)
		return
	}

	out, err := s.importer.Import(c.Request.Context(), wb, currentUser(c))
	if err != nil {
		s.fail(c, header.Filename, err)
		return
	}

	run := internal.ImportRun{
		ID:         uuid.NewString(),
		Source:     "upload",
		FileName:   header.Filename,
		UploadedBy: currentUser(c),
	}
	run.Succeeded, run.Failed, run.Skipped = out.Counts()
	if blob, err := json.Marshal(out); err == nil {
		run.ReportJSON = string(blob)
	}
	if err := s.repo.InsertImportRun(run); err != nil {
		s.logger.Error("failed to record import run", zap.String("runId", run.ID), zap.Error(err))
	}
	c.JSON(http.StatusOK, importResponse{RunID: run.ID, Outcome: out})
}

func (s *Server) fail(c *gin.Context, fileName string, err error) {
	var missing *assignments.MissingColumnsError
	switch {
	case errors.As(err, &missing):
		s.auditRejected(c, fileName, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "missingColumns": missing.Missing})
	case errors.Is(err, assignments.ErrNoSheet), errors.Is(err, assignments.ErrUnreadableFile):
		s.auditRejected(c, fileName, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error("import failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Server) auditRejected(c *gin.Context, fileName string, cause error) {
	if fileName == "" {
		return
	}
	run := internal.ImportRun{
		ID:         uuid.NewString(),
		Source:     "upload",
		FileName:   fileName,
		UploadedBy: currentUser(c),
		Error:      cause.Error(),
	}
	if err := s.repo.InsertImportRun(run); err != nil {
		s.logger.Error("failed to record import run", zap.String("runId", run.ID), zap.Error(err))
	}
}

func (s *Server) template(c *gin.Context) {
	c.Header("Content-Disposition", `attachment; filename="shift-assignments.xlsx"`)
	c.Header("Content-Type", xlsxContentType)
	c.Status(http.StatusOK)
	if err := assignments.WriteTemplate(c.Writer); err != nil {
		s.logger.Error("failed to write template", zap.Error(err))
	}
}

func (s *Server) listAssignments(c *gin.Context) {
	filter := internal.AssignmentFilter{}
	if date := c.Query("date"); date != "" {
		if _, err := time.Parse(time.DateOnly, date); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		filter.ShiftDate = date
	}
	if raw := c.Query("operatorId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "operatorId must be a number"})
			return
		}
		filter.OperatorID = id
	}
	if raw := c.Query("status"); raw != "" {
		status := internal.AssignmentStatus(raw)
		if !internal.ValidAssignmentStatus(status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
			return
		}
		filter.Status = status
	}

	list, err := s.repo.ListAssignments(filter)
	if err != nil {
		s.logger.Error("failed to list assignments", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) updateStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !internal.ValidAssignmentStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	found, err := s.repo.UpdateAssignmentStatus(id, req.Status)
	if err != nil {
		s.logger.Error("failed to update assignment status", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "assignment not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status})
}

func (s *Server) listImports(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	runs, err := s.repo.ListImportRuns(limit)
	if err != nil {
		s.logger.Error("failed to list import runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) getImport(c *gin.Context) {
	run, err := s.repo.GetImportRun(c.Param("id"))
	if err != nil {
		s.logger.Error("failed to load import run", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "import run not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run, "report": json.RawMessage(run.ReportJSON)})
}
