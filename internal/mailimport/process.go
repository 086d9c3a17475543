package mailimport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"
	"go.uber.org/zap"

	"portal/internal"
	"portal/internal/assignments"
	"portal/internal/connectors"
)

const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"

	SourceEmail = "email"
)

type Repository interface {
	ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error)
	UpdateEmailStatus(emailID int, status string) error
	MustEmailByProviderMessageID(provider, messageID string) (internal.EmailRow, error)
	InsertImportRun(run internal.ImportRun) error
}

type ProcessingService struct {
	db        Repository
	importer  *assignments.Importer
	logger    *zap.Logger
	reportDir string
}

func NewProcessingService(db Repository, importer *assignments.Importer, logger *zap.Logger) *ProcessingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessingService{db: db, importer: importer, logger: logger}
}

func (s *ProcessingService) WithReports(dir string) *ProcessingService {
	s.reportDir = dir
	return s
}

type ProcessResult struct {
	EmailID   int
	Status    string
	RunIDs    []string
	Succeeded int
	Failed    int
	Skipped   int
	Reports   []string
}

type PendingResult struct {
	Emails    int
	Succeeded int
	Failed    int
}

func (s *ProcessingService) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (ProcessResult, error) {
	email, err := s.db.MustEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessEmail(ctx, email)
}

func (s *ProcessingService) ProcessPending(ctx context.Context, limit int, provider string) (PendingResult, error) {
	pending, err := s.db.ListEmailsByStatus(connectors.StatusFetched, limit)
	if err != nil {
		return PendingResult{}, err
	}

	var total PendingResult
	for _, email := range pending {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if provider != "" && email.Provider != provider {
			continue
		}
		res, err := s.ProcessEmail(ctx, email)
		if err != nil {
			return total, err
		}
		total.Emails++
		total.Succeeded += res.Succeeded
		total.Failed += res.Failed
	}
	return total, nil
}

func (s *ProcessingService) ProcessEmail(ctx context.Context, email internal.EmailRow) (ProcessResult, error) {
	res := ProcessResult{EmailID: email.ID}
	log := s.logger.With(zap.Int("emailId", email.ID), zap.String("messageId", email.MessageID))

	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return res, s.finish(&res, StatusFailed, log, fmt.Errorf("read raw message: %w", err))
	}
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return res, s.finish(&res, StatusFailed, log, fmt.Errorf("parse message: %w", err))
	}

	sheets := spreadsheetParts(env)
	names := make([]string, 0, len(sheets))
	for _, p := range sheets {
		names = append(names, p.FileName)
	}
	detect := DetectSchedule(firstNonEmpty(env.GetHeader("Subject"), email.Subject), env.Text, names)
	if !detect.IsSchedule {
		log.Info("mail is not a shift sheet", zap.String("reason", detect.Reason), zap.Float64("score", detect.Score))
		return res, s.finish(&res, StatusSkipped, log, nil)
	}

	uploadedBy := senderAddress(env, email.Sender)
	imported := 0
	for i, part := range sheets {
		run := internal.ImportRun{
			ID:         uuid.NewString(),
			Source:     SourceEmail,
			FileName:   part.FileName,
			UploadedBy: uploadedBy,
		}

		out, err := s.importer.ImportReader(ctx, bytes.NewReader(part.Content), uploadedBy)
		if err != nil {
			log.Warn("attachment rejected", zap.String("file", part.FileName), zap.Error(err))
			run.Error = err.Error()
		} else {
			imported++
			run.Succeeded, run.Failed, run.Skipped = out.Counts()
			res.Succeeded += run.Succeeded
			res.Failed += run.Failed
			res.Skipped += run.Skipped
			if blob, err := json.Marshal(out); err == nil {
				run.ReportJSON = string(blob)
			}
			if s.reportDir != "" {
				path := filepath.Join(s.reportDir, fmt.Sprintf("%d_%s_%d.xlsx", email.ID, sanitizeMessageID(email.MessageID), i+1))
				if err := assignments.WriteReport(out, path); err != nil {
					log.Warn("failed to write import report", zap.String("path", path), zap.Error(err))
				} else {
					res.Reports = append(res.Reports, path)
				}
			}
		}

		if err := s.db.InsertImportRun(run); err != nil {
			return res, err
		}
		res.RunIDs = append(res.RunIDs, run.ID)
	}

	status := StatusProcessed
	if imported == 0 {
		status = StatusFailed
	}
	log.Info("mail import finished",
		zap.String("status", status),
		zap.String("uploadedBy", uploadedBy),
		zap.Int("attachments", len(sheets)),
		zap.Int("success", res.Succeeded),
		zap.Int("errors", res.Failed),
		zap.Int("skipped", res.Skipped))
	return res, s.finish(&res, status, log, nil)
}

// finish records the final e-mail status. A processing error is logged rather
// than returned so one broken message does not stall the queue.
func (s *ProcessingService) finish(res *ProcessResult, status string, log *zap.Logger, cause error) error {
	res.Status = status
	if cause != nil {
		log.Warn("mail processing failed", zap.Error(cause))
	}
	return s.db.UpdateEmailStatus(res.EmailID, status)
}

func spreadsheetParts(env *enmime.Envelope) []*enmime.Part {
	var out []*enmime.Part
	for _, group := range [][]*enmime.Part{env.Attachments, env.Inlines} {
		for _, p := range group {
			if isSpreadsheet(strings.ToLower(strings.TrimSpace(p.FileName))) {
				out = append(out, p)
			}
		}
	}
	return out
}

func senderAddress(env *enmime.Envelope, fallback string) string {
	if list, err := env.AddressList("From"); err == nil && len(list) > 0 {
		return list[0].Address
	}
	return strings.TrimSpace(fallback)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func sanitizeMessageID(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_", "@", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
