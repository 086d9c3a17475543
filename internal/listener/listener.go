package listener

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"portal/internal/config"
	"portal/internal/connectors"
	gmailconnector "portal/internal/connectors/gmail"
	imapconnector "portal/internal/connectors/imap"
	"portal/internal/mailimport"
)

type ConnectorFactory func(ctx context.Context, provider string) (connectors.MailConnector, error)

type Service struct {
	db         connectors.EmailStore
	processor  *mailimport.ProcessingService
	cfg        config.Config
	logger     *zap.Logger
	connectors ConnectorFactory
}

func NewService(db connectors.EmailStore, processor *mailimport.ProcessingService, cfg config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{db: db, processor: processor, cfg: cfg, logger: logger}
	s.connectors = s.makeConnector
	if cfg.MailListenerWriteReports {
		processor.WithReports(filepath.Join(cfg.OutputDir, "listener"))
	}
	return s
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		if err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("listener cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func (s *Service) RunCycle(ctx context.Context) error {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
	mailConnector, err := s.connectors(ctx, provider)
	if err != nil {
		return err
	}

	fetchService := connectors.NewFetchService(s.db, s.cfg.RawMailDir, mailConnector, s.logger)
	fetchResult, err := fetchService.FetchAndStore(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return err
	}

	processed, err := s.processor.ProcessPending(ctx, s.cfg.MailListenerProcessBatch, provider)
	if err != nil {
		return err
	}

	s.logger.Info("listener cycle done",
		zap.String("provider", provider),
		zap.Int("fetched", fetchResult.Fetched),
		zap.Int("stored", fetchResult.Stored),
		zap.Int("processed", processed.Emails),
		zap.Int("assignments", processed.Succeeded),
		zap.Int("rowErrors", processed.Failed))
	return nil
}

func (s *Service) makeConnector(ctx context.Context, provider string) (connectors.MailConnector, error) {
	switch provider {
	case gmailconnector.Provider:
		return gmailconnector.NewConnector(ctx, s.cfg)
	case imapconnector.Provider:
		return imapconnector.NewConnector(s.cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", provider)
	}
}
