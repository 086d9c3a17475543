package connectors

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type FetchService struct {
	connector MailConnector
	store     *MailStoreService
	logger    *zap.Logger
}

type FetchResult struct {
	Fetched int
	Stored  int
}

func NewFetchService(db EmailStore, rawMailDir string, connector MailConnector, logger *zap.Logger) *FetchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FetchService{
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
		logger:    logger,
	}
}

func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch %s: %w", label, err)
	}

	stored := 0
	for _, msg := range messages {
		row, err := s.store.Store(msg)
		if err != nil {
			return FetchResult{Fetched: len(messages), Stored: stored}, fmt.Errorf("store message %s: %w", msg.MessageID, err)
		}
		s.logger.Debug("mail stored",
			zap.Int("emailId", row.ID),
			zap.String("provider", msg.Provider),
			zap.String("subject", msg.Subject))
		stored++
	}

	return FetchResult{Fetched: len(messages), Stored: stored}, nil
}
