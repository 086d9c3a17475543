package portalapi

import (
	"context"
	"time"

	"portal/internal"
)

const lastUsersSyncKey = "users.last_sync"

type UserDirectory interface {
	UpsertUsers(users []internal.User) error
	SetMetadata(key, value string) error
}

type SyncService struct {
	db     UserDirectory
	client *Client
	now    func() time.Time
}

func NewSyncService(db UserDirectory, client *Client) *SyncService {
	return &SyncService{db: db, client: client, now: time.Now}
}

func (s *SyncService) SyncUsers(ctx context.Context) (int, error) {
	users, err := s.client.ListUsers(ctx)
	if err != nil {
		return 0, err
	}
	if len(users) > 0 {
		if err := s.db.UpsertUsers(users); err != nil {
			return 0, err
		}
	}
	if err := s.db.SetMetadata(lastUsersSyncKey, s.now().UTC().Format(time.RFC3339)); err != nil {
		return 0, err
	}
	return len(users), nil
}
