package api

import (
	"context"
	"io"
	"time"

	"taskboard-api/domain"
	"taskboard-api/storage"
)

// BoardStore applies ordered action batches and serves board snapshots.
type BoardStore interface {
	State(ctx context.Context, userID string) (*domain.BoardState, error)
	// Dispatch returns the new state and the attachments the batch removed,
	// whose blobs the handler must release.
	Dispatch(ctx context.Context, userID string, actions []domain.Action) (*domain.BoardState, []domain.Attachment, error)
}

// NotificationFeed serves the derived reminder feed and its read tracking.
type NotificationFeed interface {
	Feed(ctx context.Context, userID string, today time.Time) ([]domain.Notification, int, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string, today time.Time) (int, error)
	SetFeedOpen(ctx context.Context, userID string, open bool, today time.Time) error
}

// UserStore persists accounts for signup and login.
type UserStore interface {
	CreateUser(ctx context.Context, u storage.User) error
	UserByEmail(ctx context.Context, email string) (storage.User, bool, error)
	UserByID(ctx context.Context, id string) (storage.User, bool, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents re-application of retried actions.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when applying the action fails.
	Remove(ctx context.Context, userID, key string) error
}

// BlobStore holds attachment binaries behind opaque URL handles.
type BlobStore interface {
	Put(ctx context.Context, name string, r io.Reader) (url string, size int64, err error)
	Release(ctx context.Context, url string) error
}
