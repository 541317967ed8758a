package store

import (
	"context"
	"time"
)

// Store defines the interface for upload cache operations
type Store interface {
	SaveUpload(ctx context.Context, filename string, data []byte) (*Upload, error)
	GetUpload(ctx context.Context, id string) (*Upload, error)
	DeleteUpload(ctx context.Context, id string) error
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
	CountUploads(ctx context.Context) (int, error)

	// Lifecycle
	Close() error
}
