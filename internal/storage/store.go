// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"

	"github.com/mmynk/gasbottle/internal/models"
)

// LocalStore defines durable on-device storage for the tracker.
// Writes are synchronous: once SaveState returns, the state survives a restart.
type LocalStore interface {
	// LoadState returns the saved state.
	// Returns models.ErrNotFound if nothing has been saved yet.
	LoadState(ctx context.Context) (*models.State, error)

	// SaveState replaces the saved state.
	SaveState(ctx context.Context, state *models.State) error

	// UserID returns the persisted user identity, generating and saving
	// one on first use.
	UserID(ctx context.Context) (string, error)

	// Close releases any resources held by the store.
	Close() error
}

// DocumentBackend defines the storage behind the remote document service.
// This abstraction allows swapping backends (SQLite, Redis) without
// changing the service layer.
type DocumentBackend interface {
	// GetDocument retrieves a document by key.
	// Returns models.ErrNotFound if the key has no value.
	GetDocument(ctx context.Context, key string) (*models.Document, error)

	// PutDocument creates or replaces the document at key.
	PutDocument(ctx context.Context, key string, value map[string]any) error

	// DeleteDocument removes the document at key. Deleting a missing key
	// is not an error.
	DeleteDocument(ctx context.Context, key string) error

	// ListDocuments returns every document whose key starts with prefix,
	// newest date first when the documents carry a date field.
	ListDocuments(ctx context.Context, prefix string) ([]models.Document, error)

	// Close releases any resources held by the store.
	Close() error
}
