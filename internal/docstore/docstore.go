// Package docstore is the client side of the remote document store.
//
// The tracker talks to the store through four capabilities only: read a
// document, write a document, delete a document, and watch every document
// under a key prefix. Store is implemented in memory (Memory) and over
// Connect RPC (Client).
package docstore

import (
	"context"

	"github.com/mmynk/gasbottle/internal/models"
)

// Store is a remote key/value document store.
type Store interface {
	// Get returns the document at key, or an error wrapping
	// models.ErrNotFound when the key has no value.
	Get(ctx context.Context, key string) (*models.Document, error)

	// Put creates or replaces the document at key.
	Put(ctx context.Context, key string, value map[string]any) error

	// Delete removes the document at key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Watch calls onChange with every document under prefix, once right
	// away and again after each change. Snapshots are ordered by date,
	// newest first. onError receives failures of the underlying channel.
	// Calls for one watch never overlap. The returned stop function ends
	// the watch; it is safe to call more than once.
	Watch(ctx context.Context, prefix string, onChange func([]models.Document), onError func(error)) (stop func(), err error)
}

// Procedure names of the document service.
const (
	ServiceName = "docstore.v1.DocumentService"

	GetProcedure    = "/" + ServiceName + "/Get"
	PutProcedure    = "/" + ServiceName + "/Put"
	DeleteProcedure = "/" + ServiceName + "/Delete"
	WatchProcedure  = "/" + ServiceName + "/Watch"
)
