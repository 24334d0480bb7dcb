// Package bolt provides a bbolt-backed implementation of the storage.LocalStore interface.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/mmynk/gasbottle/internal/models"
	"github.com/mmynk/gasbottle/internal/storage"
)

var _ storage.LocalStore = (*Store)(nil)

var bucketTracker = []byte("tracker") // key: "state" -> State JSON, "userId" -> identity

var (
	keyState  = []byte("state")
	keyUserID = []byte("userId")
)

// Store keeps the tracker state in a single bbolt file.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the database at path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTracker)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadState decodes the saved state document.
func (s *Store) LoadState(_ context.Context) (*models.State, error) {
	var raw []byte
	if err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketTracker).Get(keyState); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("state: %w", models.ErrNotFound)
	}

	state := models.NewState()
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if state.Connections == nil {
		state.Connections = []models.Connection{}
	}
	return state, nil
}

// SaveState writes the state document, replacing any previous one.
func (s *Store) SaveState(_ context.Context, state *models.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTracker).Put(keyState, raw)
	}); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// UserID returns the stored identity, creating it on first call.
func (s *Store) UserID(_ context.Context) (string, error) {
	var id string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTracker)
		if v := b.Get(keyUserID); len(v) > 0 {
			id = string(v)
			return nil
		}
		id = uuid.NewString()
		return b.Put(keyUserID, []byte(id))
	})
	if err != nil {
		return "", fmt.Errorf("user id: %w", err)
	}
	return id, nil
}
