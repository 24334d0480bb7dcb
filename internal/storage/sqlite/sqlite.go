// Package sqlite provides a SQLite-backed implementation of the storage.DocumentBackend interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/gasbottle/internal/models"
	"github.com/mmynk/gasbottle/internal/storage"
)

// Ensure SQLiteStore implements storage.DocumentBackend
var _ storage.DocumentBackend = (*SQLiteStore)(nil)

// SQLiteStore implements storage.DocumentBackend using SQLite.
// Document values are stored as JSON text.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with pure Go driver
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers; the document set is small
	db.SetMaxOpenConns(1)

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetDocument retrieves a document by key.
func (s *SQLiteStore) GetDocument(ctx context.Context, key string) (*models.Document, error) {
	var raw string
	doc := &models.Document{Key: key}
	err := s.db.QueryRowContext(ctx,
		"SELECT value, updated_at FROM documents WHERE key = ?",
		key,
	).Scan(&raw, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", key, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	if err := json.Unmarshal([]byte(raw), &doc.Value); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", key, err)
	}
	return doc, nil
}

// PutDocument creates or replaces the document at key.
func (s *SQLiteStore) PutDocument(ctx context.Context, key string, value map[string]any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to put document: %w", err)
	}
	return nil
}

// DeleteDocument removes the document at key.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// ListDocuments returns the documents under prefix ordered by date, newest first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, prefix string) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, updated_at FROM documents
		 WHERE substr(key, 1, ?) = ?
		 ORDER BY json_extract(value, '$.date') DESC, key DESC`,
		len(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		var doc models.Document
		var raw string
		if err := rows.Scan(&doc.Key, &raw, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &doc.Value); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", doc.Key, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}

	return docs, nil
}
