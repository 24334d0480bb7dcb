// Package redisstore provides a Redis-backed implementation of the storage.DocumentBackend interface.
//
// Each document is a Redis hash under "<namespace>:<key>" holding the JSON
// value and its update time. Listing scans the namespace for the prefix and
// sorts in memory, which is fine for the few hundred documents a user keeps.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/mmynk/gasbottle/internal/models"
	"github.com/mmynk/gasbottle/internal/storage"
)

var _ storage.DocumentBackend = (*Store)(nil)

const (
	fieldValue     = "value"
	fieldUpdatedAt = "updated_at"
	scanBatch      = 200
)

// Store implements storage.DocumentBackend on Redis.
type Store struct {
	client    *redis.Client
	namespace string
	now       func() time.Time
}

// New connects to the Redis server at addr and verifies it responds.
// Keys are stored under namespace.
func New(ctx context.Context, addr, password string, db int, namespace string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewWithClient(client, namespace), nil
}

// NewWithClient wraps an existing client. Keys are stored under namespace.
func NewWithClient(client *redis.Client, namespace string) *Store {
	return &Store{client: client, namespace: namespace, now: time.Now}
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) redisKey(key string) string {
	return s.namespace + ":" + key
}

// GetDocument retrieves a document by key.
func (s *Store) GetDocument(ctx context.Context, key string) (*models.Document, error) {
	fields, err := s.client.HGetAll(ctx, s.redisKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("document %s: %w", key, models.ErrNotFound)
	}
	return decode(key, fields)
}

// PutDocument creates or replaces the document at key.
func (s *Store) PutDocument(ctx context.Context, key string, value map[string]any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	err = s.client.HSet(ctx, s.redisKey(key),
		fieldValue, string(raw),
		fieldUpdatedAt, s.now().UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to put document: %w", err)
	}
	return nil
}

// DeleteDocument removes the document at key.
func (s *Store) DeleteDocument(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// ListDocuments returns the documents under prefix ordered by date, newest first.
func (s *Store) ListDocuments(ctx context.Context, prefix string) ([]models.Document, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.redisKey(escapeGlob(prefix))+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan documents: %w", err)
	}

	docs := make([]models.Document, 0, len(keys))
	for _, rk := range keys {
		fields, err := s.client.HGetAll(ctx, rk).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get document: %w", err)
		}
		if len(fields) == 0 {
			continue // deleted between SCAN and HGETALL
		}
		doc, err := decode(strings.TrimPrefix(rk, s.namespace+":"), fields)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}

	sort.SliceStable(docs, func(i, j int) bool {
		di, _ := docs[i].Value["date"].(string)
		dj, _ := docs[j].Value["date"].(string)
		if di != dj {
			return di > dj
		}
		return docs[i].Key > docs[j].Key
	})
	return docs, nil
}

func decode(key string, fields map[string]string) (*models.Document, error) {
	doc := &models.Document{Key: key}
	if err := json.Unmarshal([]byte(fields[fieldValue]), &doc.Value); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", key, err)
	}
	if ts, err := strconv.ParseInt(fields[fieldUpdatedAt], 10, 64); err == nil {
		doc.UpdatedAt = ts
	}
	return doc, nil
}

// escapeGlob escapes the characters SCAN MATCH treats as patterns.
func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
