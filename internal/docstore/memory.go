package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmynk/gasbottle/internal/models"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store. Values are deep-copied on the way in and
// out, the same as they would be over the wire.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]models.Document
	hub  *Hub
	now  func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]models.Document),
		hub:  NewHub(),
		now:  time.Now,
	}
}

// Get returns a copy of the document at key.
func (m *Memory) Get(_ context.Context, key string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[key]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", key, models.ErrNotFound)
	}
	doc.Value = copyMap(doc.Value)
	return &doc, nil
}

// Put stores a copy of value at key and notifies watchers.
func (m *Memory) Put(_ context.Context, key string, value map[string]any) error {
	m.mu.Lock()
	m.docs[key] = models.Document{Key: key, Value: copyMap(value), UpdatedAt: m.now().UnixMilli()}
	m.mu.Unlock()

	m.hub.Publish(key)
	return nil
}

// Delete removes key and notifies watchers.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	_, existed := m.docs[key]
	delete(m.docs, key)
	m.mu.Unlock()

	if existed {
		m.hub.Publish(key)
	}
	return nil
}

// Watch delivers snapshots of prefix from a dedicated goroutine until stop
// is called or ctx is done.
func (m *Memory) Watch(ctx context.Context, prefix string, onChange func([]models.Document), _ func(error)) (func(), error) {
	signals, unsubscribe := m.hub.Subscribe(prefix)
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			unsubscribe()
			close(done)
		})
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				stop()
				return
			case <-done:
				return
			case <-signals:
				onChange(m.List(prefix))
			}
		}
	}()

	return stop, nil
}

// List returns copies of the documents under prefix, newest date first.
func (m *Memory) List(prefix string) []models.Document {
	m.mu.RLock()
	docs := make([]models.Document, 0)
	for key, doc := range m.docs {
		if strings.HasPrefix(key, prefix) {
			doc.Value = copyMap(doc.Value)
			docs = append(docs, doc)
		}
	}
	m.mu.RUnlock()

	SortByDateDesc(docs)
	return docs
}

// Watchers returns the number of active watches.
func (m *Memory) Watchers() int {
	return m.hub.Len()
}

// SortByDateDesc orders documents by their date field, newest first,
// falling back to key order.
func SortByDateDesc(docs []models.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		di, _ := docs[i].Value["date"].(string)
		dj, _ := docs[j].Value["date"].(string)
		if di != dj {
			return di > dj
		}
		return docs[i].Key > docs[j].Key
	})
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
