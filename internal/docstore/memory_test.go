package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/gasbottle/internal/models"
)

func TestMemoryGetPutDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "users/u1")
	require.ErrorIs(t, err, models.ErrNotFound)

	value := map[string]any{"settings": map[string]any{"bottleWeight": 47.0}}
	require.NoError(t, m.Put(ctx, "users/u1", value))

	// Stored values are copies
	value["settings"].(map[string]any)["bottleWeight"] = 1.0

	doc, err := m.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, 47.0, doc.Value["settings"].(map[string]any)["bottleWeight"])

	require.NoError(t, m.Delete(ctx, "users/u1"))
	require.NoError(t, m.Delete(ctx, "users/u1"))
	_, err = m.Get(ctx, "users/u1")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryListOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Put(ctx, "users/u1/connections/1", map[string]any{"date": "2024-01-01"}))
	require.NoError(t, m.Put(ctx, "users/u1/connections/2", map[string]any{"date": "2024-03-01"}))
	require.NoError(t, m.Put(ctx, "users/u1/connections/3", map[string]any{"date": "2024-02-01"}))
	require.NoError(t, m.Put(ctx, "users/u2/connections/4", map[string]any{"date": "2024-05-01"}))

	docs := m.List("users/u1/connections/")
	require.Len(t, docs, 3)
	assert.Equal(t, "users/u1/connections/2", docs[0].Key)
	assert.Equal(t, "users/u1/connections/3", docs[1].Key)
	assert.Equal(t, "users/u1/connections/1", docs[2].Key)
}

func TestMemoryWatch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	prefix := models.ConnectionsPrefix("u1")

	snapshots := make(chan []models.Document, 16)
	stop, err := m.Watch(ctx, prefix, func(docs []models.Document) { snapshots <- docs }, nil)
	require.NoError(t, err)

	assert.Len(t, next(t, snapshots), 0, "initial snapshot")

	require.NoError(t, m.Put(ctx, models.ConnectionKey("u1", 7), map[string]any{"date": "2024-01-01", "cost": 80.0}))
	assert.Len(t, next(t, snapshots), 1)
	assert.Equal(t, 1, m.Watchers())

	stop()
	stop()
	assert.Equal(t, 0, m.Watchers())
}

func TestMemoryWatchEndsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMemory()

	_, err := m.Watch(ctx, "users/u1/", func([]models.Document) {}, nil)
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool { return m.Watchers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubCoalesces(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("a/")
	defer cancel()

	<-ch // initial
	h.Publish("a/1")
	h.Publish("a/2")
	h.Publish("b/1")

	select {
	case <-ch:
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-ch:
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	docs := []models.Document{
		{Key: "users/u1/connections/2", Value: map[string]any{"date": "2024-02-01", "cost": 85.5}, UpdatedAt: 20},
		{Key: "users/u1/connections/1", Value: map[string]any{"date": "2024-01-01", "cost": 80.0}, UpdatedAt: 10},
	}

	msg, err := EncodeSnapshot(docs)
	require.NoError(t, err)
	got, err := DecodeSnapshot(msg)
	require.NoError(t, err)
	assert.Equal(t, docs, got)
}

func TestDecodePut(t *testing.T) {
	msg, err := EncodePut("users/u1", map[string]any{"lastUpdated": 5.0})
	require.NoError(t, err)

	key, value, err := DecodePut(msg)
	require.NoError(t, err)
	assert.Equal(t, "users/u1", key)
	assert.Equal(t, 5.0, value["lastUpdated"])

	bad, err := EncodePut("", map[string]any{})
	require.NoError(t, err)
	_, _, err = DecodePut(bad)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com", "http://", "::"} {
		_, err := NewClient(nil, raw)
		assert.Error(t, err, raw)
	}
}

func next(t *testing.T, ch <-chan []models.Document) []models.Document {
	t.Helper()
	select {
	case docs := <-ch:
		return docs
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}
