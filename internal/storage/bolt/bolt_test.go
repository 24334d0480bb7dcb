package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/mmynk/gasbottle/internal/models"
)

func setupTestDB(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tracker.bolt")
	s, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Logf("failed to close database: %v", err)
		}
	})
	return s, path
}

func TestStore_LoadStateEmpty(t *testing.T) {
	s, _ := setupTestDB(t)

	_, err := s.LoadState(context.Background())
	assert.True(t, errors.Is(err, models.ErrNotFound), "got %v", err)
}

func TestStore_SaveAndLoad(t *testing.T) {
	s, _ := setupTestDB(t)
	ctx := context.Background()

	state := &models.State{
		Connections: []models.Connection{
			{ID: 2, Date: "2024-02-01", Cost: 85, Timestamp: "2024-02-01T10:00:00Z"},
			{ID: 1, Date: "2024-01-01", Cost: 80, Timestamp: "2024-01-01T10:00:00Z"},
		},
		Settings:    models.Settings{BottleWeight: 19, BottlePrice: 40},
		LastUpdated: 42,
	}
	require.NoError(t, s.SaveState(ctx, state))

	got, err := s.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, state, got)
}

func TestStore_StateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.bolt")
	ctx := context.Background()

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveState(ctx, models.NewState()))
	id, err := s.UserID(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	again, err := s.UserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	state, err := s.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), state.Settings)
	assert.Empty(t, state.Connections)
}

func TestStore_UserIDStable(t *testing.T) {
	s, _ := setupTestDB(t)
	ctx := context.Background()

	first, err := s.UserID(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := s.UserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStore_CorruptState(t *testing.T) {
	s, _ := setupTestDB(t)
	require.NoError(t, s.writeRaw([]byte("{not json")))

	_, err := s.LoadState(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrNotFound))
}

func TestStore_MissingSettingsUseDefaults(t *testing.T) {
	s, _ := setupTestDB(t)
	require.NoError(t, s.writeRaw([]byte(`{"connections":[{"id":1,"date":"2024-01-01","cost":80}]}`)))

	state, err := s.LoadState(context.Background())
	require.NoError(t, err)
	assert.Len(t, state.Connections, 1)
	assert.Equal(t, models.DefaultSettings(), state.Settings)
}

// writeRaw stores bytes under the state key as-is.
func (s *Store) writeRaw(raw []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTracker).Put(keyState, raw)
	})
}
