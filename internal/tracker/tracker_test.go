package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/gasbottle/internal/models"
)

// memLocal is an in-memory storage.LocalStore that counts saves.
type memLocal struct {
	mu      sync.Mutex
	state   *models.State
	loadErr error
	saveErr error
	saves   int
}

func (m *memLocal) LoadState(context.Context) (*models.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.state == nil {
		return nil, models.ErrNotFound
	}
	return m.state.Clone(), nil
}

func (m *memLocal) SaveState(_ context.Context, s *models.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.state = s.Clone()
	return nil
}

func (m *memLocal) UserID(context.Context) (string, error) { return "u1", nil }
func (m *memLocal) Close() error                           { return nil }

func (m *memLocal) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type recordingMirror struct {
	changes []Change
}

func (r *recordingMirror) Mirror(c Change) { r.changes = append(r.changes, c) }

func newTestTracker(t *testing.T, local *memLocal) (*Tracker, *recordingMirror) {
	t.Helper()
	mirror := &recordingMirror{}
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tr, err := New(context.Background(), local,
		WithMirror(mirror),
		WithClock(func() time.Time { return clock }),
	)
	require.NoError(t, err)
	return tr, mirror
}

func TestNewStartsFromDefaults(t *testing.T) {
	tests := []struct {
		name  string
		local *memLocal
	}{
		{"nothing saved", &memLocal{}},
		{"load error", &memLocal{loadErr: errors.New("corrupt")}},
		{"invalid state", &memLocal{state: &models.State{
			Connections: []models.Connection{{ID: 1, Date: "bad", Cost: 1}},
			Settings:    models.DefaultSettings(),
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTestTracker(t, tt.local)
			conns, settings := tr.Snapshot()
			assert.Empty(t, conns)
			assert.Equal(t, models.DefaultSettings(), settings)
		})
	}
}

func TestNewLoadsSavedState(t *testing.T) {
	local := &memLocal{state: &models.State{
		Connections: []models.Connection{
			{ID: 1, Date: "2024-01-01", Cost: 80},
			{ID: 2, Date: "2024-02-01", Cost: 85},
		},
		Settings: models.Settings{BottleWeight: 19, BottlePrice: 40},
	}}
	tr, _ := newTestTracker(t, local)

	conns, settings := tr.Snapshot()
	require.Len(t, conns, 2)
	assert.Equal(t, int64(2), conns[0].ID, "newest first")
	assert.Equal(t, 19.0, settings.BottleWeight)
}

func TestAdd(t *testing.T) {
	local := &memLocal{}
	tr, mirror := newTestTracker(t, local)
	ctx := context.Background()

	first, err := tr.Add(ctx, "2024-01-15", 85)
	require.NoError(t, err)
	second, err := tr.Add(ctx, "2024-01-01", 80)
	require.NoError(t, err)
	third, err := tr.Add(ctx, "2024-02-01T08:30", 90)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "2024-02-01", third.Date)
	assert.Equal(t, "2024-06-01T12:00:00Z", first.Timestamp)

	conns, _ := tr.Snapshot()
	require.Len(t, conns, 3)
	assert.Equal(t, []string{"2024-02-01", "2024-01-15", "2024-01-01"},
		[]string{conns[0].Date, conns[1].Date, conns[2].Date})

	assert.Equal(t, 3, local.saveCount())
	require.Len(t, mirror.changes, 3)
	assert.Equal(t, ChangeAdd, mirror.changes[0].Kind)
	assert.Len(t, mirror.changes[2].State.Connections, 3)
}

func TestAddTiesKeepInsertionOrder(t *testing.T) {
	tr, _ := newTestTracker(t, &memLocal{})
	ctx := context.Background()

	a, err := tr.Add(ctx, "2024-01-01", 1)
	require.NoError(t, err)
	b, err := tr.Add(ctx, "2024-01-01", 2)
	require.NoError(t, err)

	conns, _ := tr.Snapshot()
	assert.Equal(t, a.ID, conns[0].ID)
	assert.Equal(t, b.ID, conns[1].ID)
}

// Rejected adds leave the store unchanged and write nothing.
func TestAddValidation(t *testing.T) {
	tests := []struct {
		name string
		date string
		cost float64
	}{
		{"negative cost", "2024-01-01", -1},
		{"empty date", "", 10},
		{"invalid date", "2024-13-45", 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := &memLocal{}
			tr, mirror := newTestTracker(t, local)

			_, err := tr.Add(context.Background(), tt.date, tt.cost)
			require.ErrorIs(t, err, models.ErrValidation)

			conns, _ := tr.Snapshot()
			assert.Empty(t, conns)
			assert.Zero(t, local.saveCount())
			assert.Empty(t, mirror.changes)
		})
	}
}

func TestAddSaveFailureStillMirrors(t *testing.T) {
	local := &memLocal{saveErr: errors.New("disk full")}
	tr, mirror := newTestTracker(t, local)

	c, err := tr.Add(context.Background(), "2024-01-01", 80)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrValidation)
	assert.NotZero(t, c.ID)

	conns, _ := tr.Snapshot()
	assert.Len(t, conns, 1)
	assert.Len(t, mirror.changes, 1)
}

func TestRemove(t *testing.T) {
	local := &memLocal{}
	tr, mirror := newTestTracker(t, local)
	ctx := context.Background()

	c, err := tr.Add(ctx, "2024-01-01", 80)
	require.NoError(t, err)

	ok, err := tr.Remove(ctx, c.ID+1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, local.saveCount(), "missing id writes nothing")

	ok, err = tr.Remove(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	conns, _ := tr.Snapshot()
	assert.Empty(t, conns)
	require.Len(t, mirror.changes, 2)
	assert.Equal(t, ChangeRemove, mirror.changes[1].Kind)
	assert.Equal(t, c.ID, mirror.changes[1].Connection.ID)
}

func TestClear(t *testing.T) {
	tr, mirror := newTestTracker(t, &memLocal{})
	ctx := context.Background()

	a, _ := tr.Add(ctx, "2024-01-01", 80)
	b, _ := tr.Add(ctx, "2024-01-15", 85)
	require.NoError(t, tr.UpdateSettings(ctx, 19, 40))

	require.NoError(t, tr.Clear(ctx))

	conns, settings := tr.Snapshot()
	assert.Empty(t, conns)
	assert.Equal(t, 19.0, settings.BottleWeight, "settings survive clear")

	last := mirror.changes[len(mirror.changes)-1]
	assert.Equal(t, ChangeClear, last.Kind)
	assert.ElementsMatch(t, []int64{a.ID, b.ID}, last.RemovedIDs)
}

func TestUpdateSettings(t *testing.T) {
	tests := []struct {
		name    string
		weight  float64
		price   float64
		wantErr bool
	}{
		{"valid", 19, 40, false},
		{"free bottle", 19, 0, false},
		{"zero weight", 0, 40, true},
		{"negative weight", -1, 40, true},
		{"negative price", 19, -0.01, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := &memLocal{}
			tr, _ := newTestTracker(t, local)

			err := tr.UpdateSettings(context.Background(), tt.weight, tt.price)
			_, settings := tr.Snapshot()
			if tt.wantErr {
				require.ErrorIs(t, err, models.ErrValidation)
				assert.Equal(t, models.DefaultSettings(), settings)
				assert.Zero(t, local.saveCount())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.Settings{BottleWeight: tt.weight, BottlePrice: tt.price}, settings)
		})
	}
}

func TestReplaceIsAllOrNothing(t *testing.T) {
	local := &memLocal{}
	tr, _ := newTestTracker(t, local)
	ctx := context.Background()

	kept, _ := tr.Add(ctx, "2024-01-01", 80)

	bad := &models.State{
		Connections: []models.Connection{
			{ID: 10, Date: "2024-03-01", Cost: 10},
			{ID: 11, Date: "2024-03-02", Cost: -5},
		},
		Settings: models.DefaultSettings(),
	}
	require.ErrorIs(t, tr.Replace(ctx, bad), models.ErrValidation)

	conns, _ := tr.Snapshot()
	require.Len(t, conns, 1)
	assert.Equal(t, kept.ID, conns[0].ID)
	assert.Equal(t, 1, local.saveCount())
}

func TestReplace(t *testing.T) {
	tr, mirror := newTestTracker(t, &memLocal{})
	ctx := context.Background()

	old, _ := tr.Add(ctx, "2024-01-01", 80)

	next := &models.State{
		Connections: []models.Connection{
			{ID: 10, Date: "2024-03-01", Cost: 10},
			{ID: 11, Date: "2024-04-01", Cost: 12},
		},
		Settings: models.Settings{BottleWeight: 11, BottlePrice: 25},
	}
	require.NoError(t, tr.Replace(ctx, next))

	conns, settings := tr.Snapshot()
	require.Len(t, conns, 2)
	assert.Equal(t, int64(11), conns[0].ID)
	assert.Equal(t, next.Settings, settings)

	last := mirror.changes[len(mirror.changes)-1]
	assert.Equal(t, ChangeReplace, last.Kind)
	assert.Equal(t, []int64{old.ID}, last.RemovedIDs)
}

func TestMergeRemoteDoesNotMirror(t *testing.T) {
	local := &memLocal{}
	tr, mirror := newTestTracker(t, local)
	ctx := context.Background()

	var seen []ChangeKind
	tr.OnChange(func(c Change) { seen = append(seen, c.Kind) })

	price := 99.0
	remote := []models.Connection{{ID: 5, Date: "2024-05-01", Cost: 99}}
	require.NoError(t, tr.MergeRemote(ctx, remote, &models.SettingsPatch{BottlePrice: &price}))

	conns, settings := tr.Snapshot()
	assert.Equal(t, remote, conns)
	assert.Equal(t, 99.0, settings.BottlePrice)
	assert.Equal(t, models.DefaultBottleWeight, settings.BottleWeight, "absent fields keep their value")

	assert.Empty(t, mirror.changes)
	assert.Equal(t, []ChangeKind{ChangeRemote}, seen)
	assert.Equal(t, 1, local.saveCount())
}

func TestMergeRemoteNilLeavesRecords(t *testing.T) {
	tr, _ := newTestTracker(t, &memLocal{})
	ctx := context.Background()

	_, err := tr.Add(ctx, "2024-01-01", 80)
	require.NoError(t, err)

	weight := 12.5
	require.NoError(t, tr.MergeRemote(ctx, nil, &models.SettingsPatch{BottleWeight: &weight}))

	conns, settings := tr.Snapshot()
	assert.Len(t, conns, 1)
	assert.Equal(t, 12.5, settings.BottleWeight)
}

func TestMergeRemoteAtRejectsStaleVersion(t *testing.T) {
	local := &memLocal{}
	tr, _ := newTestTracker(t, local)
	ctx := context.Background()

	version := tr.Version()
	added, err := tr.Add(ctx, "2024-01-01", 80)
	require.NoError(t, err)
	saves := local.saveCount()

	remote := []models.Connection{{ID: 5, Date: "2024-05-01", Cost: 99}}
	err = tr.MergeRemoteAt(ctx, remote, nil, version)
	require.ErrorIs(t, err, ErrStale)

	conns, _ := tr.Snapshot()
	assert.Equal(t, []models.Connection{added}, conns, "a local write after the version survives")
	assert.Equal(t, saves, local.saveCount())

	require.NoError(t, tr.MergeRemoteAt(ctx, remote, nil, tr.Version()))
	conns, _ = tr.Snapshot()
	assert.Equal(t, remote, conns)
}

func TestLastUpdatedIncreases(t *testing.T) {
	tr, _ := newTestTracker(t, &memLocal{})
	ctx := context.Background()

	_, _ = tr.Add(ctx, "2024-01-01", 80)
	first := tr.State().LastUpdated
	_, _ = tr.Add(ctx, "2024-01-02", 80)
	second := tr.State().LastUpdated

	assert.Greater(t, second, first, "fixed clock still yields increasing stamps")
}

func TestSnapshotIsACopy(t *testing.T) {
	tr, _ := newTestTracker(t, &memLocal{})
	_, _ = tr.Add(context.Background(), "2024-01-01", 80)

	conns, _ := tr.Snapshot()
	conns[0].Cost = 1

	again, _ := tr.Snapshot()
	assert.Equal(t, 80.0, again[0].Cost)
}

func TestStats(t *testing.T) {
	tr, _ := newTestTracker(t, &memLocal{})
	ctx := context.Background()
	_, _ = tr.Add(ctx, "2024-01-01", 80)
	_, _ = tr.Add(ctx, "2024-01-15", 85)

	stats := tr.Stats()
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Equal(t, 165.0, stats.TotalSpent)
}
