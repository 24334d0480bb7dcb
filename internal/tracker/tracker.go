// Package tracker is the record store: the authoritative list of refill
// records and bottle settings.
//
// Every mutation validates first, persists to the local store synchronously,
// and only then hands the change to the mirror for remote replication.
// Validation failures never reach either store.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/mmynk/gasbottle/internal/calculator"
	"github.com/mmynk/gasbottle/internal/models"
	"github.com/mmynk/gasbottle/internal/storage"
)

// Tracker owns the connection records and settings of one user.
// It is safe for concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	state *models.State

	local     storage.LocalStore
	mirror    Mirror
	ids       *snowflake.Node
	now       func() time.Time
	listeners []func(Change)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMirror sets the remote mirror. See also SetMirror.
func WithMirror(m Mirror) Option {
	return func(t *Tracker) { t.mirror = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithNode sets the snowflake node that generates connection IDs.
func WithNode(node *snowflake.Node) Option {
	return func(t *Tracker) { t.ids = node }
}

// New loads the saved state from local and returns a ready tracker.
// A missing, unreadable or invalid saved state starts from defaults.
func New(ctx context.Context, local storage.LocalStore, opts ...Option) (*Tracker, error) {
	t := &Tracker{local: local, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	if t.ids == nil {
		node, err := snowflake.NewNode(1)
		if err != nil {
			return nil, fmt.Errorf("create id node: %w", err)
		}
		t.ids = node
	}

	t.state = loadState(ctx, local)
	return t, nil
}

func loadState(ctx context.Context, local storage.LocalStore) *models.State {
	state, err := local.LoadState(ctx)
	switch {
	case errors.Is(err, models.ErrNotFound):
		slog.Debug("No saved state, starting from defaults")
		return models.NewState()
	case err != nil:
		slog.Warn("Failed to load saved state, starting from defaults", "error", err)
		return models.NewState()
	}

	if err := state.Validate(); err != nil {
		slog.Warn("Saved state is invalid, starting from defaults", "error", err)
		return models.NewState()
	}
	models.SortByDateDesc(state.Connections)
	slog.Info("Loaded saved state", "connections", len(state.Connections))
	return state
}

// SetMirror installs the remote mirror after construction, for mirrors
// that need the tracker themselves.
func (t *Tracker) SetMirror(m Mirror) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mirror = m
}

// OnChange registers fn to run after every applied mutation, remote merges
// included. fn runs on the mutating goroutine, outside the tracker lock.
func (t *Tracker) OnChange(fn func(Change)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Add records a refill on date for cost. The date may be any format
// models.ParseDate accepts; it is stored as YYYY-MM-DD.
//
// A returned error wrapping models.ErrValidation means nothing changed.
// Any other error is a local save failure: the record was still added.
func (t *Tracker) Add(ctx context.Context, date string, cost float64) (models.Connection, error) {
	c := models.Connection{Date: date, Cost: cost}
	if err := c.Validate(); err != nil {
		return models.Connection{}, err
	}
	parsed, _ := models.ParseDate(date)
	c.Date = parsed.Format(models.DateLayout)

	t.mu.Lock()
	now := t.now()
	c.ID = t.nextID()
	c.Timestamp = now.UTC().Format(time.RFC3339)
	t.state.Connections = append(t.state.Connections, c)
	models.SortByDateDesc(t.state.Connections)

	change := Change{Kind: ChangeAdd, Connection: c}
	err := t.commitLocked(ctx, now, &change, true)
	t.mu.Unlock()

	t.publish(change)
	slog.Info("Connection added", "id", c.ID, "date", c.Date, "cost", c.Cost)
	return c, err
}

// Remove deletes the record with id. It reports false, and writes nothing,
// when no such record exists.
func (t *Tracker) Remove(ctx context.Context, id int64) (bool, error) {
	t.mu.Lock()
	idx := -1
	for i, c := range t.state.Connections {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.mu.Unlock()
		return false, nil
	}

	removed := t.state.Connections[idx]
	t.state.Connections = append(t.state.Connections[:idx:idx], t.state.Connections[idx+1:]...)

	change := Change{Kind: ChangeRemove, Connection: removed}
	err := t.commitLocked(ctx, t.now(), &change, true)
	t.mu.Unlock()

	t.publish(change)
	slog.Info("Connection removed", "id", id)
	return true, err
}

// Clear removes every record. Settings are kept.
func (t *Tracker) Clear(ctx context.Context) error {
	t.mu.Lock()
	removed := connectionIDs(t.state.Connections)
	t.state.Connections = []models.Connection{}

	change := Change{Kind: ChangeClear, RemovedIDs: removed}
	err := t.commitLocked(ctx, t.now(), &change, true)
	t.mu.Unlock()

	t.publish(change)
	slog.Info("Connections cleared", "removed", len(removed))
	return err
}

// UpdateSettings replaces both settings at once.
func (t *Tracker) UpdateSettings(ctx context.Context, bottleWeight, bottlePrice float64) error {
	settings := models.Settings{BottleWeight: bottleWeight, BottlePrice: bottlePrice}
	if err := settings.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	t.state.Settings = settings

	change := Change{Kind: ChangeSettings}
	err := t.commitLocked(ctx, t.now(), &change, true)
	t.mu.Unlock()

	t.publish(change)
	slog.Info("Settings updated", "bottle_weight", bottleWeight, "bottle_price", bottlePrice)
	return err
}

// Replace swaps in a whole new state, as an import does. Every record is
// validated first; on failure nothing changes.
func (t *Tracker) Replace(ctx context.Context, state *models.State) error {
	if state == nil {
		return fmt.Errorf("%w: no state", models.ErrValidation)
	}
	next := state.Clone()
	if err := next.Validate(); err != nil {
		return err
	}
	models.SortByDateDesc(next.Connections)

	t.mu.Lock()
	removed := missingIDs(t.state.Connections, next.Connections)
	t.state.Connections = next.Connections
	t.state.Settings = next.Settings

	change := Change{Kind: ChangeReplace, RemovedIDs: removed}
	err := t.commitLocked(ctx, t.now(), &change, true)
	t.mu.Unlock()

	t.publish(change)
	slog.Info("State replaced", "connections", len(next.Connections))
	return err
}

// ErrStale is returned by MergeRemoteAt when a commit happened after the
// caller read the version.
var ErrStale = errors.New("local state changed since merge was prepared")

// MergeRemote applies data received from the remote store. A nil conns
// leaves the records alone; otherwise they replace the local set. A nil
// patch leaves the settings alone; otherwise it is merged field by field.
// The change is persisted locally but never mirrored back.
func (t *Tracker) MergeRemote(ctx context.Context, conns []models.Connection, patch *models.SettingsPatch) error {
	return t.mergeRemote(ctx, conns, patch, -1)
}

// MergeRemoteAt is MergeRemote for a merge prepared against version, as
// returned by Version. Nothing is applied and ErrStale is returned if the
// state has been committed since.
func (t *Tracker) MergeRemoteAt(ctx context.Context, conns []models.Connection, patch *models.SettingsPatch, version int64) error {
	return t.mergeRemote(ctx, conns, patch, version)
}

func (t *Tracker) mergeRemote(ctx context.Context, conns []models.Connection, patch *models.SettingsPatch, version int64) error {
	var next []models.Connection
	if conns != nil {
		next = append([]models.Connection{}, conns...)
		check := models.State{Connections: next, Settings: models.DefaultSettings()}
		if err := check.Validate(); err != nil {
			return err
		}
		models.SortByDateDesc(next)
	}

	t.mu.Lock()
	if version >= 0 && t.state.LastUpdated != version {
		t.mu.Unlock()
		return ErrStale
	}
	var removed []int64
	if next != nil {
		removed = missingIDs(t.state.Connections, next)
		t.state.Connections = next
	}
	if patch != nil {
		t.state.Settings = patch.Apply(t.state.Settings)
	}

	change := Change{Kind: ChangeRemote, RemovedIDs: removed}
	err := t.commitLocked(ctx, t.now(), &change, false)
	t.mu.Unlock()

	t.publish(change)
	slog.Debug("Merged remote data", "connections", len(next), "settings", patch != nil)
	return err
}

// Version returns the stamp of the latest commit. It grows with every
// mutation and merge.
func (t *Tracker) Version() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.LastUpdated
}

// Snapshot returns copies of the records, newest first, and the settings.
func (t *Tracker) Snapshot() ([]models.Connection, models.Settings) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]models.Connection{}, t.state.Connections...), t.state.Settings
}

// State returns a copy of the full state.
func (t *Tracker) State() *models.State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Clone()
}

// Stats computes the statistics of the current snapshot.
func (t *Tracker) Stats() calculator.Stats {
	conns, settings := t.Snapshot()
	return calculator.Calculate(conns, settings)
}

// commitLocked stamps and saves the state, fills change.State and, when
// mirror is set, queues the change for the remote store. The mirror is
// called under t.mu so changes reach it in commit order. The mirror still
// runs when the local save fails. The caller holds t.mu.
func (t *Tracker) commitLocked(ctx context.Context, now time.Time, change *Change, mirror bool) error {
	stamp := now.UnixMilli()
	if stamp <= t.state.LastUpdated {
		stamp = t.state.LastUpdated + 1
	}
	t.state.LastUpdated = stamp
	change.State = t.state.Clone()

	err := t.local.SaveState(ctx, change.State)
	if err != nil {
		slog.Error("Failed to save state", "change", change.Kind, "error", err)
		err = fmt.Errorf("save state: %w", err)
	}

	if mirror && t.mirror != nil {
		t.mirror.Mirror(*change)
	}
	return err
}

func (t *Tracker) publish(change Change) {
	t.mu.RLock()
	listeners := append([]func(Change){}, t.listeners...)
	t.mu.RUnlock()

	for _, fn := range listeners {
		fn(change)
	}
}

// nextID returns a fresh ID not used by any current record.
func (t *Tracker) nextID() int64 {
	for {
		id := t.ids.Generate().Int64()
		if !hasID(t.state.Connections, id) {
			return id
		}
	}
}

func hasID(conns []models.Connection, id int64) bool {
	for _, c := range conns {
		if c.ID == id {
			return true
		}
	}
	return false
}

func connectionIDs(conns []models.Connection) []int64 {
	ids := make([]int64, len(conns))
	for i, c := range conns {
		ids[i] = c.ID
	}
	return ids
}

// missingIDs returns the IDs in before that are absent from after.
func missingIDs(before, after []models.Connection) []int64 {
	keep := make(map[int64]bool, len(after))
	for _, c := range after {
		keep[c.ID] = true
	}
	var ids []int64
	for _, c := range before {
		if !keep[c.ID] {
			ids = append(ids, c.ID)
		}
	}
	return ids
}
