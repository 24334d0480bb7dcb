// Package syncer keeps the tracker's records in step with a remote
// document store.
//
// The coordinator is local-first. Every local change is already saved when
// it arrives here; the coordinator mirrors it to the remote store from a
// single background worker and never reports failures back to the caller.
// Remote changes arrive through a watch on the user's connections and are
// merged into the tracker when their content differs from the local set.
//
// Snapshots that arrive while local changes are being pushed, or within
// the settle window after the last push, are held rather than merged: the
// server may have listed them before the push landed. A held snapshot is
// dropped once a snapshot matching the local records arrives, and merged
// if the window ends without one.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mmynk/gasbottle/internal/docstore"
	"github.com/mmynk/gasbottle/internal/models"
	"github.com/mmynk/gasbottle/internal/tracker"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultQueueSize    = 256
	defaultSettleWindow = 2 * time.Second
)

// Config tunes a Coordinator. The zero value is usable.
type Config struct {
	// Timeout bounds every remote call, and the wait for the first watch
	// snapshot during Start.
	Timeout time.Duration

	// QueueSize is the number of local changes that may wait for the push
	// worker. Changes beyond it are dropped and counted as failures.
	QueueSize int

	// SettleWindow is how long after a push incoming snapshots are held
	// while waiting for the push to show up in one.
	SettleWindow time.Duration

	// OnStatus is called with every status report, repeated reports
	// included. It must not block.
	OnStatus func(Status)

	// Metrics receives status and push counters. Optional.
	Metrics *Metrics
}

// Coordinator reconciles one user's tracker with the remote store.
type Coordinator struct {
	tracker *tracker.Tracker
	remote  docstore.Store
	userID  string
	cfg     Config

	queue   chan tracker.Change
	pending atomic.Int64
	pushed  chan struct{}

	mu        sync.Mutex
	status    Status
	started   bool
	closed    bool
	stopWatch func()
	cancel    context.CancelFunc
	done      chan struct{}

	// awaiting is set until the first watch snapshot is handled; initial
	// is the settings patch to merge with it, if the remote data wins.
	// firstSeen is closed once that snapshot is handled.
	awaiting  bool
	initial   *models.SettingsPatch
	firstSeen chan struct{}

	// mergeMu serializes snapshot handling with the settle timer.
	mergeMu     sync.Mutex
	settling    bool
	settleGen   uint64
	settleTimer *time.Timer
	held        []models.Connection
}

// New creates a coordinator and installs it as the tracker's mirror.
// A nil remote puts the coordinator in local mode.
func New(t *tracker.Tracker, remote docstore.Store, userID string, cfg Config) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.SettleWindow <= 0 {
		cfg.SettleWindow = defaultSettleWindow
	}

	c := &Coordinator{
		tracker: t,
		remote:  remote,
		userID:  userID,
		cfg:     cfg,
		queue:   make(chan tracker.Change, cfg.QueueSize),
		pushed:  make(chan struct{}, 1),
		status:  StatusConnecting,
		done:    make(chan struct{}),
	}
	cfg.Metrics.setStatus(StatusConnecting)
	t.SetMirror(c)
	return c
}

// Status returns the last reported status.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Start runs the initial round-trip and opens the live watch.
//
// If the user document exists remotely, its settings are merged field by
// field and the remote connections replace the local ones. If it does not,
// the local state is written as the initial remote data. Any failure leaves
// the local state active and the status at StatusError; Start never
// returns an error.
func (c *Coordinator) Start(ctx context.Context) Status {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return c.Status()
	}
	c.started = true
	c.mu.Unlock()

	if c.remote == nil {
		close(c.done)
		c.report(StatusLocal)
		slog.Info("Remote store unavailable, running locally")
		return StatusLocal
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	go c.run(runCtx)

	if err := c.initialSync(ctx, runCtx); err != nil {
		slog.Warn("Initial sync failed, continuing with local data", "error", err)
		c.report(StatusError)
		return StatusError
	}

	c.report(StatusConnected)
	return StatusConnected
}

func (c *Coordinator) initialSync(ctx, runCtx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	doc, err := c.remote.Get(callCtx, models.UserKey(c.userID))
	switch {
	case errors.Is(err, models.ErrNotFound):
		slog.Info("No remote data, uploading local state", "user_id", c.userID)
		if err := c.pushState(callCtx, c.tracker.State()); err != nil {
			return err
		}
		if err := c.watch(runCtx, nil); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("read user document: %w", err)
	default:
		patch := models.SettingsPatchFromDocument(doc.Value)
		remoteUpdated := models.LastUpdatedFromDocument(doc.Value)
		if local := c.tracker.State().LastUpdated; local > remoteUpdated {
			slog.Warn("Local state is newer than remote, remote wins on start",
				"local_updated", local, "remote_updated", remoteUpdated)
		}
		if err := c.watch(runCtx, &patch); err != nil {
			return err
		}
	}

	select {
	case <-c.firstSeen:
		return nil
	case <-callCtx.Done():
		return fmt.Errorf("%w: waiting for remote connections: %w", models.ErrRemoteUnavailable, callCtx.Err())
	}
}

// watch subscribes to the user's connections. When patch is non-nil the
// first snapshot is merged wholesale together with patch.
func (c *Coordinator) watch(ctx context.Context, patch *models.SettingsPatch) error {
	c.mu.Lock()
	c.awaiting = true
	c.initial = patch
	c.firstSeen = make(chan struct{})
	c.mu.Unlock()

	stop, err := c.remote.Watch(ctx, models.ConnectionsPrefix(c.userID), c.onSnapshot, c.onWatchError)
	if err != nil {
		return fmt.Errorf("watch connections: %w", err)
	}

	c.mu.Lock()
	c.stopWatch = stop
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) onSnapshot(docs []models.Document) {
	remote := decodeConnections(docs)

	c.mu.Lock()
	first := c.awaiting
	c.awaiting = false
	patch := c.initial
	c.initial = nil
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	if first {
		defer close(c.firstSeen)
	}

	c.mergeMu.Lock()
	defer c.mergeMu.Unlock()

	if patch != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
		defer cancel()
		if err := c.tracker.MergeRemote(ctx, remote, patch); err != nil {
			slog.Warn("Failed to merge remote state", "error", err)
			return
		}
		c.cfg.Metrics.merged()
		slog.Info("Loaded remote state", "connections", len(remote))
		return
	}

	if c.pending.Load() > 0 {
		slog.Debug("Holding remote snapshot during local writes", "connections", len(remote))
		c.held = remote
		return
	}
	if c.settling {
		local, _ := c.tracker.Snapshot()
		if sameContent(local, remote) {
			c.endSettleLocked()
			return
		}
		slog.Debug("Holding remote snapshot until local writes settle", "connections", len(remote))
		c.held = remote
		return
	}

	c.mergeLocked(remote)
}

// mergeLocked merges remote unless it matches the local records or a
// local write lands first. The caller holds c.mergeMu.
func (c *Coordinator) mergeLocked(remote []models.Connection) {
	version := c.tracker.Version()
	if c.pending.Load() > 0 {
		c.held = remote
		return
	}
	local, _ := c.tracker.Snapshot()
	if sameContent(local, remote) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()
	err := c.tracker.MergeRemoteAt(ctx, remote, nil, version)
	switch {
	case errors.Is(err, tracker.ErrStale):
		slog.Debug("Local write during remote merge, waiting for next snapshot")
		return
	case err != nil:
		slog.Warn("Failed to merge remote connections", "error", err)
		return
	}
	c.cfg.Metrics.merged()
	slog.Info("Merged remote connections", "connections", len(remote))
}

// settle opens, or restarts, the settle window after a push. After a
// failed push the held snapshot is dropped: it lacks the change that
// never reached the remote store.
func (c *Coordinator) settle(pushErr error) {
	c.mergeMu.Lock()
	defer c.mergeMu.Unlock()

	if pushErr != nil {
		c.held = nil
	}

	c.settling = true
	c.settleGen++
	gen := c.settleGen
	if c.settleTimer != nil {
		c.settleTimer.Stop()
	}
	c.settleTimer = time.AfterFunc(c.cfg.SettleWindow, func() { c.settleExpired(gen) })
}

func (c *Coordinator) settleExpired(gen uint64) {
	c.mergeMu.Lock()
	defer c.mergeMu.Unlock()

	// A newer push restarted the window, or pushes are still queued and
	// the last of them will restart it.
	if gen != c.settleGen || !c.settling || c.pending.Load() > 0 {
		return
	}
	held := c.held
	c.endSettleLocked()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if held != nil && !closed {
		c.mergeLocked(held)
	}
}

func (c *Coordinator) endSettleLocked() {
	c.settling = false
	c.settleGen++
	c.held = nil
	if c.settleTimer != nil {
		c.settleTimer.Stop()
		c.settleTimer = nil
	}
}

func (c *Coordinator) onWatchError(err error) {
	slog.Warn("Remote watch failed", "error", err)
	c.report(StatusError)
}

// Mirror queues a local change for the push worker. It never blocks.
func (c *Coordinator) Mirror(change tracker.Change) {
	if c.remote == nil {
		return
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	c.pending.Add(1)
	select {
	case c.queue <- change:
	default:
		c.pending.Add(-1)
		slog.Warn("Sync queue full, change not mirrored", "change", change.Kind)
		c.cfg.Metrics.pushed(errors.New("queue full"))
		c.report(StatusError)
	}
}

// Close stops the watch, waits for queued changes to be pushed until ctx
// is done, and stops the push worker. Pushes still queued when ctx ends
// are abandoned.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	stop := c.stopWatch
	cancel := c.cancel
	c.mu.Unlock()

	if stop != nil {
		stop()
	}

	var err error
	defer func() {
		c.mergeMu.Lock()
		c.endSettleLocked()
		c.mergeMu.Unlock()
	}()
	for c.pending.Load() > 0 {
		select {
		case <-c.pushed:
		case <-ctx.Done():
			err = fmt.Errorf("abandoned %d pending changes: %w", c.pending.Load(), ctx.Err())
		}
		if err != nil {
			break
		}
	}

	if cancel != nil {
		cancel()
		<-c.done
	}
	return err
}

// Flush waits until every queued change has been pushed or ctx is done.
func (c *Coordinator) Flush(ctx context.Context) error {
	for c.pending.Load() > 0 {
		select {
		case <-c.pushed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *Coordinator) report(s Status) {
	c.mu.Lock()
	prev := c.status
	c.status = s
	c.mu.Unlock()

	if prev != s {
		slog.Info("Sync status changed", "from", prev, "to", s)
	}
	c.cfg.Metrics.setStatus(s)
	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(s)
	}
}

func decodeConnections(docs []models.Document) []models.Connection {
	conns := make([]models.Connection, 0, len(docs))
	for _, doc := range docs {
		conn, err := models.ConnectionFromDocument(doc)
		if err != nil {
			slog.Warn("Skipping malformed remote connection", "key", doc.Key, "error", err)
			continue
		}
		conns = append(conns, conn)
	}
	models.SortByDateDesc(conns)
	return conns
}

// sameContent compares two record sets by id, date and cost, ignoring order.
func sameContent(a, b []models.Connection) bool {
	if len(a) != len(b) {
		return false
	}
	type key struct {
		id   int64
		date string
		cost float64
	}
	keys := func(conns []models.Connection) []key {
		out := make([]key, len(conns))
		for i, c := range conns {
			out[i] = key{c.ID, c.Date, c.Cost}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
		return out
	}
	ka, kb := keys(a), keys(b)
	for i := range ka {
		if ka[i] != kb[i] {
			return false
		}
	}
	return true
}
