package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmynk/gasbottle/internal/models"
	"github.com/mmynk/gasbottle/internal/tracker"
)

// run is the push worker. Changes are pushed one at a time in the order
// the tracker committed them.
func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case change := <-c.queue:
			err := c.push(ctx, change)
			c.settle(err)
			c.pending.Add(-1)
			select {
			case c.pushed <- struct{}{}:
			default:
			}

			c.cfg.Metrics.pushed(err)
			if err != nil {
				slog.Warn("Failed to mirror change", "change", change.Kind, "error", err)
				c.report(StatusError)
				continue
			}
			c.report(StatusConnected)
		}
	}
}

func (c *Coordinator) push(ctx context.Context, change tracker.Change) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	state := change.State
	if state == nil {
		state = c.tracker.State()
	}

	switch change.Kind {
	case tracker.ChangeAdd:
		if err := c.putConnection(ctx, change.Connection, state.Settings); err != nil {
			return err
		}
	case tracker.ChangeRemove:
		if err := c.deleteConnection(ctx, change.Connection.ID); err != nil {
			return err
		}
	case tracker.ChangeClear:
		for _, id := range change.RemovedIDs {
			if err := c.deleteConnection(ctx, id); err != nil {
				return err
			}
		}
	case tracker.ChangeReplace:
		for _, id := range change.RemovedIDs {
			if err := c.deleteConnection(ctx, id); err != nil {
				return err
			}
		}
		for _, conn := range state.Connections {
			if err := c.putConnection(ctx, conn, state.Settings); err != nil {
				return err
			}
		}
	case tracker.ChangeSettings:
	default:
		return nil
	}

	return c.putUser(ctx, state)
}

// pushState writes a whole state as the initial remote data.
func (c *Coordinator) pushState(ctx context.Context, state *models.State) error {
	for _, conn := range state.Connections {
		if err := c.putConnection(ctx, conn, state.Settings); err != nil {
			return err
		}
	}
	return c.putUser(ctx, state)
}

func (c *Coordinator) putConnection(ctx context.Context, conn models.Connection, settings models.Settings) error {
	key := models.ConnectionKey(c.userID, conn.ID)
	if err := c.remote.Put(ctx, key, models.ConnectionDocument(conn, settings.BottleWeight)); err != nil {
		return fmt.Errorf("write connection %d: %w", conn.ID, err)
	}
	return nil
}

func (c *Coordinator) deleteConnection(ctx context.Context, id int64) error {
	if err := c.remote.Delete(ctx, models.ConnectionKey(c.userID, id)); err != nil {
		return fmt.Errorf("delete connection %d: %w", id, err)
	}
	return nil
}

func (c *Coordinator) putUser(ctx context.Context, state *models.State) error {
	value := models.UserDocument(state.Settings, state.LastUpdated, len(state.Connections))
	if err := c.remote.Put(ctx, models.UserKey(c.userID), value); err != nil {
		return fmt.Errorf("write user document: %w", err)
	}
	return nil
}
