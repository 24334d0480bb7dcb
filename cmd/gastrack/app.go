package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mmynk/gasbottle/internal/auth"
	"github.com/mmynk/gasbottle/internal/config"
	"github.com/mmynk/gasbottle/internal/docstore"
	"github.com/mmynk/gasbottle/internal/middleware"
	"github.com/mmynk/gasbottle/internal/storage/bolt"
	"github.com/mmynk/gasbottle/internal/syncer"
	"github.com/mmynk/gasbottle/internal/tracker"
)

const tokenDuration = 24 * time.Hour

// app is the wired tracker for one CLI invocation.
type app struct {
	cfg      config.Client
	local    *bolt.Store
	tracker  *tracker.Tracker
	sync     *syncer.Coordinator
	userID   string
	registry *prometheus.Registry
}

// openApp opens the local database, loads the tracker and starts syncing.
func openApp(ctx context.Context, cfg config.Client, onStatus func(syncer.Status)) (*app, error) {
	local, err := bolt.New(cfg.DBPath())
	if err != nil {
		return nil, err
	}

	userID, err := local.UserID(ctx)
	if err != nil {
		local.Close()
		return nil, err
	}

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("create id node: %w", err)
	}

	t, err := tracker.New(ctx, local, tracker.WithNode(node))
	if err != nil {
		local.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	coordinator := syncer.New(t, remoteStore(cfg, userID), userID, syncer.Config{
		Timeout:  cfg.Timeout,
		OnStatus: onStatus,
		Metrics:  syncer.NewMetrics(registry),
	})
	coordinator.Start(ctx)

	return &app{
		cfg:      cfg,
		local:    local,
		tracker:  t,
		sync:     coordinator,
		userID:   userID,
		registry: registry,
	}, nil
}

// remoteStore returns the document store client, or nil when no remote is
// configured or the client cannot be created.
func remoteStore(cfg config.Client, userID string) docstore.Store {
	if cfg.RemoteURL == "" {
		return nil
	}

	token, err := auth.NewJWTManager(cfg.Secret, tokenDuration).Generate(userID)
	if err != nil {
		slog.Warn("Cannot sign remote token", "error", err)
		return nil
	}

	client, err := docstore.NewClient(&http.Client{}, cfg.RemoteURL,
		connect.WithInterceptors(middleware.BearerToken(token)))
	if err != nil {
		slog.Warn("Cannot create remote client", "url", cfg.RemoteURL, "error", err)
		return nil
	}
	return client
}

// close pushes pending changes, bounded by the remote timeout, and closes
// the local database.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
	defer cancel()

	syncErr := a.sync.Close(ctx)
	if syncErr != nil {
		slog.Warn("Some changes were not mirrored", "error", syncErr)
	}
	return a.local.Close()
}
