package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcus/till/internal/checkout"
	"github.com/marcus/till/internal/config"
	"github.com/marcus/till/internal/connectivity"
	"github.com/marcus/till/internal/kvstore"
	"github.com/marcus/till/internal/offline"
	"github.com/marcus/till/internal/printer"
	"github.com/marcus/till/internal/remote"
)

// errRemoteNotConfigured is returned by commands that need the remote store.
var errRemoteNotConfigured = errors.New("remote store not configured (set remote.endpoint, remote.project and remote.database)")

// errRemoteUnreachable is returned by online-only commands when the health
// check fails.
var errRemoteUnreachable = errors.New("remote store unreachable; updates and deletes are not queued, try again when online")

// app is every component a command may need, built from one config.
type app struct {
	cfg      *config.Config
	store    *kvstore.Store
	client   *remote.Client // nil when the remote store is not configured
	watcher  *connectivity.Watcher
	probe    connectivity.Probe
	queue    *offline.Manager
	printer  *printer.Manager
	checkout *checkout.Service
	log      *slog.Logger
}

// newApp opens the local queue and wires the remote client, the
// connectivity probe, the offline manager and the printer.
func newApp(cfg *config.Config) (*app, error) {
	store, err := kvstore.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	a := &app{cfg: cfg, store: store, log: slog.Default()}

	var creator offline.Creator
	if cfg.RemoteConfigured() {
		a.client = remote.New(remote.Config{
			Endpoint: cfg.Remote.Endpoint,
			Project:  cfg.Remote.Project,
			APIKey:   cfg.Remote.APIKey,
			Database: cfg.Remote.Database,
			Session:  cfg.Remote.Session,
			Timeout:  cfg.Remote.Timeout,
		})
		creator = a.client
		a.watcher = connectivity.NewWatcher(a.client.Health, cfg.Connectivity.Interval, a.log)
		a.probe = a.watcher
	} else {
		a.probe = connectivity.NewStatic(false)
	}

	var perms []string
	if cfg.Shop.UserID != "" {
		perms = remote.OwnerPermissions(cfg.Shop.UserID)
	}
	a.queue = offline.New(store, creator, a.probe, offline.Options{
		Collections: cfg.Collections(),
		Permissions: perms,
		MaxAttempts: cfg.Sync.MaxAttempts,
		Logger:      a.log,
	})

	a.printer = printer.NewManager(
		printer.NewStreamTransport(cfg.Printers(), cfg.Printer.DialTimeout),
		printer.Options{
			Name:       cfg.Printer.Name,
			Services:   cfg.Printer.Services,
			ChunkSize:  cfg.Printer.ChunkSize,
			ChunkDelay: cfg.Printer.ChunkDelay,
			Logger:     a.log,
		},
	)
	a.checkout = checkout.New(a.queue, a.printer, cfg.Shop, time.Now, a.log)
	return a, nil
}

// Close releases the queue store and the printer connection.
func (a *app) Close() error {
	_ = a.printer.Disconnect()
	return a.store.Close()
}

// checkOnline runs one connectivity check so a short-lived command sees the
// current state. Without a remote store it is always offline.
func (a *app) checkOnline(ctx context.Context) bool {
	if a.watcher == nil {
		return false
	}
	return a.watcher.CheckNow(ctx)
}

// lister returns the remote client as a history source, or nil.
func (a *app) lister() offline.Lister {
	if a.client == nil {
		return nil
	}
	return a.client
}

// openApp builds the app from the loaded config.
func openApp() (*app, error) {
	if appConfig == nil {
		return nil, errors.New("config not loaded")
	}
	return newApp(appConfig)
}
