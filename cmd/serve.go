package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/till/internal/api"
	"github.com/marcus/till/internal/output"
	"github.com/marcus/till/internal/remote"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the local API with background sync",
	Long:    `Runs the HTTP API for the shop's web UI, watches connectivity, syncs queued records whenever the remote store comes back and logs remote changes.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return fail(err)
		}
		defer a.Close()

		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			a.cfg.API.Listen = listen
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if a.watcher != nil {
			if !a.cfg.Sync.OnStart {
				// The first successful check is a transition; take it before
				// subscribing so it does not trigger a sync.
				a.watcher.CheckNow(ctx)
			}
			stopSync := a.queue.WatchConnectivity(ctx)
			defer stopSync()
			go a.watcher.Run(ctx)
			go watchRemote(ctx, a)
		} else {
			a.log.Warn("serve: remote store not configured, running offline")
		}

		if a.cfg.Printers()[a.cfg.Printer.Name] != "" {
			if err := a.printer.Connect(ctx); err != nil {
				a.log.Warn("serve: printer not connected", "err", err)
			}
		}

		srv, err := api.NewServer(api.Config{
			ListenAddr:  a.cfg.API.Listen,
			CORSOrigins: a.cfg.API.CORSOrigins,
		}, api.Deps{
			Queue:    a.queue,
			Checkout: a.checkout,
			Probe:    a.probe,
			Remote:   a.lister(),
			Printer:  a.printer,
			Shop:     a.cfg.Shop,
			Logger:   a.log,
		})
		if err != nil {
			return fail(err)
		}
		if err := srv.Start(); err != nil {
			return fail(err)
		}
		output.Success("Listening on http://%s", srv.Addr())

		<-ctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "err", err)
		}
		return nil
	},
}

// watchRemote logs change events on the sales and purchases collections,
// reconnecting with backoff until ctx is done.
func watchRemote(ctx context.Context, a *app) {
	channels := []string{
		remote.DocumentsChannel(a.cfg.Remote.Database, a.cfg.Remote.SalesCollection),
		remote.DocumentsChannel(a.cfg.Remote.Database, a.cfg.Remote.PurchasesCollection),
	}
	backoff := minBackoff
	for {
		start := time.Now()
		err := a.client.Subscribe(ctx, channels, func(ev remote.Event) {
			action := "changed"
			switch {
			case ev.IsUpdate():
				action = "updated"
			case ev.IsCreate():
				action = "created"
			case ev.IsDelete():
				action = "deleted"
			}
			a.log.Info("realtime: document "+action, "id", ev.Payload.ID, "collection", ev.Payload.CollectionID)
		})
		if ctx.Err() != nil {
			return
		}
		wait := retryDelay(backoff, time.Since(start))
		a.log.Debug("realtime: disconnected", "err", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		backoff = min(wait*2, maxBackoff)
	}
}

const (
	minBackoff = time.Second
	maxBackoff = time.Minute
)

// retryDelay returns the wait before resubscribing. A session that stayed
// up longer than backoff was healthy, so the wait starts over at minBackoff.
func retryDelay(backoff, ran time.Duration) time.Duration {
	if ran > backoff {
		return minBackoff
	}
	return backoff
}

func init() {
	serveCmd.Flags().String("listen", "", "address to listen on (overrides api.listen)")
	rootCmd.AddCommand(serveCmd)
}
