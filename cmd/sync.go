package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/offline"
	"github.com/marcus/till/internal/output"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Replay queued sales and purchases to the remote store",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusOnly, _ := cmd.Flags().GetBool("status")

		a, err := openApp()
		if err != nil {
			return fail(err)
		}
		defer a.Close()

		online := a.checkOnline(cmd.Context())
		if statusOnly {
			return printSyncStatus(a, online)
		}
		if a.client == nil {
			return fail(errRemoteNotConfigured)
		}

		report, err := a.queue.SyncOfflineData(cmd.Context())
		if err != nil {
			if errors.Is(err, offline.ErrSyncInProgress) {
				output.Warning("a sync is already running")
				return nil
			}
			return fail(fmt.Errorf("sync: %w", err))
		}

		if jsonOut {
			return output.JSON(report)
		}
		if report.Skipped {
			output.Warning("Offline: nothing synced")
			return nil
		}
		printSyncReport(report)
		return nil
	},
}

func printSyncReport(r *offline.SyncReport) {
	printed := false
	for _, kind := range models.Kinds() {
		synced, retained, dead := r.Synced[kind], r.Retained[kind], r.DeadLettered[kind]
		if synced+retained+dead == 0 {
			continue
		}
		line := fmt.Sprintf("%s: %d synced", kind, synced)
		if retained > 0 {
			line += fmt.Sprintf(", %d still pending", retained)
		}
		if dead > 0 {
			line += fmt.Sprintf(", %d moved to dead letters", dead)
		}
		if retained+dead > 0 {
			output.Warning("%s", line)
		} else {
			output.Success("%s", line)
		}
		printed = true
	}
	if !printed {
		output.Info("Nothing to sync")
	}
}

func printSyncStatus(a *app, online bool) error {
	counts, err := a.queue.Counts()
	if err != nil {
		return fail(err)
	}
	if jsonOut {
		return output.JSON(map[string]any{"online": online, "pending": counts})
	}
	state := "offline"
	if online {
		state = "online"
	}
	output.Info("Remote: %s", state)
	output.Info("Queue: %s", output.QueueSummary(counts))
	return nil
}

func init() {
	syncCmd.Flags().Bool("status", false, "show connectivity and queue sizes without syncing")
	rootCmd.AddCommand(syncCmd)
}
