package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/output"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	Short:   "Inspect and manage records waiting for sync",
	GroupID: "sync",
}

// kindsFromArgs returns the kind named by args[0], or every kind.
func kindsFromArgs(args []string) ([]models.Kind, error) {
	if len(args) == 0 {
		return models.Kinds(), nil
	}
	k, err := models.ParseKind(args[0])
	if err != nil {
		return nil, err
	}
	return []models.Kind{k}, nil
}

func listQueue(cmd *cobra.Command, args []string, dead bool) error {
	kinds, err := kindsFromArgs(args)
	if err != nil {
		return fail(err)
	}
	a, err := openApp()
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	all := make(map[models.Kind][]models.PendingRecord, len(kinds))
	total := 0
	for _, k := range kinds {
		var recs []models.PendingRecord
		if dead {
			recs, err = a.queue.DeadLetters(k)
		} else {
			recs, err = a.queue.Pending(k)
		}
		if err != nil {
			return fail(err)
		}
		all[k] = recs
		total += len(recs)
	}

	if jsonOut {
		return output.JSON(all)
	}
	if total == 0 {
		if dead {
			output.Info("No dead letters")
		} else {
			output.Info("Nothing pending")
		}
		return nil
	}
	title := "pending %s"
	if dead {
		title = "dead %s"
	}
	for _, k := range kinds {
		if len(all[k]) == 0 {
			continue
		}
		fmt.Print(output.SectionHeader(fmt.Sprintf(title, k)))
		for _, p := range all[k] {
			fmt.Print(output.IndentString(output.FormatPendingLong(p), 2))
		}
	}
	return nil
}

var queueListCmd = &cobra.Command{
	Use:     "list [sales|purchases]",
	Aliases: []string{"ls"},
	Short:   "List queued records",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listQueue(cmd, args, false)
	},
}

var queueDeadCmd = &cobra.Command{
	Use:   "dead [sales|purchases]",
	Short: "List records that exhausted their sync attempts",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listQueue(cmd, args, true)
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear <sales|purchases>",
	Short: "Drop every queued record of a kind without syncing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := models.ParseKind(args[0])
		if err != nil {
			return fail(err)
		}
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			err := fmt.Errorf("refusing to drop queued %ss without --yes", kind)
			return fail(err)
		}
		a, err := openApp()
		if err != nil {
			return fail(err)
		}
		defer a.Close()

		n, err := a.queue.Clear(kind)
		if err != nil {
			return fail(err)
		}
		output.Success("Dropped %d queued %s record(s)", n, kind)
		return nil
	},
}

var queueRequeueCmd = &cobra.Command{
	Use:   "requeue <sales|purchases>",
	Short: "Move dead letters back into the sync queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := models.ParseKind(args[0])
		if err != nil {
			return fail(err)
		}
		a, err := openApp()
		if err != nil {
			return fail(err)
		}
		defer a.Close()

		n, err := a.queue.Requeue(kind)
		if err != nil {
			return fail(err)
		}
		output.Success("Requeued %d %s record(s)", n, kind)
		return nil
	},
}

func init() {
	queueClearCmd.Flags().BoolP("yes", "y", false, "confirm dropping unsynced records")
	queueCmd.AddCommand(queueListCmd, queueDeadCmd, queueClearCmd, queueRequeueCmd)
	rootCmd.AddCommand(queueCmd)
}
