package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/offline"
	"github.com/marcus/till/internal/output"
)

var historyCmd = &cobra.Command{
	Use:     "history <sales|purchases>",
	Aliases: []string{"hist"},
	Short:   "Show sales or purchases, pending ones included",
	GroupID: "shop",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := models.ParseKind(args[0])
		if err != nil {
			return fail(err)
		}
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := openApp()
		if err != nil {
			return fail(err)
		}
		defer a.Close()

		a.checkOnline(cmd.Context())
		h, err := a.queue.FetchHistory(cmd.Context(), a.lister(), kind, a.cfg.Shop.UserID)
		if err != nil {
			return fail(err)
		}
		if jsonOut {
			return output.JSON(h)
		}

		if !h.Remote {
			output.Warning("showing queued records only (remote store unreachable)")
		}
		recs := sortByDate(h.Records, offline.DateField(kind))
		if limit > 0 && len(recs) > limit {
			recs = recs[:limit]
		}
		if len(recs) == 0 {
			output.Info("No %ss yet", kind)
			return nil
		}
		var total float64
		for _, r := range recs {
			fmt.Println(output.FormatRecordShort(kind, r))
			total += recordAmount(kind, r)
		}
		fmt.Printf("\n%d %s(s), %s\n", len(recs), kind, output.FormatMoney(total))
		return nil
	},
}

// sortByDate orders records newest first by the date attribute, falling
// back to the creation time.
func sortByDate(recs []models.Record, field string) []models.Record {
	out := append([]models.Record(nil), recs...)
	at := func(r models.Record) string {
		if s, ok := r.Data[field].(string); ok && s != "" {
			return s
		}
		return r.CreatedAt.UTC().Format(models.ISOTime)
	}
	sort.SliceStable(out, func(i, j int) bool { return at(out[i]) > at(out[j]) })
	return out
}

func recordAmount(kind models.Kind, r models.Record) float64 {
	key := "totalAmount"
	if kind == models.KindPurchase {
		key = "totalCost"
		if _, ok := r.Data[key]; !ok {
			key = "amount"
		}
	}
	v, _ := r.Data[key].(float64)
	return v
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 50, "show at most this many records (0 for all)")
	rootCmd.AddCommand(historyCmd)
}
