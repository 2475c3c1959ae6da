package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/output"
)

var purchaseCmd = &cobra.Command{
	Use:     "purchase",
	Aliases: []string{"stock"},
	Short:   "Record stock purchases and expenses",
	GroupID: "shop",
}

var purchaseAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a stock purchase, salary or expense",
	Example: `  till purchase add --product "Whole Chicken" --weight 20 --cost-per-kg 180
  till purchase add --type salary --amount 12000 --note "March wages"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := models.Purchase{Date: time.Now()}
		p.Type, _ = cmd.Flags().GetString("type")
		p.ProductName, _ = cmd.Flags().GetString("product")
		p.Weight, _ = cmd.Flags().GetFloat64("weight")
		p.CostPerKg, _ = cmd.Flags().GetFloat64("cost-per-kg")
		p.TotalCost, _ = cmd.Flags().GetFloat64("total")
		p.Amount, _ = cmd.Flags().GetFloat64("amount")
		p.Note, _ = cmd.Flags().GetString("note")
		if err := p.Validate(); err != nil {
			return fail(err)
		}

		a, err := openApp()
		if err != nil {
			return fail(err)
		}
		defer a.Close()
		p.UserID = a.cfg.Shop.UserID

		a.checkOnline(cmd.Context())
		res, err := a.queue.SaveRecord(cmd.Context(), models.KindPurchase, p.Payload())
		if err != nil {
			return fail(fmt.Errorf("save failed: %w", err))
		}
		if jsonOut {
			return output.JSON(res)
		}
		if res.Queued() {
			output.Warning("Saved Offline (Sync Pending)")
		} else {
			output.Success("Saved")
		}
		fmt.Println(output.FormatPurchaseShort(res.Record))
		return nil
	},
}

// requireRemote returns an app that can reach the remote store, for
// operations that are never queued.
func requireRemote(cmd *cobra.Command) (*app, error) {
	a, err := openApp()
	if err != nil {
		return nil, err
	}
	if a.client == nil {
		a.Close()
		return nil, errRemoteNotConfigured
	}
	if !a.checkOnline(cmd.Context()) {
		a.Close()
		return nil, errRemoteUnreachable
	}
	return a, nil
}

var purchaseUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change fields of a synced purchase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		if models.IsLocalID(id) {
			err := fmt.Errorf("%s is still queued; sync it before editing", id)
			return fail(err)
		}
		fields, _ := cmd.Flags().GetStringArray("field")
		patch, err := parseFields(fields)
		if err != nil {
			return fail(err)
		}
		if len(patch) == 0 {
			err := errors.New("nothing to update (use --field key=value)")
			return fail(err)
		}

		a, err := requireRemote(cmd)
		if err != nil {
			return fail(err)
		}
		defer a.Close()

		doc, err := a.client.UpdateDocument(cmd.Context(), a.cfg.Remote.PurchasesCollection, id, patch)
		if err != nil {
			return fail(fmt.Errorf("update %s: %w", id, err))
		}
		if jsonOut {
			return output.JSON(doc.Record())
		}
		output.Success("Updated %s", id)
		fmt.Println(output.FormatPurchaseShort(doc.Record()))
		return nil
	},
}

var purchaseDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a synced purchase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		if models.IsLocalID(id) {
			err := fmt.Errorf("%s is still queued; use `till queue clear purchases` to drop queued records", id)
			return fail(err)
		}

		a, err := requireRemote(cmd)
		if err != nil {
			return fail(err)
		}
		defer a.Close()

		if err := a.client.DeleteDocument(cmd.Context(), a.cfg.Remote.PurchasesCollection, id); err != nil {
			return fail(fmt.Errorf("delete %s: %w", id, err))
		}
		output.Success("Deleted %s", id)
		return nil
	},
}

func init() {
	purchaseAddCmd.Flags().StringP("type", "t", models.PurchaseStock, "stock, salary or expense")
	purchaseAddCmd.Flags().StringP("product", "p", "", "product bought (stock)")
	purchaseAddCmd.Flags().Float64P("weight", "w", 0, "weight in kg (stock)")
	purchaseAddCmd.Flags().Float64("cost-per-kg", 0, "cost per kg (stock)")
	purchaseAddCmd.Flags().Float64("total", 0, "total cost; defaults to weight x cost per kg")
	purchaseAddCmd.Flags().Float64P("amount", "a", 0, "amount paid (salary, expense)")
	purchaseAddCmd.Flags().StringP("note", "n", "", "free-text note")

	purchaseUpdateCmd.Flags().StringArrayP("field", "f", nil, "field to set as key=value (repeatable)")

	purchaseCmd.AddCommand(purchaseAddCmd, purchaseUpdateCmd, purchaseDeleteCmd)
	rootCmd.AddCommand(purchaseCmd)
}
