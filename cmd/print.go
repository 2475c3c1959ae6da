package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/till/internal/checkout"
	"github.com/marcus/till/internal/escpos"
	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/output"
)

var printCmd = &cobra.Command{
	Use:     "print",
	Short:   "Print or preview bills and kitchen tickets without saving",
	GroupID: "print",
}

// cartFromFlags reads --item and --mode.
func cartFromFlags(cmd *cobra.Command) ([]models.CartLine, models.PaymentMode, error) {
	items, _ := cmd.Flags().GetStringArray("item")
	lines, err := parseItems(items)
	if err != nil {
		return nil, "", err
	}
	lines, err = checkout.Normalize(lines)
	if err != nil {
		return nil, "", err
	}
	modeStr, _ := cmd.Flags().GetString("mode")
	mode, err := models.ParsePaymentMode(modeStr)
	if err != nil {
		return nil, "", err
	}
	return lines, mode, nil
}

var printPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render a bill or kitchen ticket as plain text",
	RunE: func(cmd *cobra.Command, args []string) error {
		lines, mode, err := cartFromFlags(cmd)
		if err != nil {
			return fail(err)
		}
		kot, _ := cmd.Flags().GetBool("kot")
		raw, _ := cmd.Flags().GetBool("raw")

		job := models.PrintJob{
			Lines:       lines,
			Total:       models.CartTotal(lines),
			PaymentMode: mode,
			Shop:        appConfig.Shop,
			At:          time.Now(),
		}
		b := escpos.CustomerBill(job)
		if kot {
			b = escpos.KitchenTicket(job)
		}
		if raw {
			fmt.Printf("%q\n", b.String())
			return nil
		}
		fmt.Print(b.Preview())
		return nil
	},
}

var printKOTCmd = &cobra.Command{
	Use:   "kot",
	Short: "Print a kitchen ticket (shop copy, no prices)",
	RunE: func(cmd *cobra.Command, args []string) error {
		lines, _, err := cartFromFlags(cmd)
		if err != nil {
			return fail(err)
		}
		a, err := openApp()
		if err != nil {
			return fail(err)
		}
		defer a.Close()

		if err := a.printer.Connect(cmd.Context()); err != nil {
			return fail(fmt.Errorf("printer: %w", err))
		}
		if err := a.checkout.KitchenTicket(cmd.Context(), lines); err != nil {
			return fail(fmt.Errorf("Print Failed: %w", err))
		}
		output.Success("%s", checkout.MsgKitchenPrinted)
		return nil
	},
}

var printBillCmd = &cobra.Command{
	Use:   "bill",
	Short: "Reprint a customer bill without recording a sale",
	RunE: func(cmd *cobra.Command, args []string) error {
		lines, mode, err := cartFromFlags(cmd)
		if err != nil {
			return fail(err)
		}
		a, err := openApp()
		if err != nil {
			return fail(err)
		}
		defer a.Close()

		if err := a.printer.Connect(cmd.Context()); err != nil {
			return fail(fmt.Errorf("printer: %w", err))
		}
		if err := a.checkout.Bill(cmd.Context(), lines, mode); err != nil {
			return fail(fmt.Errorf("Print Failed: %w", err))
		}
		output.Success("Bill printed")
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{printPreviewCmd, printKOTCmd, printBillCmd} {
		c.Flags().StringArrayP("item", "i", nil, "item as Name:weight:pricePerKg (repeatable)")
		c.Flags().String("mode", "cash", "payment mode (cash, online)")
		_ = c.MarkFlagRequired("item")
	}
	printPreviewCmd.Flags().Bool("kot", false, "preview the kitchen ticket instead of the bill")
	printPreviewCmd.Flags().Bool("raw", false, "show the encoded bytes, control codes escaped")

	printCmd.AddCommand(printPreviewCmd, printKOTCmd, printBillCmd)
	rootCmd.AddCommand(printCmd)
}
