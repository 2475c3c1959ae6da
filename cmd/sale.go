package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/marcus/till/internal/checkout"
	"github.com/marcus/till/internal/escpos"
	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/output"
)

var saleCmd = &cobra.Command{
	Use:     "sale",
	Short:   "Ring up sales",
	GroupID: "shop",
}

var saleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a sale from --item flags",
	Long: `Records a sale. Each --item is Name:weight:pricePerKg, e.g.
  till sale add --item "Chicken:1.5:200" --item "Mutton:0.5:700" --mode cash --print

When the remote store is unreachable the sale is queued and synced later.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		items, _ := cmd.Flags().GetStringArray("item")
		lines, err := parseItems(items)
		if err != nil {
			return fail(err)
		}
		return runCheckout(cmd, lines)
	},
}

var saleNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Ring up a sale interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !output.IsTerminal() {
			err := errors.New("sale new needs a terminal; use sale add --item instead")
			return fail(err)
		}
		cart, err := promptCart()
		if err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				output.Warning("sale cancelled")
				return nil
			}
			return fail(err)
		}
		if err := cmd.Flags().Set("mode", cart.mode); err != nil {
			return err
		}
		if err := cmd.Flags().Set("print", strconv.FormatBool(cart.print)); err != nil {
			return err
		}
		return runCheckout(cmd, cart.lines)
	},
}

func runCheckout(cmd *cobra.Command, lines []models.CartLine) error {
	modeStr, _ := cmd.Flags().GetString("mode")
	mode, err := models.ParsePaymentMode(modeStr)
	if err != nil {
		return fail(err)
	}
	printBill, _ := cmd.Flags().GetBool("print")
	kot, _ := cmd.Flags().GetBool("kot")

	a, err := openApp()
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	ctx := cmd.Context()
	a.checkOnline(ctx)
	if printBill || kot {
		if err := a.printer.Connect(ctx); err != nil {
			output.Warning("printer: %v", err)
		}
	}

	if kot {
		if err := a.checkout.KitchenTicket(ctx, lines); err != nil {
			output.Warning("kitchen ticket not printed: %v", err)
		} else if !jsonOut {
			output.Success("%s", checkout.MsgKitchenPrinted)
		}
	}

	res, err := a.checkout.Checkout(ctx, checkout.Order{Lines: lines, PaymentMode: mode, Print: printBill})
	if err != nil {
		return fail(fmt.Errorf("save failed: %w", err))
	}

	if jsonOut {
		return output.JSON(res)
	}
	switch {
	case res.PrintError != "":
		output.Warning("%s (%s)", res.Message, res.PrintError)
	case res.Save.Queued():
		output.Warning("%s", res.Message)
	default:
		output.Success("%s", res.Message)
	}
	fmt.Printf("%s  %s  %s\n", res.Invoice, output.FormatMoney(res.Total), output.FormatSaleShort(res.Save.Record))
	return nil
}

type cartForm struct {
	lines []models.CartLine
	mode  string
	print bool
}

// promptCart asks for items until the cashier stops adding, then for the
// payment mode.
func promptCart() (*cartForm, error) {
	cart := &cartForm{mode: string(models.PaymentCash), print: true}
	for {
		var name, weight, price string
		more := false
		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Item").
				Value(&name).
				Placeholder("Chicken").
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("item name is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Weight (kg)").
				Value(&weight).
				Validate(positiveNumber),
			huh.NewInput().
				Title("Price per kg").
				Value(&price).
				Validate(positiveNumber),
			huh.NewConfirm().
				Title("Add another item?").
				Value(&more),
		).Title(fmt.Sprintf("Item %d", len(cart.lines)+1)))
		if err := form.Run(); err != nil {
			return nil, err
		}
		w, _ := strconv.ParseFloat(weight, 64)
		p, _ := strconv.ParseFloat(price, 64)
		cart.lines = append(cart.lines, models.NewCartLine(strings.TrimSpace(name), w, p))
		if !more {
			break
		}
	}

	total := models.CartTotal(cart.lines)
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Payment").
			Description("Total " + escpos.Money(total)).
			Options(
				huh.NewOption("Cash", string(models.PaymentCash)),
				huh.NewOption("Online", string(models.PaymentOnline)),
			).
			Value(&cart.mode),
		huh.NewConfirm().
			Title("Print bill?").
			Value(&cart.print),
	))
	if err := form.Run(); err != nil {
		return nil, err
	}
	return cart, nil
}

func positiveNumber(s string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 {
		return errors.New("enter a positive number")
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{saleAddCmd, saleNewCmd} {
		c.Flags().String("mode", "cash", "payment mode (cash, online)")
		c.Flags().Bool("print", false, "print the customer bill")
		c.Flags().Bool("kot", false, "print a kitchen ticket first")
	}
	saleAddCmd.Flags().StringArrayP("item", "i", nil, "item as Name:weight:pricePerKg (repeatable)")
	_ = saleAddCmd.MarkFlagRequired("item")

	saleCmd.AddCommand(saleAddCmd, saleNewCmd)
	rootCmd.AddCommand(saleCmd)
}
