package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/till/internal/escpos"
	"github.com/marcus/till/internal/output"
)

var printerCmd = &cobra.Command{
	Use:     "printer",
	Short:   "Receipt printer connection",
	GroupID: "print",
}

var printerCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Connect to the configured printer and report what was found",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return fail(err)
		}
		defer a.Close()

		if a.cfg.Printer.Addr == "" {
			output.Warning("printer.addr is not set; run: till config set printer.addr /dev/rfcomm0")
		}
		if err := a.printer.Connect(cmd.Context()); err != nil {
			return fail(err)
		}
		output.Success("Connected to %s", a.printer.DeviceName())

		if test, _ := cmd.Flags().GetBool("test"); test {
			page := escpos.NewBuilder().
				Init().
				Align(escpos.Center).
				BoldLine("PRINTER TEST").
				Line(a.printer.DeviceName()).
				Divider().
				Feed(3).
				Cut()
			if err := a.printer.Send(cmd.Context(), page.Bytes()); err != nil {
				return fail(fmt.Errorf("test page: %w", err))
			}
			fmt.Println("Test page sent")
		}
		return nil
	},
}

func init() {
	printerCheckCmd.Flags().Bool("test", false, "print a short test page")
	printerCmd.AddCommand(printerCheckCmd)
	rootCmd.AddCommand(printerCmd)
}
