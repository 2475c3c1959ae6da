package escpos

import (
	"strconv"
	"strings"
	"time"

	"github.com/marcus/till/internal/models"
)

// DefaultShopName heads bills when the shop has not set a name.
const DefaultShopName = "MEAT SHOP"

// Date and time shapes printed on tickets (day/month order, 12-hour clock).
const (
	DateLayout     = "2/1/2006"
	TimeLayout     = "3:04:05 pm"
	DateTimeLayout = DateLayout + ", " + TimeLayout
)

// KitchenTicket encodes the shop copy handed to the cutter: item names and
// weights, no prices.
func KitchenTicket(job models.PrintJob) *Builder {
	b := NewBuilder().Init().Align(Center).Bold(true).Line("KOT (SHOP COPY)").Bold(false)
	b.Divider()
	b.Align(Left).Line("Date: " + job.At.Format(DateTimeLayout))
	b.Divider()

	for _, item := range job.Lines {
		b.BoldLine(item.Name)
		b.Align(Right).Text("Qty: " + Number(item.Weight) + "kg").Align(Left).Text("\n")
		b.LightDivider()
	}

	b.Text("\n").Align(Center).Line("Internal Use Only")
	return b.Feed(2).Cut()
}

// CustomerBill encodes the customer's receipt.
func CustomerBill(job models.PrintJob) *Builder {
	b := NewBuilder().Init().Align(Center)

	name := job.Shop.Name
	if strings.TrimSpace(name) == "" {
		name = DefaultShopName
	}
	b.Bold(true).Line(name).Bold(false)
	if job.Shop.Address != "" {
		b.Line(job.Shop.Address)
	}
	if job.Shop.Phone != "" {
		b.Line("Mob: " + job.Shop.Phone)
	}
	if job.Shop.Email != "" {
		b.Line("Email: " + job.Shop.Email)
	}
	b.Divider()

	b.Align(Left)
	b.Pair("Inv No:", InvoiceNumber(job.At))
	b.Pair("Date:", job.At.Format(DateLayout))
	b.Pair("Time:", job.At.Format(TimeLayout))
	b.Pair("Mode:", strings.ToUpper(string(job.PaymentMode)))
	b.Divider()

	b.BoldLine("ITEM DETAILS")
	b.Divider()
	for _, item := range job.Lines {
		b.Align(Left).BoldLine(item.Name)
		b.Pair(Number(item.Weight)+"kg x "+Number(item.PricePerKg), Money(item.TotalPrice))
	}
	b.Divider()

	b.Bold(true).Pair("TOTAL AMOUNT:", "Rs. "+Number(job.Total)).Bold(false)
	b.Divider()

	b.Align(Center)
	b.Line("Thank You for Visiting!")
	b.Line("Have a Nice Day")
	b.Text("\n\n")
	return b.Feed(2).Cut()
}

// InvoiceNumber derives a short bill number from the last six digits of the
// Unix time in seconds.
func InvoiceNumber(t time.Time) string {
	s := strconv.FormatInt(t.Unix(), 10)
	if len(s) > 6 {
		s = s[len(s)-6:]
	}
	return "INV-" + s
}

// Number formats v with the fewest digits that round-trip (1.5, 200, 0.25).
func Number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Money formats v with two decimals.
func Money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
