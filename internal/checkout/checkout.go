// Package checkout finishes a sale: the record is saved (remotely or into the
// offline queue) and the customer's bill is printed. Printing never blocks
// saving and a print failure never undoes a save.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcus/till/internal/escpos"
	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/offline"
)

var (
	ErrEmptyCart = errors.New("cart is empty")
	ErrNoPrinter = errors.New("no printer configured")
)

// Messages shown to the cashier after a checkout.
const (
	MsgPrintedOnline  = "Printed & Saved Successfully!"
	MsgPrintedOffline = "Printed & Saved Offline (Sync Pending)"
	MsgPrintFailed    = "Saved, but Print Failed"
	MsgSavedOnline    = "Saved Successfully!"
	MsgSavedOffline   = "Saved Offline (Sync Pending)"
	MsgKitchenPrinted = "KOT Printed"
)

// Saver stores a record, queueing it when the remote store is unreachable.
type Saver interface {
	SaveRecord(ctx context.Context, kind models.Kind, payload map[string]any) (*offline.SaveResult, error)
}

// Printer prints encoded jobs.
type Printer interface {
	PrintKitchenTicket(ctx context.Context, job models.PrintJob) error
	PrintCustomerBill(ctx context.Context, job models.PrintJob) error
}

// Order is what the cashier rang up.
type Order struct {
	Lines       []models.CartLine  `json:"items"`
	PaymentMode models.PaymentMode `json:"paymentMode"`
	Print       bool               `json:"print"`
}

// Result reports the save and the print separately.
type Result struct {
	Save       *offline.SaveResult `json:"save"`
	Total      float64             `json:"total"`
	Invoice    string              `json:"invoice"`
	Printed    bool                `json:"printed"`
	PrintError string              `json:"printError,omitempty"`
	Message    string              `json:"message"`
}

// Service runs checkouts for one shop.
type Service struct {
	saver   Saver
	printer Printer
	shop    models.ShopMeta
	now     func() time.Time
	log     *slog.Logger
}

// New creates a Service. printer may be nil when no printer is configured;
// bills then fail to print but sales are still saved.
func New(saver Saver, printer Printer, shop models.ShopMeta, now func() time.Time, log *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{saver: saver, printer: printer, shop: shop, now: now, log: log}
}

// Shop returns the bill header in use.
func (s *Service) Shop() models.ShopMeta { return s.shop }

// Normalize recomputes line totals from weight and price and validates each
// line.
func Normalize(lines []models.CartLine) ([]models.CartLine, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	out := make([]models.CartLine, 0, len(lines))
	for _, l := range lines {
		line := models.NewCartLine(l.Name, l.Weight, l.PricePerKg)
		if err := line.Validate(); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, nil
}

// Job builds the print job for lines at time at.
func (s *Service) Job(lines []models.CartLine, mode models.PaymentMode, at time.Time) models.PrintJob {
	return models.PrintJob{
		Lines:       lines,
		Total:       models.CartTotal(lines),
		PaymentMode: mode,
		Shop:        s.shop,
		At:          at,
	}
}

// Checkout saves the sale and, if asked, prints the bill. Only a failure to
// save (including an invalid cart) is returned as an error.
func (s *Service) Checkout(ctx context.Context, order Order) (*Result, error) {
	lines, err := Normalize(order.Lines)
	if err != nil {
		return nil, err
	}
	mode := order.PaymentMode
	if mode == "" {
		mode = models.PaymentCash
	}

	at := s.now()
	job := s.Job(lines, mode, at)
	payload, err := models.SalePayload(s.shop.UserID, lines, job.Total, mode, at)
	if err != nil {
		return nil, err
	}
	saved, err := s.saver.SaveRecord(ctx, models.KindSale, payload)
	if err != nil {
		return nil, fmt.Errorf("save sale: %w", err)
	}

	res := &Result{Save: saved, Total: job.Total, Invoice: escpos.InvoiceNumber(at)}
	if !order.Print {
		res.Message = MsgSavedOnline
		if saved.Queued() {
			res.Message = MsgSavedOffline
		}
		return res, nil
	}

	if err := s.printBill(ctx, job); err != nil {
		s.log.Warn("checkout: bill not printed", "invoice", res.Invoice, "err", err)
		res.PrintError = err.Error()
		res.Message = MsgPrintFailed
		return res, nil
	}
	res.Printed = true
	res.Message = MsgPrintedOnline
	if saved.Queued() {
		res.Message = MsgPrintedOffline
	}
	return res, nil
}

func (s *Service) printBill(ctx context.Context, job models.PrintJob) error {
	if s.printer == nil {
		return ErrNoPrinter
	}
	return s.printer.PrintCustomerBill(ctx, job)
}

// KitchenTicket prints the shop copy of the cart without saving anything.
func (s *Service) KitchenTicket(ctx context.Context, lines []models.CartLine) error {
	lines, err := Normalize(lines)
	if err != nil {
		return err
	}
	if s.printer == nil {
		return ErrNoPrinter
	}
	return s.printer.PrintKitchenTicket(ctx, s.Job(lines, "", s.now()))
}

// Bill reprints a customer bill without saving anything.
func (s *Service) Bill(ctx context.Context, lines []models.CartLine, mode models.PaymentMode) error {
	lines, err := Normalize(lines)
	if err != nil {
		return err
	}
	if mode == "" {
		mode = models.PaymentCash
	}
	return s.printBill(ctx, s.Job(lines, mode, s.now()))
}
