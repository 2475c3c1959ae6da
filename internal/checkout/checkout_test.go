package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/offline"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var fixedNow = time.Date(2024, 3, 1, 14, 5, 9, 0, time.UTC)

type fakeSaver struct {
	mode    offline.Mode
	err     error
	kind    models.Kind
	payload map[string]any
}

func (f *fakeSaver) SaveRecord(_ context.Context, kind models.Kind, payload map[string]any) (*offline.SaveResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.kind, f.payload = kind, payload
	id := "doc1"
	if f.mode == offline.ModeOffline {
		id = models.LocalIDPrefix + "1"
	}
	return &offline.SaveResult{Mode: f.mode, Record: models.Record{ID: id, Data: payload, Pending: f.mode == offline.ModeOffline}}, nil
}

type fakePrinter struct {
	err   error
	bills []models.PrintJob
	kots  []models.PrintJob
}

func (f *fakePrinter) PrintKitchenTicket(_ context.Context, job models.PrintJob) error {
	if f.err != nil {
		return f.err
	}
	f.kots = append(f.kots, job)
	return nil
}

func (f *fakePrinter) PrintCustomerBill(_ context.Context, job models.PrintJob) error {
	if f.err != nil {
		return f.err
	}
	f.bills = append(f.bills, job)
	return nil
}

func newService(s Saver, p Printer) *Service {
	return New(s, p, models.ShopMeta{Name: "Fresh Cuts", UserID: "u1"}, func() time.Time { return fixedNow }, quiet)
}

var cart = []models.CartLine{
	{Name: "Chicken", Weight: 1.5, PricePerKg: 200},
	{Name: "Mutton", Weight: 0.5, PricePerKg: 700},
}

func TestCheckout_Messages(t *testing.T) {
	tests := []struct {
		name     string
		mode     offline.Mode
		print    bool
		printErr error
		want     string
		printed  bool
	}{
		{"online printed", offline.ModeOnline, true, nil, MsgPrintedOnline, true},
		{"offline printed", offline.ModeOffline, true, nil, MsgPrintedOffline, true},
		{"print failed", offline.ModeOffline, true, errors.New("paper out"), MsgPrintFailed, false},
		{"online no print", offline.ModeOnline, false, nil, MsgSavedOnline, false},
		{"offline no print", offline.ModeOffline, false, nil, MsgSavedOffline, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saver := &fakeSaver{mode: tt.mode}
			printer := &fakePrinter{err: tt.printErr}
			res, err := newService(saver, printer).Checkout(context.Background(), Order{Lines: cart, Print: tt.print})
			if err != nil {
				t.Fatalf("checkout: %v", err)
			}
			if res.Message != tt.want {
				t.Errorf("message: got %q, want %q", res.Message, tt.want)
			}
			if res.Printed != tt.printed {
				t.Errorf("printed: got %v, want %v", res.Printed, tt.printed)
			}
			if tt.printErr != nil && res.PrintError == "" {
				t.Error("print error not reported")
			}
		})
	}
}

func TestCheckout_Payload(t *testing.T) {
	saver := &fakeSaver{mode: offline.ModeOnline}
	printer := &fakePrinter{}
	res, err := newService(saver, printer).Checkout(context.Background(), Order{
		Lines:       cart,
		PaymentMode: models.PaymentOnline,
		Print:       true,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if saver.kind != models.KindSale {
		t.Errorf("kind: got %v, want sale", saver.kind)
	}
	if got := saver.payload["totalAmount"]; got != 650.0 {
		t.Errorf("totalAmount: got %v, want 650", got)
	}
	if got := saver.payload["paymentMode"]; got != "online" {
		t.Errorf("paymentMode: got %v", got)
	}
	if got := saver.payload["userId"]; got != "u1" {
		t.Errorf("userId: got %v", got)
	}
	if got := saver.payload["saleDate"]; got != "2024-03-01T14:05:09.000Z" {
		t.Errorf("saleDate: got %v", got)
	}
	var items []models.CartLine
	if err := json.Unmarshal([]byte(saver.payload["items"].(string)), &items); err != nil {
		t.Fatalf("items: %v", err)
	}
	if len(items) != 2 || items[0].TotalPrice != 300 || items[1].TotalPrice != 350 {
		t.Errorf("items: got %+v", items)
	}

	if res.Total != 650 {
		t.Errorf("total: got %v, want 650", res.Total)
	}
	if res.Invoice != "INV-301909" {
		t.Errorf("invoice: got %q", res.Invoice)
	}
	if len(printer.bills) != 1 || printer.bills[0].Shop.Name != "Fresh Cuts" {
		t.Errorf("bill job: got %+v", printer.bills)
	}
}

func TestCheckout_RecomputesClientTotals(t *testing.T) {
	saver := &fakeSaver{mode: offline.ModeOnline}
	lines := []models.CartLine{{Name: "Liver", Weight: 0.25, PricePerKg: 300, TotalPrice: 9999}}
	res, err := newService(saver, nil).Checkout(context.Background(), Order{Lines: lines})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if res.Total != 75 {
		t.Errorf("total: got %v, want 75", res.Total)
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	saver := &fakeSaver{}
	_, err := newService(saver, nil).Checkout(context.Background(), Order{})
	if !errors.Is(err, ErrEmptyCart) {
		t.Errorf("got %v, want ErrEmptyCart", err)
	}
	if saver.payload != nil {
		t.Error("empty cart was saved")
	}
}

func TestCheckout_InvalidLine(t *testing.T) {
	saver := &fakeSaver{}
	_, err := newService(saver, nil).Checkout(context.Background(), Order{
		Lines: []models.CartLine{{Name: "Chicken", Weight: 0, PricePerKg: 200}},
	})
	if err == nil {
		t.Fatal("expected error for zero weight")
	}
	if saver.payload != nil {
		t.Error("invalid cart was saved")
	}
}

func TestCheckout_SaveFailure(t *testing.T) {
	storageErr := &offline.StorageError{Key: "offline_sales_queue", Err: errors.New("disk full")}
	saver := &fakeSaver{err: storageErr}
	printer := &fakePrinter{}
	_, err := newService(saver, printer).Checkout(context.Background(), Order{Lines: cart, Print: true})
	var se *offline.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("got %v, want *StorageError", err)
	}
	if len(printer.bills) != 0 {
		t.Error("bill printed for an unsaved sale")
	}
}

func TestCheckout_NoPrinter(t *testing.T) {
	saver := &fakeSaver{mode: offline.ModeOnline}
	res, err := newService(saver, nil).Checkout(context.Background(), Order{Lines: cart, Print: true})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if res.Printed || res.Message != MsgPrintFailed {
		t.Errorf("got printed=%v message=%q", res.Printed, res.Message)
	}
	if saver.payload == nil {
		t.Error("sale not saved")
	}
}

func TestKitchenTicket(t *testing.T) {
	saver := &fakeSaver{}
	printer := &fakePrinter{}
	svc := newService(saver, printer)
	if err := svc.KitchenTicket(context.Background(), cart); err != nil {
		t.Fatalf("kot: %v", err)
	}
	if len(printer.kots) != 1 {
		t.Fatalf("kots: got %d, want 1", len(printer.kots))
	}
	if saver.payload != nil {
		t.Error("kitchen ticket saved a record")
	}
	if err := svc.KitchenTicket(context.Background(), nil); !errors.Is(err, ErrEmptyCart) {
		t.Errorf("empty: got %v, want ErrEmptyCart", err)
	}
}

func TestBill(t *testing.T) {
	printer := &fakePrinter{}
	svc := newService(&fakeSaver{}, printer)
	if err := svc.Bill(context.Background(), cart, ""); err != nil {
		t.Fatalf("bill: %v", err)
	}
	if len(printer.bills) != 1 || printer.bills[0].PaymentMode != models.PaymentCash {
		t.Errorf("bill: got %+v", printer.bills)
	}
}
