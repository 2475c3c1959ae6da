package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/marcus/till/internal/connectivity"
	"github.com/marcus/till/internal/kvstore"
	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/offline"
)

// setupCLI writes a config pointing at a fresh data dir with no remote store
// and returns the config path and the data dir.
func setupCLI(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	cfgFile := filepath.Join(dir, "till.json")
	body := `{"data_dir": ` + quote(dataDir) + `, "log": {"level": "error"}, "shop": {"name": "Fresh Cuts"}}`
	if err := os.WriteFile(cfgFile, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	for _, k := range []string{"TILL_REMOTE_ENDPOINT", "TILL_REMOTE_PROJECT", "TILL_REMOTE_DATABASE", "TILL_CONFIG"} {
		t.Setenv(k, "")
	}
	return cfgFile, dataDir
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// resetFlags puts every flag of every command back to its default so runs
// do not leak into each other.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCLI executes the root command with args and returns what it printed to
// stdout.
func runCLI(t *testing.T, cfgFile string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	cfgPath, jsonOut, appConfig = "", false, nil
	t.Cleanup(func() { cfgPath, jsonOut, appConfig = "", false, nil })

	oldOut := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	rootCmd.SetArgs(append([]string{"--config", cfgFile}, args...))
	runErr := rootCmd.Execute()

	w.Close()
	os.Stdout = oldOut
	return <-done, runErr
}

// openQueue opens the data dir the CLI wrote to.
func openQueue(t *testing.T, dataDir string) *offline.Manager {
	t.Helper()
	store, err := kvstore.Open(dataDir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return offline.New(store, nil, connectivity.NewStatic(false), offline.Options{})
}

func TestSaleAdd_QueuesWithoutRemote(t *testing.T) {
	cfgFile, dataDir := setupCLI(t)

	out, err := runCLI(t, cfgFile, "sale", "add", "--item", "Chicken:1.5:200", "--mode", "online")
	if err != nil {
		t.Fatalf("sale add: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Saved Offline (Sync Pending)") {
		t.Errorf("output missing offline message:\n%s", out)
	}

	pending, err := openQueue(t, dataDir).Pending(models.KindSale)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending: got %d, want 1", len(pending))
	}
	p := pending[0]
	if !models.IsLocalID(p.LocalID) {
		t.Errorf("local id: got %q", p.LocalID)
	}
	if p.Payload["totalAmount"] != 300.0 {
		t.Errorf("totalAmount: got %v, want 300", p.Payload["totalAmount"])
	}
	if p.Payload["paymentMode"] != "online" {
		t.Errorf("paymentMode: got %v, want online", p.Payload["paymentMode"])
	}
}

func TestSaleAdd_RequiresItem(t *testing.T) {
	cfgFile, _ := setupCLI(t)
	if _, err := runCLI(t, cfgFile, "sale", "add"); err == nil {
		t.Error("expected error without --item")
	}
	if _, err := runCLI(t, cfgFile, "sale", "add", "--item", "Chicken:1:200", "--mode", "card"); err == nil {
		t.Error("expected error for unknown payment mode")
	}
}

func TestQueueList_JSON(t *testing.T) {
	cfgFile, _ := setupCLI(t)
	if out, err := runCLI(t, cfgFile, "sale", "add", "-i", "Mutton:0.5:700", "-i", "Liver:1:300"); err != nil {
		t.Fatalf("sale add: %v\n%s", err, out)
	}

	out, err := runCLI(t, cfgFile, "--json", "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	var got map[models.Kind][]models.PendingRecord
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(got[models.KindSale]) != 1 || len(got[models.KindPurchase]) != 0 {
		t.Fatalf("got %v", got)
	}
	if total := got[models.KindSale][0].Payload["totalAmount"]; total != 650.0 {
		t.Errorf("totalAmount: got %v, want 650", total)
	}
}

func TestSync_NeedsRemote(t *testing.T) {
	cfgFile, _ := setupCLI(t)
	_, err := runCLI(t, cfgFile, "sync")
	if err != errRemoteNotConfigured {
		t.Errorf("got %v, want %v", err, errRemoteNotConfigured)
	}

	out, err := runCLI(t, cfgFile, "sync", "--status")
	if err != nil {
		t.Fatalf("sync --status: %v", err)
	}
	if !strings.Contains(out, "Remote: offline") {
		t.Errorf("status output:\n%s", out)
	}
}

func TestPurchaseAdd_ThenHistory(t *testing.T) {
	cfgFile, _ := setupCLI(t)
	out, err := runCLI(t, cfgFile, "purchase", "add", "--product", "Whole Chicken", "--weight", "2", "--cost-per-kg", "180")
	if err != nil {
		t.Fatalf("purchase add: %v\n%s", err, out)
	}

	out, err = runCLI(t, cfgFile, "--json", "history", "purchases")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var h offline.History
	if err := json.Unmarshal([]byte(out), &h); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if h.Remote {
		t.Error("history claims remote records without a remote store")
	}
	if len(h.Records) != 1 {
		t.Fatalf("records: got %d, want 1", len(h.Records))
	}
	rec := h.Records[0]
	if !rec.Pending {
		t.Error("queued purchase not marked pending")
	}
	if rec.Data["totalCost"] != 360.0 {
		t.Errorf("totalCost: got %v, want 360", rec.Data["totalCost"])
	}
}

func TestPurchaseAdd_Invalid(t *testing.T) {
	cfgFile, _ := setupCLI(t)
	if _, err := runCLI(t, cfgFile, "purchase", "add", "--product", "Goat"); err == nil {
		t.Error("expected error for a stock purchase without weight")
	}
	if _, err := runCLI(t, cfgFile, "purchase", "add", "--type", "salary"); err == nil {
		t.Error("expected error for a salary without amount")
	}
}

func TestPurchaseUpdate_RefusesOffline(t *testing.T) {
	cfgFile, _ := setupCLI(t)
	_, err := runCLI(t, cfgFile, "purchase", "delete", "abc123")
	if err != errRemoteNotConfigured {
		t.Errorf("got %v, want %v", err, errRemoteNotConfigured)
	}
}

func TestQueueClear_NeedsYes(t *testing.T) {
	cfgFile, dataDir := setupCLI(t)
	if out, err := runCLI(t, cfgFile, "sale", "add", "-i", "Chicken:1:200"); err != nil {
		t.Fatalf("sale add: %v\n%s", err, out)
	}

	if _, err := runCLI(t, cfgFile, "queue", "clear", "sales"); err == nil {
		t.Fatal("expected clear without --yes to fail")
	}
	out, err := runCLI(t, cfgFile, "queue", "clear", "sales", "--yes")
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	if !strings.Contains(out, "Dropped 1 queued sale record(s)") {
		t.Errorf("output:\n%s", out)
	}

	pending, err := openQueue(t, dataDir).Pending(models.KindSale)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after clear: got %d, want 0", len(pending))
	}
}

func TestConfigSetGet(t *testing.T) {
	cfgFile, _ := setupCLI(t)
	if _, err := runCLI(t, cfgFile, "config", "set", "printer.chunk_size", "64"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	out, err := runCLI(t, cfgFile, "config", "get", "printer.chunk_size")
	if err != nil {
		t.Fatalf("config get: %v", err)
	}
	if strings.TrimSpace(out) != "64" {
		t.Errorf("got %q, want 64", strings.TrimSpace(out))
	}

	out, err = runCLI(t, cfgFile, "config", "get", "shop.name")
	if err != nil {
		t.Fatalf("config get: %v", err)
	}
	if strings.TrimSpace(out) != "Fresh Cuts" {
		t.Errorf("got %q, want Fresh Cuts", strings.TrimSpace(out))
	}

	if _, err := runCLI(t, cfgFile, "config", "set", "no.such.key", "1"); err == nil {
		t.Error("expected error for unknown key")
	}
	if _, err := runCLI(t, cfgFile, "config", "get", "no.such.key"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestPrintPreview(t *testing.T) {
	cfgFile, _ := setupCLI(t)
	out, err := runCLI(t, cfgFile, "print", "preview", "-i", "Chicken:1.5:200", "-i", "Mutton:0.5:700")
	if err != nil {
		t.Fatalf("print preview: %v", err)
	}
	for _, want := range []string{"Fresh Cuts", "ITEM DETAILS", "Chicken", "Mutton", "TOTAL AMOUNT:", "Rs. 650", "Thank You for Visiting!"} {
		if !strings.Contains(out, want) {
			t.Errorf("bill preview missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, cfgFile, "print", "preview", "--kot", "-i", "Chicken:1.5:200")
	if err != nil {
		t.Fatalf("print preview --kot: %v", err)
	}
	if !strings.Contains(out, "KOT (SHOP COPY)") || !strings.Contains(out, "Qty: 1.5kg") {
		t.Errorf("kot preview:\n%s", out)
	}
	if strings.Contains(out, "Rs.") {
		t.Errorf("kitchen ticket shows prices:\n%s", out)
	}
}

func TestRecordAmount(t *testing.T) {
	sale := models.Record{Data: map[string]any{"totalAmount": 650.0}}
	if got := recordAmount(models.KindSale, sale); got != 650 {
		t.Errorf("sale: got %v, want 650", got)
	}
	stock := models.Record{Data: map[string]any{"totalCost": 360.0}}
	if got := recordAmount(models.KindPurchase, stock); got != 360 {
		t.Errorf("stock: got %v, want 360", got)
	}
	salary := models.Record{Data: map[string]any{"amount": 12000.0}}
	if got := recordAmount(models.KindPurchase, salary); got != 12000 {
		t.Errorf("salary: got %v, want 12000", got)
	}
}
