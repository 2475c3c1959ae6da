// Package output provides styled terminal output helpers (success, error,
// warning, record formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/marcus/till/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	amountStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	modeStyles   = map[string]lipgloss.Style{
		"cash":   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"online": lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound     = "not_found"
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeConflict     = "conflict"
	ErrCodeStorage      = "storage_error"
	ErrCodeRemote       = "remote_error"
	ErrCodePrinter      = "printer_error"
	ErrCodeInternal     = "internal_error"
)

// ErrorBody is the JSON shape of an error.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// JSONErrorWithDetails outputs an error as JSON with additional context
func JSONErrorWithDetails(code, message string, details map[string]interface{}) {
	data, _ := json.Marshal(ErrorBody{Error: ErrorDetail{Code: code, Message: message, Details: details}})
	fmt.Println(string(data))
}

// PendingBadge marks a record as waiting for sync or confirmed.
func PendingBadge(pending bool) string {
	if pending {
		return warningStyle.Render("[pending sync]")
	}
	return subtleStyle.Render("[synced]")
}

// FormatMoney formats an amount in rupees with grouping, e.g. "Rs. 1,250.50".
func FormatMoney(v float64) string {
	return "Rs. " + humanize.FormatFloat("#,###.##", v)
}

// FormatMode formats a payment mode with color
func FormatMode(mode string) string {
	style, ok := modeStyles[strings.ToLower(mode)]
	if !ok {
		return strings.ToUpper(mode)
	}
	return style.Render(strings.ToUpper(mode))
}

// ShortID trims long remote ids for display. Local ids are shown whole.
func ShortID(id string) string {
	if models.IsLocalID(id) || len(id) <= 10 {
		return id
	}
	return id[:10]
}

// FormatSaleShort formats a sale record in one line
func FormatSaleShort(rec models.Record) string {
	var parts []string
	parts = append(parts, titleStyle.Render(ShortID(rec.ID)))
	parts = append(parts, amountStyle.Render(FormatMoney(number(rec.Data["totalAmount"]))))
	if mode, _ := rec.Data["paymentMode"].(string); mode != "" {
		parts = append(parts, FormatMode(mode))
	}
	if items := saleItems(rec); len(items) > 0 {
		parts = append(parts, strings.Join(items, ", "))
	}
	if when := recordTime(rec, "saleDate"); !when.IsZero() {
		parts = append(parts, subtleStyle.Render(FormatTimeAgo(when)))
	}
	parts = append(parts, PendingBadge(rec.Pending))
	return strings.Join(parts, "  ")
}

// FormatPurchaseShort formats a purchase or expense record in one line
func FormatPurchaseShort(rec models.Record) string {
	var parts []string
	parts = append(parts, titleStyle.Render(ShortID(rec.ID)))

	typ, _ := rec.Data["type"].(string)
	parts = append(parts, subtleStyle.Render(typ))
	if typ == models.PurchaseStock {
		name, _ := rec.Data["productName"].(string)
		parts = append(parts, fmt.Sprintf("%s %skg", name, trimFloat(number(rec.Data["weight"]))))
		parts = append(parts, amountStyle.Render(FormatMoney(number(rec.Data["totalCost"]))))
	} else {
		parts = append(parts, amountStyle.Render(FormatMoney(number(rec.Data["amount"]))))
		if note, _ := rec.Data["note"].(string); note != "" {
			parts = append(parts, note)
		}
	}
	if when := recordTime(rec, "purchaseDate"); !when.IsZero() {
		parts = append(parts, subtleStyle.Render(FormatTimeAgo(when)))
	}
	parts = append(parts, PendingBadge(rec.Pending))
	return strings.Join(parts, "  ")
}

// FormatRecordShort dispatches on kind.
func FormatRecordShort(kind models.Kind, rec models.Record) string {
	if kind == models.KindPurchase {
		return FormatPurchaseShort(rec)
	}
	return FormatSaleShort(rec)
}

// FormatPendingLong formats a queued record with its sync bookkeeping.
func FormatPendingLong(p models.PendingRecord) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s (%s)", p.LocalID, p.Kind)))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Queued: %s\n", FormatTimeAgo(p.CreatedAt)))
	if p.Attempts > 0 {
		sb.WriteString(warningStyle.Render(fmt.Sprintf("Attempts: %d", p.Attempts)))
		sb.WriteString("\n")
	}
	if p.LastError != "" {
		sb.WriteString(subtleStyle.Render("Last error: " + p.LastError))
		sb.WriteString("\n")
	}
	data, _ := json.MarshalIndent(p.Payload, "  ", "  ")
	sb.WriteString("  ")
	sb.Write(data)
	sb.WriteString("\n")
	return sb.String()
}

// QueueSummary formats per-kind pending counts, e.g. "2 sales, 1 purchase pending".
func QueueSummary(counts map[models.Kind]int) string {
	sales, purchases := counts[models.KindSale], counts[models.KindPurchase]
	if sales == 0 && purchases == 0 {
		return "nothing pending"
	}
	return fmt.Sprintf("%s, %s pending", plural(sales, "sale"), plural(purchases, "purchase"))
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return humanize.Time(t)
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nPENDING SALES:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	indent := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = indent + line
		}
	}
	return strings.Join(lines, "\n")
}

func saleItems(rec models.Record) []string {
	raw, _ := rec.Data["items"].(string)
	if raw == "" {
		return nil
	}
	var lines []models.CartLine
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil
	}
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, fmt.Sprintf("%s %skg", l.Name, trimFloat(l.Weight)))
	}
	return out
}

func recordTime(rec models.Record, field string) time.Time {
	if s, _ := rec.Data[field].(string); s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	return rec.CreatedAt
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

func trimFloat(v float64) string {
	return humanize.Ftoa(v)
}
