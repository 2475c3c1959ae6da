package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Kind names a collection that writes can be queued for.
type Kind string

const (
	KindSale     Kind = "sale"
	KindPurchase Kind = "purchase"
)

// Kinds returns every queueable kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindSale, KindPurchase}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindSale || k == KindPurchase
}

// ParseKind accepts singular or plural forms ("sales", "purchase").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sale", "sales":
		return KindSale, nil
	case "purchase", "purchases", "stock", "expense", "expenses":
		return KindPurchase, nil
	}
	return "", fmt.Errorf("unknown kind %q (want sale or purchase)", s)
}

// LocalIDPrefix marks identifiers minted on this device. Remote ids never
// carry it, so any id can be classified by origin.
const LocalIDPrefix = "TEMP_"

// IsLocalID reports whether id was assigned locally to a queued record.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// ISOTime is the timestamp layout stored in documents (UTC, millisecond precision).
const ISOTime = "2006-01-02T15:04:05.000Z"

// PendingRecord is a write waiting to be replayed against the remote store.
// Everything except Payload is local bookkeeping and is never sent upstream.
type PendingRecord struct {
	LocalID   string         `json:"localId"`
	Kind      Kind           `json:"kind"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"createdAt"`
	IsPending bool           `json:"isPending"`
	// DocumentID is the remote id every replay of this record uses, so a
	// create that landed but whose response was lost is not duplicated.
	DocumentID string `json:"documentId,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	LastError  string `json:"lastError,omitempty"`
}

// Record converts the pending write into a merged-view row.
func (p PendingRecord) Record() Record {
	return Record{
		ID:        p.LocalID,
		CreatedAt: p.CreatedAt,
		Data:      p.Payload,
		Pending:   true,
	}
}

// Record is one row of a merged view: either a confirmed remote document or
// a pending local write.
type Record struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	Data      map[string]any `json:"data"`
	Pending   bool           `json:"pending"`
}

// PaymentMode is how a sale was settled.
type PaymentMode string

const (
	PaymentCash   PaymentMode = "cash"
	PaymentOnline PaymentMode = "online"
)

// ParsePaymentMode defaults to cash for an empty string.
func ParsePaymentMode(s string) (PaymentMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cash":
		return PaymentCash, nil
	case "online", "upi", "card":
		return PaymentOnline, nil
	}
	return "", fmt.Errorf("unknown payment mode %q", s)
}

// CartLine is one weighed item on a bill.
type CartLine struct {
	Name       string  `json:"name"`
	Weight     float64 `json:"weight"`
	PricePerKg float64 `json:"pricePerKg"`
	TotalPrice float64 `json:"totalPrice"`
}

// NewCartLine computes the line total rounded to paise.
func NewCartLine(name string, weight, pricePerKg float64) CartLine {
	return CartLine{
		Name:       name,
		Weight:     weight,
		PricePerKg: pricePerKg,
		TotalPrice: Round2(weight * pricePerKg),
	}
}

// Validate checks a line can be billed.
func (l CartLine) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return errors.New("item name is required")
	}
	if l.Weight <= 0 {
		return fmt.Errorf("%s: weight must be positive", l.Name)
	}
	if l.PricePerKg < 0 || l.TotalPrice < 0 {
		return fmt.Errorf("%s: price cannot be negative", l.Name)
	}
	return nil
}

// CartTotal sums line totals.
func CartTotal(lines []CartLine) float64 {
	var total float64
	for _, l := range lines {
		total += l.TotalPrice
	}
	return Round2(total)
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ShopMeta is the header printed on customer bills. Empty fields are skipped.
type ShopMeta struct {
	Name    string `json:"shopName" mapstructure:"name"`
	Address string `json:"address" mapstructure:"address"`
	Phone   string `json:"phone" mapstructure:"phone"`
	Email   string `json:"email" mapstructure:"email"`
	UserID  string `json:"userId" mapstructure:"user_id"`
}

// PrintJob is everything needed to encode one ticket or bill.
type PrintJob struct {
	Lines       []CartLine
	Total       float64
	PaymentMode PaymentMode
	Shop        ShopMeta
	At          time.Time
}

// SalePayload builds the sales document body. items is stored as a JSON
// string because the remote schema declares it as a string attribute.
func SalePayload(userID string, cart []CartLine, total float64, mode PaymentMode, at time.Time) (map[string]any, error) {
	items, err := json.Marshal(cart)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}
	return map[string]any{
		"userId":      userID,
		"items":       string(items),
		"totalAmount": total,
		"paymentMode": string(mode),
		"saleDate":    at.UTC().Format(ISOTime),
	}, nil
}

// Purchase types recorded by the stock screen.
const (
	PurchaseStock   = "stock"
	PurchaseSalary  = "salary"
	PurchaseExpense = "expense"
)

// Purchase is a stock purchase or an expense such as a salary payment.
type Purchase struct {
	UserID      string
	Type        string
	ProductName string
	Weight      float64
	CostPerKg   float64
	TotalCost   float64
	Amount      float64
	Note        string
	Date        time.Time
}

// Validate checks the fields required by the purchase type.
func (p Purchase) Validate() error {
	switch p.Type {
	case PurchaseStock:
		if strings.TrimSpace(p.ProductName) == "" {
			return errors.New("product is required")
		}
		if p.Weight <= 0 || p.CostPerKg <= 0 {
			return errors.New("weight and cost per kg must be positive")
		}
	case PurchaseSalary, PurchaseExpense:
		if p.Amount <= 0 {
			return errors.New("amount must be positive")
		}
	default:
		return fmt.Errorf("unknown purchase type %q", p.Type)
	}
	return nil
}

// Payload builds the purchases document body, omitting zero fields.
func (p Purchase) Payload() map[string]any {
	out := map[string]any{
		"userId":       p.UserID,
		"type":         p.Type,
		"purchaseDate": p.Date.UTC().Format(ISOTime),
	}
	if p.ProductName != "" {
		out["productName"] = p.ProductName
	}
	if p.Weight != 0 {
		out["weight"] = p.Weight
	}
	if p.CostPerKg != 0 {
		out["costPerKg"] = p.CostPerKg
	}
	total := p.TotalCost
	if total == 0 && p.Type == PurchaseStock {
		total = Round2(p.Weight * p.CostPerKg)
	}
	if total != 0 {
		out["totalCost"] = total
	}
	if p.Amount != 0 {
		out["amount"] = p.Amount
	}
	if p.Note != "" {
		out["note"] = p.Note
	}
	return out
}
