package remote

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewID returns a collision-resistant document id. It is plain hex, so it
// can never be mistaken for a local TEMP_ id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

type query struct {
	Method    string `json:"method"`
	Attribute string `json:"attribute,omitempty"`
	Values    []any  `json:"values,omitempty"`
}

func (q query) String() string {
	b, _ := json.Marshal(q)
	return string(b)
}

// Equal matches documents whose attribute equals any of values.
func Equal(attr string, values ...any) string {
	return query{Method: "equal", Attribute: attr, Values: values}.String()
}

// OrderDesc sorts by attr, newest first.
func OrderDesc(attr string) string {
	return query{Method: "orderDesc", Attribute: attr}.String()
}

// Limit caps the page size.
func Limit(n int) string {
	return query{Method: "limit", Values: []any{n}}.String()
}

// CursorAfter starts the page after the given document id.
func CursorAfter(id string) string {
	return query{Method: "cursorAfter", Values: []any{id}}.String()
}

// Permission strings granting a single user access to a document.
func ReadUser(userID string) string   { return fmt.Sprintf(`read("user:%s")`, userID) }
func UpdateUser(userID string) string { return fmt.Sprintf(`update("user:%s")`, userID) }
func DeleteUser(userID string) string { return fmt.Sprintf(`delete("user:%s")`, userID) }

// OwnerPermissions grants read, update and delete to userID. Empty userID
// yields no permissions so the collection defaults apply.
func OwnerPermissions(userID string) []string {
	if userID == "" {
		return nil
	}
	return []string{ReadUser(userID), UpdateUser(userID), DeleteUser(userID)}
}
