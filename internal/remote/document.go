package remote

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/marcus/till/internal/models"
)

// Document is a stored document: system attributes ($-prefixed on the wire)
// split from the user attributes in Data.
type Document struct {
	ID           string
	CollectionID string
	DatabaseID   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Permissions  []string
	Data         map[string]any
}

// UnmarshalJSON splits $-prefixed system keys from data keys.
func (d *Document) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*d = Document{Data: make(map[string]any, len(raw))}
	for k, v := range raw {
		if !strings.HasPrefix(k, "$") {
			d.Data[k] = v
			continue
		}
		s, _ := v.(string)
		switch k {
		case "$id":
			d.ID = s
		case "$collectionId":
			d.CollectionID = s
		case "$databaseId":
			d.DatabaseID = s
		case "$createdAt":
			d.CreatedAt = parseTime(s)
		case "$updatedAt":
			d.UpdatedAt = parseTime(s)
		case "$permissions":
			if list, ok := v.([]any); ok {
				for _, p := range list {
					if ps, ok := p.(string); ok {
						d.Permissions = append(d.Permissions, ps)
					}
				}
			}
		}
	}
	return nil
}

// MarshalJSON writes the flat wire shape back out.
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Data)+6)
	for k, v := range d.Data {
		out[k] = v
	}
	out["$id"] = d.ID
	if d.CollectionID != "" {
		out["$collectionId"] = d.CollectionID
	}
	if d.DatabaseID != "" {
		out["$databaseId"] = d.DatabaseID
	}
	if !d.CreatedAt.IsZero() {
		out["$createdAt"] = d.CreatedAt.Format(time.RFC3339Nano)
	}
	if !d.UpdatedAt.IsZero() {
		out["$updatedAt"] = d.UpdatedAt.Format(time.RFC3339Nano)
	}
	if d.Permissions != nil {
		out["$permissions"] = d.Permissions
	}
	return json.Marshal(out)
}

// Record converts the document to a confirmed merged-view row.
func (d Document) Record() models.Record {
	return models.Record{ID: d.ID, CreatedAt: d.CreatedAt, Data: d.Data}
}

// Records converts a list of documents.
func Records(docs []Document) []models.Record {
	out := make([]models.Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Record())
	}
	return out
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
