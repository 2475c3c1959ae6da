package offline

import (
	"context"

	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/remote"
)

// Lister lists remote documents, following pagination.
type Lister interface {
	ListAll(ctx context.Context, collectionID string, queries ...string) ([]remote.Document, error)
}

// DateField is the attribute history is ordered by.
func DateField(kind models.Kind) string {
	if kind == models.KindPurchase {
		return "purchaseDate"
	}
	return "saleDate"
}

// History is a merged view plus whether the remote part is present.
type History struct {
	Records []models.Record `json:"records"`
	Remote  bool            `json:"remote"`
}

// FetchHistory lists userID's remote documents of kind, newest first, and
// puts the pending records in front. When offline, when lister is nil, or
// when the listing fails, only pending records are returned and Remote is
// false. Errors come from the local queue only.
func (m *Manager) FetchHistory(ctx context.Context, lister Lister, kind models.Kind, userID string) (*History, error) {
	col, err := m.collection(kind)
	if err != nil {
		return nil, err
	}

	var remoteRecords []models.Record
	fetched := false
	if lister != nil && m.probe.IsOnline() {
		queries := []string{remote.OrderDesc(DateField(kind))}
		if userID != "" {
			queries = append([]string{remote.Equal("userId", userID)}, queries...)
		}
		docs, err := lister.ListAll(ctx, col, queries...)
		if err != nil {
			m.log.Warn("history: remote list failed, showing pending only", "kind", kind, "err", err)
		} else {
			remoteRecords = remote.Records(docs)
			fetched = true
		}
	}

	recs, err := m.GetCombinedData(kind, remoteRecords)
	if err != nil {
		return nil, err
	}
	return &History{Records: recs, Remote: fetched}, nil
}
