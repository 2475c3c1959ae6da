// Package offline keeps the shop's writes durable while the remote store is
// unreachable. Writes go straight to the store when online and into a
// per-kind local queue otherwise; SyncOfflineData replays the queue once
// connectivity returns.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marcus/till/internal/connectivity"
	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/remote"
)

// Queue keys in the local store. They are shared with earlier installs, so
// renaming them orphans queued records.
const (
	salesQueueKey          = "offline_sales_queue"
	purchasesQueueKey      = "offline_purchases_queue"
	salesDeadLetterKey     = "offline_sales_deadletter"
	purchasesDeadLetterKey = "offline_purchases_deadletter"
)

var (
	// ErrUnknownKind is returned for a kind with no queue or collection.
	ErrUnknownKind = errors.New("unknown record kind")
	// ErrSyncInProgress is returned when a sync is requested while one runs.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// StorageError wraps a failure of the local store. It means a record could
// not be made durable and must be surfaced to the user.
type StorageError struct {
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("offline store %s: %v", e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// KV is the persistent string store the queues live in.
type KV interface {
	GetItem(key string) (string, bool, error)
	// UpdateItem replaces key with fn's result atomically.
	UpdateItem(key string, fn func(value string, ok bool) (string, error)) error
}

// Creator creates documents in the remote store.
type Creator interface {
	CreateDocument(ctx context.Context, collectionID, documentID string, data map[string]any, permissions ...string) (*remote.Document, error)
}

// Mode says where a saved record went.
type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

// SaveResult is the outcome of SaveRecord.
type SaveResult struct {
	Mode   Mode          `json:"mode"`
	Record models.Record `json:"record"`
}

// Queued reports whether the record is waiting for sync.
func (r *SaveResult) Queued() bool { return r.Mode == ModeOffline }

// SyncReport counts what one sync did per kind.
type SyncReport struct {
	Synced       map[models.Kind]int `json:"synced"`
	Retained     map[models.Kind]int `json:"retained"`
	DeadLettered map[models.Kind]int `json:"deadLettered"`
	Skipped      bool                `json:"skipped,omitempty"` // probe said offline
}

func newSyncReport() *SyncReport {
	return &SyncReport{
		Synced:       make(map[models.Kind]int),
		Retained:     make(map[models.Kind]int),
		DeadLettered: make(map[models.Kind]int),
	}
}

// Total returns the number of records reconciled.
func (r *SyncReport) Total() int {
	n := 0
	for _, v := range r.Synced {
		n += v
	}
	return n
}

// Options tune a Manager. Zero values are usable.
type Options struct {
	// Collections maps kinds to remote collection ids.
	Collections map[models.Kind]string
	// Permissions are attached to every created document.
	Permissions []string
	// MaxAttempts moves a record to the dead-letter queue after that many
	// failed replays. Zero retries forever.
	MaxAttempts int
	Now         func() time.Time
	NewID       func() string
	Logger      *slog.Logger
}

// Manager routes writes between the remote store and the local queues.
type Manager struct {
	kv          KV
	client      Creator
	probe       connectivity.Probe
	collections map[models.Kind]string
	perms       []string
	maxAttempts int
	now         func() time.Time
	newID       func() string
	log         *slog.Logger

	syncing atomic.Bool

	idMu       sync.Mutex
	lastMillis int64
}

// New creates a manager.
func New(kv KV, client Creator, probe connectivity.Probe, opts Options) *Manager {
	m := &Manager{
		kv:          kv,
		client:      client,
		probe:       probe,
		collections: opts.Collections,
		perms:       opts.Permissions,
		maxAttempts: opts.MaxAttempts,
		now:         opts.Now,
		newID:       opts.NewID,
		log:         opts.Logger,
	}
	if m.collections == nil {
		m.collections = map[models.Kind]string{
			models.KindSale:     "sales",
			models.KindPurchase: "purchases",
		}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = remote.NewID
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m
}

// online reports whether writes can go to the remote store. A manager
// without a client is always offline.
func (m *Manager) online() bool {
	return m.client != nil && m.probe.IsOnline()
}

func queueKey(kind models.Kind) (string, error) {
	switch kind {
	case models.KindSale:
		return salesQueueKey, nil
	case models.KindPurchase:
		return purchasesQueueKey, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func deadLetterKey(kind models.Kind) (string, error) {
	switch kind {
	case models.KindSale:
		return salesDeadLetterKey, nil
	case models.KindPurchase:
		return purchasesDeadLetterKey, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func (m *Manager) collection(kind models.Kind) (string, error) {
	col, ok := m.collections[kind]
	if !ok || col == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return col, nil
}

// SaveRecord writes payload remotely when online and queues it otherwise.
// Any failed remote create, a conflict included, falls back to the queue.
// Only a failure of the local store is returned as an error, always as
// *StorageError.
func (m *Manager) SaveRecord(ctx context.Context, kind models.Kind, payload map[string]any) (*SaveResult, error) {
	col, err := m.collection(kind)
	if err != nil {
		return nil, err
	}
	key, err := queueKey(kind)
	if err != nil {
		return nil, err
	}

	docID := m.newID()
	if m.online() {
		doc, err := m.client.CreateDocument(ctx, col, docID, cleanPayload(payload), m.perms...)
		if err == nil {
			m.log.Debug("save: created remotely", "kind", kind, "id", doc.ID)
			return &SaveResult{Mode: ModeOnline, Record: doc.Record()}, nil
		}
		m.log.Warn("save: remote create failed, queueing", "kind", kind, "err", err)
	}

	rec := models.PendingRecord{
		Kind:       kind,
		Payload:    maps.Clone(payload),
		CreatedAt:  m.now(),
		IsPending:  true,
		DocumentID: docID,
	}
	err = m.kv.UpdateItem(key, func(value string, ok bool) (string, error) {
		queue, err := decodeQueue(value, ok)
		if err != nil {
			return "", err
		}
		rec.LocalID = m.nextLocalID(rec.CreatedAt, queue)
		queue = append(queue, rec)
		return encodeQueue(queue)
	})
	if err != nil {
		return nil, &StorageError{Key: key, Err: err}
	}
	m.log.Info("save: queued offline", "kind", kind, "local_id", rec.LocalID)
	return &SaveResult{Mode: ModeOffline, Record: rec.Record()}, nil
}

// nextLocalID mints TEMP_<unix millis>, bumped past the last id handed out in
// this process and past every id already in queue.
func (m *Manager) nextLocalID(at time.Time, queue []models.PendingRecord) string {
	m.idMu.Lock()
	defer m.idMu.Unlock()

	ms := at.UnixMilli()
	if ms <= m.lastMillis {
		ms = m.lastMillis + 1
	}
	for _, r := range queue {
		if n, err := strconv.ParseInt(strings.TrimPrefix(r.LocalID, models.LocalIDPrefix), 10, 64); err == nil && n >= ms {
			ms = n + 1
		}
	}
	m.lastMillis = ms
	return models.LocalIDPrefix + strconv.FormatInt(ms, 10)
}

// SyncOfflineData replays every queue in FIFO order. Records the store
// accepts are removed; the rest stay queued with their attempt count bumped.
// Records queued while the sync runs are left alone. When the probe reports
// offline the call is a no-op.
func (m *Manager) SyncOfflineData(ctx context.Context) (*SyncReport, error) {
	report := newSyncReport()
	if !m.online() {
		report.Skipped = true
		return report, nil
	}
	if !m.syncing.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer m.syncing.Store(false)

	for _, kind := range models.Kinds() {
		if _, ok := m.collections[kind]; !ok {
			continue
		}
		if err := m.syncKind(ctx, kind, report); err != nil {
			return report, err
		}
	}
	if n := report.Total(); n > 0 {
		m.log.Info("sync: complete", "synced", n)
	}
	return report, nil
}

// Syncing reports whether a sync is running.
func (m *Manager) Syncing() bool {
	return m.syncing.Load()
}

func (m *Manager) syncKind(ctx context.Context, kind models.Kind, report *SyncReport) error {
	key, err := queueKey(kind)
	if err != nil {
		return err
	}
	col, err := m.collection(kind)
	if err != nil {
		return err
	}

	queue, err := m.load(key)
	if err != nil {
		return err
	}
	if len(queue) == 0 {
		return nil
	}
	m.log.Info("sync: replaying", "kind", kind, "records", len(queue))

	done := make(map[string]bool, len(queue))
	failed := make(map[string]error)
	for _, rec := range queue {
		if ctx.Err() != nil {
			break
		}
		docID := rec.DocumentID
		if docID == "" {
			docID = m.newID()
		}
		_, err := m.client.CreateDocument(ctx, col, docID, cleanPayload(rec.Payload), m.perms...)
		if err == nil || isAlreadyExists(err) {
			done[rec.LocalID] = true
			continue
		}
		m.log.Warn("sync: replay failed", "kind", kind, "local_id", rec.LocalID, "err", err)
		failed[rec.LocalID] = err
	}

	// Exhausted records are written to the dead-letter queue before they
	// leave the live queue. If that write fails they stay queued.
	var dead []models.PendingRecord
	if m.maxAttempts > 0 {
		for _, rec := range queue {
			ferr, ok := failed[rec.LocalID]
			if !ok || rec.Attempts+1 < m.maxAttempts {
				continue
			}
			rec.Attempts++
			rec.LastError = ferr.Error()
			dead = append(dead, rec)
		}
	}
	var deadErr error
	moved := make(map[string]bool, len(dead))
	if len(dead) > 0 {
		if deadErr = m.appendDeadLetters(kind, dead); deadErr != nil {
			m.log.Error("sync: dead letter write failed, keeping records queued", "kind", kind, "err", deadErr)
		} else {
			for _, rec := range dead {
				moved[rec.LocalID] = true
			}
		}
	}

	err = m.kv.UpdateItem(key, func(value string, ok bool) (string, error) {
		current, err := decodeQueue(value, ok)
		if err != nil {
			return "", err
		}
		synced, retained := 0, 0
		kept := make([]models.PendingRecord, 0, len(current))
		for _, rec := range current {
			if done[rec.LocalID] {
				synced++
				continue
			}
			if moved[rec.LocalID] {
				continue
			}
			if ferr, ok := failed[rec.LocalID]; ok {
				rec.Attempts++
				rec.LastError = ferr.Error()
				retained++
			}
			kept = append(kept, rec)
		}
		report.Synced[kind] = synced
		report.Retained[kind] = retained
		return encodeQueue(kept)
	})
	if err != nil {
		return &StorageError{Key: key, Err: err}
	}
	if deadErr != nil {
		return deadErr
	}
	if len(moved) > 0 {
		report.DeadLettered[kind] = len(moved)
		m.log.Warn("sync: records moved to dead letter", "kind", kind, "count", len(moved))
	}
	return ctx.Err()
}

func (m *Manager) appendDeadLetters(kind models.Kind, recs []models.PendingRecord) error {
	key, err := deadLetterKey(kind)
	if err != nil {
		return err
	}
	err = m.kv.UpdateItem(key, func(value string, ok bool) (string, error) {
		dl, err := decodeQueue(value, ok)
		if err != nil {
			return "", err
		}
		return encodeQueue(append(dl, recs...))
	})
	if err != nil {
		return &StorageError{Key: key, Err: err}
	}
	return nil
}

// GetCombinedData returns pending records of kind, in enqueue order, followed
// by the given remote records.
func (m *Manager) GetCombinedData(kind models.Kind, remoteRecords []models.Record) ([]models.Record, error) {
	pending, err := m.Pending(kind)
	if err != nil {
		return nil, err
	}
	out := make([]models.Record, 0, len(pending)+len(remoteRecords))
	for _, p := range pending {
		out = append(out, p.Record())
	}
	return append(out, remoteRecords...), nil
}

// Pending returns the queued records of kind.
func (m *Manager) Pending(kind models.Kind) ([]models.PendingRecord, error) {
	key, err := queueKey(kind)
	if err != nil {
		return nil, err
	}
	return m.load(key)
}

// DeadLetters returns records of kind that exhausted their attempts.
func (m *Manager) DeadLetters(kind models.Kind) ([]models.PendingRecord, error) {
	key, err := deadLetterKey(kind)
	if err != nil {
		return nil, err
	}
	return m.load(key)
}

// Counts returns the number of pending records per kind.
func (m *Manager) Counts() (map[models.Kind]int, error) {
	out := make(map[models.Kind]int)
	for _, kind := range models.Kinds() {
		p, err := m.Pending(kind)
		if err != nil {
			return nil, err
		}
		out[kind] = len(p)
	}
	return out, nil
}

// Clear drops every queued record of kind and returns how many were dropped.
func (m *Manager) Clear(kind models.Kind) (int, error) {
	key, err := queueKey(kind)
	if err != nil {
		return 0, err
	}
	return m.drain(key)
}

// Requeue moves dead-lettered records of kind back onto the queue with their
// attempt count reset.
func (m *Manager) Requeue(kind models.Kind) (int, error) {
	dkey, err := deadLetterKey(kind)
	if err != nil {
		return 0, err
	}
	qkey, _ := queueKey(kind)

	dead, err := m.load(dkey)
	if err != nil || len(dead) == 0 {
		return 0, err
	}
	for i := range dead {
		dead[i].Attempts = 0
		dead[i].LastError = ""
	}
	err = m.kv.UpdateItem(qkey, func(value string, ok bool) (string, error) {
		queue, err := decodeQueue(value, ok)
		if err != nil {
			return "", err
		}
		return encodeQueue(append(queue, dead...))
	})
	if err != nil {
		return 0, &StorageError{Key: qkey, Err: err}
	}
	// Drop only what was moved; new dead letters may have arrived meanwhile.
	moved := make(map[string]bool, len(dead))
	for _, r := range dead {
		moved[r.LocalID] = true
	}
	err = m.kv.UpdateItem(dkey, func(value string, ok bool) (string, error) {
		dl, err := decodeQueue(value, ok)
		if err != nil {
			return "", err
		}
		rest := dl[:0]
		for _, r := range dl {
			if !moved[r.LocalID] {
				rest = append(rest, r)
			}
		}
		return encodeQueue(rest)
	})
	if err != nil {
		return 0, &StorageError{Key: dkey, Err: err}
	}
	return len(dead), nil
}

func (m *Manager) drain(key string) (int, error) {
	n := 0
	err := m.kv.UpdateItem(key, func(value string, ok bool) (string, error) {
		queue, err := decodeQueue(value, ok)
		if err != nil {
			return "", err
		}
		n = len(queue)
		return encodeQueue(nil)
	})
	if err != nil {
		return 0, &StorageError{Key: key, Err: err}
	}
	return n, nil
}

// WatchConnectivity starts a sync in the background on every offline→online
// transition until ctx is done or the returned func is called.
func (m *Manager) WatchConnectivity(ctx context.Context) (stop func()) {
	cancel := m.probe.OnOnline(func() {
		go func() {
			report, err := m.SyncOfflineData(ctx)
			switch {
			case errors.Is(err, ErrSyncInProgress):
				m.log.Debug("sync: already running")
			case err != nil:
				m.log.Error("sync: failed", "err", err)
			case report.Total() > 0:
				m.log.Info("sync: back online", "synced", report.Total())
			}
		}()
	})
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return cancel
}

func (m *Manager) load(key string) ([]models.PendingRecord, error) {
	value, ok, err := m.kv.GetItem(key)
	if err != nil {
		return nil, &StorageError{Key: key, Err: err}
	}
	queue, err := decodeQueue(value, ok)
	if err != nil {
		return nil, &StorageError{Key: key, Err: err}
	}
	return queue, nil
}

func decodeQueue(value string, ok bool) ([]models.PendingRecord, error) {
	if !ok || strings.TrimSpace(value) == "" {
		return nil, nil
	}
	var queue []models.PendingRecord
	if err := json.Unmarshal([]byte(value), &queue); err != nil {
		return nil, fmt.Errorf("decode queue: %w", err)
	}
	return queue, nil
}

func encodeQueue(queue []models.PendingRecord) (string, error) {
	if queue == nil {
		queue = []models.PendingRecord{}
	}
	b, err := json.Marshal(queue)
	if err != nil {
		return "", fmt.Errorf("encode queue: %w", err)
	}
	return string(b), nil
}

// localFields never leave the device, whatever the payload carries.
var localFields = []string{"localId", "isPending", "isOffline"}

// cleanPayload returns a copy of payload without local bookkeeping or
// store-reserved ($-prefixed) attributes.
func cleanPayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if strings.HasPrefix(k, "$") {
			continue
		}
		out[k] = v
	}
	for _, k := range localFields {
		delete(out, k)
	}
	return out
}

func isAlreadyExists(err error) bool {
	var apiErr *remote.APIError
	return errors.As(err, &apiErr) && apiErr.Status == 409
}
