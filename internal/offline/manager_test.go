package offline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marcus/till/internal/connectivity"
	"github.com/marcus/till/internal/kvstore"
	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/remote"
)

// memKV is an in-memory KV. failSet fails every write; failKeys fails
// writes to the listed keys only.
type memKV struct {
	mu       sync.Mutex
	items    map[string]string
	failSet  error
	failKeys map[string]error
}

func newMemKV() *memKV { return &memKV{items: make(map[string]string)} }

func (m *memKV) GetItem(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *memKV) UpdateItem(key string, fn func(string, bool) (string, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	if err := m.failKeys[key]; err != nil {
		return err
	}
	v, ok := m.items[key]
	next, err := fn(v, ok)
	if err != nil {
		return err
	}
	m.items[key] = next
	return nil
}

// fakeStore records creates and fails those whose payload name is in fail.
type fakeStore struct {
	mu      sync.Mutex
	created []map[string]any
	ids     []string
	fail    map[string]bool
	failAll bool
	hook    func()
}

func (f *fakeStore) CreateDocument(_ context.Context, col, id string, data map[string]any, _ ...string) (*remote.Document, error) {
	if f.hook != nil {
		f.hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	name, _ := data["name"].(string)
	if f.failAll || f.fail[name] {
		return nil, fmt.Errorf("create %s: connection reset", name)
	}
	f.created = append(f.created, data)
	f.ids = append(f.ids, id)
	return &remote.Document{ID: id, CollectionID: col, CreatedAt: time.Unix(1700000000, 0), Data: data}, nil
}

func (f *fakeStore) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, d := range f.created {
		out = append(out, d["name"].(string))
	}
	return out
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestManager(kv KV, store Creator, probe connectivity.Probe, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = quiet
	}
	if opts.Now == nil {
		base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		opts.Now = func() time.Time { return base }
	}
	return New(kv, store, probe, opts)
}

func pendingNames(t *testing.T, m *Manager, kind models.Kind) []string {
	t.Helper()
	recs, err := m.Pending(kind)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	var out []string
	for _, r := range recs {
		out = append(out, r.Payload["name"].(string))
	}
	return out
}

func TestSaveRecord_OfflineQueues(t *testing.T) {
	store := &fakeStore{}
	m := newTestManager(newMemKV(), store, connectivity.NewStatic(false), Options{})

	payload := map[string]any{"name": "bill-1", "totalAmount": 300.0}
	res, err := m.SaveRecord(context.Background(), models.KindSale, payload)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if res.Mode != ModeOffline || !res.Queued() {
		t.Fatalf("mode: got %v, want offline", res.Mode)
	}
	if !models.IsLocalID(res.Record.ID) || !res.Record.Pending {
		t.Errorf("record: got %+v, want pending local id", res.Record)
	}
	if len(store.created) != 0 {
		t.Errorf("remote touched while offline: %v", store.created)
	}

	merged, err := m.GetCombinedData(models.KindSale, nil)
	if err != nil {
		t.Fatalf("combined: %v", err)
	}
	if len(merged) != 1 {
		t.Fatalf("merged len: got %d, want 1", len(merged))
	}
	if !reflect.DeepEqual(merged[0].Data, payload) {
		t.Errorf("payload: got %v, want %v", merged[0].Data, payload)
	}
}

func TestSaveRecord_OnlinePassthrough(t *testing.T) {
	store := &fakeStore{}
	m := newTestManager(newMemKV(), store, connectivity.NewStatic(true), Options{})

	res, err := m.SaveRecord(context.Background(), models.KindPurchase, map[string]any{"name": "chicken"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if res.Mode != ModeOnline {
		t.Fatalf("mode: got %v, want online", res.Mode)
	}
	if models.IsLocalID(res.Record.ID) || res.Record.ID == "" || res.Record.Pending {
		t.Errorf("record: got %+v, want confirmed remote id", res.Record)
	}
	if got := pendingNames(t, m, models.KindPurchase); len(got) != 0 {
		t.Errorf("queue: got %v, want empty", got)
	}
}

func TestSaveRecord_RemoteFailureFallsBack(t *testing.T) {
	store := &fakeStore{failAll: true}
	m := newTestManager(newMemKV(), store, connectivity.NewStatic(true), Options{})

	res, err := m.SaveRecord(context.Background(), models.KindSale, map[string]any{"name": "bill-1"})
	if err != nil {
		t.Fatalf("save should not surface remote errors: %v", err)
	}
	if res.Mode != ModeOffline {
		t.Fatalf("mode: got %v, want offline", res.Mode)
	}
	if got := pendingNames(t, m, models.KindSale); !reflect.DeepEqual(got, []string{"bill-1"}) {
		t.Errorf("queue: got %v, want [bill-1]", got)
	}
}

func TestSaveRecord_ConflictFallsBack(t *testing.T) {
	m := newTestManager(newMemKV(), conflictStore{}, connectivity.NewStatic(true), Options{})

	res, err := m.SaveRecord(context.Background(), models.KindSale, map[string]any{"name": "bill-1"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if res.Mode != ModeOffline {
		t.Fatalf("mode: got %v, want offline", res.Mode)
	}
	if !res.Record.Pending || !models.IsLocalID(res.Record.ID) {
		t.Errorf("record: got %+v, want a pending local record", res.Record)
	}
	if got := pendingNames(t, m, models.KindSale); !reflect.DeepEqual(got, []string{"bill-1"}) {
		t.Errorf("queue: got %v, want [bill-1]", got)
	}
}

func TestSaveRecord_NilClientQueues(t *testing.T) {
	m := newTestManager(newMemKV(), nil, connectivity.NewStatic(true), Options{})

	res, err := m.SaveRecord(context.Background(), models.KindPurchase, map[string]any{"name": "goat"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if res.Mode != ModeOffline {
		t.Errorf("mode: got %v, want offline", res.Mode)
	}
	report, err := m.SyncOfflineData(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !report.Skipped {
		t.Error("sync without a client should be skipped")
	}
	if got := pendingNames(t, m, models.KindPurchase); !reflect.DeepEqual(got, []string{"goat"}) {
		t.Errorf("queue: got %v, want [goat]", got)
	}
}

func TestSaveRecord_StorageFailure(t *testing.T) {
	kv := newMemKV()
	kv.failSet = errors.New("disk full")
	m := newTestManager(kv, &fakeStore{}, connectivity.NewStatic(false), Options{})

	_, err := m.SaveRecord(context.Background(), models.KindSale, map[string]any{"name": "x"})
	var serr *StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("got %v, want *StorageError", err)
	}
	if serr.Key != salesQueueKey {
		t.Errorf("key: got %q, want %q", serr.Key, salesQueueKey)
	}
}

func TestSaveRecord_UnknownKind(t *testing.T) {
	m := newTestManager(newMemKV(), &fakeStore{}, connectivity.NewStatic(true), Options{})
	if _, err := m.SaveRecord(context.Background(), models.Kind("refund"), nil); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("got %v, want ErrUnknownKind", err)
	}
}

func TestSaveRecord_LocalIDsUnique(t *testing.T) {
	// Fixed clock: every id would be the same millisecond without bumping.
	m := newTestManager(newMemKV(), &fakeStore{}, connectivity.NewStatic(false), Options{})

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		res, err := m.SaveRecord(context.Background(), models.KindSale, map[string]any{"name": fmt.Sprint(i)})
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		if seen[res.Record.ID] {
			t.Fatalf("duplicate local id %s", res.Record.ID)
		}
		seen[res.Record.ID] = true
	}

	// A second manager over the same queue must not reuse ids either.
	other := newTestManager(m.kv, &fakeStore{}, connectivity.NewStatic(false), Options{})
	res, err := other.SaveRecord(context.Background(), models.KindSale, map[string]any{"name": "5"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if seen[res.Record.ID] {
		t.Errorf("second process reused %s", res.Record.ID)
	}
}

func queueThree(t *testing.T, m *Manager, kind models.Kind) {
	t.Helper()
	for _, n := range []string{"A", "B", "C"} {
		if _, err := m.SaveRecord(context.Background(), kind, map[string]any{"name": n}); err != nil {
			t.Fatalf("save %s: %v", n, err)
		}
	}
}

func TestSyncOfflineData_FIFOPartialFailure(t *testing.T) {
	probe := connectivity.NewStatic(false)
	store := &fakeStore{fail: map[string]bool{"B": true}}
	m := newTestManager(newMemKV(), store, probe, Options{})
	queueThree(t, m, models.KindSale)

	probe.Set(true)
	report, err := m.SyncOfflineData(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	if got := store.names(); !reflect.DeepEqual(got, []string{"A", "C"}) {
		t.Errorf("created: got %v, want [A C]", got)
	}
	if got := pendingNames(t, m, models.KindSale); !reflect.DeepEqual(got, []string{"B"}) {
		t.Errorf("queue: got %v, want [B]", got)
	}
	if report.Synced[models.KindSale] != 2 || report.Retained[models.KindSale] != 1 {
		t.Errorf("report: got %+v", report)
	}

	recs, _ := m.Pending(models.KindSale)
	if recs[0].Attempts != 1 || !strings.Contains(recs[0].LastError, "connection reset") {
		t.Errorf("retained record: got attempts=%d err=%q", recs[0].Attempts, recs[0].LastError)
	}
}

func TestSyncOfflineData_StripsLocalFields(t *testing.T) {
	probe := connectivity.NewStatic(false)
	store := &fakeStore{}
	m := newTestManager(newMemKV(), store, probe, Options{})

	payload := map[string]any{"name": "A", "$id": "TEMP_1", "isOffline": true, "isPending": true, "totalAmount": 10.0}
	if _, err := m.SaveRecord(context.Background(), models.KindSale, payload); err != nil {
		t.Fatalf("save: %v", err)
	}
	probe.Set(true)
	if _, err := m.SyncOfflineData(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	want := map[string]any{"name": "A", "totalAmount": 10.0}
	if !reflect.DeepEqual(store.created[0], want) {
		t.Errorf("sent: got %v, want %v", store.created[0], want)
	}
	if models.IsLocalID(store.ids[0]) {
		t.Errorf("sent local id %s upstream", store.ids[0])
	}
}

func TestSyncOfflineData_ReplayReusesDocumentID(t *testing.T) {
	probe := connectivity.NewStatic(true)
	store := &fakeStore{failAll: true}
	ids := []string{"doc1", "doc2"}
	m := newTestManager(newMemKV(), store, probe, Options{NewID: func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}})

	if _, err := m.SaveRecord(context.Background(), models.KindSale, map[string]any{"name": "A"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	store.failAll = false
	if _, err := m.SyncOfflineData(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !reflect.DeepEqual(store.ids, []string{"doc1"}) {
		t.Errorf("ids: got %v, want [doc1]", store.ids)
	}
}

// conflictStore reports every create as already existing.
type conflictStore struct{}

func (conflictStore) CreateDocument(context.Context, string, string, map[string]any, ...string) (*remote.Document, error) {
	return nil, &remote.APIError{Status: 409, Type: "document_already_exists"}
}

func TestSyncOfflineData_AlreadyExistsCountsAsSynced(t *testing.T) {
	probe := connectivity.NewStatic(false)
	kv := newMemKV()
	m := newTestManager(kv, &fakeStore{}, probe, Options{})
	queueThree(t, m, models.KindPurchase)

	probe.Set(true)
	m2 := newTestManager(kv, conflictStore{}, probe, Options{})
	report, err := m2.SyncOfflineData(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Synced[models.KindPurchase] != 3 {
		t.Errorf("synced: got %d, want 3", report.Synced[models.KindPurchase])
	}
	if got := pendingNames(t, m2, models.KindPurchase); len(got) != 0 {
		t.Errorf("queue: got %v, want empty", got)
	}
}

func TestSyncOfflineData_OfflineIsNoop(t *testing.T) {
	store := &fakeStore{}
	m := newTestManager(newMemKV(), store, connectivity.NewStatic(false), Options{})
	queueThree(t, m, models.KindSale)

	report, err := m.SyncOfflineData(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !report.Skipped || len(store.created) != 0 {
		t.Errorf("got skipped=%v created=%v, want skipped and nothing sent", report.Skipped, store.created)
	}
	if got := pendingNames(t, m, models.KindSale); len(got) != 3 {
		t.Errorf("queue: got %v, want 3 records", got)
	}
}

func TestSyncOfflineData_EmptyQueues(t *testing.T) {
	m := newTestManager(newMemKV(), &fakeStore{}, connectivity.NewStatic(true), Options{})
	report, err := m.SyncOfflineData(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Total() != 0 {
		t.Errorf("total: got %d, want 0", report.Total())
	}
}

func TestSyncOfflineData_SaveDuringSyncIsKept(t *testing.T) {
	probe := connectivity.NewStatic(false)
	kv := newMemKV()
	m := newTestManager(kv, &fakeStore{}, probe, Options{})
	queueThree(t, m, models.KindSale)
	probe.Set(true)

	var once sync.Once
	store := &fakeStore{}
	store.hook = func() {
		once.Do(func() {
			// A write that lands while the replay is in flight.
			probe.Set(false)
			if _, err := m.SaveRecord(context.Background(), models.KindSale, map[string]any{"name": "D"}); err != nil {
				t.Errorf("save during sync: %v", err)
			}
			probe.Set(true)
		})
	}
	m.client = store

	if _, err := m.SyncOfflineData(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got := pendingNames(t, m, models.KindSale); !reflect.DeepEqual(got, []string{"D"}) {
		t.Errorf("queue: got %v, want [D]", got)
	}
}

func TestSyncOfflineData_InProgress(t *testing.T) {
	probe := connectivity.NewStatic(false)
	m := newTestManager(newMemKV(), nil, probe, Options{})
	queueThree(t, m, models.KindSale)
	probe.Set(true)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	m.client = &fakeStore{hook: func() {
		once.Do(func() { close(entered) })
		<-release
	}}

	done := make(chan error, 1)
	go func() {
		_, err := m.SyncOfflineData(context.Background())
		done <- err
	}()

	<-entered
	if !m.Syncing() {
		t.Error("Syncing: got false during sync")
	}
	if _, err := m.SyncOfflineData(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("concurrent sync: got %v, want ErrSyncInProgress", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first sync: %v", err)
	}
}

func TestSyncOfflineData_DeadLetterAndRequeue(t *testing.T) {
	probe := connectivity.NewStatic(false)
	store := &fakeStore{fail: map[string]bool{"B": true}}
	m := newTestManager(newMemKV(), store, probe, Options{MaxAttempts: 2})
	queueThree(t, m, models.KindSale)
	probe.Set(true)

	for i := 0; i < 2; i++ {
		if _, err := m.SyncOfflineData(context.Background()); err != nil {
			t.Fatalf("sync %d: %v", i, err)
		}
	}
	if got := pendingNames(t, m, models.KindSale); len(got) != 0 {
		t.Errorf("queue: got %v, want empty", got)
	}
	dead, err := m.DeadLetters(models.KindSale)
	if err != nil {
		t.Fatalf("dead letters: %v", err)
	}
	if len(dead) != 1 || dead[0].Payload["name"] != "B" || dead[0].Attempts != 2 {
		t.Fatalf("dead letters: got %+v", dead)
	}

	n, err := m.Requeue(models.KindSale)
	if err != nil || n != 1 {
		t.Fatalf("requeue: got %d, %v", n, err)
	}
	recs, _ := m.Pending(models.KindSale)
	if len(recs) != 1 || recs[0].Attempts != 0 {
		t.Errorf("requeued: got %+v", recs)
	}
	if dead, _ := m.DeadLetters(models.KindSale); len(dead) != 0 {
		t.Errorf("dead letters after requeue: got %d", len(dead))
	}
}

func TestSyncOfflineData_DeadLetterWriteFailureKeepsRecord(t *testing.T) {
	probe := connectivity.NewStatic(false)
	kv := newMemKV()
	store := &fakeStore{failAll: true}
	m := newTestManager(kv, store, probe, Options{MaxAttempts: 1})
	if _, err := m.SaveRecord(context.Background(), models.KindSale, map[string]any{"name": "A"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	probe.Set(true)

	kv.failKeys = map[string]error{salesDeadLetterKey: errors.New("disk full")}
	report, err := m.SyncOfflineData(context.Background())
	var serr *StorageError
	if !errors.As(err, &serr) || serr.Key != salesDeadLetterKey {
		t.Fatalf("got %v, want *StorageError for %s", err, salesDeadLetterKey)
	}
	if report.DeadLettered[models.KindSale] != 0 {
		t.Errorf("dead lettered: got %d, want 0", report.DeadLettered[models.KindSale])
	}
	recs, _ := m.Pending(models.KindSale)
	if len(recs) != 1 || recs[0].Payload["name"] != "A" || recs[0].Attempts != 1 {
		t.Fatalf("queue: got %+v, want A with 1 attempt", recs)
	}
	if dead, _ := m.DeadLetters(models.KindSale); len(dead) != 0 {
		t.Errorf("dead letters: got %d, want 0", len(dead))
	}

	kv.failKeys = nil
	report, err = m.SyncOfflineData(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.DeadLettered[models.KindSale] != 1 {
		t.Errorf("dead lettered: got %d, want 1", report.DeadLettered[models.KindSale])
	}
	if got := pendingNames(t, m, models.KindSale); len(got) != 0 {
		t.Errorf("queue: got %v, want empty", got)
	}
	dead, _ := m.DeadLetters(models.KindSale)
	if len(dead) != 1 || dead[0].Attempts != 2 {
		t.Errorf("dead letters: got %+v, want A with 2 attempts", dead)
	}
}

func TestSyncOfflineData_ZeroMaxAttemptsRetriesForever(t *testing.T) {
	probe := connectivity.NewStatic(true)
	m := newTestManager(newMemKV(), &fakeStore{failAll: true}, probe, Options{})
	if _, err := m.SaveRecord(context.Background(), models.KindSale, map[string]any{"name": "A"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := m.SyncOfflineData(context.Background()); err != nil {
			t.Fatalf("sync: %v", err)
		}
	}
	recs, _ := m.Pending(models.KindSale)
	if len(recs) != 1 || recs[0].Attempts != 5 {
		t.Errorf("got %+v, want one record with 5 attempts", recs)
	}
}

func TestGetCombinedData_OrderAndIdempotence(t *testing.T) {
	m := newTestManager(newMemKV(), &fakeStore{}, connectivity.NewStatic(false), Options{})
	queueThree(t, m, models.KindSale)

	remoteRecs := []models.Record{{ID: "r1", Data: map[string]any{"name": "R"}}}
	first, err := m.GetCombinedData(models.KindSale, remoteRecs)
	if err != nil {
		t.Fatalf("combined: %v", err)
	}
	second, _ := m.GetCombinedData(models.KindSale, remoteRecs)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("merged view changed between calls:\n%v\n%v", first, second)
	}

	var names []string
	for _, r := range first {
		names = append(names, r.Data["name"].(string))
	}
	if want := []string{"A", "B", "C", "R"}; !reflect.DeepEqual(names, want) {
		t.Errorf("order: got %v, want %v", names, want)
	}
	if !first[0].Pending || first[3].Pending {
		t.Error("pending flags wrong")
	}
}

func TestClearAndCounts(t *testing.T) {
	m := newTestManager(newMemKV(), &fakeStore{}, connectivity.NewStatic(false), Options{})
	queueThree(t, m, models.KindPurchase)

	counts, err := m.Counts()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[models.KindPurchase] != 3 || counts[models.KindSale] != 0 {
		t.Errorf("counts: got %v", counts)
	}
	n, err := m.Clear(models.KindPurchase)
	if err != nil || n != 3 {
		t.Fatalf("clear: got %d, %v", n, err)
	}
	if got := pendingNames(t, m, models.KindPurchase); len(got) != 0 {
		t.Errorf("queue after clear: got %v", got)
	}
}

func TestCorruptQueueIsStorageError(t *testing.T) {
	kv := newMemKV()
	kv.items[salesQueueKey] = "{not json"
	m := newTestManager(kv, &fakeStore{}, connectivity.NewStatic(false), Options{})

	var serr *StorageError
	if _, err := m.Pending(models.KindSale); !errors.As(err, &serr) {
		t.Errorf("pending: got %v, want *StorageError", err)
	}
	if _, err := m.SaveRecord(context.Background(), models.KindSale, map[string]any{"name": "x"}); !errors.As(err, &serr) {
		t.Errorf("save: got %v, want *StorageError", err)
	}
}

func TestWatchConnectivity_SyncsOnTransition(t *testing.T) {
	probe := connectivity.NewStatic(false)
	store := &fakeStore{}
	m := newTestManager(newMemKV(), store, probe, Options{})
	queueThree(t, m, models.KindSale)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := m.WatchConnectivity(ctx)
	defer stop()

	probe.Set(true)
	deadline := time.Now().Add(2 * time.Second)
	for len(store.names()) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("sync did not run: created %v", store.names())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// End to end over the real SQLite store: a stock purchase recorded offline is
// synced and then appears once, confirmed, in the merged view.
func TestOfflinePurchaseRoundTrip(t *testing.T) {
	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer kv.Close()

	probe := connectivity.NewStatic(false)
	store := &fakeStore{}
	m := newTestManager(kv, store, probe, Options{})

	p := models.Purchase{
		UserID:      "u1",
		Type:        models.PurchaseStock,
		ProductName: "Whole Chicken",
		Weight:      2.0,
		CostPerKg:   180,
		Date:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if _, err := m.SaveRecord(context.Background(), models.KindPurchase, p.Payload()); err != nil {
		t.Fatalf("save: %v", err)
	}

	view, _ := m.GetCombinedData(models.KindPurchase, nil)
	if len(view) != 1 || !view[0].Pending {
		t.Fatalf("offline view: got %+v, want one pending record", view)
	}

	probe.Set(true)
	if _, err := m.SyncOfflineData(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got := pendingNames(t, m, models.KindPurchase); len(got) != 0 {
		t.Fatalf("queue after sync: got %v", got)
	}
	if store.created[0]["totalCost"] != 360.0 {
		t.Errorf("totalCost: got %v, want 360", store.created[0]["totalCost"])
	}

	fetched := []models.Record{{ID: store.ids[0], Data: store.created[0]}}
	view, _ = m.GetCombinedData(models.KindPurchase, fetched)
	if len(view) != 1 || view[0].Pending {
		t.Errorf("online view: got %+v, want one confirmed record", view)
	}
}
