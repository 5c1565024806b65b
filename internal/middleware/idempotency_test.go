package middleware_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/canopyhq/canopy/internal/middleware"
)

// fakeKV backs the replay bucket in memory; only Get and Put carry
// behavior, the rest of jetstream.KeyValue is stubbed.
type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string][]byte)}
}

func (m *fakeKV) stored(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func (m *fakeKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return &fakeEntry{key: key, value: v}, nil
}

func (m *fakeKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return 1, nil
}

func (m *fakeKV) Bucket() string { return "canopy-idempotency" }
func (m *fakeKV) Create(_ context.Context, _ string, _ []byte, _ ...jetstream.KVCreateOpt) (uint64, error) {
	return 0, nil
}
func (m *fakeKV) Update(_ context.Context, _ string, _ []byte, _ uint64) (uint64, error) {
	return 0, nil
}
func (m *fakeKV) PutString(_ context.Context, _, _ string) (uint64, error)             { return 0, nil }
func (m *fakeKV) Delete(_ context.Context, _ string, _ ...jetstream.KVDeleteOpt) error { return nil }
func (m *fakeKV) Purge(_ context.Context, _ string, _ ...jetstream.KVDeleteOpt) error  { return nil }
func (m *fakeKV) GetRevision(_ context.Context, _ string, _ uint64) (jetstream.KeyValueEntry, error) {
	return nil, nil
}
func (m *fakeKV) Keys(_ context.Context, _ ...jetstream.WatchOpt) ([]string, error) { return nil, nil }
func (m *fakeKV) ListKeys(_ context.Context, _ ...jetstream.WatchOpt) (jetstream.KeyLister, error) {
	return nil, nil
}
func (m *fakeKV) ListKeysFiltered(_ context.Context, _ ...string) (jetstream.KeyLister, error) {
	return nil, nil
}
func (m *fakeKV) History(_ context.Context, _ string, _ ...jetstream.WatchOpt) ([]jetstream.KeyValueEntry, error) {
	return nil, nil
}
func (m *fakeKV) Watch(_ context.Context, _ string, _ ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	return nil, nil
}
func (m *fakeKV) WatchAll(_ context.Context, _ ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	return nil, nil
}
func (m *fakeKV) WatchFiltered(_ context.Context, _ []string, _ ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	return nil, nil
}
func (m *fakeKV) Status(_ context.Context) (jetstream.KeyValueStatus, error)      { return nil, nil }
func (m *fakeKV) PurgeDeletes(_ context.Context, _ ...jetstream.KVPurgeOpt) error { return nil }

type fakeEntry struct {
	key   string
	value []byte
}

func (e *fakeEntry) Bucket() string                  { return "canopy-idempotency" }
func (e *fakeEntry) Key() string                     { return e.key }
func (e *fakeEntry) Value() []byte                   { return e.value }
func (e *fakeEntry) Revision() uint64                { return 1 }
func (e *fakeEntry) Created() time.Time              { return time.Time{} }
func (e *fakeEntry) Delta() uint64                   { return 0 }
func (e *fakeEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }

// countingHandler simulates an entity create, counting real invocations.
func countingHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"version":%d}`, *calls)
	})
}

func post(handler http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/entities", http.NoBody)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestIdempotencyWithoutKeyPassesThrough(t *testing.T) {
	calls := 0
	handler := middleware.Idempotency(newFakeKV())(countingHandler(&calls))

	if rec := post(handler, ""); rec.Code != http.StatusCreated {
		t.Fatalf("status %d", rec.Code)
	}
	if calls != 1 {
		t.Fatalf("handler called %d times", calls)
	}
}

func TestIdempotencyStoresFirstResponse(t *testing.T) {
	calls := 0
	kv := newFakeKV()
	handler := middleware.Idempotency(kv)(countingHandler(&calls))

	if rec := post(handler, "create-1"); rec.Code != http.StatusCreated {
		t.Fatalf("status %d", rec.Code)
	}
	if !kv.stored("create-1") {
		t.Fatal("response not stored under the key")
	}
}

func TestIdempotencyReplaysRetry(t *testing.T) {
	calls := 0
	handler := middleware.Idempotency(newFakeKV())(countingHandler(&calls))

	first := post(handler, "create-2")
	second := post(handler, "create-2")

	if calls != 1 {
		t.Fatalf("handler ran %d times for one key", calls)
	}
	if second.Code != first.Code {
		t.Fatalf("replay status %d, original %d", second.Code, first.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replay body %q differs from original %q", second.Body.String(), first.Body.String())
	}
}

func TestIdempotencyIgnoresReads(t *testing.T) {
	calls := 0
	handler := middleware.Idempotency(newFakeKV())(countingHandler(&calls))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/entities", http.NoBody)
		req.Header.Set("Idempotency-Key", "read-key")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("GET requests deduplicated, handler ran %d times", calls)
	}
}

func TestIdempotencyDistinctKeysRunSeparately(t *testing.T) {
	calls := 0
	handler := middleware.Idempotency(newFakeKV())(countingHandler(&calls))

	post(handler, "key-a")
	post(handler, "key-b")

	if calls != 2 {
		t.Fatalf("expected both keys to execute, got %d calls", calls)
	}
}
