package job

import (
	"context"
	"sync"
	"testing"
)

// memStore is a trivial in-memory Store used only by tests in this package.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func TestApplyNamespaceIfAbsentIdempotent(t *testing.T) {
	once := ApplyNamespaceIfAbsent("com.test/namespace", "dummy_id_1")
	twice := ApplyNamespaceIfAbsent("com.test/namespace", once)
	if once != twice {
		t.Fatalf("expected idempotent namespacing, got %q then %q", once, twice)
	}
	if once != "com.test/namespace/dummy_id_1" {
		t.Fatalf("unexpected namespaced key: %q", once)
	}
}

func TestApplyNamespaceIfAbsentAlreadyPrefixed(t *testing.T) {
	key := "com.test/namespace/dummy_id_1"
	got := ApplyNamespaceIfAbsent("com.test/namespace", key)
	if got != key {
		t.Fatalf("expected key unchanged, got %q", got)
	}
}

func TestSetEntryThenGetEntryRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	req := Request{JobID: "dummy_id_1", JobName: "dummy", FactfilePath: "/tmp/somewhere"}

	if ok := SetEntry(ctx, store, "com.test/namespace", req.JobID, req, StateQueued, OutcomeWaiting, "server-1"); !ok {
		t.Fatalf("expected SetEntry to succeed")
	}

	entry, err := GetEntry(ctx, store, "com.test/namespace", req.JobID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry == nil {
		t.Fatalf("expected entry to be found")
	}
	if entry.JobID != req.JobID || entry.State != StateQueued || entry.Outcome != OutcomeWaiting {
		t.Fatalf("round-tripped entry mismatch: %+v", entry)
	}
}

func TestGetEntryAbsentReturnsNil(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	entry, err := GetEntry(ctx, store, "com.test/namespace", "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected nil entry for absent key, got %+v", entry)
	}
}

func TestGetEntryCorruptReturnsNilNotError(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	key := ApplyNamespaceIfAbsent("com.test/namespace", "bad_id")
	if err := store.Set(ctx, key, []byte("not-valid-base64!!")); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	entry, err := GetEntry(ctx, store, "com.test/namespace", "bad_id")
	if err != nil {
		t.Fatalf("expected no error on decode failure, got %v", err)
	}
	if entry != nil {
		t.Fatalf("expected nil entry for corrupt record, got %+v", entry)
	}
}

func TestValidateRejectsEmptyFields(t *testing.T) {
	cases := []struct {
		name string
		req  Request
	}{
		{"empty jobId", Request{JobName: "dummy", FactfilePath: "/tmp/somewhere"}},
		{"empty jobName", Request{JobID: "1", FactfilePath: "/tmp/somewhere"}},
		{"empty factfilePath", Request{JobID: "1", JobName: "dummy"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.req.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateAcceptsCompleteRequest(t *testing.T) {
	req := Request{JobID: "1", JobName: "dummy", FactfilePath: "/tmp/somewhere"}
	if err := req.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestCommandArgsPrependsRun(t *testing.T) {
	req := Request{JobID: "1", JobName: "dummy", FactfilePath: "/tmp/somewhere", FactfileArgs: []string{"--first-arg"}}
	args := req.CommandArgs()
	want := []string{"run", "/tmp/somewhere", "--first-arg"}
	if len(args) != len(want) {
		t.Fatalf("unexpected args: %v", args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("unexpected args: %v", args)
		}
	}
}
