package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"factotum-server/internal/dispatcher"
	"factotum-server/internal/job"
	"factotum-server/internal/runner"
	"factotum-server/internal/server"
)

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

type testFixture struct {
	app   *fiber.App
	disp  *dispatcher.Dispatcher
	store *memStore
	mgr   *server.Manager
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	store := newMemStore()
	mock := runner.NewMock()
	disp := dispatcher.New(dispatcher.Options{
		MaxJobs:    10,
		MaxWorkers: 2,
		Store:      store,
		Runner:     mock,
		Logger:     zap.NewNop(),
		ServerID:   "test-server",
		Namespace:  "com.test/namespace",
		Command:    "factotum",
	})
	go disp.Run()
	t.Cleanup(func() { disp.Inbox <- dispatcher.StopProcessing{} })

	mgr := server.NewManager("test-server", "", false, 0)
	handlers := NewHandlers(zap.NewNop(), disp, store, mock, mgr, nil, "com.test/namespace", "test")

	app := fiber.New()
	app.Post("/settings", handlers.Settings)
	app.Post("/submit", handlers.Submit)
	app.Get("/check", handlers.Check)
	app.Get("/status", handlers.Status)

	return &testFixture{app: app, disp: disp, store: store, mgr: mgr}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 2000)
	if err != nil {
		t.Fatal(err)
	}

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestSettingsInvalidStateReturns400(t *testing.T) {
	f := newFixture(t)
	status, body := doJSON(t, f.app, "POST", "/settings", map[string]string{"state": "INVALID"})

	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
	want := "Validation Error: Invalid 'state', must be one of (run|drain)"
	if body["message"] != want {
		t.Fatalf("expected message %q, got %v", want, body["message"])
	}
}

func TestDrainRejectsSubmit(t *testing.T) {
	f := newFixture(t)
	status, _ := doJSON(t, f.app, "POST", "/settings", map[string]string{"state": "drain"})
	if status != 200 {
		t.Fatalf("expected settings update to succeed, got %d", status)
	}

	status, body := doJSON(t, f.app, "POST", "/submit", map[string]interface{}{
		"jobId": "1", "jobName": "dummy", "factfilePath": "/tmp/somewhere", "factfileArgs": []string{"--first-arg"},
	})
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
	want := "Server in [drain] state - cannot submit job"
	if body["message"] != want {
		t.Fatalf("expected message %q, got %v", want, body["message"])
	}
}

func TestSubmitEmptyJobNameRejected(t *testing.T) {
	f := newFixture(t)
	status, body := doJSON(t, f.app, "POST", "/submit", map[string]interface{}{
		"jobId": "1", "jobName": "", "factfilePath": "/tmp/somewhere", "factfileArgs": []string{"--first-arg"},
	})
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
	want := "Validation Error: No valid value found: field 'jobName' cannot be empty"
	if body["message"] != want {
		t.Fatalf("expected message %q, got %v", want, body["message"])
	}
}

func TestSubmitDuplicateLiveJobRejected(t *testing.T) {
	f := newFixture(t)

	req := job.Request{JobID: "dummy_id_1", JobName: "dummy", FactfilePath: "/tmp/somewhere"}
	if !job.SetEntry(context.Background(), f.store, "com.test/namespace", "dummy_id_1", req, job.StateQueued, job.OutcomeWaiting, "test-server") {
		t.Fatal("failed to prepopulate store")
	}

	status, body := doJSON(t, f.app, "POST", "/submit", map[string]interface{}{
		"jobId": "dummy_id_1", "jobName": "dummy", "factfilePath": "/tmp/somewhere",
	})
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
	if body["message"] != "Job is already being processed" {
		t.Fatalf("unexpected message %v", body["message"])
	}
}

func TestSubmitQueueFullRejected(t *testing.T) {
	store := newMemStore()
	mock := runner.NewMock()
	// Zero workers so every admitted job genuinely sits in queue.
	disp := dispatcher.New(dispatcher.Options{
		MaxJobs: 1, MaxWorkers: 0, Store: store, Runner: mock,
		Logger: zap.NewNop(), ServerID: "s", Namespace: "com.test/namespace", Command: "factotum",
	})
	go disp.Run()
	t.Cleanup(func() { disp.Inbox <- dispatcher.StopProcessing{} })

	mgr := server.NewManager("s", "", false, 0)
	handlers := NewHandlers(zap.NewNop(), disp, store, mock, mgr, nil, "com.test/namespace", "test")
	app := fiber.New()
	app.Post("/submit", handlers.Submit)

	status, _ := doJSON(t, app, "POST", "/submit", map[string]interface{}{
		"jobId": "filler", "jobName": "filler", "factfilePath": "/tmp/a",
	})
	if status != 200 {
		t.Fatalf("expected first submit to succeed, got %d", status)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		q := dispatcher.NewQuery[bool]("queue-full")
		disp.Inbox <- dispatcher.CheckQueue{Query: q}
		if <-q.Reply {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	status, body := doJSON(t, app, "POST", "/submit", map[string]interface{}{
		"jobId": "second", "jobName": "second", "factfilePath": "/tmp/b",
	})
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
	if body["message"] != "Queue is full, cannot add job" {
		t.Fatalf("unexpected message %v", body["message"])
	}
}

func TestSubmitHappyPath(t *testing.T) {
	f := newFixture(t)

	status, body := doJSON(t, f.app, "POST", "/submit", map[string]interface{}{
		"jobId": "dummy_id_1", "jobName": "dummy", "factfilePath": "/tmp/somewhere",
	})
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if body["message"] != "SUBMITTING JOB REQ jobId:[dummy_id_1]" {
		t.Fatalf("unexpected message %v", body["message"])
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		entry, err := job.GetEntry(context.Background(), f.store, "com.test/namespace", "dummy_id_1")
		if err != nil {
			t.Fatal(err)
		}
		if entry != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("dispatcher never admitted the job")
}
