package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/veillebot/breaker"
	"github.com/hazyhaar/veillebot/governor"
	"github.com/hazyhaar/veillebot/store"
)

type nopSink struct{}

func (nopSink) Deliver(ctx context.Context, chatID string, msg any) error { return nil }

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "db.json"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Close(ctx)
	})
	return s
}

func TestSnapshotCountsUsersAndMonitors(t *testing.T) {
	st := openTestStore(t)
	handle := st.SubmitWrite(func(doc *store.Document) error {
		doc.Users = map[string]*store.UserRecord{
			"chat1": {Monitors: []*store.Monitor{{NormalizedURL: "https://a.example/"}, {NormalizedURL: "https://b.example/"}}},
			"chat2": {Monitors: []*store.Monitor{{NormalizedURL: "https://c.example/"}}},
		}
		return nil
	})
	if _, err := handle.Wait(context.Background()); err != nil {
		t.Fatalf("SubmitWrite: %v", err)
	}

	gov := governor.New(nopSink{}, nil)
	breakers := breaker.New()
	srv := New("", st, gov, breakers, nil)

	snap := srv.Snapshot()
	if snap.UserCount != 2 {
		t.Fatalf("UserCount = %d, want 2", snap.UserCount)
	}
	if snap.MonitorCount != 3 {
		t.Fatalf("MonitorCount = %d, want 3", snap.MonitorCount)
	}
	if snap.Status != "ok" {
		t.Fatalf("Status = %q, want ok", snap.Status)
	}
}

func TestSnapshotReportsOpenBreakers(t *testing.T) {
	st := openTestStore(t)
	gov := governor.New(nopSink{}, nil)
	breakers := breaker.New()
	for i := 0; i < breaker.Threshold; i++ {
		breakers.RecordFailure("example.com")
	}

	srv := New("", st, gov, breakers, nil)
	snap := srv.Snapshot()
	if snap.OpenBreakers != 1 {
		t.Fatalf("OpenBreakers = %d, want 1", snap.OpenBreakers)
	}
}

func TestHandleHealthzReturnsOK(t *testing.T) {
	st := openTestStore(t)
	gov := governor.New(nopSink{}, nil)
	breakers := breaker.New()
	srv := New(":0", st, gov, breakers, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body status = %q, want ok", body["status"])
	}
}

func TestHandleMetricsReturnsSnapshot(t *testing.T) {
	st := openTestStore(t)
	gov := governor.New(nopSink{}, nil)
	breakers := breaker.New()
	srv := New(":0", st, gov, breakers, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	srv.srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var snap Snapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if snap.Status != "ok" {
		t.Fatalf("Status = %q, want ok", snap.Status)
	}
}
