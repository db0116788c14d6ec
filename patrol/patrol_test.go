package patrol

import (
	"testing"
	"time"

	"github.com/hazyhaar/veillebot/breaker"
	"github.com/hazyhaar/veillebot/change"
	"github.com/hazyhaar/veillebot/fetch"
	"github.com/hazyhaar/veillebot/fingerprint"
	"github.com/hazyhaar/veillebot/store"
)

func newTestEngine(now time.Time) *Engine {
	return New(nil, nil, nil, breaker.New(), time.Minute, WithClock(func() time.Time { return now }))
}

func baseDoc(monitor *store.Monitor) *store.Document {
	return &store.Document{
		Users: map[string]*store.UserRecord{
			"chat1": {
				Config:   store.UserDefaults{SimilarityThreshold: 0.5, CheckIntervalSeconds: 60},
				Monitors: []*store.Monitor{monitor},
			},
		},
	}
}

func TestDueJobsSkipsMonitorCheckedWithinInterval(t *testing.T) {
	now := time.Now()
	e := newTestEngine(now)
	m := &store.Monitor{
		NormalizedURL: "https://example.com/",
		Metadata:      store.MonitorMetadata{LastCheckAt: now.Add(-10 * time.Second)},
	}
	doc := baseDoc(m)

	due := e.dueJobs(doc, now)
	if len(due) != 0 {
		t.Fatalf("expected 0 due jobs, got %d", len(due))
	}
}

func TestDueJobsIncludesMonitorPastInterval(t *testing.T) {
	now := time.Now()
	e := newTestEngine(now)
	m := &store.Monitor{
		NormalizedURL: "https://example.com/",
		Metadata:      store.MonitorMetadata{LastCheckAt: now.Add(-90 * time.Second)},
	}
	doc := baseDoc(m)

	due := e.dueJobs(doc, now)
	if len(due) != 1 {
		t.Fatalf("expected 1 due job, got %d", len(due))
	}
	if due[0].host != "https://example.com" {
		t.Fatalf("host = %q, want https://example.com", due[0].host)
	}
}

func TestDueJobsSkipsSnoozedMonitor(t *testing.T) {
	now := time.Now()
	e := newTestEngine(now)
	until := now.Add(time.Hour)
	m := &store.Monitor{
		NormalizedURL: "https://example.com/",
		Metadata:      store.MonitorMetadata{SnoozeUntil: &until},
	}
	doc := baseDoc(m)

	due := e.dueJobs(doc, now)
	if len(due) != 0 {
		t.Fatalf("expected snoozed monitor to be skipped, got %d due", len(due))
	}
}

func TestDueJobsSkipsOpenBreaker(t *testing.T) {
	now := time.Now()
	breakers := breaker.New(breaker.WithClock(func() time.Time { return now }))
	for i := 0; i < breaker.Threshold; i++ {
		breakers.RecordFailure("https://example.com")
	}
	e := New(nil, nil, nil, breakers, time.Minute, WithClock(func() time.Time { return now }))

	m := &store.Monitor{NormalizedURL: "https://example.com/"}
	doc := baseDoc(m)

	due := e.dueJobs(doc, now)
	if len(due) != 0 {
		t.Fatalf("expected open-breaker host to be skipped, got %d due", len(due))
	}
}

func TestClassifyFetchErr(t *testing.T) {
	cases := []struct {
		err  error
		want store.LastStatus
	}{
		{&fetch.ErrFetchTimeout{}, store.StatusTimeout},
		{&fetch.ErrHTTPStatus{}, store.StatusHTTPStatus},
		{&breaker.ErrCircuitOpen{}, store.StatusCircuitOff},
		{&fetch.ErrPolicyBlocked{}, store.StatusPolicy},
	}
	for _, c := range cases {
		got := classifyFetchErr(c.err)
		if got != c.want {
			t.Errorf("classifyFetchErr(%T) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestFailureUpdateFiresDiagnosticAtThirdFailure(t *testing.T) {
	now := time.Now()
	e := newTestEngine(now)
	j := job{
		chatID:  "chat1",
		url:     "https://example.com/",
		host:    "example.com",
		monitor: &store.Monitor{NormalizedURL: "https://example.com/", Metadata: store.MonitorMetadata{ConsecutiveFailures: 2}},
		cfg:     store.UserDefaults{},
	}

	u := e.failureUpdate(j, now, store.StatusNetwork)
	if len(u.notifications) != 1 {
		t.Fatalf("expected 1 diagnostic notification at 3rd failure, got %d", len(u.notifications))
	}

	doc := baseDoc(j.monitor)
	u.apply(doc)
	if j.monitor.Metadata.ConsecutiveFailures != 3 {
		t.Fatalf("ConsecutiveFailures = %d, want 3", j.monitor.Metadata.ConsecutiveFailures)
	}
	if j.monitor.Metadata.LastStatus != store.StatusNetwork {
		t.Fatalf("LastStatus = %q, want %q", j.monitor.Metadata.LastStatus, store.StatusNetwork)
	}
}

func TestFailureUpdatePolicyBlockedIsNonFailure(t *testing.T) {
	now := time.Now()
	e := newTestEngine(now)
	j := job{
		chatID:  "chat1",
		url:     "https://example.com/",
		host:    "example.com",
		monitor: &store.Monitor{NormalizedURL: "https://example.com/", Metadata: store.MonitorMetadata{ConsecutiveFailures: 2}},
	}

	u := e.failureUpdate(j, now, store.StatusPolicy)
	if len(u.notifications) != 0 {
		t.Fatalf("expected no notification for policy block, got %d", len(u.notifications))
	}

	doc := baseDoc(j.monitor)
	u.apply(doc)
	if j.monitor.Metadata.ConsecutiveFailures != 2 {
		t.Fatalf("ConsecutiveFailures changed on policy block: got %d, want unchanged 2", j.monitor.Metadata.ConsecutiveFailures)
	}
	if j.monitor.Metadata.CheckCount != 1 {
		t.Fatalf("CheckCount = %d, want 1", j.monitor.Metadata.CheckCount)
	}
}

func TestSuccessUpdateFirstRunSetsBaselineWithoutAlert(t *testing.T) {
	now := time.Now()
	e := newTestEngine(now)
	j := job{
		chatID:  "chat1",
		url:     "https://example.com/",
		host:    "example.com",
		monitor: &store.Monitor{NormalizedURL: "https://example.com/", Metadata: store.MonitorMetadata{ConsecutiveFailures: 1}},
		cfg:     store.UserDefaults{SimilarityThreshold: 0.5},
	}
	fp := &store.WeightedFingerprint{Hash: "abc", Version: fingerprint.CurrentVersion, ContentText: "hello world"}

	u := e.successUpdate(j, now, fp)
	if len(u.notifications) != 0 {
		t.Fatalf("first run should not alert, got %d notifications", len(u.notifications))
	}

	doc := baseDoc(j.monitor)
	u.apply(doc)
	if j.monitor.Fingerprint != fp {
		t.Fatalf("expected fingerprint to be persisted as baseline")
	}
	if j.monitor.Metadata.ConsecutiveFailures != 0 {
		t.Fatalf("ConsecutiveFailures = %d, want 0 after success", j.monitor.Metadata.ConsecutiveFailures)
	}
	if j.monitor.Metadata.LastStatus != store.StatusOK {
		t.Fatalf("LastStatus = %q, want ok", j.monitor.Metadata.LastStatus)
	}
}

func TestSuccessUpdateAlertsOnSignificantChange(t *testing.T) {
	now := time.Now()
	e := newTestEngine(now)
	old := &store.WeightedFingerprint{
		Hash: "old", Version: fingerprint.CurrentVersion,
		ContentText: "[article] The quick brown fox.",
		RawHTML:     "<html><body><article>The quick brown fox jumps over the lazy dog.</article></body></html>",
	}
	j := job{
		chatID: "chat1",
		url:    "https://example.com/",
		host:   "example.com",
		monitor: &store.Monitor{
			NormalizedURL: "https://example.com/",
			Fingerprint:   old,
		},
		cfg: store.UserDefaults{SimilarityThreshold: 0.9, IncludeDiff: true},
	}
	newFP := &store.WeightedFingerprint{
		Hash: "new", Version: fingerprint.CurrentVersion,
		ContentText: "[article] Completely different content.",
		RawHTML:     "<html><body><article>Completely different content describing something else entirely.</article></body></html>",
	}

	u := e.successUpdate(j, now, newFP)
	if len(u.notifications) != 1 {
		t.Fatalf("expected an alert notification for a major content change, got %d", len(u.notifications))
	}

	doc := baseDoc(j.monitor)
	u.apply(doc)
	if len(j.monitor.History) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(j.monitor.History))
	}
	if j.monitor.Fingerprint != newFP {
		t.Fatalf("expected fingerprint to be updated to the new snapshot")
	}
	if len(j.monitor.ForensicSnapshots) != 1 {
		t.Fatalf("expected 1 forensic snapshot, got %d", len(j.monitor.ForensicSnapshots))
	}
	snap := j.monitor.ForensicSnapshots[0]
	gotOld, err := change.DecodeAndDecompress(snap.OldContentCompressed)
	if err != nil {
		t.Fatalf("decode old snapshot content: %v", err)
	}
	if gotOld != old.RawHTML {
		t.Fatalf("forensic snapshot stored old content = %q, want raw HTML %q", gotOld, old.RawHTML)
	}
	gotNew, err := change.DecodeAndDecompress(snap.NewContentCompressed)
	if err != nil {
		t.Fatalf("decode new snapshot content: %v", err)
	}
	if gotNew != newFP.RawHTML {
		t.Fatalf("forensic snapshot stored new content = %q, want raw HTML %q", gotNew, newFP.RawHTML)
	}
}

func TestSuccessUpdateBaselineResetOnVersionChange(t *testing.T) {
	now := time.Now()
	e := newTestEngine(now)
	old := &store.WeightedFingerprint{Hash: "old", Version: "v1.0", ContentText: "stuff"}
	j := job{
		chatID:  "chat1",
		url:     "https://example.com/",
		host:    "example.com",
		monitor: &store.Monitor{NormalizedURL: "https://example.com/", Fingerprint: old},
		cfg:     store.UserDefaults{SimilarityThreshold: 0.5},
	}
	newFP := &store.WeightedFingerprint{Hash: "new", Version: fingerprint.CurrentVersion, ContentText: "totally unrelated text"}

	u := e.successUpdate(j, now, newFP)
	if len(u.notifications) != 0 {
		t.Fatalf("expected no alert on a baseline reset, got %d", len(u.notifications))
	}
}
