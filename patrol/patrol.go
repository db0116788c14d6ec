// Package patrol implements the Patrol Engine: the single periodic driver
// that fetches, fingerprints, and compares every due monitor, then submits
// one coalesced write per cycle.
package patrol

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/veillebot/breaker"
	"github.com/hazyhaar/veillebot/change"
	"github.com/hazyhaar/veillebot/fetch"
	"github.com/hazyhaar/veillebot/fingerprint"
	"github.com/hazyhaar/veillebot/governor"
	"github.com/hazyhaar/veillebot/notify"
	"github.com/hazyhaar/veillebot/store"
)

// DefaultInterval is the patrol cycle period absent an explicit override.
const DefaultInterval = 60 * time.Second

// DefaultConcurrency bounds how many monitors are processed in parallel
// within one cycle. A real multithreaded implementation runs the
// per-monitor body concurrently while still funnelling every fetch
// through the shared Governor/Breaker/Request Manager single owners.
const DefaultConcurrency = 8

// Engine is the Patrol Engine: one dedicated long-lived driver task.
type Engine struct {
	store    *store.Store
	gov      *governor.Governor
	fetcher  *fetch.Manager
	breakers *breaker.Registry
	logger   *slog.Logger

	interval    time.Duration
	concurrency int
	clock       func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithConcurrency overrides DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithClock overrides the engine's clock (for testing).
func WithClock(fn func() time.Time) Option { return func(e *Engine) { e.clock = fn } }

// New creates an Engine. interval ≤ 0 uses DefaultInterval.
func New(st *store.Store, gov *governor.Governor, fetcher *fetch.Manager, breakers *breaker.Registry, interval time.Duration, opts ...Option) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	e := &Engine{
		store:       st,
		gov:         gov,
		fetcher:     fetcher,
		breakers:    breakers,
		logger:      slog.Default(),
		interval:    interval,
		concurrency: DefaultConcurrency,
		clock:       time.Now,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Start launches the cycle driver as a dedicated goroutine.
func (e *Engine) Start(ctx context.Context) {
	go e.runLoop(ctx)
}

// Stop halts the driver and waits for the in-flight cycle (if any) to
// finish unwinding. Per §5's shutdown sequence, callers stop the patrol
// driver before cancelling in-flight fetch tasks.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	<-e.done
}

func (e *Engine) runLoop(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

// job is the lightweight per-monitor view the cycle driver reads before
// deciding which monitors are due, plus the read-only fingerprint/config
// snapshot needed to run comparison without a second document lookup.
type job struct {
	chatID  string
	url     string // normalized_url, the lookup key
	host    string
	monitor *store.Monitor // deep-copied snapshot, read-only
	cfg     store.UserDefaults
}

// runCycle executes one patrol pass: congestion check, due selection,
// bounded-concurrency processing, one coalesced write, then notification
// enqueue for anything the write confirmed durable.
func (e *Engine) runCycle(ctx context.Context) {
	if e.gov.IsCongested() {
		e.logger.Warn("patrol: cycle skipped, notification queue congested")
		return
	}

	now := e.clock()
	doc := e.store.Snapshot()
	due := e.dueJobs(doc, now)
	if len(due) == 0 {
		return
	}

	updates := e.processAll(ctx, due)
	if len(updates) == 0 {
		return
	}

	handle := e.store.SubmitWrite(func(d *store.Document) error {
		for _, u := range updates {
			u.apply(d)
		}
		d.Breakers = make(map[string]store.PersistedBreakerState)
		for host, ps := range e.breakers.Snapshot() {
			d.Breakers[host] = store.PersistedBreakerState{State: string(ps.State), Failures: ps.Failures, LastFailure: ps.LastFailure}
		}
		return nil
	})

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := handle.Wait(writeCtx); err != nil {
		e.logger.Error("patrol: coalesced write failed", "error", err)
		return
	}

	for _, u := range updates {
		for _, msg := range u.notifications {
			if err := e.gov.Enqueue(ctx, governor.Notification{ChatID: u.chatID, Msg: msg}); err != nil {
				e.logger.Warn("patrol: notification enqueue failed", "chat_id", u.chatID, "error", err)
			}
		}
	}
}

func (e *Engine) dueJobs(doc *store.Document, now time.Time) []job {
	var jobs []job
	for chatID, user := range doc.Users {
		for _, m := range user.Monitors {
			cfg := m.ResolvedConfig(user.Config)
			effective := time.Duration(cfg.CheckIntervalSeconds) * time.Second
			if !m.Metadata.LastCheckAt.IsZero() && m.Metadata.LastCheckAt.Add(effective).After(now) {
				continue
			}
			if m.Metadata.SnoozeUntil != nil && m.Metadata.SnoozeUntil.After(now) {
				continue
			}
			host := fetch.Host(m.NormalizedURL)
			if !e.breakers.Allow(host) {
				continue
			}
			jobs = append(jobs, job{chatID: chatID, url: m.NormalizedURL, host: host, monitor: m, cfg: cfg})
		}
	}
	return jobs
}

// monitorUpdate is the outcome of processing one monitor: a mutation to
// fold into the cycle's single coalesced write, plus any notifications to
// enqueue once that write has durably succeeded.
type monitorUpdate struct {
	chatID        string
	apply         func(doc *store.Document)
	notifications []notify.Message
}

func (e *Engine) processAll(ctx context.Context, jobs []job) []monitorUpdate {
	sem := make(chan struct{}, e.concurrency)
	results := make([]monitorUpdate, len(jobs))
	var wg sync.WaitGroup

	for i, j := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, j job) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.processOne(ctx, j)
		}(i, j)
	}
	wg.Wait()

	out := results[:0]
	for _, r := range results {
		if r.apply != nil {
			out = append(out, r)
		}
	}
	return out
}

// processOne runs the full fetch → fingerprint → compare pipeline for one
// monitor (spec §4.7 step 3.a–e) against its start-of-cycle snapshot and
// returns the mutation to apply at cycle end. Comparison is computed here
// (against the snapshot taken when the cycle began) rather than re-read
// inside the coalesced write, trading a small staleness window — no other
// writer touches a monitor's fingerprint between cycle start and the
// coalesced write under normal operation — for letting every monitor's
// fetch and fingerprint work run concurrently.
func (e *Engine) processOne(ctx context.Context, j job) monitorUpdate {
	now := e.clock()
	result, err := e.fetcher.Fetch(ctx, j.url)
	if err != nil {
		return e.failureUpdate(j, now, classifyFetchErr(err))
	}

	fp, err := fingerprint.Compute(result.HTML, j.cfg.CustomSelector)
	if _, blocked := err.(fingerprint.ErrBlockPage); blocked {
		tripped := e.breakers.RecordFailure(j.host)
		u := e.failureUpdate(j, now, store.StatusBlockPage)
		if tripped {
			u.notifications = append(u.notifications, notify.CooldownMessage(j.url))
		}
		return u
	}
	if err != nil {
		return e.failureUpdate(j, now, store.StatusNetwork)
	}

	return e.successUpdate(j, now, fp)
}

func classifyFetchErr(err error) store.LastStatus {
	switch err.(type) {
	case *fetch.ErrFetchTimeout:
		return store.StatusTimeout
	case *fetch.ErrHTTPStatus:
		return store.StatusHTTPStatus
	case *breaker.ErrCircuitOpen:
		return store.StatusCircuitOff
	case *fetch.ErrPolicyBlocked:
		return store.StatusPolicy
	default:
		return store.StatusNetwork
	}
}

// failureUpdate increments consecutive_failures and updates last_status;
// robots.txt policy blocks are a non-failure (§4.4) and do not count
// toward the breaker or the diagnostic threshold.
func (e *Engine) failureUpdate(j job, now time.Time, status store.LastStatus) monitorUpdate {
	policyBlocked := status == store.StatusPolicy
	host := j.host

	var notifications []notify.Message
	before := j.monitor.Metadata.ConsecutiveFailures
	after := before
	if !policyBlocked {
		after++
		if before < 3 && after >= 3 {
			notifications = append(notifications, notify.DiagnosticMessage(j.url))
		}
	}

	return monitorUpdate{
		chatID: j.chatID,
		apply: func(doc *store.Document) {
			m := findMonitor(doc, j.chatID, j.url)
			if m == nil {
				return
			}
			m.Metadata.LastCheckAt = now
			m.Metadata.CheckCount++
			m.Metadata.LastStatus = status
			if policyBlocked {
				return
			}
			m.Metadata.ConsecutiveFailures = after
			m.Metadata.CircuitBreakerState = string(e.breakers.State(host))
		},
		notifications: notifications,
	}
}

// successUpdate applies the first-run / baseline-reset / unchanged / alert
// branches of step 3.b–e. A successful fetch+fingerprint always clears
// consecutive_failures; the engine has no other signal that a monitor has
// recovered.
func (e *Engine) successUpdate(j job, now time.Time, fp *store.WeightedFingerprint) monitorUpdate {
	e.breakers.RecordSuccess(j.host)
	host := j.host

	var notifications []notify.Message
	var historyEntry *store.HistoryEntry
	var snapshot *store.ForensicSnapshot
	finalFingerprint := fp

	switch {
	case j.monitor.Fingerprint == nil:
		// First run: persist as baseline, no alert.
	case fingerprint.NeedsBaselineReset(j.monitor.Fingerprint):
		// Algorithm version changed: silent baseline reset, no alert.
	default:
		old := j.monitor.Fingerprint
		metrics := change.Compute(old.ContentText, fp.ContentText, old.StructureSignature, fp.StructureSignature)
		alert, changeType := change.Classify(metrics.Final, j.cfg.SimilarityThreshold)
		if alert {
			diff, truncated := change.SafeDiff(old.ContentText, fp.ContentText)
			summary := diff

			if snap, err := change.BuildSnapshot(old.RawHTML, fp.RawHTML, store.ChangeType(changeType), metrics, summary, truncated, now); err == nil {
				snapshot = &snap
			} else {
				e.logger.Error("patrol: forensic snapshot build failed", "url", j.url, "error", err)
			}

			historyEntry = &store.HistoryEntry{
				Timestamp:       now,
				ChangeType:      store.ChangeType(changeType),
				SimilarityFinal: metrics.Final,
				DiffSummary:     summary,
			}
			notifications = append(notifications, notify.ChangeMessage(j.url, store.ChangeType(changeType), metrics, diff, j.cfg.IncludeDiff))
		}
	}

	return monitorUpdate{
		chatID: j.chatID,
		apply: func(doc *store.Document) {
			m := findMonitor(doc, j.chatID, j.url)
			if m == nil {
				return
			}
			m.Metadata.LastCheckAt = now
			m.Metadata.CheckCount++
			m.Metadata.ConsecutiveFailures = 0
			m.Metadata.LastStatus = store.StatusOK
			m.Metadata.CircuitBreakerState = string(e.breakers.State(host))
			m.Fingerprint = finalFingerprint

			if historyEntry != nil {
				m.AppendHistory(*historyEntry, now)
			}
			if snapshot != nil {
				m.PushForensicSnapshot(*snapshot)
			}
		},
		notifications: notifications,
	}
}

func findMonitor(doc *store.Document, chatID, normalizedURL string) *store.Monitor {
	user, ok := doc.Users[chatID]
	if !ok {
		return nil
	}
	for _, m := range user.Monitors {
		if m.NormalizedURL == normalizedURL {
			return m
		}
	}
	return nil
}
