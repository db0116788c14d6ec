// Package fetch implements the Request Manager: a single HTTP client
// facade with URL-normalized request collapsing, hard timeouts, header
// rotation, a per-host cookie jar, robots.txt policy, and circuit-breaker
// integration.
package fetch

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hazyhaar/veillebot/breaker"
	"github.com/hazyhaar/veillebot/governor"
)

// CacheTTL is how long a completed fetch result is reused for a repeat
// request before a fresh round trip is made.
const CacheTTL = 30 * time.Second

// HardTimeout bounds every single fetch attempt wall-clock time.
const HardTimeout = 15 * time.Second

// MinDelay and MaxDelay bound the uniform random inter-request delay
// applied before every outbound request.
const (
	MinDelay = 1 * time.Second
	MaxDelay = 5 * time.Second
)

// MaxBodyBytes caps the response body read, guarding against unbounded
// memory use on a hostile or misconfigured target.
const MaxBodyBytes = 10 << 20

// Result is the outcome of a successful fetch.
type Result struct {
	HTML        string
	StatusCode  int
	FinalURL    string
	CompletedAt time.Time
}

type cacheEntry struct {
	result      *Result
	err         error
	completedAt time.Time
}

// CooldownHandler is invoked once when a host's breaker transitions to
// OPEN, so the chat layer can be told which host just tripped.
type CooldownHandler func(host string)

// Manager is the Request Manager. One Manager owns the cookie jar, the
// fetch cache, and the pending-request collapsing group; it is the single
// writer for all three.
type Manager struct {
	client   *http.Client
	breakers *breaker.Registry
	gov      *governor.Governor
	robots   *robotsCache
	rotor    *headerRotor
	sf       singleflight.Group
	logger   *slog.Logger
	onTrip   CooldownHandler

	cacheMu sync.Mutex
	cache   map[string]cacheEntry

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithCooldownHandler registers the one-shot cooldown notification hook.
func WithCooldownHandler(fn CooldownHandler) Option {
	return func(m *Manager) { m.onTrip = fn }
}

// New creates a Manager backed by the given Governor and breaker Registry.
func New(gov *governor.Governor, breakers *breaker.Registry, opts ...Option) *Manager {
	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar}

	m := &Manager{
		client:   client,
		breakers: breakers,
		gov:      gov,
		robots:   newRobotsCache(client),
		rotor:    &headerRotor{},
		logger:   slog.Default(),
		cache:    make(map[string]cacheEntry),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Fetch normalizes url, collapses concurrent identical requests, serves a
// cached result when fresh, and otherwise performs a guarded fetch.
func (m *Manager) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	norm, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	if cached, ok := m.cached(norm); ok {
		return cached, nil
	}

	v, err, _ := m.sf.Do(norm, func() (any, error) {
		if cached, ok := m.cached(norm); ok {
			return cached, nil
		}
		return m.doFetch(ctx, norm)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (m *Manager) cached(norm string) (*Result, bool) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	e, ok := m.cache[norm]
	if !ok || time.Since(e.completedAt) >= CacheTTL {
		return nil, false
	}
	return e.result, e.err == nil
}

func (m *Manager) doFetch(ctx context.Context, norm string) (*Result, error) {
	host := Host(norm)

	if !m.breakers.Allow(host) {
		return nil, &breaker.ErrCircuitOpen{Host: host}
	}

	path := pathOf(norm)
	if m.robots.disallowed(ctx, host, path) {
		return nil, &ErrPolicyBlocked{URL: norm}
	}

	if err := m.gov.AcquireFetchToken(ctx); err != nil {
		return nil, err
	}

	if err := m.sleepRandomDelay(ctx); err != nil {
		return nil, err
	}

	result, err := m.execute(ctx, norm)
	m.recordOutcome(host, err)
	m.store(norm, result, err)
	return result, err
}

func (m *Manager) execute(ctx context.Context, norm string) (*Result, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, HardTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, norm, nil)
	if err != nil {
		return nil, &ErrNetworkError{URL: norm, Cause: err}
	}
	applyHeaders(req.Header, m.rotor.next1(), "")

	resp, err := m.client.Do(req)
	if err != nil {
		if fetchCtx.Err() != nil {
			return nil, &ErrFetchTimeout{URL: norm}
		}
		return nil, &ErrNetworkError{URL: norm, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return nil, &ErrNetworkError{URL: norm, Cause: err}
	}

	if resp.StatusCode >= 400 {
		return nil, &ErrHTTPStatus{URL: norm, Code: resp.StatusCode}
	}

	return &Result{
		HTML:        string(body),
		StatusCode:  resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
		CompletedAt: time.Now(),
	}, nil
}

// recordOutcome updates the host's breaker and fires the one-shot cooldown
// hook on a fresh transition into OPEN. PolicyBlocked never reaches
// here; it returns before the breaker is touched.
func (m *Manager) recordOutcome(host string, err error) {
	if err == nil {
		m.breakers.RecordSuccess(host)
		return
	}
	if tripped := m.breakers.RecordFailure(host); tripped && m.onTrip != nil {
		m.onTrip(host)
	}
}

func (m *Manager) store(norm string, result *Result, err error) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	m.cache[norm] = cacheEntry{result: result, err: err, completedAt: time.Now()}
}

func (m *Manager) sleepRandomDelay(ctx context.Context) error {
	m.rngMu.Lock()
	d := MinDelay + time.Duration(m.rng.Int63n(int64(MaxDelay-MinDelay)))
	m.rngMu.Unlock()

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func pathOf(normalizedURL string) string {
	u, err := http.NewRequest(http.MethodGet, normalizedURL, nil)
	if err != nil {
		return "/"
	}
	if u.URL.Path == "" {
		return "/"
	}
	return u.URL.Path
}
