// Package engine implements the Commander: the root engine value that owns
// every long-lived component (store, governor, breaker registry, fetch
// manager, patrol driver, notifier, health server) behind a single
// start()/stop() lifecycle, and exposes the command handlers the chat
// layer calls (spec §6, §9 "process-wide state" design note).
package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hazyhaar/veillebot/breaker"
	"github.com/hazyhaar/veillebot/config"
	"github.com/hazyhaar/veillebot/fetch"
	"github.com/hazyhaar/veillebot/governor"
	"github.com/hazyhaar/veillebot/health"
	"github.com/hazyhaar/veillebot/notify"
	"github.com/hazyhaar/veillebot/patrol"
	"github.com/hazyhaar/veillebot/store"
)

// Engine is the process-wide root value. Nothing in this codebase reaches
// for ambient global state; every shared structure is a field here and
// reached only via this value or values it was constructed with.
type Engine struct {
	store    *store.Store
	gov      *governor.Governor
	breakers *breaker.Registry
	fetcher  *fetch.Manager
	patrol   *patrol.Engine
	notifier *notify.Notifier
	health   *health.Server

	defaults store.UserDefaults
	logger   *slog.Logger

	mu       sync.RWMutex
	accepting bool
}

// Deps bundles the components New wires together. All fields are
// required except Health, which may be nil to disable the HTTP surface.
type Deps struct {
	Store    *store.Store
	Governor *governor.Governor
	Breakers *breaker.Registry
	Fetcher  *fetch.Manager
	Patrol   *patrol.Engine
	Notifier *notify.Notifier
	Health   *health.Server
	Defaults config.UserDefaults
	Logger   *slog.Logger
}

// New assembles the Commander from already-constructed components. See
// cmd/veillebot for the wiring that builds Deps.
func New(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    d.Store,
		gov:      d.Governor,
		breakers: d.Breakers,
		fetcher:  d.Fetcher,
		patrol:   d.Patrol,
		notifier: d.Notifier,
		health:   d.Health,
		defaults: store.UserDefaults{
			SimilarityThreshold:  d.Defaults.SimilarityThreshold,
			CheckIntervalSeconds: d.Defaults.CheckIntervalSeconds,
			IncludeDiff:          d.Defaults.IncludeDiff,
			CustomSelector:       d.Defaults.CustomSelector,
		},
		logger:    logger,
		accepting: true,
	}
}

// Start launches the long-lived driver tasks: the notification drainer
// and the patrol cycle driver, and the health HTTP server if configured.
func (e *Engine) Start(ctx context.Context) {
	e.gov.StartDrainer(ctx)
	e.patrol.Start(ctx)

	if e.health != nil {
		go func() {
			if err := e.health.ListenAndServe(); err != nil {
				e.logger.Info("engine: health server stopped", "error", err)
			}
		}()
	}
}

// Stop executes the shutdown sequence from spec §5: stop accepting new
// commands, stop the patrol driver, stop the notification drainer, close
// the HTTP surface, then drain the write queue (best-effort, bounded by
// ctx). Cancelling in-flight fetch tasks is the caller's
// responsibility via ctx on the original Fetch calls.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	e.accepting = false
	e.mu.Unlock()

	e.patrol.Stop()
	e.gov.Stop()

	if e.health != nil {
		if err := e.health.Shutdown(); err != nil {
			e.logger.Warn("engine: health server shutdown failed", "error", err)
		}
	}

	return e.store.Close(ctx)
}

// Health returns the current metrics snapshot (the health() Commander
// method). Health may be nil when the HTTP surface is disabled (no port
// configured); callers then get a degraded snapshot rather than a panic.
func (e *Engine) Health() health.Snapshot {
	if e.health == nil {
		return health.Snapshot{Status: "disabled"}
	}
	return e.health.Snapshot()
}

// accept reports whether new commands should be admitted; false once
// shutdown has begun.
func (e *Engine) accept() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.accepting
}
