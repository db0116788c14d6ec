package engine

import (
	"context"
	"time"

	"github.com/hazyhaar/veillebot/config"
	"github.com/hazyhaar/veillebot/fetch"
	"github.com/hazyhaar/veillebot/idgen"
	"github.com/hazyhaar/veillebot/store"
)

// allowedSnoozeDurations enumerates the snooze values the chat layer may
// request (spec §6).
var allowedSnoozeDurations = map[time.Duration]bool{
	time.Hour:      true,
	6 * time.Hour:  true,
	24 * time.Hour: true,
}

// stopWatchingSentinel is how stop_watching pauses a monitor indefinitely
// without deleting its history: a snooze far enough in the future that it
// never naturally elapses. remove_monitor, by contrast, deletes the record
// outright. The two commands are otherwise indistinguishable in spec.md;
// this is a deliberate supplement.
const stopWatchingSentinel = 100 * 365 * 24 * time.Hour

// AddMonitor registers url for chatID. Returns ok=false with a reason
// instead of an error for ordinary rejections (already watching,
// malformed URL) so the chat layer can surface it directly to the user.
func (e *Engine) AddMonitor(ctx context.Context, chatID, rawURL string) (ok bool, reason string, err error) {
	if err := e.requireAccepting(); err != nil {
		return false, "", err
	}
	normalized, nerr := fetch.NormalizeURL(rawURL)
	if nerr != nil {
		return false, "malformed URL", nil
	}

	handle := e.store.SubmitWrite(func(doc *store.Document) error {
		user := ensureUser(doc, chatID, e.defaults)
		for _, m := range user.Monitors {
			if m.NormalizedURL == normalized {
				return &ErrMonitorExists{URL: normalized}
			}
		}
		user.Monitors = append(user.Monitors, &store.Monitor{
			ID:            idgen.New(),
			URL:           rawURL,
			NormalizedURL: normalized,
			Metadata:      store.MonitorMetadata{CreatedAt: time.Now()},
		})
		return nil
	})

	if _, werr := handle.Wait(ctx); werr != nil {
		if _, dup := werr.(*ErrMonitorExists); dup {
			return false, werr.Error(), nil
		}
		return false, "", werr
	}
	return true, "", nil
}

// MonitorPage is one page of a user's monitors.
type MonitorPage struct {
	Monitors []*store.Monitor
	Page     int
	PageSize int
	Total    int
}

// DefaultPageSize is the page size list_monitors uses absent an override.
const DefaultPageSize = 20

// ListMonitors returns page (1-indexed) of chatID's monitors.
func (e *Engine) ListMonitors(ctx context.Context, chatID string, page int) (MonitorPage, error) {
	if page < 1 {
		page = 1
	}
	doc := e.store.Snapshot()
	user, ok := doc.Users[chatID]
	if !ok {
		return MonitorPage{Page: page, PageSize: DefaultPageSize}, nil
	}

	start := (page - 1) * DefaultPageSize
	if start >= len(user.Monitors) {
		return MonitorPage{Page: page, PageSize: DefaultPageSize, Total: len(user.Monitors)}, nil
	}
	end := start + DefaultPageSize
	if end > len(user.Monitors) {
		end = len(user.Monitors)
	}
	return MonitorPage{
		Monitors: user.Monitors[start:end],
		Page:     page,
		PageSize: DefaultPageSize,
		Total:    len(user.Monitors),
	}, nil
}

// RemoveMonitor deletes url from chatID's monitors entirely, including
// its history and forensic snapshots.
func (e *Engine) RemoveMonitor(ctx context.Context, chatID, rawURL string) error {
	if err := e.requireAccepting(); err != nil {
		return err
	}
	normalized, err := fetch.NormalizeURL(rawURL)
	if err != nil {
		return &ErrConfigInvalid{Field: "url", Reason: "malformed"}
	}

	handle := e.store.SubmitWrite(func(doc *store.Document) error {
		user, ok := doc.Users[chatID]
		if !ok {
			return &ErrMonitorNotFound{ChatID: chatID, URL: normalized}
		}
		for i, m := range user.Monitors {
			if m.NormalizedURL == normalized {
				user.Monitors = append(user.Monitors[:i], user.Monitors[i+1:]...)
				return nil
			}
		}
		return &ErrMonitorNotFound{ChatID: chatID, URL: normalized}
	})
	_, err = handle.Wait(ctx)
	return err
}

// Snooze pauses alerts for url until duration has elapsed. duration must
// be one of 1h, 6h, 24h.
func (e *Engine) Snooze(ctx context.Context, chatID, rawURL string, duration time.Duration) error {
	if err := e.requireAccepting(); err != nil {
		return err
	}
	if !allowedSnoozeDurations[duration] {
		return &ErrInvalidSnoozeDuration{Requested: duration.String()}
	}
	return e.mutateMonitor(ctx, chatID, rawURL, func(m *store.Monitor) error {
		until := time.Now().Add(duration)
		m.Metadata.SnoozeUntil = &until
		return nil
	})
}

// StopWatching pauses url indefinitely without deleting its history.
func (e *Engine) StopWatching(ctx context.Context, chatID, rawURL string) error {
	if err := e.requireAccepting(); err != nil {
		return err
	}
	return e.mutateMonitor(ctx, chatID, rawURL, func(m *store.Monitor) error {
		until := time.Now().Add(stopWatchingSentinel)
		m.Metadata.SnoozeUntil = &until
		return nil
	})
}

func (e *Engine) mutateMonitor(ctx context.Context, chatID, rawURL string, fn func(m *store.Monitor) error) error {
	normalized, err := fetch.NormalizeURL(rawURL)
	if err != nil {
		return &ErrConfigInvalid{Field: "url", Reason: "malformed"}
	}
	handle := e.store.SubmitWrite(func(doc *store.Document) error {
		user, ok := doc.Users[chatID]
		if !ok {
			return &ErrMonitorNotFound{ChatID: chatID, URL: normalized}
		}
		for _, m := range user.Monitors {
			if m.NormalizedURL == normalized {
				return fn(m)
			}
		}
		return &ErrMonitorNotFound{ChatID: chatID, URL: normalized}
	})
	_, err = handle.Wait(ctx)
	return err
}

// GetConfig returns url's resolved config if url is non-empty, otherwise
// the user's defaults.
func (e *Engine) GetConfig(ctx context.Context, chatID, rawURL string) (store.UserDefaults, error) {
	doc := e.store.Snapshot()
	user, ok := doc.Users[chatID]
	if !ok {
		return e.defaults, nil
	}
	if rawURL == "" {
		return user.Config, nil
	}
	normalized, err := fetch.NormalizeURL(rawURL)
	if err != nil {
		return store.UserDefaults{}, &ErrConfigInvalid{Field: "url", Reason: "malformed"}
	}
	for _, m := range user.Monitors {
		if m.NormalizedURL == normalized {
			return m.ResolvedConfig(user.Config), nil
		}
	}
	return store.UserDefaults{}, &ErrMonitorNotFound{ChatID: chatID, URL: normalized}
}

// ConfigPatch carries the subset of UserDefaults fields to overwrite;
// nil fields are left untouched.
type ConfigPatch struct {
	SimilarityThreshold  *float64
	CheckIntervalSeconds *int
	IncludeDiff          *bool
	CustomSelector       *string
}

// SetConfig applies patch to url's per-monitor override, or to the user's
// defaults when url is empty. Threshold and interval are clamped rather
// than rejected (spec §6, §8 boundary behaviour).
func (e *Engine) SetConfig(ctx context.Context, chatID, rawURL string, patch ConfigPatch) error {
	if err := e.requireAccepting(); err != nil {
		return err
	}
	var normalized string
	if rawURL != "" {
		n, err := fetch.NormalizeURL(rawURL)
		if err != nil {
			return &ErrConfigInvalid{Field: "url", Reason: "malformed"}
		}
		normalized = n
	}

	handle := e.store.SubmitWrite(func(doc *store.Document) error {
		user := ensureUser(doc, chatID, e.defaults)
		if normalized == "" {
			applyPatch(&user.Config, patch)
			return nil
		}
		for _, m := range user.Monitors {
			if m.NormalizedURL == normalized {
				if m.Config == nil {
					m.Config = &store.UserDefaults{}
				}
				applyPatch(m.Config, patch)
				return nil
			}
		}
		return &ErrMonitorNotFound{ChatID: chatID, URL: normalized}
	})
	_, err := handle.Wait(ctx)
	return err
}

func applyPatch(cfg *store.UserDefaults, patch ConfigPatch) {
	if patch.SimilarityThreshold != nil {
		cfg.SimilarityThreshold = config.ClampThreshold(*patch.SimilarityThreshold)
	}
	if patch.CheckIntervalSeconds != nil {
		cfg.CheckIntervalSeconds = config.ClampInterval(*patch.CheckIntervalSeconds)
	}
	if patch.IncludeDiff != nil {
		cfg.IncludeDiff = *patch.IncludeDiff
		cfg.IncludeDiffSet = true
	}
	if patch.CustomSelector != nil {
		cfg.CustomSelector = *patch.CustomSelector
	}
}

// GetHistory returns url's HistoryEntry sequence, oldest first.
func (e *Engine) GetHistory(ctx context.Context, chatID, rawURL string) ([]store.HistoryEntry, error) {
	normalized, err := fetch.NormalizeURL(rawURL)
	if err != nil {
		return nil, &ErrConfigInvalid{Field: "url", Reason: "malformed"}
	}
	doc := e.store.Snapshot()
	user, ok := doc.Users[chatID]
	if !ok {
		return nil, &ErrMonitorNotFound{ChatID: chatID, URL: normalized}
	}
	for _, m := range user.Monitors {
		if m.NormalizedURL == normalized {
			return m.History, nil
		}
	}
	return nil, &ErrMonitorNotFound{ChatID: chatID, URL: normalized}
}

func ensureUser(doc *store.Document, chatID string, defaults store.UserDefaults) *store.UserRecord {
	if doc.Users == nil {
		doc.Users = map[string]*store.UserRecord{}
	}
	user, ok := doc.Users[chatID]
	if !ok {
		user = &store.UserRecord{Config: defaults}
		doc.Users[chatID] = user
	}
	return user
}
