package store

import "time"

// SchemaVersion is the current schema_version stamped into every document
// this build writes. Bump it whenever the document shape changes in a way
// that requires a migration.
const SchemaVersion = "2.0"

// Document is the single persisted JSON document, keyed by chat id.
type Document struct {
	SchemaVersion string                           `json:"schema_version"`
	Users         map[string]*UserRecord           `json:"users"`
	Breakers      map[string]PersistedBreakerState `json:"circuit_breakers,omitempty"`
}

// PersistedBreakerState is the durable shape of one host's circuit breaker
// entry, written so breaker state survives restart (§4.3).
type PersistedBreakerState struct {
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"last_failure,omitempty"`
}

// UserDefaults is the per-user configuration overlay. A Monitor's Config
// resolves monitor → user → system default.
type UserDefaults struct {
	SimilarityThreshold  float64 `json:"similarity_threshold"`
	CheckIntervalSeconds int     `json:"check_interval_seconds"`
	IncludeDiff          bool    `json:"include_diff"`
	CustomSelector       string  `json:"custom_selector,omitempty"`
	// IncludeDiffSet marks that IncludeDiff was explicitly set on a
	// monitor-level override. Unlike the fields above, false is a
	// meaningful value for IncludeDiff, so a zero-value check can't tell
	// "explicitly disabled" apart from "never set" — this sentinel can.
	IncludeDiffSet bool `json:"include_diff_set,omitempty"`
}

// UserRecord is owned by one chat identifier.
type UserRecord struct {
	Config   UserDefaults `json:"user_config"`
	Monitors []*Monitor   `json:"monitors"`
}

// LastStatus enumerates the outcome of the most recent fetch attempt.
type LastStatus string

const (
	StatusOK         LastStatus = "ok"
	StatusBlockPage  LastStatus = "block_page"
	StatusTimeout    LastStatus = "timeout"
	StatusNetwork    LastStatus = "network_error"
	StatusHTTPStatus LastStatus = "http_status_error"
	StatusCircuitOff LastStatus = "circuit_open"
	StatusPolicy     LastStatus = "policy_blocked"
)

// MonitorMetadata is the operational state carried alongside a Monitor.
type MonitorMetadata struct {
	CreatedAt           time.Time  `json:"created_at"`
	LastCheckAt         time.Time  `json:"last_check_at"`
	CheckCount          int        `json:"check_count"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	CircuitBreakerState string     `json:"circuit_breaker_state"`
	SnoozeUntil         *time.Time `json:"snooze_until,omitempty"`
	LastStatus          LastStatus `json:"last_status,omitempty"`
}

// WeightedFingerprint is the versioned, weight-aware digest of a page's
// noise-filtered content plus a structure signature.
type WeightedFingerprint struct {
	Hash               string             `json:"hash"`
	Version            string             `json:"version"`
	ContentWeights     map[string]float64 `json:"content_weights"`
	StructureSignature string             `json:"structure_signature"`
	ContentText        string             `json:"content_text"`
	// RawHTML is the unfiltered page body this fingerprint was computed
	// from, carried forward so the next cycle's forensic snapshot (§4.6)
	// can compress the true before/after pair instead of the
	// noise-filtered ContentText.
	RawHTML string `json:"raw_html,omitempty"`
}

// ChangeType classifies the magnitude of a detected change.
type ChangeType string

const (
	ChangeUITweak        ChangeType = "UI_TWEAK"
	ChangeContentUpdate  ChangeType = "CONTENT_UPDATE"
	ChangeMajorOverhaul  ChangeType = "MAJOR_OVERHAUL"
)

// HistoryEntry records one detected, user-visible change.
type HistoryEntry struct {
	Timestamp       time.Time  `json:"timestamp"`
	ChangeType      ChangeType `json:"change_type"`
	SimilarityFinal float64    `json:"similarity_final"`
	DiffSummary     string     `json:"diff_summary"`
}

// ForensicSnapshot is a compressed before/after pair retained to enable
// later recomputation of a change decision.
type ForensicSnapshot struct {
	Timestamp            time.Time          `json:"timestamp"`
	OldContentCompressed string             `json:"old_content_compressed"`
	NewContentCompressed string             `json:"new_content_compressed"`
	ChangeType           ChangeType         `json:"change_type"`
	SimilarityMetrics    map[string]float64 `json:"similarity_metrics"`
	DiffSummary          string             `json:"diff_summary"`
	DiffTruncated        bool               `json:"diff_truncated"`
}

// Monitor is a persistent registration of a URL under a user.
type Monitor struct {
	ID                string               `json:"id"`
	URL               string               `json:"url"`
	NormalizedURL     string               `json:"normalized_url"`
	Config            *UserDefaults        `json:"config,omitempty"`
	Fingerprint       *WeightedFingerprint `json:"fingerprint,omitempty"`
	Metadata          MonitorMetadata      `json:"metadata"`
	History           []HistoryEntry       `json:"history,omitempty"`
	ForensicSnapshots []ForensicSnapshot   `json:"forensic_snapshots,omitempty"`
}

// ResolvedConfig returns the effective config for this monitor: its own
// override, falling back field-by-field to the owning user's defaults.
func (m *Monitor) ResolvedConfig(userDefaults UserDefaults) UserDefaults {
	if m.Config == nil {
		return userDefaults
	}
	out := userDefaults
	if m.Config.SimilarityThreshold > 0 {
		out.SimilarityThreshold = m.Config.SimilarityThreshold
	}
	if m.Config.CheckIntervalSeconds > 0 {
		out.CheckIntervalSeconds = m.Config.CheckIntervalSeconds
	}
	if m.Config.IncludeDiffSet {
		out.IncludeDiff = m.Config.IncludeDiff
	}
	if m.Config.CustomSelector != "" {
		out.CustomSelector = m.Config.CustomSelector
	}
	return out
}

// MaxForensicSnapshots bounds the ring of forensic snapshots per monitor.
const MaxForensicSnapshots = 3

// HistoryRetention is the pruning window for history entries.
const HistoryRetention = 30 * 24 * time.Hour

// PushForensicSnapshot inserts at the head, evicting the oldest beyond cap.
func (m *Monitor) PushForensicSnapshot(snap ForensicSnapshot) {
	m.ForensicSnapshots = append([]ForensicSnapshot{snap}, m.ForensicSnapshots...)
	if len(m.ForensicSnapshots) > MaxForensicSnapshots {
		m.ForensicSnapshots = m.ForensicSnapshots[:MaxForensicSnapshots]
	}
}

// AppendHistory appends sorted-ascending and prunes entries older than the
// retention window.
func (m *Monitor) AppendHistory(entry HistoryEntry, now time.Time) {
	m.History = append(m.History, entry)
	cutoff := now.Add(-HistoryRetention)
	kept := m.History[:0]
	for _, h := range m.History {
		if h.Timestamp.After(cutoff) {
			kept = append(kept, h)
		}
	}
	m.History = kept
}
