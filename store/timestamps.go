package store

import "time"

// normalizeTimestamps walks every timestamp-shaped field in the document
// and forces it to UTC so it serialises with a Z suffix.
//
// The source behaviour this generalises silently overwrote unparseable
// timestamps with "now", destroying forensic data. We took the stricter
// alternative the design notes call out as defensible: a timestamp that
// looks uninitialized (the zero value where one is required) is left
// untouched and reported as a warning instead of being coerced.
func normalizeTimestamps(doc *Document) []CoercionWarning {
	var warnings []CoercionWarning

	for chatID, user := range doc.Users {
		for i, m := range user.Monitors {
			field := func(name string) string { return chatID + "." + m.NormalizedURL + "." + name }

			if m.Metadata.CreatedAt.IsZero() {
				warnings = append(warnings, CoercionWarning{
					Field: field("metadata.created_at"),
					Note:  "zero-value created_at preserved, not coerced to now",
				})
			} else {
				user.Monitors[i].Metadata.CreatedAt = m.Metadata.CreatedAt.UTC()
			}

			if !m.Metadata.LastCheckAt.IsZero() {
				user.Monitors[i].Metadata.LastCheckAt = m.Metadata.LastCheckAt.UTC()
			}

			if m.Metadata.SnoozeUntil != nil {
				u := m.Metadata.SnoozeUntil.UTC()
				user.Monitors[i].Metadata.SnoozeUntil = &u
			}

			for j, h := range m.History {
				user.Monitors[i].History[j].Timestamp = h.Timestamp.UTC()
			}
			for j, snap := range m.ForensicSnapshots {
				user.Monitors[i].ForensicSnapshots[j].Timestamp = snap.Timestamp.UTC()
			}
		}
	}

	return warnings
}

// nowUTC is a small seam kept for tests that need a fixed clock.
var nowUTC = func() time.Time { return time.Now().UTC() }
