package engine

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strconv"

	"github.com/hazyhaar/veillebot/store"
)

// csvColumns is the fixed column set for a monitors CSV export (spec
// §3/§6 supplement: the original spec names the export formats but never
// enumerates CSV columns).
var csvColumns = []string{
	"url", "created_at", "last_check_at", "check_count",
	"consecutive_failures", "circuit_breaker_state", "last_status",
}

// Export returns chatID's full user record as a json blob, or a
// monitors-only summary as csv.
func (e *Engine) Export(ctx context.Context, chatID, format string) ([]byte, error) {
	if err := e.requireAccepting(); err != nil {
		return nil, err
	}
	doc := e.store.Snapshot()
	user, ok := doc.Users[chatID]
	if !ok {
		user = &store.UserRecord{}
	}

	switch format {
	case "json":
		return json.MarshalIndent(user, "", "  ")
	case "csv":
		return exportCSV(user)
	default:
		return nil, &ErrUnsupportedExportFormat{Format: format}
	}
}

func exportCSV(user *store.UserRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvColumns); err != nil {
		return nil, err
	}
	for _, m := range user.Monitors {
		row := []string{
			m.URL,
			m.Metadata.CreatedAt.UTC().Format(timeLayoutRFC3339),
			m.Metadata.LastCheckAt.UTC().Format(timeLayoutRFC3339),
			strconv.Itoa(m.Metadata.CheckCount),
			strconv.Itoa(m.Metadata.ConsecutiveFailures),
			m.Metadata.CircuitBreakerState,
			string(m.Metadata.LastStatus),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const timeLayoutRFC3339 = "2006-01-02T15:04:05Z07:00"
