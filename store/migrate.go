package store

// migrate applies append-only schema migrations in memory. Open drives
// this through SubmitMigration, so the result is only ever persisted via
// the backup-guarded write path in Store.processWrite, which detects the
// schema_version change and takes a pre-migration backup before writing.
func migrate(doc Document) Document {
	if doc.SchemaVersion == "" {
		doc.SchemaVersion = "1.0"
	}

	if doc.SchemaVersion == "1.0" {
		doc = migrate1to2(doc)
	}

	return doc
}

// migrate1to2 introduces circuit_breaker_state and last_status on monitor
// metadata: an empty circuit_breaker_state is set to "CLOSED", and
// last_status keeps its zero value.
func migrate1to2(doc Document) Document {
	for _, user := range doc.Users {
		for _, m := range user.Monitors {
			if m.Metadata.CircuitBreakerState == "" {
				m.Metadata.CircuitBreakerState = "CLOSED"
			}
		}
	}
	doc.SchemaVersion = "2.0"
	return doc
}
