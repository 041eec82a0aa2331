// Package store provides storage backends for carbot.
//
// It holds the in-memory conversation session store, the welcome throttle,
// inbound message deduplication and the staff report log, the last two with
// SQLite and PostgreSQL backends.
package store

import "strings"

// Opts holds configuration for the SQL-backed stores.
type Opts struct {
	DSN string
}

// Option configures a SQL-backed store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path or DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL URLs and key/value
// connection strings, and "sqlite3" for everything else.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(d, "host=") && (strings.Contains(d, "dbname=") || strings.Contains(d, "user=")) {
		return "postgres"
	}
	return "sqlite3"
}
