// Package sqlsession defines the thin driver abstraction the table-sync
// engine runs against, and a pgx-backed implementation for PostgreSQL.
//
// A Session wraps one database connection. The engine prepares a handful of
// statements per table, streams rows from a sorted SELECT, and manages the
// destination transaction explicitly; nothing else is required from the
// driver.
package sqlsession

// Column describes one column of a prepared statement's result set.
type Column struct {
	Name      string
	TypeCode  int
	Precision int
	Scale     int
}

// Session is a single database connection with explicit transaction control.
// Sessions are not safe for concurrent use. Driver-level connection
// attributes the sync engine depends on (for Oracle: blank-chopping off,
// CLOB placeholder binding) are the implementation's responsibility and
// must be in place before the session is handed to the engine.
type Session interface {
	// Prepare compiles a statement. The returned Query is owned by the
	// caller and must be closed.
	Prepare(sql string) (Query, error)

	// AutoCommit toggles per-statement commits. Turning autocommit off
	// starts (or joins) an explicit transaction on the next execution.
	AutoCommit(on bool) error

	Commit() error
	Rollback() error

	// QuoteString returns s as a SQL string literal, quotes included.
	QuoteString(s string) string

	// TypeInfo maps driver type codes to type names. When a code carries
	// several names the first one wins.
	TypeInfo() map[int][]string

	Close() error
}

// Query is one prepared statement. Exec may be called repeatedly; for
// statements producing rows, FetchRow streams them one at a time and returns
// (nil, nil) at end of set.
type Query interface {
	Exec(args ...any) error
	Columns() []Column
	FetchRow() ([]any, error)
	RowsAffected() int64
	Close() error
}
