// Package dialect provides the database abstraction the property graph is
// built on. The graph core never talks to a concrete engine directly; it
// issues statements through the Driver interface and leaves persistence,
// filtering and recursive query execution to the engine behind it.
//
// The default engine is an embedded SQLite database (modernc.org/sqlite,
// pure Go). Any engine reachable through database/sql that supports
// recursive common table expressions and the json_each table-valued
// function can be substituted.
package dialect

import "context"

// Supported engine dialects.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// ExecQuerier wraps the two standard database operations.
type ExecQuerier interface {
	// Exec executes a statement that does not return rows. The args are
	// expected to be a []any, and v an optional *sql.Result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a statement that returns rows. The args are expected
	// to be a []any, and v a *sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface the graph core uses to access an engine.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(ctx context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps transactional operations on a Driver.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}
