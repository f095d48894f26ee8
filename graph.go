package propgraph

import (
	"context"
	"fmt"
	"strings"

	"github.com/syssam/propgraph/dialect"
	entsql "github.com/syssam/propgraph/dialect/sql"
	"github.com/syssam/propgraph/schema"
	"github.com/syssam/propgraph/schema/field"
)

const (
	// Table is the name of the single shared relation all node and edge
	// rows are stored in.
	Table = "node"

	// EdgeType is the reserved otype tag marking edge rows.
	EdgeType = "_edge_"

	// anonPrefix marks generated identifiers as anonymous.
	anonPrefix = "anon_"
)

// Base carries the common columns of every node row. Embed it in a struct
// to give the type an explicit external identifier, label, description and
// alternative identifiers. Edges should always reference the PID, never an
// altid.
type Base struct {
	PID         string   `graph:"pid"`
	Label       string   `graph:"label"`
	Description string   `graph:"description"`
	AltIDs      []string `graph:"altids"`
}

// Graph is the property graph client. All access to the underlying engine
// goes through it. Mutations run inside explicitly scoped transactions;
// the client itself performs no locking, so concurrent writers must
// serialize externally.
type Graph struct {
	driver   dialect.Driver
	registry *schema.Registry
	schema   *schema.Schema
	pk       string
	ids      *idcache
}

// Option configures a Graph.
type Option func(*Graph)

// WithPrimaryKey names the registered field whose value is used as the
// external identifier when a decomposed object carries no explicit pid.
// It defaults to "pid".
func WithPrimaryKey(name string) Option {
	return func(g *Graph) { g.pk = name }
}

// NewGraph returns a client for the given driver.
func NewGraph(d dialect.Driver, opts ...Option) *Graph {
	g := &Graph{
		driver:   d,
		registry: schema.NewRegistry(),
		pk:       "pid",
		ids:      newIDCache(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Open opens a connection to the engine named by driverName (as registered
// with database/sql) and returns a client for it. For the embedded engine,
// blank import modernc.org/sqlite and open "sqlite" with a file path or
// ":memory:" source.
func Open(driverName, source string, opts ...Option) (*Graph, error) {
	drv, err := entsql.Open(driverName, source)
	if err != nil {
		return nil, err
	}
	return NewGraph(drv, opts...), nil
}

// Close closes the underlying driver.
func (g *Graph) Close() error {
	return g.driver.Close()
}

// Schema returns the finalized schema, or nil before Initialize.
func (g *Graph) Schema() *schema.Schema {
	return g.schema
}

// RegisterType reflects v (a struct or pointer to struct) into a type
// descriptor and registers it, together with every composite type it
// references. It must be called before Initialize; afterwards it fails
// with a ConfigError.
func (g *Graph) RegisterType(v any) error {
	if err := g.registry.Register(v); err != nil {
		if err == schema.ErrFinalized {
			return NewConfigError("register after initialize", ErrInitialized)
		}
		return NewConfigError(err.Error(), err)
	}
	return nil
}

// Initialize registers any remaining types, finalizes the schema and
// creates the shared relation. It is idempotent: re-invoking it with an
// identical registered set succeeds without altering existing data.
func (g *Graph) Initialize(ctx context.Context, types ...any) error {
	for _, v := range types {
		if err := g.RegisterType(v); err != nil {
			return err
		}
	}
	s, err := g.registry.Build()
	if err != nil {
		return NewConfigError(err.Error(), err)
	}
	for _, stmt := range g.ddl(s) {
		if err := g.driver.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("propgraph: initialize: %w", err)
		}
	}
	g.schema = s
	return nil
}

// ddl returns the CREATE statements for the shared relation and its
// indexes under the driver's dialect.
func (g *Graph) ddl(s *schema.Schema) []string {
	rowid := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if g.driver.Dialect() == dialect.Postgres {
		rowid = "BIGSERIAL PRIMARY KEY"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", Table)
	fmt.Fprintf(&b, "\trow_id %s,\n", rowid)
	b.WriteString("\tpid TEXT NOT NULL UNIQUE,\n")
	b.WriteString("\ttcreated INTEGER NOT NULL,\n")
	b.WriteString("\ttmodified INTEGER NOT NULL,\n")
	b.WriteString("\totype TEXT NOT NULL,\n")
	b.WriteString("\tlabel TEXT,\n")
	b.WriteString("\tdescription TEXT,\n")
	b.WriteString("\taltids TEXT,\n")
	fmt.Fprintf(&b, "\ts INTEGER REFERENCES %s (row_id),\n", Table)
	b.WriteString("\tp TEXT,\n")
	b.WriteString("\to TEXT,\n")
	b.WriteString("\tn TEXT")
	for _, c := range s.Columns() {
		fmt.Fprintf(&b, ",\n\t%s %s", c.Name, columnSQL(c.Type))
	}
	b.WriteString("\n)")
	return []string{
		b.String(),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %[1]s_otype ON %[1]s (otype)", Table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %[1]s_s ON %[1]s (s)", Table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %[1]s_p ON %[1]s (p)", Table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %[1]s_n ON %[1]s (n)", Table),
	}
}

// columnSQL maps a semantic field type to its column type.
// Ordered sequences are stored as JSON text so the engine's json_each
// table function can address their members.
func columnSQL(t field.Type) string {
	switch t {
	case field.TypeString:
		return "TEXT"
	case field.TypeInt, field.TypeTime:
		return "INTEGER"
	case field.TypeFloat:
		return "DOUBLE PRECISION"
	case field.TypeBool:
		return "BOOLEAN"
	case field.TypeStrings, field.TypeInts, field.TypeFloats:
		return "TEXT"
	case field.TypeBytes:
		return "BLOB"
	default:
		return "TEXT"
	}
}

// Tx is an explicitly scoped write transaction. All mutating operations
// run on one; nothing is visible to readers until Commit.
type Tx struct {
	g       *Graph
	tx      dialect.Tx
	pending *pending
	done    bool
}

// Tx starts a write transaction.
func (g *Graph) Tx(ctx context.Context) (*Tx, error) {
	if g.schema == nil {
		return nil, NewConfigErrorf("graph not initialized")
	}
	tx, err := g.driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{g: g, tx: tx, pending: newPending()}, nil
}

// Commit commits the transaction and publishes the identifier mappings it
// created to the client cache.
func (tx *Tx) Commit() error {
	if tx.done {
		return nil
	}
	tx.done = true
	if err := tx.tx.Commit(); err != nil {
		return err
	}
	tx.g.ids.merge(tx.pending)
	return nil
}

// Rollback aborts the transaction. Identifier mappings created inside it
// are discarded.
func (tx *Tx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	return tx.tx.Rollback()
}

// withTx runs fn inside a fresh transaction, committing on success.
func (g *Graph) withTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := g.Tx(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return fmt.Errorf("%w: rolling back: %v", err, rerr)
		}
		return err
	}
	return tx.Commit()
}
