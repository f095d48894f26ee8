package propgraph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	entsql "github.com/syssam/propgraph/dialect/sql"
	"github.com/syssam/propgraph/schema/field"
)

// Triple is one subject-predicate-object statement. An edge row holding k
// objects fans out into k triples at query time.
type Triple struct {
	Subject   string
	Predicate string
	Object    string
}

// Pattern filters edge queries. Empty fields match everything.
type Pattern struct {
	Subject   string
	Predicate string
	Object    string
}

// Edge is the materialized form of one edge row.
type Edge struct {
	PID       string
	Subject   string
	Predicate string
	Objects   []string
	Graph     string
}

// ID identifies one node row by its external identifier and type tag.
type ID struct {
	PID  string
	Type string
}

// RootEdge is one edge on a reverse-reachability path: an edge whose object
// set transitively reaches the node RootsFor was asked about.
type RootEdge struct {
	EdgePID     string
	Subject     string
	Predicate   string
	Object      string
	Graph       string
	SubjectType string
}

// EdgePID derives the deterministic external identifier of an edge from its
// content. Subject, predicate, the object list and the optional named graph
// are joined with unit separators (objects internally with record
// separators) and hashed, so the same logical statement always maps to the
// same identifier regardless of who computes it.
func EdgePID(subject, predicate string, objects []string, namedGraph string) string {
	h := sha256.New()
	io.WriteString(h, subject)
	h.Write([]byte{0x1f})
	io.WriteString(h, predicate)
	h.Write([]byte{0x1f})
	for i, o := range objects {
		if i > 0 {
			h.Write([]byte{0x1e})
		}
		io.WriteString(h, o)
	}
	if namedGraph != "" {
		h.Write([]byte{0x1f})
		io.WriteString(h, namedGraph)
	}
	return anonPrefix + hex.EncodeToString(h.Sum(nil))
}

// EdgeOption configures an AddEdge call.
type EdgeOption func(*edgeOptions)

type edgeOptions struct {
	graph string
}

// WithNamedGraph tags the edge with a named-graph identifier, which
// participates in the edge's derived PID.
func WithNamedGraph(name string) EdgeOption {
	return func(o *edgeOptions) { o.graph = name }
}

// AddEdge writes one edge row in its own transaction. See Tx.AddEdge.
func (g *Graph) AddEdge(ctx context.Context, subject, predicate string, objects []string, opts ...EdgeOption) (string, error) {
	var pid string
	err := g.withTx(ctx, func(tx *Tx) error {
		var err error
		pid, err = tx.AddEdge(ctx, subject, predicate, objects, opts...)
		return err
	})
	if err != nil {
		return "", err
	}
	return pid, nil
}

// AddEdge writes one edge row connecting subject to the given objects under
// predicate, returning the edge's derived PID. Every referenced PID must
// already resolve to an existing row: if any does not, the call fails with
// an IntegrityError naming all unresolved PIDs and writes nothing. Writing
// the same logical edge again bumps tmodified instead of duplicating.
func (tx *Tx) AddEdge(ctx context.Context, subject, predicate string, objects []string, opts ...EdgeOption) (string, error) {
	var eo edgeOptions
	for _, opt := range opts {
		opt(&eo)
	}
	return tx.insertEdge(ctx, subject, predicate, objects, eo.graph)
}

func (tx *Tx) insertEdge(ctx context.Context, subject, predicate string, objects []string, graph string) (string, error) {
	if len(objects) == 0 {
		return "", NewStructError("edge requires at least one object")
	}
	// Resolve every endpoint before writing anything.
	var missing []string
	sid, err := tx.rowID(ctx, subject)
	switch {
	case IsNotFound(err):
		missing = append(missing, subject)
	case err != nil:
		return "", err
	}
	oids := make([]int64, 0, len(objects))
	for _, o := range objects {
		oid, err := tx.rowID(ctx, o)
		switch {
		case IsNotFound(err):
			missing = append(missing, o)
		case err != nil:
			return "", err
		default:
			oids = append(oids, oid)
		}
	}
	if len(missing) > 0 {
		return "", NewIntegrityError(subject, missing...)
	}

	pid := EdgePID(subject, predicate, objects, graph)
	now := time.Now().Unix()
	if id, err := tx.rowID(ctx, pid); err == nil {
		err := tx.tx.Exec(ctx, "UPDATE "+Table+" SET tmodified = ? WHERE row_id = ?", []any{now, id}, nil)
		if err != nil {
			return "", err
		}
		return pid, nil
	} else if !IsNotFound(err) {
		return "", err
	}
	ojson, err := json.Marshal(oids)
	if err != nil {
		return "", err
	}
	names := []string{"pid", "tcreated", "tmodified", "otype", "s", "p", "o"}
	args := []any{pid, now, now, EdgeType, sid, predicate, string(ojson)}
	if graph != "" {
		names = append(names, "n")
		args = append(args, graph)
	}
	id, err := tx.insertReturningID(ctx, names, args)
	if err != nil {
		return "", err
	}
	tx.pending.put(pid, id)
	return pid, nil
}

// GetEdge returns the edge row with the given PID, with its endpoints
// translated back to external identifiers.
func (g *Graph) GetEdge(ctx context.Context, pid string) (*Edge, error) {
	rows := &entsql.Rows{}
	q := "SELECT s, p, o, n FROM " + Table + " WHERE pid = ? AND otype = ?"
	if err := g.driver.Query(ctx, q, []any{pid, EdgeType}, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, NewNotFoundError("edge", pid)
	}
	var (
		sid   int64
		pred  string
		ojson string
		graph entsql.NullString
	)
	if err := rows.Scan(&sid, &pred, &ojson, &graph); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	subject, err := g.pidFor(ctx, sid)
	if err != nil {
		return nil, err
	}
	oids, err := decodeObjectIDs(ojson)
	if err != nil {
		return nil, err
	}
	e := &Edge{PID: pid, Subject: subject, Predicate: pred, Graph: graph.String}
	for _, oid := range oids {
		opid, err := g.pidFor(ctx, oid)
		if err != nil {
			return nil, err
		}
		e.Objects = append(e.Objects, opid)
	}
	return e, nil
}

// NodeOption configures a GetNode call.
type NodeOption func(*nodeOptions)

type nodeOptions struct {
	expand int
}

// WithExpand recursively inlines the property bags of nodes reachable via
// outgoing edges, keyed by predicate, up to the given depth.
func WithExpand(depth int) NodeOption {
	return func(o *nodeOptions) { o.expand = depth }
}

// GetNode returns the property bag of the node with the given PID: its pid,
// otype, base columns and every non-null extension column. Internal row
// identifiers never appear in the bag. A missing PID reports ErrNotFound.
func (g *Graph) GetNode(ctx context.Context, pid string, opts ...NodeOption) (map[string]any, error) {
	var no nodeOptions
	for _, opt := range opts {
		opt(&no)
	}
	return g.getNode(ctx, pid, no.expand)
}

func (g *Graph) getNode(ctx context.Context, pid string, expand int) (map[string]any, error) {
	rows := &entsql.Rows{}
	q := "SELECT * FROM " + Table + " WHERE pid = ?"
	if err := g.driver.Query(ctx, q, []any{pid}, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		return nil, NewNotFoundError("node", pid)
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	bag := make(map[string]any, len(cols))
	for i, c := range cols {
		if vals[i] == nil {
			continue
		}
		switch c {
		case "row_id", "s", "o":
			// Internal row ids stay internal.
			continue
		}
		bag[c] = g.bagValue(c, vals[i])
	}
	if expand > 0 {
		if err := g.expandNode(ctx, pid, bag, expand); err != nil {
			return nil, err
		}
	}
	return bag, nil
}

// bagValue normalizes a scanned column value for the property bag. Text
// columns may arrive as byte slices depending on the driver.
func (g *Graph) bagValue(col string, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if g.schema != nil {
		for _, c := range g.schema.Columns() {
			if c.Name == col {
				if c.Type == field.TypeBytes {
					return b
				}
				break
			}
		}
	}
	return string(b)
}

// expandNode inlines child property bags under their predicate keys. One
// object yields a bag, several yield a list of bags.
func (g *Graph) expandNode(ctx context.Context, pid string, bag map[string]any, depth int) error {
	id, err := g.rowID(ctx, pid)
	if err != nil {
		return err
	}
	rows := &entsql.Rows{}
	q := "SELECT p, o FROM " + Table + " WHERE otype = ? AND s = ?"
	if err := g.driver.Query(ctx, q, []any{EdgeType, id}, rows); err != nil {
		return err
	}
	type out struct {
		pred string
		oids []int64
	}
	var outs []out
	for rows.Next() {
		var (
			pred  string
			ojson string
		)
		if err := rows.Scan(&pred, &ojson); err != nil {
			rows.Close()
			return err
		}
		oids, err := decodeObjectIDs(ojson)
		if err != nil {
			rows.Close()
			return err
		}
		outs = append(outs, out{pred: pred, oids: oids})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()
	for _, o := range outs {
		var bags []any
		for _, oid := range o.oids {
			opid, err := g.pidFor(ctx, oid)
			if err != nil {
				return err
			}
			child, err := g.getNode(ctx, opid, depth-1)
			if err != nil {
				return err
			}
			bags = append(bags, child)
		}
		switch len(bags) {
		case 0:
		case 1:
			bag[o.pred] = bags[0]
		default:
			bag[o.pred] = bags
		}
	}
	return nil
}

// TypeOf returns the otype tag of the row with the given PID.
func (g *Graph) TypeOf(ctx context.Context, pid string) (string, error) {
	rows := &entsql.Rows{}
	q := "SELECT otype FROM " + Table + " WHERE pid = ?"
	if err := g.driver.Query(ctx, q, []any{pid}, rows); err != nil {
		return "", err
	}
	defer rows.Close()
	if !rows.Next() {
		return "", NewNotFoundError("node", pid)
	}
	var otype string
	if err := rows.Scan(&otype); err != nil {
		return "", err
	}
	return otype, rows.Err()
}

// PIDByAltID returns the PID of the first node carrying the given
// alternative identifier.
func (g *Graph) PIDByAltID(ctx context.Context, altid string) (string, error) {
	rows := &entsql.Rows{}
	q := "SELECT pid FROM " + Table + " WHERE altids IS NOT NULL" +
		" AND EXISTS (SELECT 1 FROM json_each(" + Table + ".altids) WHERE json_each.value = ?)" +
		" ORDER BY row_id LIMIT 1"
	if err := g.driver.Query(ctx, q, []any{altid}, rows); err != nil {
		return "", err
	}
	defer rows.Close()
	if !rows.Next() {
		return "", NewNotFoundError("altid", altid)
	}
	var pid string
	if err := rows.Scan(&pid); err != nil {
		return "", err
	}
	return pid, rows.Err()
}

// Relations pattern-matches edge rows and fans each one out into
// subject-predicate-object triples, one per object. Empty Pattern fields
// match everything. The sequence is lazy and restartable: each range loop
// re-executes the query. A pattern naming a PID with no backing row matches
// nothing. Edge rows are fully scanned before any triple is yielded, so
// consumers may query the graph from inside the loop, even on a
// single-connection pool.
func (g *Graph) Relations(ctx context.Context, p Pattern) iter.Seq2[Triple, error] {
	return func(yield func(Triple, error) bool) {
		where := []string{"otype = ?"}
		args := []any{EdgeType}
		var objectID int64
		filterObject := false
		if p.Subject != "" {
			id, err := g.rowID(ctx, p.Subject)
			if IsNotFound(err) {
				return
			}
			if err != nil {
				yield(Triple{}, err)
				return
			}
			where = append(where, "s = ?")
			args = append(args, id)
		}
		if p.Predicate != "" {
			where = append(where, "p = ?")
			args = append(args, p.Predicate)
		}
		if p.Object != "" {
			id, err := g.rowID(ctx, p.Object)
			if IsNotFound(err) {
				return
			}
			if err != nil {
				yield(Triple{}, err)
				return
			}
			objectID = id
			filterObject = true
			where = append(where, "EXISTS (SELECT 1 FROM json_each("+Table+".o) WHERE json_each.value = ?)")
			args = append(args, id)
		}
		q := "SELECT s, p, o FROM " + Table + " WHERE " + strings.Join(where, " AND ") + " ORDER BY row_id"
		edges, err := g.matchedEdges(ctx, q, args)
		if err != nil {
			yield(Triple{}, err)
			return
		}
		for _, e := range edges {
			subject, err := g.pidFor(ctx, e.s)
			if err != nil {
				yield(Triple{}, err)
				return
			}
			for _, oid := range e.oids {
				if filterObject && oid != objectID {
					continue
				}
				object, err := g.pidFor(ctx, oid)
				if err != nil {
					yield(Triple{}, err)
					return
				}
				if !yield(Triple{Subject: subject, Predicate: e.p, Object: object}, nil) {
					return
				}
			}
		}
	}
}

// matchedEdges scans one edge query to completion and closes the result set
// before returning. Identity translation and consumer callbacks may issue
// their own queries, which would block behind an open result set on a
// single-connection pool.
func (g *Graph) matchedEdges(ctx context.Context, q string, args []any) ([]edgeRow, error) {
	rows := &entsql.Rows{}
	if err := g.driver.Query(ctx, q, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	var edges []edgeRow
	for rows.Next() {
		var (
			e     edgeRow
			ojson string
		)
		if err := rows.Scan(&e.s, &e.p, &ojson); err != nil {
			return nil, err
		}
		oids, err := decodeObjectIDs(ojson)
		if err != nil {
			return nil, err
		}
		e.oids = oids
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// defaultPageSize bounds one IDs page when the caller passes no limit.
const defaultPageSize = 1000

// IDs returns a lazy paginated sequence of (pid, otype) pairs. An empty
// otype matches every node row but excludes edge rows; pass EdgeType to
// list edges. pagesize bounds one fetch, not the whole sequence.
func (g *Graph) IDs(ctx context.Context, otype string, pagesize int) iter.Seq2[ID, error] {
	if pagesize <= 0 {
		pagesize = defaultPageSize
	}
	return func(yield func(ID, error) bool) {
		var after int64
		for {
			where := "row_id > ?"
			args := []any{after}
			if otype == "" {
				where += " AND otype != ?"
				args = append(args, EdgeType)
			} else {
				where += " AND otype = ?"
				args = append(args, otype)
			}
			q := fmt.Sprintf("SELECT row_id, pid, otype FROM %s WHERE %s ORDER BY row_id LIMIT %d",
				Table, where, pagesize)
			page, last, err := g.idPage(ctx, q, args)
			if err != nil {
				yield(ID{}, err)
				return
			}
			for _, id := range page {
				if !yield(id, nil) {
					return
				}
			}
			after = last
			if len(page) < pagesize {
				return
			}
		}
	}
}

// idPage fetches one pagination window, closing the result set before
// returning. last is the row id to resume after.
func (g *Graph) idPage(ctx context.Context, q string, args []any) (page []ID, last int64, err error) {
	rows := &entsql.Rows{}
	if err := g.driver.Query(ctx, q, args, rows); err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	for rows.Next() {
		var id ID
		if err := rows.Scan(&last, &id.PID, &id.Type); err != nil {
			return nil, 0, err
		}
		page = append(page, id)
	}
	return page, last, rows.Err()
}

// ObjectCounts returns row counts grouped by otype. Edge rows appear under
// the reserved edge tag.
func (g *Graph) ObjectCounts(ctx context.Context) (map[string]int64, error) {
	return g.groupCounts(ctx, "otype", "")
}

// PredicateCounts returns edge row counts grouped by predicate.
func (g *Graph) PredicateCounts(ctx context.Context) (map[string]int64, error) {
	return g.groupCounts(ctx, "p", "WHERE otype = '"+EdgeType+"'")
}

func (g *Graph) groupCounts(ctx context.Context, col, where string) (map[string]int64, error) {
	rows := &entsql.Rows{}
	q := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s %s GROUP BY %s", col, Table, where, col)
	if err := g.driver.Query(ctx, q, []any{}, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int64)
	for rows.Next() {
		var (
			key entsql.NullString
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key.String] = n
	}
	return counts, rows.Err()
}

// RootOption filters a RootsFor query.
type RootOption func(*rootOptions)

type rootOptions struct {
	otype      string
	predicates []string
}

// WithRootType keeps only edges whose subject has the given otype.
func WithRootType(otype string) RootOption {
	return func(o *rootOptions) { o.otype = otype }
}

// WithPredicates keeps only edges carrying one of the given predicates.
func WithPredicates(predicates ...string) RootOption {
	return func(o *rootOptions) { o.predicates = predicates }
}

// RootsFor computes reverse reachability: every edge whose object set
// directly or transitively reaches the node with the given PID. The closure
// is evaluated by the engine in one recursive query; set-union semantics
// deduplicate revisited rows, so reference cycles terminate. The sequence
// is lazy and restartable.
func (g *Graph) RootsFor(ctx context.Context, pid string, opts ...RootOption) iter.Seq2[RootEdge, error] {
	var ro rootOptions
	for _, opt := range opts {
		opt(&ro)
	}
	return func(yield func(RootEdge, error) bool) {
		member := "EXISTS (SELECT 1 FROM json_each(e.o) WHERE json_each.value = r.row_id)"
		var b strings.Builder
		b.WriteString("WITH RECURSIVE refs (row_id) AS (\n")
		b.WriteString("\tSELECT row_id FROM " + Table + " WHERE pid = ?\n")
		b.WriteString("\tUNION\n")
		b.WriteString("\tSELECT e.s FROM " + Table + " AS e, refs AS r\n")
		b.WriteString("\tWHERE e.otype = ? AND e.s IS NOT NULL AND " + member + "\n")
		b.WriteString(")\n")
		b.WriteString("SELECT e.pid, sub.pid, e.p, obj.pid, e.n, sub.otype\n")
		b.WriteString("FROM " + Table + " AS e\n")
		b.WriteString("JOIN refs AS r ON " + member + "\n")
		b.WriteString("JOIN " + Table + " AS sub ON sub.row_id = e.s\n")
		b.WriteString("JOIN " + Table + " AS obj ON obj.row_id = r.row_id\n")
		b.WriteString("WHERE e.otype = ?")
		args := []any{pid, EdgeType, EdgeType}
		if ro.otype != "" {
			b.WriteString(" AND sub.otype = ?")
			args = append(args, ro.otype)
		}
		if len(ro.predicates) > 0 {
			b.WriteString(" AND e.p IN (?" + strings.Repeat(", ?", len(ro.predicates)-1) + ")")
			for _, p := range ro.predicates {
				args = append(args, p)
			}
		}
		b.WriteString(" ORDER BY e.row_id")
		roots, err := g.rootEdges(ctx, b.String(), args)
		if err != nil {
			yield(RootEdge{}, err)
			return
		}
		for _, re := range roots {
			if !yield(re, nil) {
				return
			}
		}
	}
}

// rootEdges scans the closure query to completion before returning, so
// consumers can issue their own queries while ranging over the results.
func (g *Graph) rootEdges(ctx context.Context, q string, args []any) ([]RootEdge, error) {
	rows := &entsql.Rows{}
	if err := g.driver.Query(ctx, q, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	var roots []RootEdge
	for rows.Next() {
		var (
			re    RootEdge
			graph entsql.NullString
		)
		if err := rows.Scan(&re.EdgePID, &re.Subject, &re.Predicate, &re.Object, &graph, &re.SubjectType); err != nil {
			return nil, err
		}
		re.Graph = graph.String
		roots = append(roots, re)
	}
	return roots, rows.Err()
}

// decodeObjectIDs parses the stored JSON representation of an edge's object
// row-id list.
func decodeObjectIDs(ojson string) ([]int64, error) {
	var ids []int64
	if err := json.Unmarshal([]byte(ojson), &ids); err != nil {
		return nil, fmt.Errorf("propgraph: decoding object list: %w", err)
	}
	return ids, nil
}
