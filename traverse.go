package propgraph

import (
	"context"
	"iter"
	"strings"

	entsql "github.com/syssam/propgraph/dialect/sql"
)

// Step is one traversal result: a triple annotated with the breadth-first
// depth at which its edge was crossed, starting at 1 for edges leaving the
// start node.
type Step struct {
	Subject   string
	Predicate string
	Object    string
	Depth     int
}

// BreadthFirst expands the graph outward from start, yielding every
// reachable triple in breadth-first order. Edges are tracked, not just
// nodes, so each edge is crossed at most once and traversal terminates on
// cyclic graphs. A start node with no outgoing edges yields an empty
// sequence. The sequence is lazy and restartable: each range loop
// re-executes the traversal.
func (g *Graph) BreadthFirst(ctx context.Context, start string) iter.Seq2[Step, error] {
	return func(yield func(Step, error) bool) {
		sid, err := g.rowID(ctx, start)
		if IsNotFound(err) {
			return
		}
		if err != nil {
			yield(Step{}, err)
			return
		}
		visited := make(map[int64]bool) // edge row ids
		frontier := []int64{sid}
		seen := map[int64]bool{sid: true}
		for depth := 1; len(frontier) > 0; depth++ {
			edges, err := g.outgoing(ctx, frontier)
			if err != nil {
				yield(Step{}, err)
				return
			}
			var next []int64
			for _, e := range edges {
				if visited[e.rowID] {
					continue
				}
				visited[e.rowID] = true
				subject, err := g.pidFor(ctx, e.s)
				if err != nil {
					yield(Step{}, err)
					return
				}
				for _, oid := range e.oids {
					object, err := g.pidFor(ctx, oid)
					if err != nil {
						yield(Step{}, err)
						return
					}
					if !yield(Step{Subject: subject, Predicate: e.p, Object: object, Depth: depth}, nil) {
						return
					}
					if !seen[oid] {
						seen[oid] = true
						next = append(next, oid)
					}
				}
			}
			frontier = next
		}
	}
}

type edgeRow struct {
	rowID int64
	s     int64
	p     string
	oids  []int64
}

// outgoing fetches the edge rows leaving any of the given subject row ids.
func (g *Graph) outgoing(ctx context.Context, subjects []int64) ([]edgeRow, error) {
	q := "SELECT row_id, s, p, o FROM " + Table + " WHERE otype = ? AND s IN (?" +
		strings.Repeat(", ?", len(subjects)-1) + ") ORDER BY row_id"
	args := make([]any, 0, len(subjects)+1)
	args = append(args, EdgeType)
	for _, s := range subjects {
		args = append(args, s)
	}
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
		if err := rows.Scan(&e.rowID, &e.s, &e.p, &ojson); err != nil {
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

// NodeIDs returns the PIDs of every node in the decomposition closure of
// the composite identified by pid: the node itself plus everything
// reachable through outgoing edges, in row creation order. Used for
// subgraph extraction.
func (g *Graph) NodeIDs(ctx context.Context, pid string) ([]string, error) {
	var b strings.Builder
	b.WriteString("WITH RECURSIVE comp (row_id) AS (\n")
	b.WriteString("\tSELECT row_id FROM " + Table + " WHERE pid = ?\n")
	b.WriteString("\tUNION\n")
	b.WriteString("\tSELECT json_each.value FROM " + Table + " AS e, comp AS c, json_each(e.o)\n")
	b.WriteString("\tWHERE e.otype = ? AND e.s = c.row_id\n")
	b.WriteString(")\n")
	b.WriteString("SELECT n.pid FROM " + Table + " AS n JOIN comp AS c ON n.row_id = c.row_id ORDER BY n.row_id")
	rows := &entsql.Rows{}
	if err := g.driver.Query(ctx, b.String(), []any{pid, EdgeType}, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	var pids []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		pids = append(pids, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(pids) == 0 {
		return nil, NewNotFoundError("node", pid)
	}
	return pids, nil
}
