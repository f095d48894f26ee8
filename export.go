package propgraph

import (
	"context"
	"fmt"
	"io"
)

// Dot writes the whole graph to w in Graphviz dot form: one node statement
// per non-edge row, labeled pid over otype, and one arrow per fanned-out
// triple, labeled with its predicate.
func (g *Graph) Dot(ctx context.Context, w io.Writer) error {
	if _, err := fmt.Fprintln(w, "digraph {"); err != nil {
		return err
	}
	for id, err := range g.IDs(ctx, "", 0) {
		if err != nil {
			return err
		}
		label := id.PID + "\\n" + id.Type
		if _, err := fmt.Fprintf(w, "\t%q [label=%q];\n", id.PID, label); err != nil {
			return err
		}
	}
	for t, err := range g.Relations(ctx, Pattern{}) {
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "\t%q -> %q [label=%q];\n", t.Subject, t.Object, t.Predicate); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}
