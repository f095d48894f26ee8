// Package propgraph stores a property graph, typed nodes and typed edges,
// as rows of one shared relation inside an embedded SQL engine.
//
// Callers work with natural composite Go structs; the client flattens
// nested structure into atomic node and edge rows, translating the external
// string identifiers (PIDs) callers see into compact internal row ids for
// join-based traversal. Edges are rows too, tagged with a reserved otype,
// carrying a subject row id, a predicate string and an ordered object list.
//
// A minimal session:
//
//	type Person struct {
//		propgraph.Base
//		Age     int
//		Friends []*Person
//	}
//
//	g, err := propgraph.Open("sqlite", "file:graph.db")
//	...
//	if err := g.Initialize(ctx, Person{}); err != nil {
//		...
//	}
//	pid, err := g.AddNode(ctx, &Person{
//		Base:    propgraph.Base{PID: "alice"},
//		Age:     41,
//		Friends: []*Person{{Base: propgraph.Base{PID: "bob"}}},
//	})
//
// AddNode inserts a row for alice, a row for bob, and one edge row with
// predicate "friends" joining them. Reads go through GetNode, Relations,
// BreadthFirst and RootsFor; all of them speak PIDs, never row ids.
//
// The embedded engine is consumed through database/sql: blank import
// modernc.org/sqlite (or any driver registering a compatible dialect) in
// the main package.
package propgraph
