// Package typededge infers and validates the semantic category of edges
// from their endpoints' type tags, against a fixed catalog of allowed
// (subject type, predicate, object type) relations.
//
// The package is a read-only layer over the graph client: inference happens
// at query time from stored otype tags and adds no storage of its own.
package typededge

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"

	"github.com/syssam/propgraph"
)

// ErrUnknownRelation is returned when an edge's endpoint types and
// predicate match no catalog entry.
var ErrUnknownRelation = errors.New("typededge: relation not in catalog")

// Relation is one allowed typed relation: edges with the given predicate
// from nodes of SubjectType to nodes of ObjectType.
type Relation struct {
	SubjectType string
	Predicate   string
	ObjectType  string
}

func (r Relation) String() string {
	return fmt.Sprintf("(%s)-[%s]->(%s)", r.SubjectType, r.Predicate, r.ObjectType)
}

// Catalog is a fixed set of allowed typed relations. It is built once and
// read concurrently.
type Catalog struct {
	relations map[Relation]struct{}
}

// NewCatalog returns a catalog holding the given relations.
func NewCatalog(relations ...Relation) *Catalog {
	c := &Catalog{relations: make(map[Relation]struct{}, len(relations))}
	for _, r := range relations {
		c.relations[r] = struct{}{}
	}
	return c
}

// Contains reports whether the relation is in the catalog.
func (c *Catalog) Contains(r Relation) bool {
	_, ok := c.relations[r]
	return ok
}

// BySubject returns the catalog relations whose subject has the given type,
// sorted by predicate then object type.
func (c *Catalog) BySubject(subjectType string) []Relation {
	return c.filter(func(r Relation) bool { return r.SubjectType == subjectType })
}

// ByObject returns the catalog relations whose object has the given type,
// sorted by predicate then object type.
func (c *Catalog) ByObject(objectType string) []Relation {
	return c.filter(func(r Relation) bool { return r.ObjectType == objectType })
}

// Relations returns every catalog relation in sorted order.
func (c *Catalog) Relations() []Relation {
	return c.filter(func(Relation) bool { return true })
}

func (c *Catalog) filter(keep func(Relation) bool) []Relation {
	var out []Relation
	for r := range c.relations {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SubjectType != b.SubjectType {
			return a.SubjectType < b.SubjectType
		}
		if a.Predicate != b.Predicate {
			return a.Predicate < b.Predicate
		}
		return a.ObjectType < b.ObjectType
	})
	return out
}

// Queries answers typed-relation questions against a graph using a catalog.
type Queries struct {
	graph   *propgraph.Graph
	catalog *Catalog
}

// New returns a query layer over the given graph and catalog.
func New(g *propgraph.Graph, c *Catalog) *Queries {
	return &Queries{graph: g, catalog: c}
}

// Infer resolves the typed relation of one stored triple from its
// endpoints' otype tags. It fails with ErrUnknownRelation when the catalog
// has no matching entry.
func (q *Queries) Infer(ctx context.Context, t propgraph.Triple) (Relation, error) {
	st, err := q.graph.TypeOf(ctx, t.Subject)
	if err != nil {
		return Relation{}, err
	}
	ot, err := q.graph.TypeOf(ctx, t.Object)
	if err != nil {
		return Relation{}, err
	}
	r := Relation{SubjectType: st, Predicate: t.Predicate, ObjectType: ot}
	if !q.catalog.Contains(r) {
		return Relation{}, fmt.Errorf("%w: %s", ErrUnknownRelation, r)
	}
	return r, nil
}

// Validate reports whether the stored triple matches a catalog relation.
func (q *Queries) Validate(ctx context.Context, t propgraph.Triple) error {
	_, err := q.Infer(ctx, t)
	return err
}

// Triples returns the stored triples matching one typed relation: edges
// with its predicate whose endpoints carry the expected types. The sequence
// is lazy and restartable.
func (q *Queries) Triples(ctx context.Context, r Relation) iter.Seq2[propgraph.Triple, error] {
	return func(yield func(propgraph.Triple, error) bool) {
		for t, err := range q.graph.Relations(ctx, propgraph.Pattern{Predicate: r.Predicate}) {
			if err != nil {
				yield(propgraph.Triple{}, err)
				return
			}
			st, err := q.graph.TypeOf(ctx, t.Subject)
			if err != nil {
				yield(propgraph.Triple{}, err)
				return
			}
			if st != r.SubjectType {
				continue
			}
			ot, err := q.graph.TypeOf(ctx, t.Object)
			if err != nil {
				yield(propgraph.Triple{}, err)
				return
			}
			if ot != r.ObjectType {
				continue
			}
			if !yield(t, nil) {
				return
			}
		}
	}
}

// Statistics counts stored triples per catalog relation. Triples matching
// no catalog entry are counted under the zero Relation.
func (q *Queries) Statistics(ctx context.Context) (map[Relation]int64, error) {
	counts := make(map[Relation]int64)
	for t, err := range q.graph.Relations(ctx, propgraph.Pattern{}) {
		if err != nil {
			return nil, err
		}
		r, err := q.Infer(ctx, t)
		if errors.Is(err, ErrUnknownRelation) {
			counts[Relation{}]++
			continue
		}
		if err != nil {
			return nil, err
		}
		counts[r]++
	}
	return counts, nil
}
