package typededge

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/propgraph"
	"github.com/syssam/propgraph/dialect"
	entsql "github.com/syssam/propgraph/dialect/sql"
)

type Person struct {
	propgraph.Base
}

type City struct {
	propgraph.Base
}

func newTestQueries(t *testing.T) (*propgraph.Graph, *Queries) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	g := propgraph.NewGraph(entsql.OpenDB(dialect.SQLite, db))
	ctx := context.Background()
	require.NoError(t, g.Initialize(ctx, Person{}, City{}))
	for _, pid := range []string{"alice", "bob"} {
		_, err := g.AddNode(ctx, &Person{Base: propgraph.Base{PID: pid}})
		require.NoError(t, err)
	}
	_, err = g.AddNode(ctx, &City{Base: propgraph.Base{PID: "berlin"}})
	require.NoError(t, err)
	_, err = g.AddEdge(ctx, "alice", "knows", []string{"bob"})
	require.NoError(t, err)
	_, err = g.AddEdge(ctx, "alice", "lives_in", []string{"berlin"})
	require.NoError(t, err)

	c := NewCatalog(
		Relation{SubjectType: "Person", Predicate: "knows", ObjectType: "Person"},
		Relation{SubjectType: "Person", Predicate: "lives_in", ObjectType: "City"},
	)
	return g, New(g, c)
}

func TestCatalogFilters(t *testing.T) {
	c := NewCatalog(
		Relation{SubjectType: "Person", Predicate: "knows", ObjectType: "Person"},
		Relation{SubjectType: "Person", Predicate: "lives_in", ObjectType: "City"},
		Relation{SubjectType: "City", Predicate: "twinned_with", ObjectType: "City"},
	)
	assert.Len(t, c.Relations(), 3)
	assert.Len(t, c.BySubject("Person"), 2)
	assert.Len(t, c.ByObject("City"), 2)
	assert.Empty(t, c.BySubject("Route"))
	assert.True(t, c.Contains(Relation{SubjectType: "City", Predicate: "twinned_with", ObjectType: "City"}))
	assert.False(t, c.Contains(Relation{SubjectType: "City", Predicate: "knows", ObjectType: "City"}))
}

func TestInfer(t *testing.T) {
	_, q := newTestQueries(t)
	ctx := context.Background()

	r, err := q.Infer(ctx, propgraph.Triple{Subject: "alice", Predicate: "lives_in", Object: "berlin"})
	require.NoError(t, err)
	assert.Equal(t, Relation{SubjectType: "Person", Predicate: "lives_in", ObjectType: "City"}, r)

	_, err = q.Infer(ctx, propgraph.Triple{Subject: "berlin", Predicate: "knows", Object: "alice"})
	assert.ErrorIs(t, err, ErrUnknownRelation)
}

func TestValidate(t *testing.T) {
	_, q := newTestQueries(t)
	ctx := context.Background()
	assert.NoError(t, q.Validate(ctx, propgraph.Triple{Subject: "alice", Predicate: "knows", Object: "bob"}))
	assert.ErrorIs(t,
		q.Validate(ctx, propgraph.Triple{Subject: "alice", Predicate: "knows", Object: "berlin"}),
		ErrUnknownRelation)
}

func TestTriples(t *testing.T) {
	_, q := newTestQueries(t)
	ctx := context.Background()

	var got []propgraph.Triple
	for tr, err := range q.Triples(ctx, Relation{SubjectType: "Person", Predicate: "knows", ObjectType: "Person"}) {
		require.NoError(t, err)
		got = append(got, tr)
	}
	assert.Equal(t, []propgraph.Triple{{Subject: "alice", Predicate: "knows", Object: "bob"}}, got)
}

func TestStatistics(t *testing.T) {
	g, q := newTestQueries(t)
	ctx := context.Background()

	// An edge outside the catalog counts under the zero relation.
	_, err := g.AddEdge(ctx, "berlin", "hosts", []string{"alice"})
	require.NoError(t, err)

	counts, err := q.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[Relation]int64{
		{SubjectType: "Person", Predicate: "knows", ObjectType: "Person"}:    1,
		{SubjectType: "Person", Predicate: "lives_in", ObjectType: "City"}:   1,
		{}: 1,
	}, counts)
}
