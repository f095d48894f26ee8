package propgraph

import (
	"bytes"
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"github.com/syssam/propgraph/dialect"
	entsql "github.com/syssam/propgraph/dialect/sql"
	"github.com/syssam/propgraph/schema/field"
)

type Shape struct {
	Base
	Kind     string
	Geometry []float64 `graph:"geom,blob"`
}

func TestMetadataRoundTrip(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	g1 := NewGraph(entsql.OpenDB(dialect.SQLite, db))
	require.NoError(t, g1.Initialize(ctx, Shape{}))
	_, err = g1.AddNode(ctx, &Shape{
		Base:     Base{PID: "line"},
		Kind:     "linestring",
		Geometry: []float64{13.4, 52.5, 13.5, 52.6},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, g1.WriteMetadata(&buf))

	m, err := ReadMetadata(&buf)
	require.NoError(t, err)
	assert.Equal(t, Version, m.Version)
	assert.Equal(t, "pid", m.PrimaryKey)
	assert.Equal(t, map[string]string{"kind": "string", "geom": "opaque"}, m.NodeTypes["Shape"])
	assert.Contains(t, m.Literals, "geom")
	assert.Equal(t, []string{"s", "p", "o", "n"}, m.EdgeFields)

	// A second client reattaches from the document alone, without the Go
	// types, and reads the stored rows.
	g2 := NewGraph(entsql.OpenDB(dialect.SQLite, db))
	require.NoError(t, g2.Attach(m))
	assert.Equal(t, g1.Schema().Literals(), g2.Schema().Literals())

	bag, err := g2.GetNode(ctx, "line")
	require.NoError(t, err)
	assert.Equal(t, "linestring", bag["kind"])
	blob, ok := bag["geom"].([]byte)
	require.True(t, ok)
	var geom []float64
	require.NoError(t, msgpack.Unmarshal(blob, &geom))
	assert.Equal(t, []float64{13.4, 52.5, 13.5, 52.6}, geom)
}

func TestAttachAfterInitialize(t *testing.T) {
	g := newTestGraph(t, Shape{})
	m, err := g.Metadata()
	require.NoError(t, err)
	err = g.Attach(m)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.ErrorIs(t, err, ErrInitialized)
}

func TestMetadataBeforeInitialize(t *testing.T) {
	g := NewGraph(nil)
	_, err := g.Metadata()
	assert.True(t, IsConfigError(err))
}

func TestAttachUnknownType(t *testing.T) {
	g := NewGraph(nil)
	err := g.Attach(&Metadata{
		Version:   Version,
		NodeTypes: map[string]map[string]string{"X": {"f": "nonsense"}},
	})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestAttachOpaqueField(t *testing.T) {
	g := NewGraph(nil)
	require.NoError(t, g.Attach(&Metadata{
		Version:    Version,
		PrimaryKey: "name",
		NodeTypes:  map[string]map[string]string{"X": {"f": "opaque"}},
	}))
	f := g.Schema().Type("X").Field("f")
	require.NotNil(t, f)
	assert.Equal(t, field.TypeBytes, f.Type)
	assert.True(t, f.Opaque)
}
