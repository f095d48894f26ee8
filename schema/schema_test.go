package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/propgraph/schema/field"
)

type base struct {
	PID    string   `graph:"pid"`
	Label  string   `graph:"label"`
	AltIDs []string `graph:"altids"`
}

type place struct {
	base
	PlaceName  string
	Latitude   float64
	Longitude  float64
	Population int
	Tags       []string
	Geometry   []float64 `graph:"geom,blob"`
	internal   int       // unexported, ignored
	Skipped    string    `graph:"-"`
}

type route struct {
	base
	PlaceName string // same name, same type as place: unifiable
	Stops     []*place
}

func TestDescribe(t *testing.T) {
	td, err := Describe(place{})
	require.NoError(t, err)
	assert.Equal(t, "place", td.Name)

	names := make([]string, 0, len(td.Fields()))
	for _, f := range td.Fields() {
		names = append(names, f.Name)
	}
	// Base bindings, references, skipped and unexported fields are not
	// extension columns.
	assert.Equal(t, []string{"place_name", "latitude", "longitude", "population", "tags", "geom"}, names)

	assert.Equal(t, field.TypeString, td.Field("place_name").Type)
	assert.Equal(t, field.TypeFloat, td.Field("latitude").Type)
	assert.Equal(t, field.TypeInt, td.Field("population").Type)
	assert.Equal(t, field.TypeStrings, td.Field("tags").Type)
	assert.Equal(t, field.TypeBytes, td.Field("geom").Type)
	assert.True(t, td.Field("geom").Opaque)
	assert.Nil(t, td.Field("skipped"))
	assert.Nil(t, td.Field("internal"))
}

func TestRegisterRecursesIntoReferences(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(route{}))
	s, err := r.Build()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"route", "place"}, s.TypeNames())
}

func TestBuildUnifiesSharedFields(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(place{}))
	require.NoError(t, r.Register(route{}))
	s, err := r.Build()
	require.NoError(t, err)

	// place_name is declared by both types but appears once.
	n := 0
	for _, c := range s.Columns() {
		if c.Name == "place_name" {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestBuildRejectsReservedColumn(t *testing.T) {
	type bad struct {
		Subject string `graph:"s"`
	}
	r := NewRegistry()
	require.NoError(t, r.Register(bad{}))
	_, err := r.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")
}

func TestBuildRejectsTypeConflict(t *testing.T) {
	type one struct {
		Rank int
	}
	type two struct {
		Rank string
	}
	r := NewRegistry()
	require.NoError(t, r.Register(one{}))
	require.NoError(t, r.Register(two{}))
	_, err := r.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rank")
}

func TestRegisterAfterBuild(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(place{}))
	_, err := r.Build()
	require.NoError(t, err)
	assert.ErrorIs(t, r.Register(route{}), ErrFinalized)
}

func TestBuildIdempotent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(place{}))
	s1, err := r.Build()
	require.NoError(t, err)
	s2, err := r.Build()
	require.NoError(t, err)
	assert.Same(t, s1, s2)
}

func TestBaseColumnTypeMismatch(t *testing.T) {
	type bad struct {
		Label int `graph:"label"`
	}
	r := NewRegistry()
	assert.Error(t, r.Register(bad{}))
}

func TestReserved(t *testing.T) {
	assert.True(t, Reserved("row_id"))
	assert.True(t, Reserved("o"))
	assert.False(t, Reserved("place_name"))
}

func TestSnake(t *testing.T) {
	for in, want := range map[string]string{
		"PlaceName": "place_name",
		"UserID":    "user_id",
		"HTTPPort":  "http_port",
		"Age":       "age",
		"pid":       "pid",
	} {
		assert.Equal(t, want, snake(in), in)
	}
}

func TestFromTypes(t *testing.T) {
	s, err := FromTypes([]*Type{
		NewType("city",
			field.String("city_name").Descriptor(),
			field.Int("population").Optional().Descriptor(),
		),
	})
	require.NoError(t, err)
	require.NotNil(t, s.Type("city"))
	assert.Equal(t, field.TypeInt, s.Type("city").Field("population").Type)
}
