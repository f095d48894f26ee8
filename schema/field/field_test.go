package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeString(t *testing.T) {
	assert.Equal(t, "string", TypeString.String())
	assert.Equal(t, "floats", TypeFloats.String())
	assert.Equal(t, "invalid", TypeInvalid.String())
	assert.Equal(t, "invalid(100)", Type(100).String())
}

func TestTypeValid(t *testing.T) {
	assert.False(t, TypeInvalid.Valid())
	assert.True(t, TypeString.Valid())
	assert.True(t, TypeBytes.Valid())
	assert.False(t, endTypes.Valid())
}

func TestTypeList(t *testing.T) {
	assert.True(t, TypeStrings.List())
	assert.True(t, TypeInts.List())
	assert.True(t, TypeFloats.List())
	assert.False(t, TypeBytes.List())
	assert.False(t, TypeString.List())
}

func TestParseType(t *testing.T) {
	for typ := TypeInvalid + 1; typ < endTypes; typ++ {
		got, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := ParseType("nonsense")
	assert.Error(t, err)
	_, err = ParseType("invalid")
	assert.Error(t, err)
}

func TestBuilders(t *testing.T) {
	d := String("scheme_name").Optional().Comment("registry name").Descriptor()
	assert.Equal(t, "scheme_name", d.Name)
	assert.Equal(t, TypeString, d.Type)
	assert.True(t, d.Optional)
	assert.Equal(t, "registry name", d.Comment)

	d = Floats("bbox").Descriptor()
	assert.Equal(t, TypeFloats, d.Type)
	assert.False(t, d.Optional)

	d = Strings("geom").Opaque().Descriptor()
	assert.Equal(t, TypeBytes, d.Type)
	assert.True(t, d.Opaque)
}
