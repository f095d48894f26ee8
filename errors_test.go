package propgraph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("node", "a")
	assert.EqualError(t, err, "propgraph: node not found (id=a)")
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(fmt.Errorf("resolving: %w", err)))
	assert.False(t, IsNotFound(errors.New("boom")))
	assert.False(t, IsNotFound(nil))
	assert.Equal(t, "node", err.Label())
	assert.Equal(t, "a", err.ID())
}

func TestConfigError(t *testing.T) {
	wrapped := errors.New("schema: conflict")
	err := NewConfigError("field rank redeclared", wrapped)
	assert.EqualError(t, err, "propgraph: config: field rank redeclared")
	assert.True(t, IsConfigError(err))
	assert.ErrorIs(t, err, wrapped)
	assert.False(t, IsConfigError(errors.New("boom")))
	assert.True(t, IsConfigError(NewConfigErrorf("bad %s", "type")))
}

func TestIntegrityError(t *testing.T) {
	err := NewIntegrityError("a", "x", "y")
	assert.EqualError(t, err, `propgraph: edge from "a" references unresolved pids: x, y`)
	assert.True(t, IsIntegrityError(err))
	assert.True(t, IsIntegrityError(fmt.Errorf("adding edge: %w", err)))
	assert.False(t, IsIntegrityError(nil))
	assert.Equal(t, []string{"x", "y"}, err.Missing)
}

func TestStructError(t *testing.T) {
	err := NewStructErrorf("nesting exceeds %d levels", 256)
	assert.EqualError(t, err, "propgraph: structure: nesting exceeds 256 levels")
	assert.True(t, IsStructError(err))
	assert.False(t, IsStructError(errors.New("boom")))
}
