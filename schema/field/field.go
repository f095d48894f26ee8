// Package field defines the semantic types a registered node type may
// declare, together with fluent builders for describing fields explicitly.
//
// Field names follow database conventions (snake_case); Go struct field
// names are converted automatically when a type is reflected:
//
//	field.String("scheme_name")
//	field.Strings("place_name")
//	field.Float("latitude")
package field

import "fmt"

// Type is the semantic type of a declared field. It determines the column
// type of the shared relation and how values are encoded on the way in
// and out of the engine.
type Type uint8

// Semantic field types.
const (
	TypeInvalid Type = iota
	TypeString
	TypeInt
	TypeFloat
	TypeBool
	TypeTime
	TypeStrings
	TypeInts
	TypeFloats
	TypeBytes
	endTypes
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	TypeString:  "string",
	TypeInt:     "int",
	TypeFloat:   "float",
	TypeBool:    "bool",
	TypeTime:    "time",
	TypeStrings: "strings",
	TypeInts:    "ints",
	TypeFloats:  "floats",
	TypeBytes:   "bytes",
}

// String returns the name of the type.
func (t Type) String() string {
	if t < endTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("invalid(%d)", t)
}

// Valid reports if the given type is a declared field type.
func (t Type) Valid() bool {
	return t > TypeInvalid && t < endTypes
}

// List reports whether the type holds an ordered sequence of values.
// Sequence columns preserve insertion order in storage, but the query
// surface guarantees membership semantics only.
func (t Type) List() bool {
	return t == TypeStrings || t == TypeInts || t == TypeFloats
}

// ParseType returns the type named by s, as produced by Type.String.
// It is used to reattach to persisted metadata without the Go types.
func ParseType(s string) (Type, error) {
	for t := TypeInvalid + 1; t < endTypes; t++ {
		if typeNames[t] == s {
			return t, nil
		}
	}
	return TypeInvalid, fmt.Errorf("field: unknown type %q", s)
}

// A Descriptor for field configuration.
type Descriptor struct {
	Name     string // field name, unique within its type
	Type     Type   // semantic type
	Opaque   bool   // value is msgpack-encoded into a bytes column
	Optional bool   // value may be absent (stored as NULL)
	Comment  string // optional comment
}

// Builder is the fluent builder shared by all field constructors.
type Builder struct {
	desc *Descriptor
}

// String returns a new string field builder.
func String(name string) *Builder {
	return &Builder{&Descriptor{Name: name, Type: TypeString}}
}

// Int returns a new integer field builder.
func Int(name string) *Builder {
	return &Builder{&Descriptor{Name: name, Type: TypeInt}}
}

// Float returns a new double precision field builder.
func Float(name string) *Builder {
	return &Builder{&Descriptor{Name: name, Type: TypeFloat}}
}

// Bool returns a new boolean field builder.
func Bool(name string) *Builder {
	return &Builder{&Descriptor{Name: name, Type: TypeBool}}
}

// Time returns a new timestamp field builder. Timestamps are persisted as
// integer epoch seconds.
func Time(name string) *Builder {
	return &Builder{&Descriptor{Name: name, Type: TypeTime}}
}

// Strings returns a new string sequence field builder.
func Strings(name string) *Builder {
	return &Builder{&Descriptor{Name: name, Type: TypeStrings}}
}

// Ints returns a new integer sequence field builder.
func Ints(name string) *Builder {
	return &Builder{&Descriptor{Name: name, Type: TypeInts}}
}

// Floats returns a new double sequence field builder.
func Floats(name string) *Builder {
	return &Builder{&Descriptor{Name: name, Type: TypeFloats}}
}

// Bytes returns a new binary blob field builder.
func Bytes(name string) *Builder {
	return &Builder{&Descriptor{Name: name, Type: TypeBytes}}
}

// Optional marks the field as optional; absent values are stored as NULL.
func (b *Builder) Optional() *Builder {
	b.desc.Optional = true
	return b
}

// Opaque marks the field as an opaque blob: its Go value is msgpack-encoded
// into a bytes column and decoded back on retrieval. Used for geometry and
// other structured values the engine never inspects.
func (b *Builder) Opaque() *Builder {
	b.desc.Type = TypeBytes
	b.desc.Opaque = true
	return b
}

// Comment sets the field comment.
func (b *Builder) Comment(c string) *Builder {
	b.desc.Comment = c
	return b
}

// Descriptor returns the built field descriptor.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}
