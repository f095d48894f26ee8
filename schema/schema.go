// Package schema collects per-type field declarations and unifies them into
// the single shared relation the property graph is stored in. Types are
// usually registered by reflecting caller structs, but can also be declared
// explicitly with the field builders, or rebuilt from persisted metadata.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/syssam/propgraph/schema/field"
)

// ErrFinalized is returned by Register once the registry has been built.
var ErrFinalized = errors.New("schema: registry already finalized")

// ReservedColumns are the column names of the shared relation itself.
// Registered types may bind to pid, label, description and altids, but may
// not redeclare any reserved name as an extension field.
var ReservedColumns = []string{
	"row_id", "pid", "tcreated", "tmodified", "otype",
	"label", "description", "altids", "s", "p", "o", "n",
}

// EdgeColumns are the reserved edge-only fields of the shared relation.
var EdgeColumns = []string{"s", "p", "o", "n"}

// Reserved reports whether name is a reserved column of the shared relation.
func Reserved(name string) bool {
	for _, r := range ReservedColumns {
		if r == name {
			return true
		}
	}
	return false
}

// Type describes one registered node type: an ordered list of extension
// field declarations keyed by the type name used as the row's otype.
type Type struct {
	Name   string
	fields []*field.Descriptor
	index  map[string]*field.Descriptor
}

// NewType returns a type descriptor built from explicit field builders.
func NewType(name string, fields ...*field.Descriptor) *Type {
	t := &Type{Name: name, index: make(map[string]*field.Descriptor, len(fields))}
	for _, f := range fields {
		t.add(f)
	}
	return t
}

func (t *Type) add(f *field.Descriptor) {
	if _, ok := t.index[f.Name]; ok {
		return
	}
	t.fields = append(t.fields, f)
	t.index[f.Name] = f
}

// Fields returns the declared extension fields in declaration order.
func (t *Type) Fields() []*field.Descriptor {
	return t.fields
}

// Field returns the declared field with the given name, or nil.
func (t *Type) Field(name string) *field.Descriptor {
	return t.index[name]
}

// Describe reflects a struct (or pointer to struct) into a type descriptor.
// Reference fields (nested structs, pointers to structs, or slices of
// either) are not part of the descriptor; they decompose into separate
// nodes joined by edges.
func Describe(v any) (*Type, error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: Describe expects a struct, got %T", v)
	}
	return describeType(t)
}

func describeType(t reflect.Type) (*Type, error) {
	td := NewType(t.Name())
	err := visitFieldTypes(t, func(info Info, sf reflect.StructField) error {
		if info.Ref || info.Base {
			return nil
		}
		td.add(&field.Descriptor{
			Name:     info.Column,
			Type:     info.Type,
			Opaque:   info.Opaque,
			Optional: sf.Type.Kind() == reflect.Pointer || info.Type.List(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return td, nil
}

// Registry collects type descriptors until the schema is finalized.
type Registry struct {
	types map[string]*Type
	order []string
	built *Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Type)}
}

// Register reflects v into a type descriptor and adds it to the registry.
// Types referenced by v are registered recursively. Registering after the
// schema has been built fails with ErrFinalized.
func (r *Registry) Register(v any) error {
	if r.built != nil {
		return ErrFinalized
	}
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return fmt.Errorf("schema: Register expects a struct, got %T", v)
	}
	return r.register(t)
}

func (r *Registry) register(t reflect.Type) error {
	if _, ok := r.types[t.Name()]; ok {
		return nil
	}
	td, err := describeType(t)
	if err != nil {
		return err
	}
	r.add(td)
	// Referenced composites become their own node types.
	return visitFieldTypes(t, func(info Info, sf reflect.StructField) error {
		if !info.Ref {
			return nil
		}
		return r.register(RefType(sf.Type))
	})
}

// RegisterType adds an explicitly built type descriptor.
func (r *Registry) RegisterType(td *Type) error {
	if r.built != nil {
		return ErrFinalized
	}
	r.add(td)
	return nil
}

func (r *Registry) add(td *Type) {
	if _, ok := r.types[td.Name]; ok {
		return
	}
	r.types[td.Name] = td
	r.order = append(r.order, td.Name)
}

// Build unifies the registered types into the shared relation schema.
// A reserved column redeclared as an extension field, or two types
// declaring the same field with different semantic types, fail the build;
// no partial schema is committed. Build is idempotent.
func (r *Registry) Build() (*Schema, error) {
	if r.built != nil {
		return r.built, nil
	}
	s := &Schema{types: r.types, order: append([]string(nil), r.order...)}
	union := make(map[string]*field.Descriptor)
	for _, name := range r.order {
		for _, f := range r.types[name].Fields() {
			if Reserved(f.Name) {
				return nil, fmt.Errorf("schema: type %s redeclares reserved column %q", name, f.Name)
			}
			if prev, ok := union[f.Name]; ok {
				if prev.Type != f.Type || prev.Opaque != f.Opaque {
					return nil, fmt.Errorf("schema: field %q declared as %s and %s", f.Name, prev.Type, f.Type)
				}
				continue
			}
			union[f.Name] = f
		}
	}
	cols := make([]*field.Descriptor, 0, len(union))
	for _, f := range union {
		cols = append(cols, f)
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
	s.columns = cols
	r.built = s
	return s, nil
}

// Schema is the finalized shared relation schema.
type Schema struct {
	types   map[string]*Type
	order   []string
	columns []*field.Descriptor
}

// Type returns the registered type descriptor with the given name, or nil.
func (s *Schema) Type(name string) *Type {
	return s.types[name]
}

// TypeNames returns the registered type names in registration order.
func (s *Schema) TypeNames() []string {
	return append([]string(nil), s.order...)
}

// Columns returns the unified extension columns, sorted by name.
func (s *Schema) Columns() []*field.Descriptor {
	return s.columns
}

// Literals returns the names of all non-reserved extension columns.
func (s *Schema) Literals() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.Name
	}
	return names
}

// FromTypes rebuilds a finalized schema directly from type descriptors, as
// when reattaching to persisted data from side-channel metadata.
func FromTypes(types []*Type) (*Schema, error) {
	r := NewRegistry()
	for _, td := range types {
		if err := r.RegisterType(td); err != nil {
			return nil, err
		}
	}
	return r.Build()
}
