package propgraph

import (
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/syssam/propgraph/schema"
	"github.com/syssam/propgraph/schema/field"
)

// Version tags persisted metadata documents.
const Version = "0.2.0"

// opaqueType marks opaque blob fields in the persisted type dictionary,
// distinguishing them from plain bytes columns.
const opaqueType = "opaque"

// Metadata is the persisted side-channel description of a graph: enough for
// a later process to reattach to the stored rows without re-registering the
// Go types that produced them. It lives next to the data, not in it.
type Metadata struct {
	Version    string                       `yaml:"version"`
	PrimaryKey string                       `yaml:"primary_key"`
	NodeTypes  map[string]map[string]string `yaml:"node_types"`
	EdgeFields []string                     `yaml:"edge_fields"`
	Literals   []string                     `yaml:"literal_fields"`
}

// Metadata captures the current schema as a persistable document. It fails
// with a ConfigError before Initialize.
func (g *Graph) Metadata() (*Metadata, error) {
	if g.schema == nil {
		return nil, NewConfigErrorf("graph not initialized")
	}
	m := &Metadata{
		Version:    Version,
		PrimaryKey: g.pk,
		NodeTypes:  make(map[string]map[string]string),
		EdgeFields: append([]string(nil), schema.EdgeColumns...),
		Literals:   g.schema.Literals(),
	}
	for _, name := range g.schema.TypeNames() {
		fields := make(map[string]string)
		for _, f := range g.schema.Type(name).Fields() {
			if f.Opaque {
				fields[f.Name] = opaqueType
				continue
			}
			fields[f.Name] = f.Type.String()
		}
		m.NodeTypes[name] = fields
	}
	return m, nil
}

// WriteMetadata encodes the current schema as YAML.
func (g *Graph) WriteMetadata(w io.Writer) error {
	m, err := g.Metadata()
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(m); err != nil {
		return err
	}
	return enc.Close()
}

// ReadMetadata decodes a persisted metadata document.
func ReadMetadata(r io.Reader) (*Metadata, error) {
	var m Metadata
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Attach rebuilds the schema from a persisted metadata document, so the
// client can read and write previously stored rows without the original Go
// types. It fails with a ConfigError if the schema is already attached or
// the document names an unknown field type.
func (g *Graph) Attach(m *Metadata) error {
	if g.schema != nil {
		return NewConfigError("attach after initialize", ErrInitialized)
	}
	typeNames := make([]string, 0, len(m.NodeTypes))
	for name := range m.NodeTypes {
		typeNames = append(typeNames, name)
	}
	sort.Strings(typeNames)
	types := make([]*schema.Type, 0, len(typeNames))
	for _, name := range typeNames {
		fieldNames := make([]string, 0, len(m.NodeTypes[name]))
		for fn := range m.NodeTypes[name] {
			fieldNames = append(fieldNames, fn)
		}
		sort.Strings(fieldNames)
		descs := make([]*field.Descriptor, 0, len(fieldNames))
		for _, fn := range fieldNames {
			ts := m.NodeTypes[name][fn]
			if ts == opaqueType {
				descs = append(descs, field.Bytes(fn).Opaque().Optional().Descriptor())
				continue
			}
			t, err := field.ParseType(ts)
			if err != nil {
				return NewConfigError(err.Error(), err)
			}
			descs = append(descs, &field.Descriptor{Name: fn, Type: t, Optional: true})
		}
		types = append(types, schema.NewType(name, descs...))
	}
	s, err := schema.FromTypes(types)
	if err != nil {
		return NewConfigError(err.Error(), err)
	}
	g.schema = s
	if m.PrimaryKey != "" {
		g.pk = m.PrimaryKey
	}
	return nil
}
