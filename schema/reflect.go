package schema

import (
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/syssam/propgraph/schema/field"
)

// TagName is the struct tag consulted when mapping struct fields.
// The tag value is `name[,option]`: a leading "-" skips the field, and the
// "blob" option forces opaque msgpack encoding into a bytes column.
const TagName = "graph"

// Info describes how one struct field maps onto the shared relation.
type Info struct {
	Column  string     // column name (snake_case of the Go name unless tagged)
	Type    field.Type // semantic type; TypeInvalid for references
	Opaque  bool       // msgpack-encoded blob
	Ref     bool       // reference to another composite type
	RefList bool       // ordered list of references
	Base    bool       // maps onto a base column (pid, label, description, altids)
}

// base columns a registered type may bind to without redeclaring them.
var baseColumns = map[string]field.Type{
	"pid":         field.TypeString,
	"label":       field.TypeString,
	"description": field.TypeString,
	"altids":      field.TypeStrings,
}

var timeType = reflect.TypeOf(time.Time{})

// fieldInfo maps a single struct field. Skipped fields return ok=false.
func fieldInfo(sf reflect.StructField) (Info, bool, error) {
	if sf.PkgPath != "" { // unexported
		return Info{}, false, nil
	}
	name := snake(sf.Name)
	opaque := false
	if tag, found := sf.Tag.Lookup(TagName); found {
		parts := strings.Split(tag, ",")
		if parts[0] == "-" {
			return Info{}, false, nil
		}
		if parts[0] != "" {
			name = parts[0]
		}
		for _, opt := range parts[1:] {
			if opt == "blob" {
				opaque = true
			}
		}
	}
	info := Info{Column: name}
	if opaque {
		info.Type = field.TypeBytes
		info.Opaque = true
		return info, true, nil
	}
	t := sf.Type
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		info.Type = field.TypeString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		info.Type = field.TypeInt
	case reflect.Float32, reflect.Float64:
		info.Type = field.TypeFloat
	case reflect.Bool:
		info.Type = field.TypeBool
	case reflect.Struct:
		if t == timeType {
			info.Type = field.TypeTime
		} else {
			info.Ref = true
		}
	case reflect.Slice:
		e := t.Elem()
		if e.Kind() == reflect.Pointer {
			e = e.Elem()
		}
		switch e.Kind() {
		case reflect.String:
			info.Type = field.TypeStrings
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			info.Type = field.TypeInts
		case reflect.Uint8:
			info.Type = field.TypeBytes
		case reflect.Float32, reflect.Float64:
			info.Type = field.TypeFloats
		case reflect.Struct:
			if e == timeType {
				return Info{}, false, newTypeError(sf, "timestamp sequences are not supported")
			}
			info.Ref = true
			info.RefList = true
		default:
			return Info{}, false, newTypeError(sf, "unmappable slice element")
		}
	default:
		return Info{}, false, newTypeError(sf, "unmappable field type")
	}
	if bt, ok := baseColumns[info.Column]; ok && !info.Ref {
		if info.Type != bt {
			return Info{}, false, newTypeError(sf, "base column type mismatch")
		}
		info.Base = true
	}
	return info, true, nil
}

func newTypeError(sf reflect.StructField, msg string) error {
	return &mapError{field: sf.Name, msg: msg}
}

type mapError struct {
	field string
	msg   string
}

func (e *mapError) Error() string {
	return "schema: field " + e.field + ": " + e.msg
}

// visitFieldTypes walks the flattened fields of a struct type, descending
// into anonymous embedded structs the way encoding/json does.
func visitFieldTypes(t reflect.Type, fn func(Info, reflect.StructField) error) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Anonymous {
			et := sf.Type
			if et.Kind() == reflect.Pointer {
				et = et.Elem()
			}
			if et.Kind() == reflect.Struct {
				if err := visitFieldTypes(et, fn); err != nil {
					return err
				}
				continue
			}
		}
		info, ok, err := fieldInfo(sf)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := fn(info, sf); err != nil {
			return err
		}
	}
	return nil
}

// VisitFields walks the flattened, mapped fields of a struct value.
// The callback receives the mapping for each field and its value.
func VisitFields(rv reflect.Value, fn func(Info, reflect.Value) error) error {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Anonymous {
			ev := rv.Field(i)
			if ev.Kind() == reflect.Pointer {
				if ev.IsNil() {
					continue
				}
				ev = ev.Elem()
			}
			if ev.Kind() == reflect.Struct {
				if err := VisitFields(ev, fn); err != nil {
					return err
				}
				continue
			}
		}
		info, ok, err := fieldInfo(sf)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := fn(info, rv.Field(i)); err != nil {
			return err
		}
	}
	return nil
}

// RefType returns the composite struct type referenced by a field type,
// unwrapping pointers and slices.
func RefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	return t
}

// snake converts a Go identifier to snake_case, so UserID becomes user_id.
func snake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (!unicode.IsUpper(runes[i-1]) || (i+1 < len(runes) && !unicode.IsUpper(runes[i+1]))) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
