package propgraph

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	entsql "github.com/syssam/propgraph/dialect/sql"
	"github.com/syssam/propgraph/schema"
)

// maxDecomposeDepth bounds recursion over nested composites. The
// by-identity visited map resolves reference cycles, so only inputs that
// materialize fresh objects at every level can reach the bound.
const maxDecomposeDepth = 256

// AddNode recursively decomposes a composite object into node rows joined
// by synthesized edges, inside its own transaction. See Tx.AddNode.
func (g *Graph) AddNode(ctx context.Context, v any) (string, error) {
	var pid string
	err := g.withTx(ctx, func(tx *Tx) error {
		var err error
		pid, err = tx.AddNode(ctx, v)
		return err
	})
	if err != nil {
		return "", err
	}
	return pid, nil
}

// AddNode inserts one row for the scalar fields of v. Every field holding
// another composite (a nested struct, a pointer to one, or a slice of
// either) is decomposed into its own node first, then joined to the
// parent by an edge whose predicate is the field name. A list-valued
// reference field produces a single edge whose object list has one entry
// per element.
//
// Objects are tracked by identity during the recursion: a pointer
// re-encountered while it is being decomposed reuses the in-progress
// node instead of recursing again, so shared references and reference
// cycles produce exactly one node. Decomposing a logically identical
// structure again is an upsert, not a duplicate: literal columns are
// rewritten, tmodified is bumped and the row id is preserved.
//
// If v carries no explicit identifier an anonymous one is generated and,
// when v is a settable pointer, written back into it.
func (tx *Tx) AddNode(ctx context.Context, v any) (string, error) {
	d := decomposer{tx: tx, seen: make(map[uintptr]string)}
	return d.add(ctx, reflect.ValueOf(v), 0)
}

type decomposer struct {
	tx   *Tx
	seen map[uintptr]string // pointer identity -> assigned pid
}

type refField struct {
	column string
	value  reflect.Value
	list   bool
}

func (d *decomposer) add(ctx context.Context, rv reflect.Value, depth int) (string, error) {
	if depth > maxDecomposeDepth {
		return "", NewStructErrorf("nesting exceeds %d levels", maxDecomposeDepth)
	}
	for rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	var key uintptr
	elem := rv
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", NewStructError("cannot decompose nil pointer")
		}
		key = rv.Pointer()
		if pid, ok := d.seen[key]; ok {
			return pid, nil
		}
		elem = rv.Elem()
	}
	if elem.Kind() != reflect.Struct {
		return "", NewConfigErrorf("cannot decompose %s value", elem.Kind())
	}
	otype := elem.Type().Name()
	td := d.tx.g.schema.Type(otype)
	if td == nil {
		return "", NewConfigErrorf("type %s is not registered", otype)
	}

	var (
		pid      string
		pkValue  string
		pidField reflect.Value
		base     = make(map[string]any, 3)
		lits     = make(map[string]any)
		refs     []refField
	)
	err := schema.VisitFields(elem, func(info schema.Info, fv reflect.Value) error {
		switch {
		case info.Ref:
			refs = append(refs, refField{column: info.Column, value: fv, list: info.RefList})
			return nil
		case info.Base:
			if info.Column == "pid" {
				pidField = fv
				pid = fv.String()
				return nil
			}
			v, err := encodeValue(info, fv)
			if err != nil {
				return err
			}
			// Optional base columns are absent, not empty: an unset label
			// or description stores as NULL so it stays out of the
			// property bag.
			if s, ok := v.(string); ok && s == "" {
				v = nil
			}
			base[info.Column] = v
			return nil
		default:
			if info.Column == d.tx.g.pk && fv.Kind() == reflect.String {
				pkValue = fv.String()
			}
			v, err := encodeValue(info, fv)
			if err != nil {
				return err
			}
			lits[info.Column] = v
			return nil
		}
	})
	if err != nil {
		return "", err
	}
	if pid == "" {
		pid = pkValue
	}
	if pid == "" {
		u := uuid.New()
		pid = anonPrefix + hex.EncodeToString(u[:])
	}
	if pidField.IsValid() && pidField.CanSet() && pidField.String() == "" {
		pidField.SetString(pid)
	}
	if key != 0 {
		d.seen[key] = pid
	}

	if err := d.tx.upsertNode(ctx, otype, pid, base, lits); err != nil {
		return "", err
	}
	for _, ref := range refs {
		objects, err := d.refObjects(ctx, ref, depth)
		if err != nil {
			return "", err
		}
		if len(objects) == 0 {
			continue
		}
		if _, err := d.tx.insertEdge(ctx, pid, ref.column, objects, ""); err != nil {
			return "", err
		}
	}
	return pid, nil
}

// refObjects decomposes the composites held by one reference field and
// returns their pids, in field order. Children are fully inserted before
// the caller writes the edge that references them.
func (d *decomposer) refObjects(ctx context.Context, ref refField, depth int) ([]string, error) {
	if ref.list {
		if ref.value.IsNil() {
			return nil, nil
		}
		objects := make([]string, 0, ref.value.Len())
		for i := 0; i < ref.value.Len(); i++ {
			ev := ref.value.Index(i)
			if ev.Kind() == reflect.Pointer && ev.IsNil() {
				continue
			}
			pid, err := d.add(ctx, ev, depth+1)
			if err != nil {
				return nil, err
			}
			objects = append(objects, pid)
		}
		return objects, nil
	}
	if ref.value.Kind() == reflect.Pointer && ref.value.IsNil() {
		return nil, nil
	}
	pid, err := d.add(ctx, ref.value, depth+1)
	if err != nil {
		return nil, err
	}
	return []string{pid}, nil
}

// encodeValue converts a mapped struct field value to its column
// representation. Sequences become JSON text, timestamps epoch seconds,
// opaque values msgpack blobs; absent values become NULL.
func encodeValue(info schema.Info, rv reflect.Value) (any, error) {
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if info.Opaque {
		b, err := msgpack.Marshal(rv.Interface())
		if err != nil {
			return nil, fmt.Errorf("propgraph: encoding %s: %w", info.Column, err)
		}
		return b, nil
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Struct:
		t, ok := rv.Interface().(time.Time)
		if !ok {
			return nil, fmt.Errorf("propgraph: unmappable value for %s", info.Column)
		}
		if t.IsZero() {
			return nil, nil
		}
		return t.Unix(), nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			if rv.IsNil() {
				return nil, nil
			}
			return rv.Bytes(), nil
		}
		if rv.IsNil() || rv.Len() == 0 {
			return nil, nil
		}
		b, err := json.Marshal(rv.Interface())
		if err != nil {
			return nil, fmt.Errorf("propgraph: encoding %s: %w", info.Column, err)
		}
		return string(b), nil
	default:
		return nil, fmt.Errorf("propgraph: unmappable value for %s", info.Column)
	}
}

// upsertNode writes one node row, updating the existing row in place when
// the pid is already present. row_id and tcreated are immutable.
func (tx *Tx) upsertNode(ctx context.Context, otype, pid string, base, lits map[string]any) error {
	now := time.Now().Unix()
	id, err := tx.rowID(ctx, pid)
	switch {
	case err == nil:
		cols := []string{"tmodified"}
		args := []any{now}
		for _, k := range []string{"label", "description", "altids"} {
			if v, ok := base[k]; ok {
				cols = append(cols, k)
				args = append(args, v)
			}
		}
		for k, v := range lits {
			cols = append(cols, k)
			args = append(args, v)
		}
		set := ""
		for i, c := range cols {
			if i > 0 {
				set += ", "
			}
			set += c + " = ?"
		}
		args = append(args, id)
		return tx.tx.Exec(ctx, "UPDATE "+Table+" SET "+set+" WHERE row_id = ?", args, nil)
	case IsNotFound(err):
		names := []string{"pid", "tcreated", "tmodified", "otype"}
		args := []any{pid, now, now, otype}
		for _, k := range []string{"label", "description", "altids"} {
			if v, ok := base[k]; ok {
				names = append(names, k)
				args = append(args, v)
			}
		}
		for k, v := range lits {
			names = append(names, k)
			args = append(args, v)
		}
		id, err := tx.insertReturningID(ctx, names, args)
		if err != nil {
			return err
		}
		tx.pending.put(pid, id)
		return nil
	default:
		return err
	}
}

// insertReturningID inserts one row into the shared relation and returns
// the engine-assigned monotonic row id.
func (tx *Tx) insertReturningID(ctx context.Context, names []string, args []any) (int64, error) {
	q := "INSERT INTO " + Table + " ("
	marks := ""
	for i, n := range names {
		if i > 0 {
			q += ", "
			marks += ", "
		}
		q += n
		marks += "?"
	}
	q += ") VALUES (" + marks + ") RETURNING row_id"
	rows := &entsql.Rows{}
	if err := tx.tx.Query(ctx, q, args, rows); err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, fmt.Errorf("propgraph: insert returned no row id")
	}
	var id int64
	if err := rows.Scan(&id); err != nil {
		return 0, err
	}
	return id, rows.Err()
}
