package entity

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/rzpsarthak13/sqlkit/internal/cast"
	"github.com/rzpsarthak13/sqlkit/internal/core"
	"github.com/rzpsarthak13/sqlkit/internal/query"
	"github.com/rzpsarthak13/sqlkit/internal/relation"
	"github.com/rzpsarthak13/sqlkit/internal/row"
)

// TimestampLayout formats the values stamped into timestamp columns.
const TimestampLayout = "2006-01-02 15:04:05"

var now = time.Now

func timestamp() string { return now().Format(TimestampLayout) }

type pendingMany struct {
	name  string
	value any
}

// Entity is one row of a model's table. Attributes hold stored values; reads
// go through the model's casts. An Entity is not safe for concurrent use.
type Entity struct {
	model *Model
	conn  Conn

	attrs   map[string]any
	changes map[string]any

	related   map[string]any
	relations map[string]*Relation
	toMany    []pendingMany

	with []string
	q    *query.Builder
}

// New returns an entity holding attrs. Every attribute goes through the
// model's mapping and casts; the result starts clean.
func (m *Model) New(conn Conn, attrs map[string]any) *Entity {
	e := &Entity{
		model:     m,
		conn:      conn,
		attrs:     make(map[string]any, len(attrs)),
		changes:   make(map[string]any),
		related:   make(map[string]any),
		relations: make(map[string]*Relation),
	}
	e.With(m.With...)

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := e.write(k, attrs[k]); err != nil {
			logf("cannot set %s.%s: %v", m.Table, k, err)
		}
	}
	e.changes = make(map[string]any)
	return e
}

// hydrate builds an entity from a fetched row.
func (m *Model) hydrate(conn Conn, r *row.Row) *Entity {
	return m.New(conn, r.Map())
}

// Model returns the entity's model.
func (e *Entity) Model() *Model { return e.model }

// Conn returns the connection the entity uses.
func (e *Entity) Conn() Conn { return e.conn }

// Table returns the model's table.
func (e *Entity) Table() string { return e.model.Table }

// PrimaryKey returns the model's primary key column.
func (e *Entity) PrimaryKey() string { return e.model.PrimaryKey }

// ID returns the primary key, cast for reading.
func (e *Entity) ID() any { return e.Attr(e.model.PrimaryKey) }

// IsPersistent reports whether the entity has a primary key.
func (e *Entity) IsPersistent() bool {
	v, ok := e.attrs[e.model.PrimaryKey]
	return ok && v != nil
}

// IsDirty reports whether an attribute changed since load or the last save.
func (e *Entity) IsDirty() bool { return len(e.changes) > 0 }

// Changes returns the current stored value of every changed attribute.
func (e *Entity) Changes() map[string]any {
	out := make(map[string]any, len(e.changes))
	for k := range e.changes {
		out[k] = e.attrs[k]
	}
	return out
}

// Original returns the value an attribute had before its last change.
func (e *Entity) Original(key string) (any, bool) {
	v, ok := e.changes[key]
	return v, ok
}

// Attributes returns a copy of the stored attributes.
func (e *Entity) Attributes() map[string]any {
	out := make(map[string]any, len(e.attrs))
	for k, v := range e.attrs {
		out[k] = v
	}
	return out
}

// Has reports whether the entity stores the attribute.
func (e *Entity) Has(key string) bool {
	_, ok := e.attrs[e.column(key)]
	return ok
}

// column maps an external name to its storage column.
func (e *Entity) column(name string) string {
	if _, ok := e.model.Relations[name]; ok {
		return name
	}
	if _, ok := e.model.Accessors[name]; ok {
		return name
	}
	if c, ok := e.model.Mapping[name]; ok {
		return c
	}
	return name
}

// Attr reads a value: a cast attribute, then an accessor, then an
// eager-loaded relation. Anything else, and cast failures, read as nil.
func (e *Entity) Attr(key string) any {
	v, _ := e.Value(key)
	return v
}

// Value is Attr with errors: a failing cast or an unknown key is reported.
func (e *Entity) Value(key string) (any, error) {
	col := e.column(key)
	if raw, ok := e.attrs[col]; ok {
		v, err := e.model.Cast(col).Transform(cast.Get, col, raw, e, e.attrs)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s.%s: %w", e.model.Table, col, err)
		}
		return v, nil
	}
	if a, ok := e.model.Accessors[key]; ok && a.Get != nil {
		return a.Get(e), nil
	}
	if v, ok := e.related[key]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%s has no attribute %q", e.model.Table, key)
}

// Set writes a value. The primary key is never written this way. Accessors
// and relations take precedence over attributes: a to-one relation stores the
// related id in its local key, a to-many value is kept until Save.
func (e *Entity) Set(key string, value any) error {
	if key == e.model.PrimaryKey {
		return nil
	}
	if a, ok := e.model.Accessors[key]; ok {
		if a.Set == nil {
			return nil
		}
		return a.Set(e, value)
	}
	if _, ok := e.model.Relations[key]; ok {
		rel := e.relation(key)
		if rel.Kind() == relation.ToMany {
			e.toMany = append(e.toMany, pendingMany{name: key, value: value})
			return nil
		}
		return e.write(rel.LocalKey(), foreignID(value))
	}
	return e.write(key, value)
}

// foreignID reduces a related value to the id stored in a local key.
func foreignID(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case *Entity:
		if v == nil {
			return nil
		}
		return v.ID()
	}
	switch reflect.ValueOf(value).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer, reflect.Func, reflect.Chan:
		return nil
	}
	return value
}

// Fill sets every value of attrs except guarded keys.
func (e *Entity) Fill(attrs map[string]any) error {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if e.model.guarded[k] || e.model.guarded[e.column(k)] {
			continue
		}
		if err := e.Set(k, attrs[k]); err != nil {
			return err
		}
	}
	return nil
}

// write casts and stores an attribute, recording the previous value when an
// existing attribute changes.
func (e *Entity) write(name string, value any) error {
	key := e.column(name)
	v, err := e.model.Cast(key).Transform(cast.Set, key, value, e, e.attrs)
	if err != nil {
		return fmt.Errorf("failed to set %s.%s: %w", e.model.Table, key, err)
	}
	if old, ok := e.attrs[key]; ok && !reflect.DeepEqual(old, v) {
		e.changes[key] = old
	}
	e.attrs[key] = v
	return nil
}

// relation returns the memoized descriptor of a declared relation, or nil.
func (e *Entity) relation(name string) *Relation {
	if r, ok := e.relations[name]; ok {
		return r
	}
	fn, ok := e.model.Relations[name]
	if !ok || fn == nil {
		return nil
	}
	r := fn(e.model)
	if r == nil {
		return nil
	}
	e.relations[name] = r
	return r
}

// Relation returns the declared relation name.
func (e *Entity) Relation(name string) (*Relation, error) {
	r := e.relation(name)
	if r == nil {
		return nil, core.NoRelation(name)
	}
	return r, nil
}

// Related returns an eager-loaded relation, or loads it for this entity: a
// *Entity (or nil) for to-one relations, a []*Entity for to-many ones.
func (e *Entity) Related(ctx context.Context, name string) (any, error) {
	if v, ok := e.related[name]; ok {
		return v, nil
	}
	rel, err := e.Relation(name)
	if err != nil {
		return nil, err
	}
	if rel.Kind() == relation.ToOne {
		if !e.IsPersistent() {
			return nil, nil
		}
		r, err := rel.First(ctx, e.conn, []any{e.attrs[e.model.PrimaryKey]})
		if err != nil || r == nil {
			return nil, err
		}
		return rel.Model().hydrate(e.conn, r), nil
	}

	if !e.IsPersistent() {
		return []*Entity{}, nil
	}
	rows, err := rel.Call(ctx, e.conn, []any{e.attrs[e.model.PrimaryKey]})
	if err != nil {
		return nil, err
	}
	out := make([]*Entity, 0, len(rows))
	for _, r := range rows {
		out = append(out, rel.Model().hydrate(e.conn, r))
	}
	return out, nil
}

// SetRelated attaches a loaded relation value.
func (e *Entity) SetRelated(name string, value any) {
	e.related[name] = value
}

// IsLoaded reports whether the relation was eager-loaded.
func (e *Entity) IsLoaded(name string) bool {
	_, ok := e.related[name]
	return ok
}
