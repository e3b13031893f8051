// Package entity maps table rows to active-record entities.
//
// A Model declares a table once: its keys, timestamp columns, casts and
// relations. Entities are the rows of that table. They track changed
// attributes, save themselves with INSERT or UPDATE and load their relations
// in batches, one query per to-many relation for a whole result set.
package entity

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/rzpsarthak13/sqlkit/internal/cast"
	"github.com/rzpsarthak13/sqlkit/internal/core"
	"github.com/rzpsarthak13/sqlkit/internal/query"
	"github.com/rzpsarthak13/sqlkit/internal/relation"
)

// Conn is the connection an entity reads from and writes to.
type Conn interface {
	query.Executor

	// Fillable returns the writable columns of table, in schema order.
	Fillable(ctx context.Context, table string) ([]string, error)

	// Publish forwards a change event. Failures are the connection's concern.
	Publish(ctx context.Context, ev *core.ChangeEvent)
}

// Accessor is a computed attribute. Set may be nil for read-only accessors.
type Accessor struct {
	Get func(e *Entity) any
	Set func(e *Entity, value any) error
}

// RelationFunc declares a relation of the local model.
type RelationFunc func(local *Model) *Relation

// Hook runs around Save.
type Hook func(ctx context.Context, e *Entity, op core.OperationType) error

// SyncFunc persists a to-many relation value written with Set, once the
// entity has an id.
type SyncFunc func(ctx context.Context, e *Entity, name string, value any) error

// Model declares the table an entity maps.
type Model struct {
	// Name derives the table when Table is empty: "BlogPost" maps "blog_posts".
	Name  string
	Table string

	PrimaryKey string // default "id"
	KeyType    string // cast tag of the primary key, default "int"

	// Timestamp columns stamped on insert, update and soft delete.
	CreatedAt string
	UpdatedAt string
	DeletedAt string

	Casts   map[string]string
	Mapping map[string]string // external name -> column
	Hidden  []string
	Guarded []string
	With    []string
	Touches []string

	Relations map[string]RelationFunc
	Accessors map[string]Accessor

	BeforeSave Hook
	AfterSave  Hook
	SyncMany   SyncFunc

	casts   map[string]cast.Cast
	hidden  map[string]bool
	guarded map[string]bool
}

// Define validates a model and compiles its casts.
func Define(m Model) (*Model, error) {
	if m.Table == "" && m.Name != "" {
		m.Table = inflect.Pluralize(inflect.Underscore(m.Name))
	}
	if strings.TrimSpace(m.Table) == "" {
		return nil, core.ErrModelNoTable
	}
	if m.PrimaryKey == "" {
		m.PrimaryKey = "id"
	}
	if m.KeyType == "" {
		m.KeyType = "int"
	}

	m.casts = make(map[string]cast.Cast, len(m.Casts)+1)
	for key, tag := range m.Casts {
		c, err := cast.Parse(tag)
		if err != nil {
			return nil, fmt.Errorf("failed to define %s: cast of %s: %w", m.Table, key, err)
		}
		m.casts[key] = c
	}
	pk, err := cast.Parse(m.KeyType)
	if err != nil {
		return nil, fmt.Errorf("failed to define %s: key type: %w", m.Table, err)
	}
	m.casts[m.PrimaryKey] = pk

	m.hidden = keySet(m.Hidden)
	m.guarded = keySet(m.Guarded)
	if m.Relations == nil {
		m.Relations = make(map[string]RelationFunc)
	}
	return &m, nil
}

// MustDefine is like Define but panics on error.
func MustDefine(m Model) *Model {
	d, err := Define(m)
	if err != nil {
		panic(err)
	}
	return d
}

func keySet(keys []string) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out
}

// Relate declares a relation after definition, for models that refer to each
// other. It must be called before the model is used.
func (m *Model) Relate(name string, fn RelationFunc) *Model {
	m.Relations[name] = fn
	return m
}

// Endpoint identifies the model as one side of a relation.
func (m *Model) Endpoint() relation.Endpoint {
	return relation.Endpoint{Table: m.Table, PrimaryKey: m.PrimaryKey}
}

// Cast returns the compiled cast of key.
func (m *Model) Cast(key string) cast.Cast {
	return m.casts[key]
}

// IsTimestamped reports whether the model stamps created or updated times.
func (m *Model) IsTimestamped() bool {
	return m.CreatedAt != "" || m.UpdatedAt != ""
}

// IsSoftDeleting reports whether Delete stamps DeletedAt instead of removing
// the row.
func (m *Model) IsSoftDeleting() bool {
	return m.DeletedAt != ""
}

// Find returns the entity with primary key id, or nil.
func (m *Model) Find(ctx context.Context, conn Conn, id any) (*Entity, error) {
	e := m.New(conn, nil)
	e.WhereID(id)
	return e.First(ctx)
}

// Load returns a query entity eager-loading rels.
func (m *Model) Load(conn Conn, rels ...string) *Entity {
	return m.New(conn, nil).With(rels...)
}

// Relation is a relation descriptor bound to the model of its foreign side.
type Relation struct {
	*relation.Descriptor
	model *Model
}

// Model returns the model of the related entities.
func (r *Relation) Model() *Model { return r.model }

// HasOne relates one foreign entity whose foreignKey (default: its primary
// key) matches the local localKey column.
func HasOne(local, foreign *Model, localKey, foreignKey string) *Relation {
	return &Relation{
		Descriptor: relation.New(relation.ToOne, foreign.Endpoint(), local.Endpoint(), foreignKey, localKey),
		model:      foreign,
	}
}

// HasMany relates the foreign entities whose foreignKey matches the local
// localKey (default: the local primary key).
func HasMany(local, foreign *Model, foreignKey, localKey string) *Relation {
	return &Relation{
		Descriptor: relation.New(relation.ToMany, foreign.Endpoint(), local.Endpoint(), foreignKey, localKey),
		model:      foreign,
	}
}

// BelongsToMany relates foreign entities through the pivot table, which
// references the foreign side with pivotForeignKey and the local side with
// pivotLocalKey. Extra pivot columns are loaded into the related entities.
func BelongsToMany(local, foreign *Model, pivot, pivotForeignKey, pivotLocalKey string, extra ...string) *Relation {
	r := HasMany(local, foreign, "", "")
	r.Descriptor.WithPivot(pivot, pivotForeignKey, pivotLocalKey, extra...)
	return r
}

// Where filters the related rows.
func (r *Relation) Where(column, op string, value any) *Relation {
	r.Descriptor.Where(column, op, value)
	return r
}

// OrderBy sorts the related rows.
func (r *Relation) OrderBy(column, direction string) *Relation {
	r.Descriptor.OrderBy(column, direction)
	return r
}

// OrderRandom shuffles the related rows.
func (r *Relation) OrderRandom() *Relation {
	r.Descriptor.OrderRandom()
	return r
}

// Limit caps the number of related rows.
func (r *Relation) Limit(n int) *Relation {
	r.Descriptor.Limit(n)
	return r
}
