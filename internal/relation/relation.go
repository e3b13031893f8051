// Package relation describes associations between tables and loads them in
// one batched query for a whole set of parent ids.
package relation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/rzpsarthak13/sqlkit/internal/query"
	"github.com/rzpsarthak13/sqlkit/internal/row"
)

// Kind is the cardinality of a relation.
type Kind int

const (
	ToOne  Kind = 1
	ToMany Kind = 10
)

func (k Kind) String() string {
	if k == ToMany {
		return "TO_MANY"
	}
	return "TO_ONE"
}

var qualifiedRe = regexp.MustCompile(`(\w+)\.(\w+)`)

// Endpoint is one side of a relation.
type Endpoint struct {
	Table      string
	PrimaryKey string
}

// Pivot is the join table of a many-to-many relation.
type Pivot struct {
	Table string

	// ForeignKey references the foreign table, LocalKey the local one.
	ForeignKey string
	LocalKey   string

	// Extra pivot columns selected alongside the foreign columns.
	Extra []string
}

type condition struct {
	column string
	op     string
	value  any
}

type ordering struct {
	column    string
	direction string
	random    bool
}

// Descriptor is a declared relation plus the rows it loaded.
type Descriptor struct {
	kind       Kind
	foreign    Endpoint
	local      Endpoint
	foreignKey string
	localKey   string
	pivot      *Pivot

	wheres []condition
	sorts  []ordering
	limit  int

	mu     sync.Mutex
	loaded bool
	values []*row.Row
}

// New declares a relation. foreignKey defaults to the foreign primary key and
// localKey to the local one. An unknown kind is treated as ToOne.
func New(kind Kind, foreign, local Endpoint, foreignKey, localKey string) *Descriptor {
	if kind != ToOne && kind != ToMany {
		kind = ToOne
	}
	if foreignKey == "" {
		foreignKey = foreign.PrimaryKey
	}
	if localKey == "" {
		localKey = local.PrimaryKey
	}
	return &Descriptor{
		kind:       kind,
		foreign:    foreign,
		local:      local,
		foreignKey: foreignKey,
		localKey:   localKey,
	}
}

func (d *Descriptor) Kind() Kind { return d.kind }
func (d *Descriptor) Foreign() Endpoint { return d.foreign }
func (d *Descriptor) Local() Endpoint { return d.local }
func (d *Descriptor) ForeignKey() string { return d.foreignKey }
func (d *Descriptor) LocalKey() string { return d.localKey }
func (d *Descriptor) Pivot() *Pivot { return d.pivot }
func (d *Descriptor) HasPivot() bool { return d.pivot != nil && d.pivot.Table != "" }
func (d *Descriptor) JoinTable() string { return d.foreign.Table }
func (d *Descriptor) LocalTable() string { return d.local.Table }

// GroupKey is the column of a loaded row that identifies its parent.
func (d *Descriptor) GroupKey() string {
	if d.HasPivot() {
		return d.pivot.LocalKey
	}
	return d.foreignKey
}

// WithPivot routes the relation through a join table.
func (d *Descriptor) WithPivot(table, foreignKey, localKey string, extra ...string) *Descriptor {
	d.pivot = &Pivot{Table: table, ForeignKey: foreignKey, LocalKey: localKey, Extra: extra}
	return d
}

// Where filters the related rows. Bare columns refer to the foreign table.
func (d *Descriptor) Where(column, op string, value any) *Descriptor {
	if !qualifiedRe.MatchString(column) {
		column = d.foreign.Table + "." + column
	}
	d.wheres = append(d.wheres, condition{column: column, op: op, value: value})
	return d
}

// OrderBy sorts the related rows.
func (d *Descriptor) OrderBy(column, direction string) *Descriptor {
	d.sorts = append(d.sorts, ordering{column: column, direction: direction})
	return d
}

// OrderRandom shuffles the related rows.
func (d *Descriptor) OrderRandom() *Descriptor {
	d.sorts = append(d.sorts, ordering{random: true})
	return d
}

// Limit caps the number of related rows.
func (d *Descriptor) Limit(n int) *Descriptor {
	d.limit = n
	return d
}

// Query builds the batched SELECT of the related rows of ids. An empty id set
// binds a single 0.
func (d *Descriptor) Query(ids []any) *query.Builder {
	ft := d.foreign.Table
	lt := d.local.Table
	args := "?"
	params := []any{0}
	if len(ids) > 0 {
		args = strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
		params = append([]any(nil), ids...)
	}

	q := query.Table(ft).Select(ft + ".*")
	if d.HasPivot() {
		pt := d.pivot.Table
		q.Select(pt + "." + d.pivot.LocalKey)
		for _, k := range d.pivot.Extra {
			q.Select(pt + "." + k)
		}
		q.Join(pt, pt+"."+d.pivot.ForeignKey, ft+"."+d.foreignKey).
			WhereRaw("`"+pt+"`.`"+d.pivot.LocalKey+"` IN ("+args+")", params...)
	} else {
		lp := "`" + lt + "`.`" + d.local.PrimaryKey + "`"
		q.Join(lt, lt+"."+d.localKey, ft+"."+d.foreignKey)
		if len(ids) > 1 {
			q.WhereRaw(lp+" IN ("+args+")", params...)
		} else {
			q.WhereRaw(lp+" = ?", params...)
		}
	}

	for _, w := range d.wheres {
		q.Where(w.column, w.op, w.value)
	}
	for _, s := range d.sorts {
		if s.random {
			q.OrderRandom()
			continue
		}
		q.OrderBy(s.column, s.direction)
	}
	if d.limit > 0 {
		q.Limit(d.limit)
	}
	return q
}

// Call runs the relation query for ids. Once a non-empty id set has been
// loaded the rows are kept and returned until Refresh.
func (d *Descriptor) Call(ctx context.Context, ex query.Executor, ids []any) ([]*row.Row, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loaded {
		return d.values, nil
	}
	rows, err := d.Query(ids).Run(ctx, ex)
	if err != nil {
		return nil, fmt.Errorf("failed to load relation %s of %s: %w", d.foreign.Table, d.local.Table, err)
	}
	d.values = rows
	d.loaded = len(ids) > 0
	return rows, nil
}

// First returns the first related row of ids, or nil.
func (d *Descriptor) First(ctx context.Context, ex query.Executor, ids []any) (*row.Row, error) {
	rows, err := d.Call(ctx, ex, ids)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Loaded reports whether the rows are cached.
func (d *Descriptor) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

// Refresh drops the cached rows.
func (d *Descriptor) Refresh() {
	d.mu.Lock()
	d.loaded = false
	d.values = nil
	d.mu.Unlock()
}
