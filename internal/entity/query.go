package entity

import (
	"context"
	"fmt"

	"github.com/rzpsarthak13/sqlkit/internal/query"
	"github.com/rzpsarthak13/sqlkit/internal/relation"
	"github.com/rzpsarthak13/sqlkit/internal/row"
)

// Query returns the entity's SELECT, by default `table`.*.
func (e *Entity) Query() *query.Builder {
	if e.q == nil {
		e.q = query.Table(e.model.Table).Select(e.model.Table + ".*")
	}
	return e.q
}

// Pluck replaces the projection. No columns, or "*", selects `table`.*.
func (e *Entity) Pluck(columns ...string) *Entity {
	if len(columns) == 0 || columns[0] == "*" {
		columns = []string{e.model.Table + ".*"}
	}
	e.q = query.Table(e.model.Table).Select(columns...)
	return e
}

// WhereID filters on the primary key.
func (e *Entity) WhereID(id any) *Entity {
	e.Query().Where(e.model.Table+"."+e.model.PrimaryKey, "=", id)
	return e
}

// Where adds an AND condition to the entity query.
func (e *Entity) Where(column, op string, value any) *Entity {
	e.Query().Where(column, op, value)
	return e
}

// OrWhere starts an OR group on the entity query.
func (e *Entity) OrWhere(column, op string, value any) *Entity {
	e.Query().OrWhere(column, op, value)
	return e
}

// WhereIn restricts column to values. An empty list matches nothing.
func (e *Entity) WhereIn(column string, values []any) *Entity {
	e.Query().WhereIn(column, values)
	return e
}

// WhereNull matches rows where column IS NULL.
func (e *Entity) WhereNull(column string) *Entity {
	e.Query().WhereNull(column)
	return e
}

// WhereNotNull matches rows where column IS NOT NULL.
func (e *Entity) WhereNotNull(column string) *Entity {
	e.Query().WhereNotNull(column)
	return e
}

// WhereRaw adds a literal condition with its own placeholders.
func (e *Entity) WhereRaw(raw string, params ...any) *Entity {
	e.Query().WhereRaw(raw, params...)
	return e
}

// OrderBy sorts the results by column.
func (e *Entity) OrderBy(column, direction string) *Entity {
	e.Query().OrderBy(column, direction)
	return e
}

// OrderRandom sorts the results randomly.
func (e *Entity) OrderRandom() *Entity {
	e.Query().OrderRandom()
	return e
}

// Limit caps the number of rows.
func (e *Entity) Limit(n int) *Entity {
	e.Query().Limit(n)
	return e
}

// Offset skips the first n rows.
func (e *Entity) Offset(n int) *Entity {
	e.Query().Offset(n)
	return e
}

// GroupBy groups the results by columns.
func (e *Entity) GroupBy(columns ...string) *Entity {
	e.Query().GroupBy(columns...)
	return e
}

// JoinRelation left-joins the table of a declared relation, or its pivot.
func (e *Entity) JoinRelation(name string) error {
	rel, err := e.Relation(name)
	if err != nil {
		return err
	}
	if rel.HasPivot() {
		p := rel.Pivot()
		e.Query().LeftJoin(p.Table, p.LocalKey, e.model.Table+"."+rel.LocalKey())
		return nil
	}
	e.Query().LeftJoin(rel.JoinTable(), rel.ForeignKey(), rel.LocalKey())
	return nil
}

// With eager-loads relations on Get.
func (e *Entity) With(names ...string) *Entity {
	for _, n := range names {
		if !contains(e.with, n) {
			e.with = append(e.with, n)
		}
	}
	return e
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type eager struct {
	name string
	rel  *Relation
}

// Get runs the query and eager-loads the requested relations. To-one
// relations are joined into the same SELECT behind a separator column; each
// to-many relation costs one more query over all fetched ids.
func (e *Entity) Get(ctx context.Context) ([]*Entity, error) {
	var toOne, toMany []eager
	for _, name := range e.with {
		rel, err := e.Relation(name)
		if err != nil {
			return nil, err
		}
		if rel.Kind() == relation.ToOne {
			toOne = append(toOne, eager{name, rel})
		} else {
			toMany = append(toMany, eager{name, rel})
		}
	}

	q := e.Query().Clone()
	for _, w := range toOne {
		ft := w.rel.JoinTable()
		q.Select("'' AS '"+row.Separator(w.name)+"'", ft+".*").
			LeftJoin(ft, w.rel.ForeignKey(), w.rel.LocalKey())
	}

	rows, err := q.Run(ctx, e.conn)
	if err != nil {
		return nil, err
	}

	roots := make([]*row.Row, len(rows))
	ids := make([]any, 0, len(rows))
	for i, r := range rows {
		roots[i] = r
		if len(toOne) > 0 {
			roots[i] = r.Segment("")
		}
		if id := roots[i].Get(e.model.PrimaryKey); id != nil {
			ids = append(ids, id)
		}
	}

	groups := make(map[string]map[string][]*Entity, len(toMany))
	for _, w := range toMany {
		dict := make(map[string][]*Entity)
		groups[w.name] = dict
		if len(ids) == 0 {
			continue
		}
		w.rel.Refresh()
		related, err := w.rel.Call(ctx, e.conn, ids)
		if err != nil {
			return nil, err
		}
		key := w.rel.GroupKey()
		for _, r := range related {
			k := lookupKey(r.Get(key))
			dict[k] = append(dict[k], w.rel.Model().hydrate(e.conn, r))
		}
	}

	out := make([]*Entity, 0, len(rows))
	for i, r := range rows {
		ent := e.model.hydrate(e.conn, roots[i])
		for _, w := range toOne {
			fe := w.rel.Model().hydrate(e.conn, r.Segment(w.name))
			if fe.ID() == nil {
				ent.related[w.name] = nil
				continue
			}
			ent.related[w.name] = fe
		}
		for _, w := range toMany {
			list := groups[w.name][lookupKey(roots[i].Get(w.rel.LocalKey()))]
			if list == nil {
				list = []*Entity{}
			}
			ent.related[w.name] = list
		}
		out = append(out, ent)
	}
	return out, nil
}

// lookupKey normalizes join values so 7, int64(7) and "7" group together.
func lookupKey(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}

// First returns the first entity of Get, or nil.
func (e *Entity) First(ctx context.Context) (*Entity, error) {
	list, err := e.Get(ctx)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

// Count returns the number of rows matching the query.
func (e *Entity) Count(ctx context.Context) (int, error) {
	return e.Query().Count(ctx, e.conn, "")
}
