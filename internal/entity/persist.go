package entity

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/rzpsarthak13/sqlkit/internal/cast"
	"github.com/rzpsarthak13/sqlkit/internal/core"
	"github.com/rzpsarthak13/sqlkit/internal/query"
	"github.com/rzpsarthak13/sqlkit/internal/row"
)

func logf(format string, args ...any) {
	log.Printf("[ENTITY] "+format, args...)
}

// Save writes the entity. A persistent entity issues an UPDATE of its changed
// columns, a new one an INSERT of all its columns, after which it adopts the
// generated id. Only columns of the cached schema are written; when none
// remain no statement runs.
func (e *Entity) Save(ctx context.Context) error {
	m := e.model
	persistent := e.IsPersistent()
	op := core.OperationCreate
	if persistent {
		op = core.OperationUpdate
	}

	if m.BeforeSave != nil {
		if err := m.BeforeSave(ctx, e, op); err != nil {
			return fmt.Errorf("failed to save %s: %w", m.Table, err)
		}
	}

	q := query.Table(m.Table)
	var values *row.Row
	var err error
	if persistent {
		if m.UpdatedAt != "" && e.IsDirty() {
			if err := e.stamp(m.UpdatedAt); err != nil {
				return err
			}
		}
		values, err = e.fillable(ctx, e.Changes(), false)
		if err != nil {
			return err
		}
		q.UpdateRow(values).Where(m.Table+"."+m.PrimaryKey, "=", e.attrs[m.PrimaryKey])
	} else {
		if m.CreatedAt != "" {
			if err := e.write(m.CreatedAt, timestamp()); err != nil {
				return err
			}
		}
		values, err = e.fillable(ctx, e.attrs, true)
		if err != nil {
			return err
		}
		q.InsertRow(values)
	}

	if values.Len() > 0 {
		if _, err := q.Run(ctx, e.conn); err != nil {
			sql, _ := q.Get()
			logf("%s: %s | %v", m.Table, query.Combine(sql, q.Params()), err)
			return fmt.Errorf("failed to save %s: %w", m.Table, err)
		}
		if id := q.ReturnedID(); id != nil && !persistent {
			v, err := m.Cast(m.PrimaryKey).Transform(cast.Set, m.PrimaryKey, id, e, e.attrs)
			if err != nil {
				return fmt.Errorf("failed to adopt id of %s: %w", m.Table, err)
			}
			e.attrs[m.PrimaryKey] = v
		}
		e.changes = make(map[string]any)
		data := values.Map()
		data[m.PrimaryKey] = e.attrs[m.PrimaryKey]
		e.publish(ctx, op, data)
		if err := e.updateTouches(ctx); err != nil {
			return err
		}
	}
	e.changes = make(map[string]any)

	if len(e.toMany) > 0 && e.IsPersistent() {
		pending := e.toMany
		e.toMany = nil
		if m.SyncMany != nil {
			for _, p := range pending {
				if err := m.SyncMany(ctx, e, p.name, p.value); err != nil {
					return fmt.Errorf("failed to sync %s of %s: %w", p.name, m.Table, err)
				}
			}
			if err := e.updateTouches(ctx); err != nil {
				return err
			}
		}
	}

	if m.AfterSave != nil {
		if err := m.AfterSave(ctx, e, op); err != nil {
			return fmt.Errorf("failed to save %s: %w", m.Table, err)
		}
	}
	return nil
}

// fillable keeps the attributes that are columns of the table, in schema
// order. Inserts always lead with a NULL primary key.
func (e *Entity) fillable(ctx context.Context, attrs map[string]any, insert bool) (*row.Row, error) {
	pk := e.model.PrimaryKey
	columns, err := e.conn.Fillable(ctx, e.model.Table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", e.model.Table, err)
	}
	r := row.New()
	if insert {
		r.Set(pk, nil)
	}
	for _, c := range columns {
		if insert && c == pk {
			continue
		}
		if v, ok := attrs[c]; ok {
			r.Set(c, v)
		}
	}
	return r, nil
}

// Delete removes the entity. Soft-deleting models stamp DeletedAt unless
// force is set. A transient entity is only reset, and reports false.
func (e *Entity) Delete(ctx context.Context, force bool) (bool, error) {
	m := e.model
	if !e.IsPersistent() {
		e.attrs = make(map[string]any)
		e.changes = make(map[string]any)
		return false, nil
	}

	id := e.ID()
	q := query.Table(m.Table)
	op := core.OperationDelete
	var data map[string]any
	if m.IsSoftDeleting() && !force {
		at := timestamp()
		q.Update(map[string]any{m.DeletedAt: at})
		op = core.OperationSoftDelete
		data = map[string]any{m.DeletedAt: at}
	} else {
		q.Delete()
	}
	q.Where(m.PrimaryKey, "=", id)

	if _, err := q.Run(ctx, e.conn); err != nil {
		return false, fmt.Errorf("failed to delete %s %v: %w", m.Table, id, err)
	}
	if op == core.OperationSoftDelete {
		e.attrs[m.DeletedAt] = data[m.DeletedAt]
	}
	e.publish(ctx, op, data)
	if err := e.updateTouches(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Restore clears the DeletedAt stamp of a soft-deleted entity.
func (e *Entity) Restore(ctx context.Context) (bool, error) {
	m := e.model
	if !e.IsPersistent() || !m.IsSoftDeleting() {
		return false, nil
	}
	id := e.ID()
	_, err := query.Table(m.Table).
		Update(map[string]any{m.DeletedAt: nil}).
		Where(m.PrimaryKey, "=", id).
		Run(ctx, e.conn)
	if err != nil {
		return false, fmt.Errorf("failed to restore %s %v: %w", m.Table, id, err)
	}
	e.attrs[m.DeletedAt] = nil
	delete(e.changes, m.DeletedAt)
	e.publish(ctx, core.OperationRestore, map[string]any{m.DeletedAt: nil})
	if err := e.updateTouches(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Refresh reloads the attributes from the database and drops loaded
// relations.
func (e *Entity) Refresh(ctx context.Context) error {
	if !e.IsPersistent() {
		return nil
	}
	fresh, err := e.model.Find(ctx, e.conn, e.attrs[e.model.PrimaryKey])
	if err != nil {
		return fmt.Errorf("failed to refresh %s: %w", e.model.Table, err)
	}
	if fresh != nil {
		for k, v := range fresh.attrs {
			e.attrs[k] = v
		}
	}
	e.changes = make(map[string]any)
	e.related = make(map[string]any)
	for _, r := range e.relations {
		r.Refresh()
	}
	return nil
}

// updateTouches bumps UpdatedAt on every touched relation and saves it.
func (e *Entity) updateTouches(ctx context.Context) error {
	for _, name := range e.model.Touches {
		v, err := e.Related(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to touch %s of %s: %w", name, e.model.Table, err)
		}
		t, ok := v.(*Entity)
		if !ok || t == nil || t.model.UpdatedAt == "" {
			continue
		}
		if err := t.stamp(t.model.UpdatedAt); err != nil {
			return err
		}
		if err := t.Save(ctx); err != nil {
			return fmt.Errorf("failed to touch %s of %s: %w", name, e.model.Table, err)
		}
	}
	return nil
}

// stamp writes the current time into col and marks it changed, even when the
// column was never loaded.
func (e *Entity) stamp(col string) error {
	if _, ok := e.changes[col]; !ok {
		e.changes[col] = e.attrs[col]
	}
	return e.write(col, timestamp())
}

func (e *Entity) publish(ctx context.Context, op core.OperationType, data map[string]any) {
	if e.conn == nil {
		return
	}
	e.conn.Publish(ctx, &core.ChangeEvent{
		ID:        uuid.NewString(),
		Table:     e.model.Table,
		Operation: op,
		Key:       e.ID(),
		Data:      data,
		Timestamp: now(),
	})
}
