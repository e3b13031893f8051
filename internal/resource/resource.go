// Package resource shapes entities for JSON responses.
package resource

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rzpsarthak13/sqlkit/internal/core"
	"github.com/rzpsarthak13/sqlkit/internal/entity"
)

// Projection renders an entity as the value to encode.
type Projection func(e *entity.Entity) (any, error)

// Option configures a Resource.
type Option func(*Resource)

// WithProjection replaces the default projection, the entity's own map.
func WithProjection(p Projection) Option {
	return func(r *Resource) { r.project = p }
}

// Resource wraps one entity.
type Resource struct {
	entity  *entity.Entity
	project Projection
}

// New wraps e.
func New(e *entity.Entity, opts ...Option) (*Resource, error) {
	if e == nil {
		return nil, core.ErrInvalidObject
	}
	r := &Resource{entity: e}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Collection sets extra on every entity and wraps each of them. Nil entries
// are dropped.
func Collection(list []*entity.Entity, extra map[string]any, opts ...Option) ([]*Resource, error) {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*Resource, 0, len(list))
	for _, e := range list {
		if e == nil {
			continue
		}
		for _, k := range keys {
			if err := e.Set(k, extra[k]); err != nil {
				return nil, fmt.Errorf("failed to set %s on %s: %w", k, e.Table(), err)
			}
		}
		r, err := New(e, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Entity returns the wrapped entity.
func (r *Resource) Entity() *entity.Entity { return r.entity }

// Get reads an attribute of the entity.
func (r *Resource) Get(key string) any { return r.entity.Attr(key) }

// Set writes an attribute of the entity.
func (r *Resource) Set(key string, value any) error { return r.entity.Set(key, value) }

// MarshalJSON encodes the projection of the entity.
func (r *Resource) MarshalJSON() ([]byte, error) {
	if r.project == nil {
		return json.Marshal(r.entity.ToMap())
	}
	v, err := r.project(r.entity)
	if err != nil {
		return nil, fmt.Errorf("failed to project %s: %w", r.entity.Table(), err)
	}
	return json.Marshal(v)
}
