package entity

import (
	"encoding/json"

	"github.com/rzpsarthak13/sqlkit/internal/cast"
)

// ToMap returns the readable attributes and loaded relations, minus hidden
// keys.
func (e *Entity) ToMap() map[string]any {
	out := make(map[string]any, len(e.attrs)+len(e.related))
	for k, raw := range e.attrs {
		if e.model.hidden[k] {
			continue
		}
		v, err := e.model.Cast(k).Transform(cast.Get, k, raw, e, e.attrs)
		if err != nil {
			logf("cannot read %s.%s: %v", e.model.Table, k, err)
			v = nil
		}
		out[k] = v
	}
	for k, v := range e.related {
		if e.model.hidden[k] {
			continue
		}
		switch rel := v.(type) {
		case *Entity:
			if rel == nil {
				out[k] = nil
				continue
			}
			out[k] = rel.ToMap()
		case []*Entity:
			list := make([]map[string]any, len(rel))
			for i, r := range rel {
				list[i] = r.ToMap()
			}
			out[k] = list
		default:
			out[k] = v
		}
	}
	return out
}

// MarshalJSON encodes ToMap.
func (e *Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToMap())
}
