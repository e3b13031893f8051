package cast

import (
	"encoding/json"
	"strings"
)

func init() {
	Register("json", jsonHandler{})
}

// jsonHandler stores a JSON object document. Writing an object merges its
// keys into the stored document instead of replacing it.
type jsonHandler struct{}

func (jsonHandler) Get(_ any, _ string, value any, _ map[string]any) (any, error) {
	s, ok := value.(string)
	if b, isBytes := value.([]byte); isBytes {
		s, ok = string(b), true
	}
	if !ok || len(s) <= 2 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (jsonHandler) Set(_ any, key string, value any, attrs map[string]any) (any, error) {
	prev, err := jsonValue(attrs[key])
	if err != nil {
		prev = nil
	}
	next, err := jsonValue(value)
	if err != nil {
		return nil, err
	}

	merged := next
	if p, ok := prev.(map[string]any); ok {
		if n, ok := next.(map[string]any); ok {
			out := make(map[string]any, len(p)+len(n))
			for k, v := range p {
				out[k] = v
			}
			for k, v := range n {
				out[k] = v
			}
			merged = out
		}
	}

	switch merged.(type) {
	case map[string]any, []any:
		data, err := json.Marshal(merged)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	return nil, nil
}

// jsonValue decodes strings and normalizes other values through a JSON round
// trip so maps of any type compare as map[string]any.
func jsonValue(v any) (any, error) {
	var out any
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string, []byte:
		if _, err := decodeJSON(t, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
