// Package cast converts attribute values between their stored and read forms.
//
// A cast is declared with a tag such as "int", "decimal:2" or "date:d/m/Y".
// Tags are parsed once, when a model is defined; Transform then applies the
// conversion in either direction. Tags that are not built in must name a
// Handler registered with Register.
package cast

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the conversion a Cast applies.
type Kind int

const (
	KindNone Kind = iota
	KindInt
	KindBool
	KindFloat
	KindDecimal
	KindDate
	KindDateW3C
	KindTimestamp
	KindIP
	KindArray
	KindCollection
	KindObject
	KindString
	KindCustom
)

// Direction selects the conversion applied by Transform.
type Direction int

const (
	// Get converts a stored value into its read form.
	Get Direction = iota
	// Set converts a written value into its stored form.
	Set
)

const (
	// DefaultDateFormat is used by "date" casts without a format.
	DefaultDateFormat = "Y-m-d"

	datetimeLayout = "2006-01-02 15:04:05"
	w3cLayout      = "2006-01-02T15:04:05-07:00"
)

var builtinKinds = map[string]Kind{
	"int":        KindInt,
	"integer":    KindInt,
	"bool":       KindBool,
	"boolean":    KindBool,
	"float":      KindFloat,
	"double":     KindFloat,
	"decimal":    KindDecimal,
	"date":       KindDate,
	"datew3c":    KindDateW3C,
	"timestamp":  KindTimestamp,
	"ip":         KindIP,
	"array":      KindArray,
	"collection": KindCollection,
	"object":     KindObject,
	"string":     KindString,
}

// Cast is a parsed cast tag.
type Cast struct {
	Kind Kind

	// Param is the part of the tag after the first colon: the precision of a
	// decimal or the format of a date.
	Param string

	tag       string
	precision int32
	layout    string
	handler   Handler
}

// Parse compiles a cast tag. An empty tag yields a cast that leaves values
// unchanged.
func Parse(tag string) (Cast, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return Cast{Kind: KindNone}, nil
	}
	name, param, _ := strings.Cut(tag, ":")
	c := Cast{Param: param, tag: tag}

	kind, builtin := builtinKinds[strings.ToLower(name)]
	if !builtin {
		h, ok := Lookup(name)
		if !ok {
			return Cast{}, fmt.Errorf("unknown cast %q", tag)
		}
		c.Kind = KindCustom
		c.handler = h
		return c, nil
	}
	c.Kind = kind

	switch kind {
	case KindDecimal:
		if param == "" {
			return Cast{}, fmt.Errorf("cast %q requires a precision", tag)
		}
		p, err := strconv.Atoi(param)
		if err != nil || p < 0 {
			return Cast{}, fmt.Errorf("invalid precision in cast %q", tag)
		}
		c.precision = int32(p)
	case KindDate:
		if param == "" {
			param = DefaultDateFormat
		}
		c.layout = FormatLayout(param)
	}
	return c, nil
}

// MustParse is like Parse but panics on error.
func MustParse(tag string) Cast {
	c, err := Parse(tag)
	if err != nil {
		panic(err)
	}
	return c
}

// Tag returns the tag the cast was parsed from.
func (c Cast) Tag() string { return c.tag }

// Transform converts value in the given direction. A nil value stays nil,
// except for bool casts which read it as false.
func (c Cast) Transform(dir Direction, key string, value, owner any, attrs map[string]any) (any, error) {
	if c.Kind == KindBool {
		return toBool(value), nil
	}
	if c.Kind == KindCustom {
		if dir == Get {
			return c.handler.Get(owner, key, value, attrs)
		}
		return c.handler.Set(owner, key, value, attrs)
	}
	if value == nil {
		return nil, nil
	}

	switch c.Kind {
	case KindInt:
		return toInt64(value)

	case KindFloat:
		return toFloat64(value)

	case KindDecimal:
		d, err := toDecimal(value)
		if err != nil {
			return nil, err
		}
		f, _ := d.Round(c.precision).Float64()
		return f, nil

	case KindDate:
		t, ok := toTime(value, c.layout)
		if !ok {
			return nil, nil
		}
		return t.Format(c.layout), nil

	case KindDateW3C:
		t, ok := toTime(value)
		if !ok {
			return nil, nil
		}
		return t.Format(w3cLayout), nil

	case KindTimestamp:
		if dir == Get {
			t, ok := toTime(value)
			if !ok {
				return nil, nil
			}
			return t.Unix(), nil
		}
		switch v := value.(type) {
		case string:
			if !isNumeric(v) {
				return v, nil
			}
		case time.Time:
			return v.Format(datetimeLayout), nil
		}
		n, err := toInt64(value)
		if err != nil {
			return nil, err
		}
		return time.Unix(n, 0).Format(datetimeLayout), nil

	case KindIP:
		if dir == Get {
			return ipText(value), nil
		}
		return ipPacked(value), nil

	case KindArray:
		if dir == Set {
			return encodeJSON(value)
		}
		if !isEncoded(value) {
			return value, nil
		}
		var out any
		if _, err := decodeJSON(value, &out); err != nil {
			return nil, err
		}
		return out, nil

	case KindCollection:
		if dir == Set {
			return encodeJSON(value)
		}
		if !isEncoded(value) {
			return value, nil
		}
		var out any
		ok, err := decodeJSON(value, &out)
		if err != nil {
			return nil, err
		}
		if !ok || out == nil {
			return []any{}, nil
		}
		return out, nil

	case KindObject:
		if dir == Set {
			return encodeJSON(value)
		}
		if m, ok := value.(map[string]any); ok {
			return m, nil
		}
		out := map[string]any{}
		if _, err := decodeJSON(value, &out); err != nil {
			return nil, err
		}
		return out, nil

	case KindString:
		return toString(value), nil
	}
	return value, nil
}

func isEncoded(value any) bool {
	switch value.(type) {
	case string, []byte:
		return true
	}
	return false
}

func toDecimal(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(v))
	case []byte:
		return decimal.NewFromString(strings.TrimSpace(string(v)))
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	}
	n, err := toInt64(value)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromInt(n), nil
}

// ipText renders a packed 4 or 16 byte address as text. Strings that parse
// as an address are read as text first; anything else is nil.
func ipText(value any) any {
	var raw []byte
	switch v := value.(type) {
	case netip.Addr:
		return v.String()
	case []byte:
		raw = v
	case string:
		if addr, err := netip.ParseAddr(strings.TrimSpace(v)); err == nil {
			return addr.String()
		}
		raw = []byte(v)
	default:
		return nil
	}
	addr, ok := netip.AddrFromSlice(raw)
	if !ok {
		return nil
	}
	return addr.String()
}

// ipPacked converts an address to its packed form. Text is parsed first; a 4
// or 16 byte value that is not an address is taken as already packed.
// Anything else yields nil.
func ipPacked(value any) any {
	var raw []byte
	switch v := value.(type) {
	case netip.Addr:
		return v.AsSlice()
	case []byte:
		if len(v) == 4 || len(v) == 16 {
			return v
		}
		raw = v
	case string:
		raw = []byte(v)
	default:
		return nil
	}
	if addr, err := netip.ParseAddr(strings.TrimSpace(string(raw))); err == nil {
		return addr.AsSlice()
	}
	if len(raw) == 4 || len(raw) == 16 {
		return raw
	}
	return nil
}
