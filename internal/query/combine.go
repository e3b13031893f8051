package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Combine inlines params into sql for logging. The result is never executed.
func Combine(sql string, params []any) string {
	var sb strings.Builder
	sb.Grow(len(sql))
	next := 0
	for _, r := range sql {
		if r != '?' {
			sb.WriteRune(r)
			continue
		}
		if next >= len(params) {
			sb.WriteString(`"undefined"`)
		} else {
			sb.WriteString(literal(params[next]))
		}
		next++
	}
	return sb.String()
}

func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(x)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case []byte:
		return quote(string(x))
	case time.Time:
		return quote(x.Format(time.DateTime))
	case string:
		if _, err := strconv.ParseFloat(x, 64); err == nil {
			return x
		}
		return quote(x)
	}
	return quote(fmt.Sprint(v))
}

func quote(s string) string {
	return `"` + s + `"`
}
