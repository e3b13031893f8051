// Package row holds materialized database records.
package row

import (
	"regexp"
)

var separatorRe = regexp.MustCompile(`\{%\w+%\}`)

// Row is one fetched record: parallel ordered lists of column names and
// values. Duplicate column names are kept; lookups return the first match.
type Row struct {
	columns []string
	values  []any
}

// New returns an empty row.
func New() *Row {
	return &Row{}
}

// FromMap builds a row from the given columns, reading values from m.
func FromMap(columns []string, m map[string]any) *Row {
	r := &Row{
		columns: make([]string, 0, len(columns)),
		values:  make([]any, 0, len(columns)),
	}
	for _, c := range columns {
		r.Set(c, m[c])
	}
	return r
}

// Separator renders the marker column name used to delimit a join segment.
func Separator(key string) string {
	return "{%" + key + "%}"
}

// IsSeparator reports whether column is a join segment marker.
func IsSeparator(column string) bool {
	return separatorRe.MatchString(column)
}

// Set appends a column and its value.
func (r *Row) Set(column string, value any) {
	r.columns = append(r.columns, column)
	r.values = append(r.values, value)
}

// Columns returns the column names in fetch order.
func (r *Row) Columns() []string { return r.columns }

// Values returns the values in fetch order.
func (r *Row) Values() []any { return r.values }

// Len returns the number of columns.
func (r *Row) Len() int { return len(r.columns) }

// Index returns the position of the first column named column, or -1.
func (r *Row) Index(column string) int {
	for i, c := range r.columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Has reports whether the row carries the column.
func (r *Row) Has(column string) bool {
	return r.Index(column) >= 0
}

// Get returns the value of the first column named column.
func (r *Row) Get(column string) any {
	if i := r.Index(column); i >= 0 {
		return r.values[i]
	}
	return nil
}

// Map returns the row as a map. The first occurrence of a column wins.
func (r *Row) Map() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i, c := range r.columns {
		if _, ok := m[c]; !ok {
			m[c] = r.values[i]
		}
	}
	return m
}

// Segment extracts the columns of one join block. With an empty key it returns
// the leading block, up to the first separator. Otherwise it returns the block
// following the separator of key, up to the next separator or the end of the
// row. A missing separator yields an empty row.
func (r *Row) Segment(key string) *Row {
	start := -1
	if key == "" {
		start = 0
	} else {
		marker := Separator(key)
		for i, c := range r.columns {
			if c == marker {
				start = i + 1
				break
			}
		}
	}
	if start < 0 {
		return New()
	}

	end := len(r.columns)
	for i := start; i < len(r.columns); i++ {
		if IsSeparator(r.columns[i]) {
			end = i
			break
		}
	}

	seg := &Row{
		columns: make([]string, 0, end-start),
		values:  make([]any, 0, end-start),
	}
	for i := start; i < end; i++ {
		seg.Set(r.columns[i], r.values[i])
	}
	return seg
}
