// Package query builds MySQL statements with positional parameters.
//
// A Builder is locked into one command (SELECT, INSERT, ...) by the first call
// implying a command. Calls that do not apply to that command are ignored, so
// callers can chain modifiers without branching on the statement kind.
package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rzpsarthak13/sqlkit/internal/row"
)

// Command is the statement kind a Builder renders.
type Command int

const (
	CommandNone Command = iota
	CommandSelect
	CommandInsert
	CommandUpdate
	CommandDelete
	CommandCreate
	CommandDrop
	CommandShow
	CommandCount
)

func (c Command) String() string {
	switch c {
	case CommandSelect:
		return "SELECT"
	case CommandInsert:
		return "INSERT"
	case CommandUpdate:
		return "UPDATE"
	case CommandDelete:
		return "DELETE"
	case CommandCreate:
		return "CREATE"
	case CommandDrop:
		return "DROP"
	case CommandShow:
		return "SHOW"
	case CommandCount:
		return "COUNT"
	default:
		return ""
	}
}

// CurrentTimestamp is rendered unquoted when used as a column default.
const CurrentTimestamp = "CURRENT_TIMESTAMP"

var (
	bareRe   = regexp.MustCompile(`^\w+$`)
	dottedRe = regexp.MustCompile(`(\w+)\.(\w+)`)
	starRe   = regexp.MustCompile(`(\w+)\.\*`)
)

type join struct {
	kind   string
	table  string
	clause string
}

// Builder accumulates the clauses of one statement.
type Builder struct {
	command    Command
	table      string
	distinct   bool
	statements []string
	values     []any
	indexes    []string

	joins        []join
	where        [][]string
	whereParams  []any
	having       []string
	havingParams []any
	groups       []string
	sorts        []string
	limit        int
	offset       int

	returnedID any
}

// Table returns a builder for the given table.
func Table(name string) *Builder {
	return &Builder{table: name}
}

// TableName returns the builder's table.
func (b *Builder) TableName() string { return b.table }

// Command returns the command the builder is locked into.
func (b *Builder) Command() Command { return b.command }

// ReturnedID is the auto-generated id captured by the last Run, if any.
func (b *Builder) ReturnedID() any { return b.returnedID }

// lock fixes the command on first use and reports whether c is the builder's
// command.
func (b *Builder) lock(c Command) bool {
	if b.command == CommandNone {
		b.command = c
	}
	return b.command == c
}

// accepts reports whether a modifier restricted to cmds applies. A builder
// without a command renders as SELECT.
func (b *Builder) accepts(cmds ...Command) bool {
	if b.command == CommandNone {
		return true
	}
	for _, c := range cmds {
		if b.command == c {
			return true
		}
	}
	return false
}

// qualify quotes an expression. Bare identifiers are qualified with the
// builder table; "a.b" becomes `a`.`b` and "a.*" becomes `a`.*. Anything else
// is kept verbatim.
func (b *Builder) qualify(expr string) string {
	e := strings.TrimSpace(expr)
	if e == "" {
		return ""
	}
	if bareRe.MatchString(e) {
		if b.table == "" {
			return "`" + e + "`"
		}
		return "`" + b.table + "`.`" + e + "`"
	}
	e = dottedRe.ReplaceAllString(e, "`$1`.`$2`")
	return starRe.ReplaceAllString(e, "`$1`.*")
}

// quoteColumn quotes an INSERT/UPDATE column name without qualifying it.
func (b *Builder) quoteColumn(col string) string {
	c := strings.TrimSpace(col)
	if bareRe.MatchString(c) {
		return "`" + c + "`"
	}
	return b.qualify(c)
}

// Select widens the projection. Successive calls accumulate.
func (b *Builder) Select(columns ...string) *Builder {
	if !b.lock(CommandSelect) {
		return b
	}
	for _, c := range columns {
		if q := b.qualify(c); q != "" {
			b.statements = append(b.statements, q)
		}
	}
	return b
}

// Distinct makes a SELECT return distinct rows.
func (b *Builder) Distinct() *Builder {
	b.distinct = true
	return b
}

// Insert prepares an INSERT of values, columns sorted by name.
func (b *Builder) Insert(values map[string]any) *Builder {
	return b.InsertRow(sortedRow(values))
}

// InsertRow prepares an INSERT keeping the row's column order.
func (b *Builder) InsertRow(r *row.Row) *Builder {
	if !b.lock(CommandInsert) {
		return b
	}
	b.assign(r)
	return b
}

// Update prepares an UPDATE of values, columns sorted by name.
func (b *Builder) Update(values map[string]any) *Builder {
	return b.UpdateRow(sortedRow(values))
}

// UpdateRow prepares an UPDATE keeping the row's column order.
func (b *Builder) UpdateRow(r *row.Row) *Builder {
	if !b.lock(CommandUpdate) {
		return b
	}
	b.assign(r)
	return b
}

func (b *Builder) assign(r *row.Row) {
	if r == nil {
		return
	}
	values := r.Values()
	for i, c := range r.Columns() {
		q := b.quoteColumn(c)
		if q == "" {
			continue
		}
		b.statements = append(b.statements, q)
		b.values = append(b.values, values[i])
	}
}

// Delete prepares a DELETE.
func (b *Builder) Delete() *Builder {
	b.lock(CommandDelete)
	return b
}

// Show prepares a SHOW COLUMNS.
func (b *Builder) Show() *Builder {
	b.lock(CommandShow)
	return b
}

// Drop prepares a DROP TABLE.
func (b *Builder) Drop() *Builder {
	b.lock(CommandDrop)
	return b
}

// ColumnSpec describes one column of a CREATE TABLE.
type ColumnSpec struct {
	Name     string
	Type     string
	Nullable bool
	Primary  bool
	Auto     bool
	Default  any
}

// CreateTable prepares a CREATE TABLE IF NOT EXISTS with the given columns
// and one INDEX per entry of indexes.
func (b *Builder) CreateTable(columns []ColumnSpec, indexes ...[]string) *Builder {
	if !b.lock(CommandCreate) {
		return b
	}
	b.statements = b.statements[:0]
	for _, col := range columns {
		typ := strings.ToUpper(col.Type)
		if typ == "" {
			typ = "INT"
		}
		primary := col.Primary || col.Auto
		stmt := []string{col.Name, typ}
		if !col.Nullable || primary {
			stmt = append(stmt, "NOT NULL")
		}
		if col.Default != nil {
			stmt = append(stmt, "DEFAULT "+renderDefault(col.Default))
		}
		if col.Auto || (typ == "INT" && primary) {
			stmt = append(stmt, "AUTO_INCREMENT")
		}
		if primary {
			stmt = append(stmt, "PRIMARY KEY")
		}
		b.statements = append(b.statements, strings.Join(stmt, " "))
	}
	b.indexes = b.indexes[:0]
	for _, idx := range indexes {
		if len(idx) == 0 {
			continue
		}
		b.indexes = append(b.indexes, "INDEX ("+strings.Join(idx, ", ")+")")
	}
	return b
}

func renderDefault(v any) string {
	switch d := v.(type) {
	case bool:
		if d {
			return "TRUE"
		}
		return "FALSE"
	case string:
		if d == CurrentTimestamp {
			return d
		}
		return "'" + d + "'"
	default:
		return fmt.Sprintf("'%v'", d)
	}
}

func (b *Builder) condition(column, op string) string {
	return b.qualify(column) + " " + Operator(op) + " ?"
}

func (b *Builder) appendWhere(cond string) {
	if len(b.where) == 0 {
		b.where = append(b.where, []string{cond})
		return
	}
	last := len(b.where) - 1
	b.where[last] = append(b.where[last], cond)
}

// Where appends "column op ?" to the current AND-chain.
func (b *Builder) Where(column, op string, value any) *Builder {
	if b.command == CommandInsert {
		return b
	}
	b.appendWhere(b.condition(column, op))
	b.whereParams = append(b.whereParams, value)
	return b
}

// OrWhere starts a new AND-chain, ORed with the previous ones. It does nothing
// until a first condition exists.
func (b *Builder) OrWhere(column, op string, value any) *Builder {
	if b.command == CommandInsert || len(b.where) == 0 {
		return b
	}
	b.where = append(b.where, []string{b.condition(column, op)})
	b.whereParams = append(b.whereParams, value)
	return b
}

// WhereIn appends "column IN (?, ...)". An empty list renders a condition
// that matches no rows.
func (b *Builder) WhereIn(column string, values []any) *Builder {
	if b.command == CommandInsert {
		return b
	}
	c := b.qualify(column)
	if c == "" {
		return b
	}
	if len(values) == 0 {
		b.appendWhere("0")
		return b
	}
	b.appendWhere(c + " IN (" + placeholders(len(values), ",") + ")")
	b.whereParams = append(b.whereParams, values...)
	return b
}

// WhereNull appends "column IS NULL".
func (b *Builder) WhereNull(column string) *Builder {
	if b.command == CommandInsert {
		return b
	}
	if c := b.qualify(column); c != "" {
		b.appendWhere(c + " IS NULL")
	}
	return b
}

// WhereNotNull appends "column IS NOT NULL".
func (b *Builder) WhereNotNull(column string) *Builder {
	if b.command == CommandInsert {
		return b
	}
	if c := b.qualify(column); c != "" {
		b.appendWhere(c + " IS NOT NULL")
	}
	return b
}

// WhereRaw appends a raw condition and its parameters.
func (b *Builder) WhereRaw(raw string, params ...any) *Builder {
	if b.command == CommandInsert || strings.TrimSpace(raw) == "" {
		return b
	}
	b.appendWhere(raw)
	b.whereParams = append(b.whereParams, params...)
	return b
}

// Join is an alias of InnerJoin.
func (b *Builder) Join(table, foreignKey, localKey string) *Builder {
	return b.InnerJoin(table, foreignKey, localKey)
}

// InnerJoin joins table ON foreignKey = localKey.
func (b *Builder) InnerJoin(table, foreignKey, localKey string) *Builder {
	return b.addJoin("INNER JOIN", table, foreignKey, localKey)
}

// LeftJoin joins table ON foreignKey = localKey.
func (b *Builder) LeftJoin(table, foreignKey, localKey string) *Builder {
	return b.addJoin("LEFT JOIN", table, foreignKey, localKey)
}

// RightJoin joins table ON foreignKey = localKey.
func (b *Builder) RightJoin(table, foreignKey, localKey string) *Builder {
	return b.addJoin("RIGHT JOIN", table, foreignKey, localKey)
}

// CrossJoin cross-joins table.
func (b *Builder) CrossJoin(table string) *Builder {
	if !b.HasJoin(table) {
		b.joins = append(b.joins, join{kind: "CROSS JOIN", table: table, clause: "`" + table + "`"})
	}
	return b
}

// HasJoin reports whether table is already joined.
func (b *Builder) HasJoin(table string) bool {
	for _, j := range b.joins {
		if j.table == table {
			return true
		}
	}
	return false
}

func (b *Builder) addJoin(kind, table, foreignKey, localKey string) *Builder {
	if b.HasJoin(table) {
		return b
	}
	fk := "`" + table + "`.`" + foreignKey + "`"
	if strings.Contains(foreignKey, ".") {
		fk = b.qualify(foreignKey)
	}
	lk := "`" + b.table + "`.`" + localKey + "`"
	if strings.Contains(localKey, ".") {
		lk = b.qualify(localKey)
	}
	b.joins = append(b.joins, join{
		kind:   kind,
		table:  table,
		clause: "`" + table + "` ON " + fk + " = " + lk,
	})
	return b
}

// Having appends a HAVING condition. SELECT only.
func (b *Builder) Having(column, op string, value any) *Builder {
	if !b.accepts(CommandSelect) {
		return b
	}
	b.having = append(b.having, b.condition(column, op))
	b.havingParams = append(b.havingParams, value)
	return b
}

// GroupBy appends GROUP BY columns. SELECT only.
func (b *Builder) GroupBy(columns ...string) *Builder {
	if !b.accepts(CommandSelect) {
		return b
	}
	for _, c := range columns {
		if q := b.qualify(c); q != "" {
			b.groups = append(b.groups, q)
		}
	}
	return b
}

// OrderBy sorts by column. direction is ASC or DESC, ASC otherwise.
func (b *Builder) OrderBy(column, direction string) *Builder {
	if !b.accepts(CommandSelect, CommandDelete) {
		return b
	}
	d := strings.ToUpper(strings.TrimSpace(direction))
	if d != "ASC" && d != "DESC" {
		d = "ASC"
	}
	if c := b.qualify(column); c != "" {
		b.sorts = append(b.sorts, c+" "+d)
	}
	return b
}

// OrderRandom sorts rows randomly.
func (b *Builder) OrderRandom() *Builder {
	if !b.accepts(CommandSelect, CommandDelete) {
		return b
	}
	b.sorts = append(b.sorts, "RAND()")
	return b
}

// Limit caps the number of rows.
func (b *Builder) Limit(n int) *Builder {
	if !b.accepts(CommandSelect, CommandDelete) {
		return b
	}
	b.limit = n
	return b
}

// Offset skips n rows. Rendered only together with a limit.
func (b *Builder) Offset(n int) *Builder {
	if !b.accepts(CommandSelect) {
		return b
	}
	b.offset = n
	return b
}

// Clone returns an independent copy of the builder.
func (b *Builder) Clone() *Builder { return b.clone() }

func (b *Builder) clone() *Builder {
	c := *b
	c.statements = append([]string(nil), b.statements...)
	c.values = append([]any(nil), b.values...)
	c.indexes = append([]string(nil), b.indexes...)
	c.joins = append([]join(nil), b.joins...)
	c.where = make([][]string, len(b.where))
	for i, g := range b.where {
		c.where[i] = append([]string(nil), g...)
	}
	c.whereParams = append([]any(nil), b.whereParams...)
	c.having = append([]string(nil), b.having...)
	c.havingParams = append([]any(nil), b.havingParams...)
	c.groups = append([]string(nil), b.groups...)
	c.sorts = append([]string(nil), b.sorts...)
	return &c
}

func sortedRow(values map[string]any) *row.Row {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return row.FromMap(keys, values)
}

func placeholders(n int, sep string) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?"+sep, n-1) + "?"
}
