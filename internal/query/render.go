package query

import (
	"strconv"
	"strings"

	"github.com/rzpsarthak13/sqlkit/internal/core"
)

// Get renders the statement. Parameters are available from Params.
func (b *Builder) Get() (string, error) {
	if b.table == "" {
		return "", core.ErrNoTable
	}
	table := "`" + b.table + "`"

	switch b.command {
	case CommandNone, CommandSelect, CommandCount:
		return b.renderSelect(table), nil

	case CommandInsert:
		if len(b.statements) == 0 {
			return "", core.ErrInvalidArguments
		}
		return "INSERT INTO " + table + " (" + strings.Join(b.statements, ", ") +
			") VALUES (" + placeholders(len(b.values), ", ") + ")", nil

	case CommandUpdate:
		if len(b.statements) == 0 {
			return "", core.ErrInvalidArguments
		}
		sets := make([]string, len(b.statements))
		for i, s := range b.statements {
			sets[i] = s + " = ?"
		}
		return "UPDATE " + table + " SET " + strings.Join(sets, ", ") + " WHERE " + b.renderWhereOrFalse(), nil

	case CommandDelete:
		parts := []string{"DELETE FROM " + table, "WHERE " + b.renderWhereOrFalse()}
		parts = append(parts, b.renderOrder()...)
		if b.limit > 0 {
			parts = append(parts, "LIMIT "+strconv.Itoa(b.limit))
		}
		return strings.Join(parts, " "), nil

	case CommandCreate:
		defs := append(append([]string(nil), b.statements...), b.indexes...)
		if len(defs) == 0 {
			return "", core.ErrInvalidArguments
		}
		return "CREATE TABLE IF NOT EXISTS " + table + " (" + strings.Join(defs, ", ") + ")", nil

	case CommandShow:
		return "SHOW COLUMNS FROM " + table, nil

	case CommandDrop:
		return "DROP TABLE " + table, nil
	}
	return "", core.ErrInvalidCommand
}

func (b *Builder) renderSelect(table string) string {
	parts := []string{"SELECT"}
	if b.distinct {
		parts = append(parts, "DISTINCT")
	}
	if len(b.statements) == 0 {
		parts = append(parts, table+".*")
	} else {
		parts = append(parts, strings.Join(b.statements, ", "))
	}
	parts = append(parts, "FROM "+table)
	for _, j := range b.joins {
		parts = append(parts, j.kind+" "+j.clause)
	}
	if w := b.renderWhere(); w != "" {
		parts = append(parts, "WHERE "+w)
	}
	if len(b.groups) > 0 {
		parts = append(parts, "GROUP BY "+strings.Join(b.groups, ", "))
	}
	if len(b.having) > 0 {
		parts = append(parts, "HAVING "+strings.Join(b.having, " AND "))
	}
	parts = append(parts, b.renderOrder()...)
	if b.limit > 0 {
		parts = append(parts, "LIMIT "+strconv.Itoa(b.limit))
		if b.offset > 0 {
			parts = append(parts, "OFFSET "+strconv.Itoa(b.offset))
		}
	}
	return strings.Join(parts, " ")
}

func (b *Builder) renderWhere() string {
	switch len(b.where) {
	case 0:
		return ""
	case 1:
		return strings.Join(b.where[0], " AND ")
	}
	groups := make([]string, len(b.where))
	for i, g := range b.where {
		groups[i] = "(" + strings.Join(g, " AND ") + ")"
	}
	return strings.Join(groups, " OR ")
}

// renderWhereOrFalse keeps UPDATE and DELETE without conditions from touching
// every row.
func (b *Builder) renderWhereOrFalse() string {
	if w := b.renderWhere(); w != "" {
		return w
	}
	return "0"
}

func (b *Builder) renderOrder() []string {
	if len(b.sorts) == 0 {
		return nil
	}
	return []string{"ORDER BY " + strings.Join(b.sorts, ", ")}
}

// Params returns the bound values in placeholder order.
func (b *Builder) Params() []any {
	var params []any
	switch b.command {
	case CommandInsert:
		params = append(params, b.values...)
	case CommandUpdate:
		params = append(params, b.values...)
		params = append(params, b.whereParams...)
	case CommandDelete:
		params = append(params, b.whereParams...)
	case CommandNone, CommandSelect, CommandCount:
		params = append(params, b.whereParams...)
		params = append(params, b.havingParams...)
	}
	return params
}
