package query

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/rzpsarthak13/sqlkit/internal/core"
	"github.com/rzpsarthak13/sqlkit/internal/row"
)

// Executor runs a rendered statement.
type Executor interface {
	// Execute runs query with params and returns the fetched rows. Statements
	// that return no rows yield an empty slice.
	Execute(ctx context.Context, query string, params []any) ([]*row.Row, error)

	// LastInsertID returns the id generated by the last INSERT/UPDATE, or nil.
	LastInsertID() any
}

// Transactor is an Executor able to scope work in a transaction carried by ctx.
type Transactor interface {
	Executor
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Run renders and executes the statement and captures the generated id.
func (b *Builder) Run(ctx context.Context, ex Executor) ([]*row.Row, error) {
	sql, err := b.Get()
	if err != nil {
		return nil, err
	}
	if sql == "" {
		return nil, core.ErrEmptyQuery
	}
	rows, err := ex.Execute(ctx, sql, b.Params())
	if err != nil {
		return nil, err
	}
	b.returnedID = ex.LastInsertID()
	return rows, nil
}

// Count returns the number of rows matching the builder, counting expr
// ("*" when empty). The builder itself is left untouched.
func (b *Builder) Count(ctx context.Context, ex Executor, expr string) (int, error) {
	c := b.clone()
	if expr == "" {
		expr = "*"
	}
	c.command = CommandCount
	c.statements = []string{"COUNT(" + c.qualify(expr) + ") AS count_values"}
	rows, err := c.Run(ctx, ex)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", b.table, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toInt(rows[0].Get("count_values"))
}

// Debug logs and returns the statement with its parameters inlined.
func (b *Builder) Debug() string {
	sql, err := b.Get()
	if err != nil {
		log.Printf("[QUERY] cannot render query on %q: %v", b.table, err)
		return ""
	}
	combined := Combine(sql, b.Params())
	log.Printf("[QUERY] %s", combined)
	return combined
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("failed to parse count %q: %w", n, err)
		}
		return i, nil
	case []byte:
		return toInt(string(n))
	}
	return 0, fmt.Errorf("unexpected count value of type %T", v)
}
