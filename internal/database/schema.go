package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/rzpsarthak13/sqlkit/internal/core"
	"github.com/rzpsarthak13/sqlkit/internal/query"
	"github.com/rzpsarthak13/sqlkit/internal/row"
	"github.com/rzpsarthak13/sqlkit/internal/schemacache"
)

var (
	columnTypeRe = regexp.MustCompile(`(\w+)\(?(\d+)?\)?`)
	ddlBodyRe    = regexp.MustCompile(`(?s)\((.+)\)`)
	spacesRe     = regexp.MustCompile(`\s{2,}`)
	charsetRe    = regexp.MustCompile(`^\w+$`)
)

func (c *Connection) requireCache() error {
	if c.cache == nil {
		return fmt.Errorf("no schema cache configured")
	}
	return nil
}

// Schema returns the cached layout of the database, building it on a miss.
func (c *Connection) Schema(ctx context.Context) (*core.Schema, error) {
	if err := c.requireCache(); err != nil {
		return nil, err
	}
	s, err := c.cache.Schema(ctx, c.Name())
	if errors.Is(err, core.ErrKeyNotFound) {
		return c.BuildSchema(ctx, true)
	}
	return s, err
}

// Fillable returns the ordered column names of table.
func (c *Connection) Fillable(ctx context.Context, table string) ([]string, error) {
	s, err := c.Schema(ctx)
	if err != nil {
		return nil, err
	}
	return s.Fillable(table), nil
}

// tables lists the tables of the database.
func (c *Connection) tables(ctx context.Context) ([]string, error) {
	name := c.Name()
	rows, err := c.Execute(ctx, "SHOW TABLES FROM `"+name+"`", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	tables := make([]string, 0, len(rows))
	for _, r := range rows {
		v := r.Get("Tables_in_" + name)
		if v == nil && r.Len() > 0 {
			v = r.Values()[0]
		}
		tables = append(tables, fmt.Sprint(v))
	}
	return tables, nil
}

// BuildSchema reads the column layout of every table and stores it in the
// cache. Without force, a cached layout is returned as is.
func (c *Connection) BuildSchema(ctx context.Context, force bool) (*core.Schema, error) {
	if err := c.requireCache(); err != nil {
		return nil, err
	}
	name := c.Name()
	if !force {
		if s, err := c.cache.Schema(ctx, name); err == nil {
			return s, nil
		}
	}

	tables, err := c.tables(ctx)
	if err != nil {
		return nil, err
	}

	s := &core.Schema{Database: name, Tables: make([]core.TableSchema, 0, len(tables))}
	for _, table := range tables {
		rows, err := query.Table(table).Show().Run(ctx, c)
		if err != nil {
			log.Printf("[MYSQL] ERROR: failed to read columns of %s: %v", table, err)
			continue
		}
		t := core.TableSchema{Name: table, Columns: make([]core.Column, 0, len(rows))}
		for _, r := range rows {
			t.Columns = append(t.Columns, parseColumn(r))
		}
		s.Tables = append(s.Tables, t)
	}

	if err := c.cache.PutSchema(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func parseColumn(r *row.Row) core.Column {
	col := core.Column{
		Name:     fmt.Sprint(r.Get("Field")),
		Nullable: r.Get("Null") == "YES",
	}
	if k, ok := r.Get("Key").(string); ok {
		col.Key = k
	}
	if m := columnTypeRe.FindStringSubmatch(fmt.Sprint(r.Get("Type"))); m != nil {
		col.Type = m[1]
		if m[2] != "" {
			col.Length, _ = strconv.Atoi(m[2])
		}
	}
	return col
}

// BuildDDL extracts the definition list of every table from SHOW CREATE TABLE
// and stores it under key, DDLKey(database) when key is empty. It returns the
// key used.
func (c *Connection) BuildDDL(ctx context.Context, key string) (string, error) {
	if err := c.requireCache(); err != nil {
		return "", err
	}
	if key == "" {
		key = schemacache.DDLKey(c.Name())
	}

	tables, err := c.tables(ctx)
	if err != nil {
		return "", err
	}

	ddl := &core.DDL{Tables: make([]core.TableDDL, 0, len(tables))}
	for _, table := range tables {
		rows, err := c.Execute(ctx, "SHOW CREATE TABLE `"+table+"`", nil)
		if err != nil {
			log.Printf("[MYSQL] ERROR: failed to read definition of %s: %v", table, err)
			continue
		}
		if len(rows) == 0 {
			continue
		}
		create, _ := rows[0].Get("Create Table").(string)
		ddl.Tables = append(ddl.Tables, core.TableDDL{Name: table, Definitions: Definitions(create)})
	}

	if err := c.cache.PutDDL(ctx, key, ddl); err != nil {
		return "", err
	}
	return key, nil
}

// Definitions returns the column and index clauses of a CREATE TABLE
// statement, whitespace collapsed. Commas nested in parentheses or quotes do
// not split clauses.
func Definitions(create string) []string {
	m := ddlBodyRe.FindStringSubmatch(create)
	if m == nil {
		return nil
	}
	body := spacesRe.ReplaceAllString(m[1], " ")

	var (
		defs  []string
		start int
		depth int
		quote rune
	)
	for i, r := range body {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == ',' && depth == 0:
			if d := strings.TrimSpace(body[start:i]); d != "" {
				defs = append(defs, d)
			}
			start = i + 1
		}
	}
	if d := strings.TrimSpace(body[start:]); d != "" {
		defs = append(defs, d)
	}
	return defs
}

// Build replays the stored DDL of the database with foreign key checks
// disabled, then rebuilds the schema. It reports false when no DDL is stored.
func (c *Connection) Build(ctx context.Context) (bool, error) {
	if err := c.requireCache(); err != nil {
		return false, err
	}
	ddl, err := c.cache.DDL(ctx, schemacache.DDLKey(c.Name()))
	if errors.Is(err, core.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	err = c.withConn(ctx, func(ctx context.Context) (err error) {
		if _, err := c.Execute(ctx, "SET FOREIGN_KEY_CHECKS=0", nil); err != nil {
			return err
		}
		defer func() {
			if _, resetErr := c.Execute(ctx, "SET FOREIGN_KEY_CHECKS=1", nil); resetErr != nil {
				err = errors.Join(err, resetErr)
			}
		}()
		for _, t := range ddl.Tables {
			stmt := "CREATE TABLE IF NOT EXISTS `" + t.Name + "` (" + strings.Join(t.Definitions, ", ") + ")"
			if _, err := c.Execute(ctx, stmt, nil); err != nil {
				return fmt.Errorf("failed to create table %s: %w", t.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if _, err := c.BuildSchema(ctx, true); err != nil {
		return false, err
	}
	return true, nil
}

// Collate converts the database and each of its base tables to charset and
// collation, the configured ones when empty. A table that fails is logged and
// skipped.
func (c *Connection) Collate(ctx context.Context, charset, collation string) error {
	if charset == "" {
		charset = c.cfg.Charset
	}
	if collation == "" {
		collation = c.cfg.Collation
	}
	if !charsetRe.MatchString(charset) || !charsetRe.MatchString(collation) {
		return fmt.Errorf("invalid charset %q or collation %q", charset, collation)
	}
	suffix := " CHARACTER SET " + charset + " COLLATE " + collation
	name := c.Name()

	if _, err := c.Execute(ctx, "ALTER DATABASE `"+name+"`"+suffix, nil); err != nil {
		return fmt.Errorf("failed to alter database %s: %w", name, err)
	}

	rows, err := c.Execute(ctx,
		"SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'",
		[]any{name})
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}
	for _, r := range rows {
		table := fmt.Sprint(r.Get("TABLE_NAME"))
		if _, err := c.Execute(ctx, "ALTER TABLE `"+table+"` CONVERT TO"+suffix, nil); err != nil {
			log.Printf("[MYSQL] ERROR: failed to convert %s: %v", table, err)
			continue
		}
		log.Printf("[MYSQL] Converted %s to %s/%s", table, charset, collation)
	}
	return nil
}
