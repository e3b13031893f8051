// Package database owns the MySQL handle: statement execution, transactions
// and schema introspection.
package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rzpsarthak13/sqlkit/internal/core"
	"github.com/rzpsarthak13/sqlkit/internal/query"
	"github.com/rzpsarthak13/sqlkit/internal/registry"
	"github.com/rzpsarthak13/sqlkit/internal/row"
	"github.com/rzpsarthak13/sqlkit/internal/schemacache"
)

var (
	returnsRowsRe = regexp.MustCompile(`(?i)^\s*(SELECT|SHOW|DESCRIBE|DESC|EXPLAIN|WITH)\b`)
	writesIDRe    = regexp.MustCompile(`(?i)insert|update`)
)

// Connection executes statements on a lazily opened MySQL handle. One
// statement runs at a time; a transaction or pinned connection holds that
// slot until it ends.
type Connection struct {
	cfg   registry.DatabaseConfig
	cache *schemacache.Cache
	feed  core.ChangeFeed

	openMu sync.Mutex
	db     *sql.DB
	closed bool

	// stmtMu serializes statements outside a transaction or pinned conn.
	stmtMu sync.Mutex

	mu           sync.Mutex
	lastInsertID any
	unbuffered   func(*row.Row) error
}

// Option configures a Connection.
type Option func(*Connection)

// WithSchemaCache sets the cache holding schema and DDL documents.
func WithSchemaCache(c *schemacache.Cache) Option {
	return func(conn *Connection) { conn.cache = c }
}

// WithChangeFeed sets where entity writes are published.
func WithChangeFeed(f core.ChangeFeed) Option {
	return func(conn *Connection) { conn.feed = f }
}

// WithDB injects an already opened handle instead of dialing cfg.
func WithDB(db *sql.DB) Option {
	return func(conn *Connection) { conn.db = db }
}

// New creates a Connection. Nothing is dialed until the first statement.
func New(cfg registry.DatabaseConfig, opts ...Option) *Connection {
	c := &Connection{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the database name, falling back to SQL_DB.
func (c *Connection) Name() string {
	if c.cfg.Name != "" {
		return c.cfg.Name
	}
	return os.Getenv("SQL_DB")
}

// Cache returns the schema cache, nil when none is configured.
func (c *Connection) Cache() *schemacache.Cache { return c.cache }

// DSN renders the driver data source name of the configuration.
func (c *Connection) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.cfg.Username
	mc.Passwd = c.cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	mc.DBName = c.Name()
	mc.Timeout = c.cfg.ConnectionTimeout
	if c.cfg.Charset != "" {
		mc.Params = map[string]string{"charset": c.cfg.Charset}
	}
	if c.cfg.Collation != "" {
		mc.Collation = c.cfg.Collation
	}
	return mc.FormatDSN()
}

// DB returns the handle, opening and pinging it on first use.
func (c *Connection) DB(ctx context.Context) (*sql.DB, error) {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("database is closed")
	}
	if c.db != nil {
		return c.db, nil
	}

	db, err := sql.Open("mysql", c.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	maxOpen := c.cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(c.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(c.cfg.ConnMaxLifetime)

	pingCtx := ctx
	if c.cfg.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, c.cfg.ConnectionTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Printf("[MYSQL] Connected to %s@%s:%d/%s", c.cfg.Username, c.cfg.Host, c.cfg.Port, c.Name())

	c.db = db
	return db, nil
}

// Unbuffered makes the next Execute stream every fetched row to fn instead of
// collecting them; that call then returns an empty result. fn must not run
// statements on this Connection.
func (c *Connection) Unbuffered(fn func(*row.Row) error) {
	c.mu.Lock()
	c.unbuffered = fn
	c.mu.Unlock()
}

// LastInsertID returns the id generated by the last INSERT or UPDATE, or nil.
func (c *Connection) LastInsertID() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastInsertID
}

// Execute runs stmt with params. Statements that return rows are fetched
// into rows; others yield an empty result. The transaction or connection
// carried by ctx is used when present.
func (c *Connection) Execute(ctx context.Context, stmt string, params []any) ([]*row.Row, error) {
	if strings.TrimSpace(stmt) == "" {
		return nil, core.ErrEmptyQuery
	}
	q, scoped := scopedQueryer(ctx)
	if !scoped {
		db, err := c.DB(ctx)
		if err != nil {
			return nil, err
		}
		q = db
		c.stmtMu.Lock()
		defer c.stmtMu.Unlock()
	}
	args := normalize(params)

	c.mu.Lock()
	stream := c.unbuffered
	c.unbuffered = nil
	c.mu.Unlock()

	if c.cfg.LogQueries {
		log.Printf("[MYSQL] %s", query.Combine(stmt, params))
	}

	var (
		rows []*row.Row
		err  error
	)
	if returnsRowsRe.MatchString(stmt) {
		rows, err = fetch(ctx, q, stmt, args, stream)
	} else {
		var res sql.Result
		res, err = q.ExecContext(ctx, stmt, args...)
		if err == nil && writesIDRe.MatchString(stmt) {
			var id any
			if n, idErr := res.LastInsertId(); idErr == nil && n != 0 {
				id = n
			}
			c.mu.Lock()
			c.lastInsertID = id
			c.mu.Unlock()
		}
	}
	if err != nil {
		combined := query.Combine(stmt, params)
		log.Printf("[MYSQL] ERROR: error on query => '%s': %v", combined, err)
		return nil, &core.DriverError{Query: combined, Err: err}
	}
	if rows == nil {
		rows = []*row.Row{}
	}
	return rows, nil
}

func fetch(ctx context.Context, q queryer, stmt string, args []any, stream func(*row.Row) error) ([]*row.Row, error) {
	rs, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []*row.Row
	for rs.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r := row.New()
		for i, col := range cols {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			r.Set(col, v)
		}

		if stream != nil {
			if err := stream(r); err != nil {
				return nil, err
			}
			continue
		}
		out = append(out, r)
	}
	return out, rs.Err()
}

// normalize converts values the driver cannot bind: maps, slices and structs
// become JSON and Stringers their string form.
func normalize(params []any) []any {
	out := make([]any, len(params))
	for i, p := range params {
		switch v := p.(type) {
		case nil, []byte, string, bool, time.Time,
			int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			out[i] = v
		case driver.Valuer:
			out[i] = v
		case fmt.Stringer:
			out[i] = v.String()
		default:
			switch reflect.ValueOf(v).Kind() {
			case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
				data, err := json.Marshal(v)
				if err != nil {
					out[i] = fmt.Sprint(v)
					continue
				}
				out[i] = string(data)
			default:
				out[i] = v
			}
		}
	}
	return out
}

// Publish forwards ev to the change feed. Failures are logged only.
func (c *Connection) Publish(ctx context.Context, ev *core.ChangeEvent) {
	if c.feed == nil || ev == nil {
		return
	}
	if err := c.feed.Publish(ctx, ev); err != nil {
		log.Printf("[MYSQL] ERROR: failed to publish %s on %s: %v", ev.Operation, ev.Table, err)
	}
}

// Close closes the handle. The schema cache and change feed are owned by the
// caller.
func (c *Connection) Close() error {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
