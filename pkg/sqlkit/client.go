// Package sqlkit is the entry point of the query builder, entity mapper and
// relation loader.
//
// Typical usage:
//
//	cfg, _ := sqlkit.LoadConfig("sqlkit.yaml")
//	client, _ := sqlkit.Open(cfg)
//	defer client.Close()
//
//	users := sqlkit.MustDefine(sqlkit.Model{Name: "User", CreatedAt: "created_at"})
//	u := users.New(client.Conn(), map[string]any{"email": "a@b.com"})
//	err := u.Save(ctx)
//
//	list, _ := users.Load(client.Conn(), "posts").Where("active", "=", 1).Get(ctx)
package sqlkit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/rzpsarthak13/sqlkit/internal/changefeed"
	"github.com/rzpsarthak13/sqlkit/internal/core"
	"github.com/rzpsarthak13/sqlkit/internal/database"
	"github.com/rzpsarthak13/sqlkit/internal/kvstore"
	"github.com/rzpsarthak13/sqlkit/internal/query"
	"github.com/rzpsarthak13/sqlkit/internal/schemacache"
)

type options struct {
	db    *sql.DB
	store core.KVStore
	feed  core.ChangeFeed
}

// Option overrides a component Open would otherwise build from the config.
type Option func(*options)

// WithDB uses an already opened handle.
func WithDB(db *sql.DB) Option {
	return func(o *options) { o.db = db }
}

// WithKVStore uses store for the schema cache instead of cfg.Cache.
func WithKVStore(store core.KVStore) Option {
	return func(o *options) { o.store = store }
}

// WithChangeFeed publishes entity writes to feed instead of cfg.ChangeFeed.
func WithChangeFeed(feed core.ChangeFeed) Option {
	return func(o *options) { o.feed = feed }
}

// Client owns a connection together with its schema cache and change feed.
type Client struct {
	config *Config
	store  core.KVStore
	cache  *schemacache.Cache
	feed   core.ChangeFeed
	conn   *database.Connection

	// ownsStore is false for a store passed in with WithKVStore.
	ownsStore bool

	mu     sync.Mutex
	closed bool
}

// Open wires the schema cache store, the change feed and the connection
// described by cfg. The database itself is dialed on first use.
func Open(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	if store == nil {
		var err error
		store, err = kvstore.Create(cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("failed to create schema cache store: %w", err)
		}
	}
	cache := schemacache.New(store)
	if cfg.Cache.Watch && cfg.Cache.Type == "file" && o.store == nil {
		if err := cache.Watch(cfg.Cache.Dir); err != nil {
			_ = cache.Close()
			return nil, err
		}
	}

	feed := o.feed
	if feed == nil {
		var err error
		feed, err = changefeed.New(cfg.ChangeFeed)
		if err != nil {
			if o.store == nil {
				_ = cache.Close()
			}
			return nil, fmt.Errorf("failed to create change feed: %w", err)
		}
	}

	dbOpts := []database.Option{database.WithSchemaCache(cache)}
	if feed != nil {
		dbOpts = append(dbOpts, database.WithChangeFeed(feed))
	}
	if o.db != nil {
		dbOpts = append(dbOpts, database.WithDB(o.db))
	}

	log.Printf("[SQLKIT] Opened %s (cache: %s, change feed: %s)", cfg.Database.Name, cfg.Cache.Type, cfg.ChangeFeed.Type)
	return &Client{
		config: cfg,
		store:  store,
		cache:  cache,
		feed:   feed,
		conn:   database.New(cfg.Database, dbOpts...),

		ownsStore: o.store == nil,
	}, nil
}

// Config returns the configuration the client was opened with.
func (c *Client) Config() *Config { return c.config }

// Conn returns the connection entities and queries run on.
func (c *Client) Conn() *database.Connection { return c.conn }

// Cache returns the schema cache.
func (c *Client) Cache() *schemacache.Cache { return c.cache }

// Feed returns the change feed, nil when none is configured.
func (c *Client) Feed() core.ChangeFeed { return c.feed }

// Table starts a query on table.
func (c *Client) Table(name string) *Builder {
	return query.Table(name)
}

// Run executes q on the client's connection.
func (c *Client) Run(ctx context.Context, q *Builder) ([]*Row, error) {
	return q.Run(ctx, c.conn)
}

// Bulk executes queries in transactions of cfg.Bulk.ChunkSize statements,
// paced to cfg.Bulk.ChunkRate chunks per second. opts override the config.
func (c *Client) Bulk(ctx context.Context, queries []*Builder, opts ...query.BulkOption) (bool, error) {
	base := []query.BulkOption{
		query.WithChunkSize(c.config.Bulk.ChunkSize),
		query.WithChunkRate(c.config.Bulk.ChunkRate),
	}
	return query.Bulk(ctx, c.conn, queries, append(base, opts...)...)
}

// Close closes the connection, the change feed and the schema cache. A store
// passed with WithKVStore stays open.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if err := c.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
	}
	if c.feed != nil {
		if err := c.feed.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close change feed: %w", err))
		}
	}
	if c.ownsStore {
		if err := c.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close schema cache: %w", err))
		}
	}
	return errors.Join(errs...)
}
