// Package schemacache memoizes the schema and DDL documents of databases on
// top of a core.KVStore.
package schemacache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/rzpsarthak13/sqlkit/internal/core"
)

// SchemaKey is the store key of a database's column layout.
func SchemaKey(database string) string { return "schema-" + database }

// DDLKey is the store key of a database's table definitions.
func DDLKey(database string) string { return "ddl-" + database }

// Cache reads documents from the store once and serves them from memory until
// they are replaced or invalidated. Concurrent loads of the same key share a
// single store read.
type Cache struct {
	store core.KVStore
	group singleflight.Group

	mu   sync.RWMutex
	memo map[string]any

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New creates a cache over store.
func New(store core.KVStore) *Cache {
	return &Cache{
		store: store,
		memo:  make(map[string]any),
	}
}

// Store returns the backing store.
func (c *Cache) Store() core.KVStore { return c.store }

// Schema returns the layout of database. The error wraps core.ErrKeyNotFound
// when nothing has been built yet.
func (c *Cache) Schema(ctx context.Context, database string) (*core.Schema, error) {
	return load(ctx, c, SchemaKey(database), func(s *core.Schema) { s.Database = database })
}

// PutSchema stores s under SchemaKey(s.Database).
func (c *Cache) PutSchema(ctx context.Context, s *core.Schema) error {
	return put(ctx, c, SchemaKey(s.Database), s)
}

// DDL returns the definitions stored under key.
func (c *Cache) DDL(ctx context.Context, key string) (*core.DDL, error) {
	return load[core.DDL](ctx, c, key, nil)
}

// PutDDL stores d under key.
func (c *Cache) PutDDL(ctx context.Context, key string, d *core.DDL) error {
	return put(ctx, c, key, d)
}

// Invalidate drops the memoized document of key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.memo, key)
	c.mu.Unlock()
}

func load[T any](ctx context.Context, c *Cache, key string, prepare func(*T)) (*T, error) {
	c.mu.RLock()
	v, ok := c.memo[key]
	c.mu.RUnlock()
	if ok {
		if doc, ok := v.(*T); ok {
			return doc, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		data, err := c.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		doc := new(T)
		if err := yaml.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", key, err)
		}
		if prepare != nil {
			prepare(doc)
		}
		c.mu.Lock()
		c.memo[key] = doc
		c.mu.Unlock()
		return doc, nil
	})
	if err != nil {
		if !errors.Is(err, core.ErrKeyNotFound) {
			log.Printf("[CACHE] ERROR: failed to load %s: %v", key, err)
		}
		return nil, err
	}
	doc, ok := v.(*T)
	if !ok {
		return nil, fmt.Errorf("cached %s has type %T", key, v)
	}
	return doc, nil
}

func put[T any](ctx context.Context, c *Cache, key string, doc *T) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := c.store.Set(ctx, key, data, 0); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	c.mu.Lock()
	c.memo[key] = doc
	c.mu.Unlock()
	log.Printf("[CACHE] stored %s (%d bytes)", key, len(data))
	return nil
}

// Watch invalidates memoized documents whenever a .yaml file in dir changes,
// so edits by other processes (or by hand) are picked up. It is meant for the
// file backend.
func (c *Cache) Watch(dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watcher != nil {
		return fmt.Errorf("cache is already watching")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	c.watcher = w
	c.done = make(chan struct{})
	go c.watch(w, c.done)
	return nil
}

func (c *Cache) watch(w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			name := filepath.Base(ev.Name)
			if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".yaml") {
				continue
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) ||
				ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
				c.Invalidate(strings.TrimSuffix(name, ".yaml"))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Printf("[CACHE] ERROR: watcher: %v", err)
		}
	}
}

// Close stops watching and closes the store.
func (c *Cache) Close() error {
	c.mu.Lock()
	w, done := c.watcher, c.done
	c.watcher = nil
	c.mu.Unlock()

	var errs []error
	if w != nil {
		errs = append(errs, w.Close())
		<-done
	}
	errs = append(errs, c.store.Close())
	return errors.Join(errs...)
}
