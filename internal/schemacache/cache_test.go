package schemacache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/sqlkit/internal/core"
	"github.com/rzpsarthak13/sqlkit/internal/kvstore"
)

type countingStore struct {
	core.KVStore
	gets    atomic.Int32
	release chan struct{}
}

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.gets.Add(1)
	if s.release != nil {
		<-s.release
	}
	return s.KVStore.Get(ctx, key)
}

func sampleSchema() *core.Schema {
	return &core.Schema{
		Database: "app",
		Tables: []core.TableSchema{
			{Name: "users", Columns: []core.Column{
				{Name: "id", Type: "int", Length: 11, Key: "PRI"},
				{Name: "email", Type: "varchar", Length: 255, Key: "UNI"},
				{Name: "bio", Type: "text", Nullable: true},
			}},
			{Name: "posts", Columns: []core.Column{
				{Name: "id", Type: "int", Length: 11, Key: "PRI"},
				{Name: "user_id", Type: "int", Length: 11, Key: "MUL"},
			}},
		},
	}
}

func TestSchemaRoundTripThroughStore(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryKVStore()
	require.NoError(t, New(store).PutSchema(ctx, sampleSchema()))

	got, err := New(store).Schema(ctx, "app")
	require.NoError(t, err)
	if diff := cmp.Diff(sampleSchema(), got); diff != "" {
		t.Errorf("schema mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"id", "email", "bio"}, got.Fillable("users"))
	assert.Nil(t, got.Fillable("missing"))
}

func TestSchemaMissing(t *testing.T) {
	_, err := New(kvstore.NewMemoryKVStore()).Schema(context.Background(), "app")
	assert.ErrorIs(t, err, core.ErrKeyNotFound)
}

func TestDDLRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryKVStore()
	ddl := &core.DDL{Tables: []core.TableDDL{
		{Name: "users", Definitions: []string{"`id` int NOT NULL AUTO_INCREMENT", "PRIMARY KEY (`id`)"}},
	}}
	require.NoError(t, New(store).PutDDL(ctx, DDLKey("app"), ddl))

	got, err := New(store).DDL(ctx, "ddl-app")
	require.NoError(t, err)
	assert.Equal(t, ddl, got)
}

func TestLoadsAreMemoizedAndShared(t *testing.T) {
	ctx := context.Background()
	mem := kvstore.NewMemoryKVStore()
	require.NoError(t, New(mem).PutSchema(ctx, sampleSchema()))

	store := &countingStore{KVStore: mem, release: make(chan struct{})}
	c := New(store)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := c.Schema(ctx, "app")
			assert.NoError(t, err)
			assert.Len(t, s.Tables, 2)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	wg.Wait()

	assert.Equal(t, int32(1), store.gets.Load())

	_, err := c.Schema(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, int32(1), store.gets.Load())

	c.Invalidate(SchemaKey("app"))
	_, err = c.Schema(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.gets.Load())
}

func TestWatchInvalidatesOnFileChange(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := kvstore.NewFileKVStore(dir)
	require.NoError(t, err)

	c := New(fs)
	require.NoError(t, c.PutSchema(ctx, sampleSchema()))
	require.NoError(t, c.Watch(dir))
	defer c.Close()
	assert.Error(t, c.Watch(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema-app.yaml"), []byte("tags:\n  id: {type: int, nullable: false, key: PRI}\n"), 0o644))

	assert.Eventually(t, func() bool {
		s, err := c.Schema(ctx, "app")
		return err == nil && len(s.Tables) == 1 && s.Tables[0].Name == "tags"
	}, 2*time.Second, 10*time.Millisecond)
}
