package entity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/sqlkit/internal/core"
	"github.com/rzpsarthak13/sqlkit/internal/database"
	"github.com/rzpsarthak13/sqlkit/internal/kvstore"
	"github.com/rzpsarthak13/sqlkit/internal/registry"
	"github.com/rzpsarthak13/sqlkit/internal/schemacache"
)

const ts = "2024-05-01 10:00:00"

type feed struct {
	events []*core.ChangeEvent
}

func (f *feed) Publish(_ context.Context, ev *core.ChangeEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *feed) Close() error { return nil }

func columns(names ...string) []core.Column {
	out := make([]core.Column, len(names))
	for i, n := range names {
		out[i] = core.Column{Name: n, Type: "varchar"}
	}
	return out
}

func newConn(t *testing.T, opts ...database.Option) (*database.Connection, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	cache := schemacache.New(kvstore.NewMemoryKVStore())
	require.NoError(t, cache.PutSchema(context.Background(), &core.Schema{
		Database: "app",
		Tables: []core.TableSchema{
			{Name: "users", Columns: columns("id", "name", "email", "active", "created_at", "updated_at", "deleted_at")},
			{Name: "posts", Columns: columns("id", "user_id", "title")},
			{Name: "tags", Columns: columns("id", "label")},
		},
	}))

	c := database.New(registry.DatabaseConfig{Name: "app"},
		append([]database.Option{database.WithDB(db), database.WithSchemaCache(cache)}, opts...)...)

	prev := now
	now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	t.Cleanup(func() {
		now = prev
		assert.NoError(t, mock.ExpectationsWereMet())
		c.Close()
	})
	return c, mock
}

type models struct {
	users, posts, tags *Model
}

func define() models {
	users := MustDefine(Model{
		Name:      "User",
		CreatedAt: "created_at",
		UpdatedAt: "updated_at",
		DeletedAt: "deleted_at",
		Casts:     map[string]string{"active": "bool"},
		Hidden:    []string{"email"},
		Guarded:   []string{"active"},
	})
	tags := MustDefine(Model{Table: "tags"})
	posts := MustDefine(Model{
		Table: "posts",
		Relations: map[string]RelationFunc{
			"author": func(l *Model) *Relation { return HasOne(l, users, "user_id", "") },
			"tags":   func(l *Model) *Relation { return BelongsToMany(l, tags, "post_tag", "tag_id", "post_id") },
		},
	})
	users.Relate("posts", func(l *Model) *Relation { return HasMany(l, posts, "user_id", "") })
	return models{users: users, posts: posts, tags: tags}
}

func TestDefine(t *testing.T) {
	m, err := Define(Model{Name: "BlogPost"})
	require.NoError(t, err)
	assert.Equal(t, "blog_posts", m.Table)
	assert.Equal(t, "id", m.PrimaryKey)
	assert.Equal(t, "int", m.KeyType)
	assert.False(t, m.IsTimestamped())

	_, err = Define(Model{})
	assert.ErrorIs(t, err, core.ErrModelNoTable)

	_, err = Define(Model{Table: "prices", Casts: map[string]string{"amount": "decimal:x"}})
	assert.Error(t, err)
}

func TestNewStartsClean(t *testing.T) {
	m := define()
	u := m.users.New(nil, map[string]any{"id": "7", "active": "0", "name": "Ann"})

	assert.Equal(t, int64(7), u.ID())
	assert.Equal(t, false, u.Attr("active"))
	assert.True(t, u.IsPersistent())
	assert.False(t, u.IsDirty())

	require.NoError(t, u.Set("active", 1))
	assert.Equal(t, true, u.Attr("active"))
	assert.Equal(t, map[string]any{"active": true}, u.Changes())
	orig, ok := u.Original("active")
	assert.True(t, ok)
	assert.Equal(t, false, orig)

	require.NoError(t, u.Set("id", 9))
	assert.Equal(t, int64(7), u.ID())

	_, err := u.Value("nothing")
	assert.Error(t, err)
	assert.Nil(t, u.Attr("nothing"))
}

func TestNewReadsBoolCast(t *testing.T) {
	m := define()
	u := m.users.New(nil, map[string]any{"id": 5, "active": "1"})

	assert.Equal(t, int64(5), u.ID())
	assert.Equal(t, true, u.Attr("active"))
	assert.False(t, u.IsDirty())
}

func TestNewKeepsCastForms(t *testing.T) {
	people := MustDefine(Model{
		Table: "people",
		Casts: map[string]string{"born": "date:d/m/Y", "ip": "ip"},
	})
	p := people.New(nil, map[string]any{"id": 1, "born": "2023-12-31", "ip": "ABCD"})

	assert.Equal(t, "31/12/2023", p.Attr("born"))
	assert.Equal(t, "65.66.67.68", p.Attr("ip"))

	require.NoError(t, p.Set("born", "01/02/2024"))
	assert.Equal(t, "01/02/2024", p.Attr("born"))
	require.NoError(t, p.Set("ip", "100.100.100.100"))
	assert.Equal(t, "100.100.100.100", p.Attr("ip"))
}

func TestFillSkipsGuarded(t *testing.T) {
	m := define()
	u := m.users.New(nil, map[string]any{"id": 7, "name": "Ann", "active": false})

	require.NoError(t, u.Fill(map[string]any{"name": "Bob", "active": true}))
	assert.Equal(t, "Bob", u.Attr("name"))
	assert.Equal(t, false, u.Attr("active"))
}

func TestSetToOneStoresForeignID(t *testing.T) {
	m := define()
	author := m.users.New(nil, map[string]any{"id": 7})
	p := m.posts.New(nil, map[string]any{"id": 1, "user_id": 3})

	require.NoError(t, p.Set("author", author))
	assert.Equal(t, int64(7), p.Attr("user_id"))
	require.NoError(t, p.Set("author", 9))
	assert.Equal(t, 9, p.Attr("user_id"))
	assert.True(t, p.IsDirty())
}

func TestSaveInsertThenUpdate(t *testing.T) {
	f := &feed{}
	conn, mock := newConn(t, database.WithChangeFeed(f))
	m := define()
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO `users` (`id`, `name`, `active`, `created_at`) VALUES (?, ?, ?, ?)").
		WithArgs(nil, "Ann", true, ts).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("UPDATE `users` SET `name` = ?, `updated_at` = ? WHERE `users`.`id` = ?").
		WithArgs("Bob", ts, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := m.users.New(conn, map[string]any{"name": "Ann", "active": true})
	assert.False(t, u.IsPersistent())

	require.NoError(t, u.Save(ctx))
	assert.Equal(t, int64(7), u.ID())
	assert.False(t, u.IsDirty())

	// nothing changed, nothing to run
	require.NoError(t, u.Save(ctx))

	require.NoError(t, u.Set("name", "Bob"))
	require.NoError(t, u.Save(ctx))
	assert.False(t, u.IsDirty())
	assert.Equal(t, ts, u.Attr("updated_at"))

	require.Len(t, f.events, 2)
	assert.Equal(t, core.OperationCreate, f.events[0].Operation)
	assert.Equal(t, "users", f.events[0].Table)
	assert.Equal(t, int64(7), f.events[0].Key)
	assert.Equal(t, "Ann", f.events[0].Data["name"])
	assert.Equal(t, core.OperationUpdate, f.events[1].Operation)
	assert.NotEqual(t, f.events[0].ID, f.events[1].ID)
}

func TestSaveErrorKeepsChanges(t *testing.T) {
	conn, mock := newConn(t)
	m := define()
	boom := errors.New("boom")

	mock.ExpectExec("UPDATE `posts` SET `title` = ? WHERE `posts`.`id` = ?").
		WithArgs("New", int64(1)).
		WillReturnError(boom)

	p := m.posts.New(conn, map[string]any{"id": 1, "title": "Old"})
	require.NoError(t, p.Set("title", "New"))
	err := p.Save(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, p.IsDirty())
}

func TestSaveHooks(t *testing.T) {
	conn, _ := newConn(t)
	m := define()
	refused := errors.New("refused")
	m.posts.BeforeSave = func(_ context.Context, _ *Entity, op core.OperationType) error {
		assert.Equal(t, core.OperationCreate, op)
		return refused
	}

	p := m.posts.New(conn, map[string]any{"title": "Hi"})
	assert.ErrorIs(t, p.Save(context.Background()), refused)
}

func TestSaveSyncsToMany(t *testing.T) {
	conn, _ := newConn(t)
	m := define()
	var synced []any
	m.users.SyncMany = func(_ context.Context, e *Entity, name string, value any) error {
		assert.Equal(t, "posts", name)
		synced = append(synced, value)
		return nil
	}

	u := m.users.New(conn, map[string]any{"id": 7, "name": "Ann"})
	require.NoError(t, u.Set("posts", []int{1, 2}))
	assert.False(t, u.IsDirty())
	require.NoError(t, u.Save(context.Background()))
	assert.Equal(t, []any{[]int{1, 2}}, synced)

	require.NoError(t, u.Save(context.Background()))
	assert.Len(t, synced, 1)
}

func TestGetJoinsToOne(t *testing.T) {
	conn, mock := newConn(t)
	m := define()

	mock.ExpectQuery("SELECT `posts`.*, '' AS '{%author%}', `users`.* FROM `posts` LEFT JOIN `users` ON `users`.`id` = `posts`.`user_id`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "{%author%}", "id", "name"}).
			AddRow(int64(1), int64(7), "Hi", "", int64(7), "Ann").
			AddRow(int64(2), int64(8), "Yo", "", nil, nil))

	list, err := m.posts.Load(conn, "author").Get(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "Hi", list[0].Attr("title"))
	assert.False(t, list[0].Has("name"))
	author, err := list[0].Related(context.Background(), "author")
	require.NoError(t, err)
	require.IsType(t, &Entity{}, author)
	assert.Equal(t, int64(7), author.(*Entity).ID())
	assert.Equal(t, "Ann", author.(*Entity).Attr("name"))

	assert.True(t, list[1].IsLoaded("author"))
	author, err = list[1].Related(context.Background(), "author")
	require.NoError(t, err)
	assert.Nil(t, author)
}

func TestGetBatchesToMany(t *testing.T) {
	conn, mock := newConn(t)
	m := define()

	mock.ExpectQuery("SELECT `users`.* FROM `users` WHERE `users`.`active` = ?").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(7), "Ann").
			AddRow(int64(8), "Bob").
			AddRow(int64(9), "Cid"))
	mock.ExpectQuery("SELECT `posts`.* FROM `posts` INNER JOIN `users` ON `users`.`id` = `posts`.`user_id` WHERE `users`.`id` IN (?,?,?)").
		WithArgs(int64(7), int64(8), int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title"}).
			AddRow(int64(1), int64(7), "a").
			AddRow(int64(2), int64(7), "b").
			AddRow(int64(3), int64(8), "c"))

	list, err := m.users.Load(conn, "posts").Where("active", "=", 1).Get(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)

	titles := func(e *Entity) []any {
		v, err := e.Related(context.Background(), "posts")
		require.NoError(t, err)
		var out []any
		for _, p := range v.([]*Entity) {
			out = append(out, p.Attr("title"))
		}
		return out
	}
	assert.Equal(t, []any{"a", "b"}, titles(list[0]))
	assert.Equal(t, []any{"c"}, titles(list[1]))
	assert.Empty(t, titles(list[2]))
}

func TestGetUnknownRelation(t *testing.T) {
	m := define()
	_, err := m.users.Load(nil, "nope").Get(context.Background())
	assert.ErrorIs(t, err, core.ErrNoRelation)

	_, err = m.users.New(nil, nil).Related(context.Background(), "nope")
	assert.ErrorIs(t, err, core.ErrNoRelation)
}

func TestRelatedLoadsPivot(t *testing.T) {
	conn, mock := newConn(t)
	m := define()

	mock.ExpectQuery("SELECT `tags`.*, `post_tag`.`post_id` FROM `tags` INNER JOIN `post_tag` ON `post_tag`.`tag_id` = `tags`.`id` WHERE `post_tag`.`post_id` IN (?)").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "label", "post_id"}).
			AddRow(int64(4), "go", int64(1)).
			AddRow(int64(5), "sql", int64(1)))

	p := m.posts.New(conn, map[string]any{"id": 1})
	v, err := p.Related(context.Background(), "tags")
	require.NoError(t, err)
	list := v.([]*Entity)
	require.Len(t, list, 2)
	assert.Equal(t, "sql", list[1].Attr("label"))

	// cached by the descriptor
	_, err = p.Related(context.Background(), "tags")
	require.NoError(t, err)

	transient := m.posts.New(conn, nil)
	v, err = transient.Related(context.Background(), "tags")
	require.NoError(t, err)
	assert.Equal(t, []*Entity{}, v)
}

func TestJoinRelation(t *testing.T) {
	m := define()

	p := m.posts.New(nil, nil)
	require.NoError(t, p.JoinRelation("author"))
	require.NoError(t, p.JoinRelation("tags"))
	sql, err := p.Query().Get()
	require.NoError(t, err)
	assert.Equal(t, "SELECT `posts`.* FROM `posts` LEFT JOIN `users` ON `users`.`id` = `posts`.`user_id` "+
		"LEFT JOIN `post_tag` ON `post_tag`.`post_id` = `posts`.`id`", sql)

	assert.ErrorIs(t, p.JoinRelation("nope"), core.ErrNoRelation)
}

func TestCount(t *testing.T) {
	conn, mock := newConn(t)
	m := define()

	mock.ExpectQuery("SELECT COUNT(*) AS count_values FROM `users` WHERE `users`.`deleted_at` IS NULL").
		WillReturnRows(sqlmock.NewRows([]string{"count_values"}).AddRow(int64(3)))

	n, err := m.users.New(conn, nil).WhereNull("deleted_at").Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDeleteAndRestore(t *testing.T) {
	conn, mock := newConn(t)
	m := define()
	ctx := context.Background()

	mock.ExpectExec("UPDATE `users` SET `deleted_at` = ? WHERE `users`.`id` = ?").
		WithArgs(ts, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `users` SET `deleted_at` = ? WHERE `users`.`id` = ?").
		WithArgs(nil, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM `users` WHERE `users`.`id` = ?").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := m.users.New(conn, map[string]any{"id": 7, "name": "Ann"})
	ok, err := u.Delete(ctx, false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ts, u.Attr("deleted_at"))

	ok, err = u.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, u.Attr("deleted_at"))

	ok, err = u.Delete(ctx, true)
	require.NoError(t, err)
	assert.True(t, ok)

	transient := m.users.New(conn, map[string]any{"name": "Bob"})
	ok, err = transient.Delete(ctx, false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, transient.Has("name"))
}

func TestSaveTouchesRelation(t *testing.T) {
	conn, mock := newConn(t)
	m := define()
	m.posts.Touches = []string{"author"}

	mock.ExpectExec("UPDATE `posts` SET `title` = ? WHERE `posts`.`id` = ?").
		WithArgs("New", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT `users`.* FROM `users` INNER JOIN `posts` ON `posts`.`user_id` = `users`.`id` WHERE `posts`.`id` = ?").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "updated_at"}).AddRow(int64(7), "Ann", "2020-01-01 00:00:00"))
	mock.ExpectExec("UPDATE `users` SET `updated_at` = ? WHERE `users`.`id` = ?").
		WithArgs(ts, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := m.posts.New(conn, map[string]any{"id": 1, "user_id": 7, "title": "Hi"})
	require.NoError(t, p.Set("title", "New"))
	require.NoError(t, p.Save(context.Background()))
}

func TestRefresh(t *testing.T) {
	conn, mock := newConn(t)
	m := define()

	mock.ExpectQuery("SELECT `users`.* FROM `users` WHERE `users`.`id` = ?").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(7), "Ann"))

	u := m.users.New(conn, map[string]any{"id": 7, "name": "Old"})
	require.NoError(t, u.Set("name", "Changed"))
	u.SetRelated("posts", []*Entity{})

	require.NoError(t, u.Refresh(context.Background()))
	assert.Equal(t, "Ann", u.Attr("name"))
	assert.False(t, u.IsDirty())
	assert.False(t, u.IsLoaded("posts"))
}

func TestMarshalJSONHidesKeys(t *testing.T) {
	m := define()
	u := m.users.New(nil, map[string]any{"id": 7, "name": "Ann", "email": "a@b.c", "active": 1})
	p := m.posts.New(nil, map[string]any{"id": 1, "title": "Hi"})
	p.SetRelated("author", u)

	data, err := p.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"title":"Hi","author":{"id":7,"name":"Ann","active":true}}`, string(data))
}
