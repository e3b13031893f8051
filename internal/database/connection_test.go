package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/sqlkit/internal/core"
	"github.com/rzpsarthak13/sqlkit/internal/kvstore"
	"github.com/rzpsarthak13/sqlkit/internal/query"
	"github.com/rzpsarthak13/sqlkit/internal/registry"
	"github.com/rzpsarthak13/sqlkit/internal/row"
	"github.com/rzpsarthak13/sqlkit/internal/schemacache"
)

func newConn(t *testing.T, opts ...Option) (*Connection, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	cache := schemacache.New(kvstore.NewMemoryKVStore())
	cfg := registry.DatabaseConfig{Name: "app", Charset: "utf8mb4", Collation: "utf8mb4_unicode_ci"}
	c := New(cfg, append([]Option{WithDB(db), WithSchemaCache(cache)}, opts...)...)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		c.Close()
	})
	return c, mock
}

func TestExecuteSelect(t *testing.T) {
	c, mock := newConn(t)
	mock.ExpectQuery("SELECT `users`.* FROM `users` WHERE `users`.`email` = ?").
		WithArgs("a@b.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "bio"}).AddRow(int64(1), []byte("a@b.com"), nil))

	rows, err := query.Table("users").Where("email", "=", "a@b.com").Run(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"id", "email", "bio"}, rows[0].Columns())
	assert.Equal(t, []any{int64(1), "a@b.com", nil}, rows[0].Values())
}

func TestExecuteCapturesLastInsertID(t *testing.T) {
	c, mock := newConn(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO `users` (`email`) VALUES (?)").WithArgs("a@b.com").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("DELETE FROM `logs` WHERE 0").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE `users` SET `email` = ? WHERE `users`.`id` = ?").WithArgs("b@c.com", 7).WillReturnResult(sqlmock.NewResult(0, 1))

	b := query.Table("users").Insert(map[string]any{"email": "a@b.com"})
	_, err := b.Run(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, int64(7), b.ReturnedID())

	_, err = query.Table("logs").Delete().Run(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, int64(7), c.LastInsertID())

	_, err = query.Table("users").Update(map[string]any{"email": "b@c.com"}).Where("id", "=", 7).Run(ctx, c)
	require.NoError(t, err)
	assert.Nil(t, c.LastInsertID())
}

func TestExecuteEmpty(t *testing.T) {
	c, _ := newConn(t)
	_, err := c.Execute(context.Background(), "  ", nil)
	assert.ErrorIs(t, err, core.ErrEmptyQuery)
}

func TestExecuteDriverError(t *testing.T) {
	c, mock := newConn(t)
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'a@b.com' for key 'email'"}
	mock.ExpectExec("INSERT INTO `users` (`email`) VALUES (?)").WithArgs("a@b.com").WillReturnError(dup)

	_, err := c.Execute(context.Background(), "INSERT INTO `users` (`email`) VALUES (?)", []any{"a@b.com"})
	require.Error(t, err)

	var de *core.DriverError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "INSERT INTO `users` (`email`) VALUES (\"a@b.com\")", de.Query)
	assert.ErrorIs(t, err, dup)
	assert.True(t, IsDuplicateEntry(err))
	assert.False(t, IsNoSuchTable(err))
	assert.True(t, IsNoSuchTable(&mysql.MySQLError{Number: 1146}))
}

type tag struct{ Name string }

func (t tag) String() string { return "#" + t.Name }

func TestExecuteNormalizesParams(t *testing.T) {
	c, mock := newConn(t)
	mock.ExpectExec("UPDATE `posts` SET `meta` = ?, `tags` = ?, `label` = ? WHERE 0").
		WithArgs(`{"a":1}`, `["x","y"]`, "#go").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := c.Execute(context.Background(), "UPDATE `posts` SET `meta` = ?, `tags` = ?, `label` = ? WHERE 0",
		[]any{map[string]any{"a": 1}, []string{"x", "y"}, tag{Name: "go"}})
	require.NoError(t, err)
}

func TestUnbufferedIsOneShot(t *testing.T) {
	c, mock := newConn(t)
	mock.ExpectQuery("SELECT `t`.* FROM `t`").WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow("a").AddRow("b"))
	mock.ExpectQuery("SELECT `t`.* FROM `t`").WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow("c"))

	var streamed []any
	c.Unbuffered(func(r *row.Row) error {
		streamed = append(streamed, r.Get("v"))
		return nil
	})

	rows, err := c.Execute(context.Background(), "SELECT `t`.* FROM `t`", nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, []any{"a", "b"}, streamed)

	rows, err = c.Execute(context.Background(), "SELECT `t`.* FROM `t`", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRunInTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commit and nested join", func(t *testing.T) {
		c, mock := newConn(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM `a` WHERE 0").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("DELETE FROM `b` WHERE 0").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := c.RunInTx(ctx, func(ctx context.Context) error {
			_, ok := TxFromContext(ctx)
			assert.True(t, ok)
			if _, err := c.Execute(ctx, "DELETE FROM `a` WHERE 0", nil); err != nil {
				return err
			}
			return c.RunInTx(ctx, func(ctx context.Context) error {
				_, err := c.Execute(ctx, "DELETE FROM `b` WHERE 0", nil)
				return err
			})
		})
		require.NoError(t, err)
	})

	t.Run("rollback", func(t *testing.T) {
		c, mock := newConn(t)
		boom := errors.New("boom")
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM `a` WHERE 0").WillReturnError(boom)
		mock.ExpectRollback()

		err := c.RunInTx(ctx, func(ctx context.Context) error {
			_, err := c.Execute(ctx, "DELETE FROM `a` WHERE 0", nil)
			return err
		})
		assert.ErrorIs(t, err, boom)
	})
}

func TestBulkRollsBackFailingChunkOnly(t *testing.T) {
	c, mock := newConn(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `t` (`v`) VALUES (?)").WithArgs(1).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `t` (`v`) VALUES (?)").WithArgs(2).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `t` (`v`) VALUES (?)").WithArgs(3).WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()

	qs := []*query.Builder{
		query.Table("t").Insert(map[string]any{"v": 1}),
		query.Table("t").Insert(map[string]any{"v": 2}),
		query.Table("t").Insert(map[string]any{"v": 3}),
	}
	ok, err := query.Bulk(context.Background(), c, qs, query.WithChunkSize(2))
	assert.False(t, ok)
	assert.ErrorContains(t, err, "boom")
}

type recordingFeed struct {
	events []*core.ChangeEvent
	err    error
}

func (f *recordingFeed) Publish(_ context.Context, ev *core.ChangeEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

func (f *recordingFeed) Close() error { return nil }

func TestPublish(t *testing.T) {
	feed := &recordingFeed{err: errors.New("broker down")}
	c, _ := newConn(t, WithChangeFeed(feed))

	c.Publish(context.Background(), &core.ChangeEvent{Table: "users", Operation: core.OperationCreate})
	assert.Len(t, feed.events, 1)

	New(registry.DatabaseConfig{}).Publish(context.Background(), &core.ChangeEvent{})
}

func TestDSN(t *testing.T) {
	c := New(registry.DatabaseConfig{
		Host: "db.internal", Port: 3307, Name: "app", Username: "u", Password: "p", Charset: "utf8mb4",
	})
	dsn := c.DSN()
	assert.Contains(t, dsn, "u:p@tcp(db.internal:3307)/app")
	assert.Contains(t, dsn, "charset=utf8mb4")

	t.Setenv("SQL_DB", "fallback")
	assert.Equal(t, "fallback", New(registry.DatabaseConfig{}).Name())
}
