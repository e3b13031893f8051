package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/sqlkit/internal/core"
	"github.com/rzpsarthak13/sqlkit/internal/kvstore"
	"github.com/rzpsarthak13/sqlkit/internal/schemacache"
	"github.com/rzpsarthak13/sqlkit/pkg/sqlkit"
)

type harness struct {
	store  core.KVStore
	config string
	opened []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("SQL_DB", "")
	path := filepath.Join(t.TempDir(), "sqlkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  name: app
  username: root
cache:
  type: memory
`), 0o644))
	return &harness{store: kvstore.NewMemoryKVStore(), config: path}
}

func (h *harness) expect(t *testing.T, setup func(sqlmock.Sqlmock), args ...string) (string, error) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	setup(mock)

	open := func(cfg *sqlkit.Config) (*sqlkit.Client, error) {
		h.opened = append(h.opened, cfg.Database.Name)
		return sqlkit.Open(cfg, sqlkit.WithDB(db), sqlkit.WithKVStore(h.store))
	}
	var out bytes.Buffer
	cmd := NewRootCommand(open)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", h.config}, args...))
	err = cmd.ExecuteContext(context.Background())
	assert.NoError(t, mock.ExpectationsWereMet())
	return out.String(), err
}

var showColumns = []string{"Field", "Type", "Null", "Key", "Default", "Extra"}

func TestSchemaCommand(t *testing.T) {
	h := newHarness(t)
	out, err := h.expect(t, func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery("SHOW TABLES FROM `shop`").
			WillReturnRows(sqlmock.NewRows([]string{"Tables_in_shop"}).AddRow("users"))
		mock.ExpectQuery("SHOW COLUMNS FROM `users`").
			WillReturnRows(sqlmock.NewRows(showColumns).
				AddRow("id", "int(11)", "NO", "PRI", nil, "auto_increment").
				AddRow("email", "varchar(255)", "NO", "UNI", nil, ""))
	}, "db", "schema", "shop")

	require.NoError(t, err)
	assert.Equal(t, "Schema of shop: 1 table\n", out)
	assert.Equal(t, []string{"shop"}, h.opened)

	cached, err := schemacache.New(h.store).Schema(context.Background(), "shop")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "email"}, cached.Fillable("users"))
}

func TestSchemaCommandDefaultsToConfiguredDatabase(t *testing.T) {
	h := newHarness(t)
	out, err := h.expect(t, func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery("SHOW TABLES FROM `app`").
			WillReturnRows(sqlmock.NewRows([]string{"Tables_in_app"}))
	}, "db", "schema")

	require.NoError(t, err)
	assert.Equal(t, "Schema of app: 0 tables\n", out)
	assert.Equal(t, []string{"app"}, h.opened)
}

func TestDDLCommandCopy(t *testing.T) {
	h := newHarness(t)
	out, err := h.expect(t, func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery("SHOW TABLES FROM `app`").
			WillReturnRows(sqlmock.NewRows([]string{"Tables_in_app"}).AddRow("users"))
		mock.ExpectQuery("SHOW CREATE TABLE `users`").
			WillReturnRows(sqlmock.NewRows([]string{"Table", "Create Table"}).
				AddRow("users", "CREATE TABLE `users` (\n  `id` int(11) NOT NULL,\n  PRIMARY KEY (`id`)\n)"))
	}, "db", "ddl", "--copy", "staging")

	require.NoError(t, err)
	assert.Equal(t, "DDL of app stored as ddl-staging\n", out)

	ok, err := h.store.Exists(context.Background(), "ddl-staging")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBuildCommandWithoutDDL(t *testing.T) {
	h := newHarness(t)
	out, err := h.expect(t, func(sqlmock.Sqlmock) {}, "db", "build")

	require.NoError(t, err)
	assert.Equal(t, "No DDL stored for app\n", out)
}

func TestCollateCommand(t *testing.T) {
	h := newHarness(t)
	out, err := h.expect(t, func(mock sqlmock.Sqlmock) {
		mock.ExpectExec("ALTER DATABASE `app` CHARACTER SET latin1 COLLATE latin1_swedish_ci").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'").
			WithArgs("app").
			WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}))
	}, "db", "collate", "--charset", "latin1", "--collation", "latin1_swedish_ci")

	require.NoError(t, err)
	assert.Equal(t, "Collated app\n", out)
}

func TestCollateCommandRejectsBadCharset(t *testing.T) {
	h := newHarness(t)
	_, err := h.expect(t, func(sqlmock.Sqlmock) {}, "db", "collate", "--charset", "utf8; DROP")
	assert.Error(t, err)
}

func TestTableNameCommand(t *testing.T) {
	h := newHarness(t)
	out, err := h.expect(t, func(sqlmock.Sqlmock) {}, "table-name", "User", "BlogPost")

	require.NoError(t, err)
	assert.Equal(t, "User\tusers\nBlogPost\tblog_posts\n", out)
	assert.Empty(t, h.opened)
}
