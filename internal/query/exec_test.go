package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/sqlkit/internal/core"
	"github.com/rzpsarthak13/sqlkit/internal/row"
)

type call struct {
	SQL    string
	Params []any
}

// fakeTx records statements. A transaction buffers its statements and only
// publishes them to committed when fn succeeds.
type fakeTx struct {
	calls     []call
	committed []call
	pending   []call
	inTx      bool
	rows      []*row.Row
	failOn    string
	id        any
}

func (f *fakeTx) Execute(_ context.Context, sql string, params []any) ([]*row.Row, error) {
	c := call{SQL: sql, Params: params}
	f.calls = append(f.calls, c)
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return nil, errors.New("boom")
	}
	if f.inTx {
		f.pending = append(f.pending, c)
	} else {
		f.committed = append(f.committed, c)
	}
	return f.rows, nil
}

func (f *fakeTx) LastInsertID() any { return f.id }

func (f *fakeTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.inTx, f.pending = true, nil
	err := fn(ctx)
	f.inTx = false
	if err != nil {
		f.pending = nil
		return err
	}
	f.committed = append(f.committed, f.pending...)
	return nil
}

func TestRunCapturesReturnedID(t *testing.T) {
	ex := &fakeTx{id: int64(42)}
	b := Table("users").Insert(map[string]any{"name": "a"})

	_, err := b.Run(context.Background(), ex)
	require.NoError(t, err)
	assert.Equal(t, int64(42), b.ReturnedID())
	assert.Equal(t, []call{{SQL: "INSERT INTO `users` (`name`) VALUES (?)", Params: []any{"a"}}}, ex.calls)
}

func TestRunPropagatesRenderError(t *testing.T) {
	ex := &fakeTx{}
	_, err := Table("").Run(context.Background(), ex)
	assert.ErrorIs(t, err, core.ErrNoTable)
	assert.Empty(t, ex.calls)
}

func TestCountDoesNotMutate(t *testing.T) {
	r := row.New()
	r.Set("count_values", int64(3))
	ex := &fakeTx{rows: []*row.Row{r}}

	b := Table("users").Where("active", "=", 1)
	n, err := b.Count(context.Background(), ex, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "SELECT COUNT(*) AS count_values FROM `users` WHERE `users`.`active` = ?", ex.calls[0].SQL)

	assert.Equal(t, CommandNone, b.Command())
	assert.Equal(t, "SELECT `users`.* FROM `users` WHERE `users`.`active` = ?", render(t, b))

	_, err = b.Count(context.Background(), ex, "id")
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(`users`.`id`) AS count_values FROM `users` WHERE `users`.`active` = ?", ex.calls[1].SQL)
}

func TestCountNoRows(t *testing.T) {
	n, err := Table("users").Count(context.Background(), &fakeTx{}, "*")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCombine(t *testing.T) {
	tests := []struct {
		sql    string
		params []any
		want   string
	}{
		{"SELECT ? , ?", []any{1, "a"}, `SELECT 1 , "a"`},
		{"x = ?", []any{nil}, "x = NULL"},
		{"x = ? AND y = ?", []any{2.5}, `x = 2.5 AND y = "undefined"`},
		{"x = ?", []any{"12"}, "x = 12"},
		{"x = ?", []any{[]byte("raw")}, `x = "raw"`},
		{"x = ?", []any{true}, "x = 1"},
		{"no params", nil, "no params"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Combine(tt.sql, tt.params))
	}
}

func TestDebug(t *testing.T) {
	b := Table("users").Where("email", "=", "a@b.com")
	assert.Equal(t, "SELECT `users`.* FROM `users` WHERE `users`.`email` = \"a@b.com\"", b.Debug())
	assert.Empty(t, Table("").Debug())
}

func inserts(n int) []*Builder {
	qs := make([]*Builder, 0, n)
	for i := 0; i < n; i++ {
		qs = append(qs, Table("t").Insert(map[string]any{"v": i}))
	}
	return qs
}

func TestBulkChunks(t *testing.T) {
	ex := &fakeTx{}
	ok, err := Bulk(context.Background(), ex, append(inserts(5), nil), WithChunkSize(2))
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, ex.committed, 5)

	got := make([]any, 0, len(ex.committed))
	for _, c := range ex.committed {
		got = append(got, c.Params[0])
	}
	if diff := cmp.Diff([]any{0, 1, 2, 3, 4}, got); diff != "" {
		t.Errorf("committed params mismatch (-want +got):\n%s", diff)
	}
}

func TestBulkRollsBackFailingChunk(t *testing.T) {
	ex := &fakeTx{failOn: "`bad`"}
	qs := inserts(4)
	qs[1] = Table("bad").Insert(map[string]any{"v": 1})

	ok, err := Bulk(context.Background(), ex, qs, WithChunkSize(2), WithChunkRate(1000))
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 1")

	// The first chunk is rolled back as a whole; the second still commits.
	require.Len(t, ex.committed, 2)
	assert.Equal(t, []any{2}, ex.committed[0].Params)
	assert.Equal(t, []any{3}, ex.committed[1].Params)
}

func TestBulkRenderError(t *testing.T) {
	ex := &fakeTx{}
	ok, err := Bulk(context.Background(), ex, []*Builder{Table("")})
	assert.False(t, ok)
	assert.ErrorIs(t, err, core.ErrNoTable)
	assert.Empty(t, ex.calls)
}

func TestBulkStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := &fakeTx{}
	ok, err := Bulk(ctx, ex, inserts(3), WithChunkSize(1), WithChunkRate(1))
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ex.calls)
}
