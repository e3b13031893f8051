package resource

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/sqlkit/internal/core"
	"github.com/rzpsarthak13/sqlkit/internal/entity"
)

var users = entity.MustDefine(entity.Model{
	Table:  "users",
	Casts:  map[string]string{"active": "bool"},
	Hidden: []string{"password"},
})

func TestNewRejectsNil(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, core.ErrInvalidObject)
}

func TestDefaultProjection(t *testing.T) {
	u := users.New(nil, map[string]any{"id": 1, "name": "Ann", "password": "x", "active": "1"})
	r, err := New(u)
	require.NoError(t, err)
	assert.Same(t, u, r.Entity())
	assert.Equal(t, "Ann", r.Get("name"))

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"name":"Ann","active":true}`, string(data))
}

func TestCustomProjection(t *testing.T) {
	summary := WithProjection(func(e *entity.Entity) (any, error) {
		return map[string]any{"label": e.Attr("name"), "role": e.Attr("role")}, nil
	})
	list := []*entity.Entity{
		users.New(nil, map[string]any{"id": 1, "name": "Ann"}),
		nil,
		users.New(nil, map[string]any{"id": 2, "name": "Bob"}),
	}

	out, err := Collection(list, map[string]any{"role": "admin"}, summary)
	require.NoError(t, err)
	require.Len(t, out, 2)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	var got []map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	want := []map[string]any{
		{"label": "Ann", "role": "admin"},
		{"label": "Bob", "role": "admin"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("projection mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectionError(t *testing.T) {
	boom := errors.New("boom")
	r, err := New(users.New(nil, nil), WithProjection(func(*entity.Entity) (any, error) { return nil, boom }))
	require.NoError(t, err)
	_, err = r.MarshalJSON()
	assert.ErrorIs(t, err, boom)
}

func TestSetDelegates(t *testing.T) {
	u := users.New(nil, map[string]any{"id": 1, "name": "Ann"})
	r, err := New(u)
	require.NoError(t, err)
	require.NoError(t, r.Set("name", "Bob"))
	assert.Equal(t, "Bob", u.Attr("name"))
	assert.True(t, u.IsDirty())
}
