package attrs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/illsync/internal/storage/memory"
	"github.com/steveyegge/illsync/internal/types"
)

func newRequest(t *testing.T, m *memory.MemoryStorage) int64 {
	t.Helper()
	r := &types.Request{OrderID: "1", Status: "IN_NY", Direction: types.DirectionIncoming, Backend: "Libris"}
	require.NoError(t, m.CreateRequest(context.Background(), r))
	return r.ID
}

func TestUpsertMode(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	id := newRequest(t, m)
	s := New(m, ModeUpsert)

	require.NoError(t, s.Upsert(ctx, id, types.AttrStatus, "On order"))
	require.NoError(t, s.Upsert(ctx, id, types.AttrStatus, "Reverted"))
	require.NoError(t, s.Upsert(ctx, id, types.AttrStatus, "Reverted"))

	all, err := s.AllFor(ctx, id)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Reverted", all[0].Value)
}

func TestAppendModeShadowsLaterValues(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	id := newRequest(t, m)
	s := New(m, ModeAppend)

	require.NoError(t, s.Upsert(ctx, id, types.AttrLastModified, "T1"))
	require.NoError(t, s.Upsert(ctx, id, types.AttrLastModified, "T2"))

	all, err := s.AllFor(ctx, id)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	v, err := s.Value(ctx, id, types.AttrLastModified)
	require.NoError(t, err)
	assert.Equal(t, "T1", v, "first match is authoritative")
}

func TestSetUpdatesInPlaceInAppendMode(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	id := newRequest(t, m)
	s := New(m, ModeAppend)

	require.NoError(t, s.Set(ctx, id, types.AttrLastModified, "T1"))
	require.NoError(t, s.Set(ctx, id, types.AttrLastModified, "T2"))
	require.NoError(t, s.Upsert(ctx, id, types.AttrTitle, "Fröken Julie"))

	all, err := s.AllFor(ctx, id)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	v, err := s.Value(ctx, id, types.AttrLastModified)
	require.NoError(t, err)
	assert.Equal(t, "T2", v)
	assert.Error(t, s.Set(ctx, id, "", "x"))
}

func TestFindMissing(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	id := newRequest(t, m)
	s := New(m, "")
	assert.Equal(t, ModeUpsert, s.Mode())

	a, err := s.Find(ctx, id, types.AttrStatus)
	require.NoError(t, err)
	assert.Nil(t, a)

	v, err := s.Value(ctx, id, types.AttrStatus)
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestViewAndUpsertAll(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	id := newRequest(t, m)
	s := New(m, ModeUpsert)

	require.NoError(t, s.UpsertAll(ctx, id, map[string]string{
		types.AttrTitle:  "Fröken Julie",
		types.AttrAuthor: "Strindberg",
	}))
	view, err := s.View(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{types.AttrTitle: "Fröken Julie", types.AttrAuthor: "Strindberg"}, view)
}

func TestUpsertErrors(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New(), ModeUpsert)
	assert.Error(t, s.Upsert(ctx, 1, "", "x"))
	assert.Error(t, s.Upsert(ctx, 999, types.AttrTitle, "x"), "unknown request")
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeUpsert, "upsert": ModeUpsert, "append": ModeAppend} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("merge")
	assert.Error(t, err)
}
