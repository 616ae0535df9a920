package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/illsync/internal/storage"
	"github.com/steveyegge/illsync/internal/storage/storagetest"
	"github.com/steveyegge/illsync/internal/types"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), BackendSQLite, ":memory:")
	require.NoError(t, err)
	return s
}

func TestContractSQLite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage { return openMemory(t) })
}

func TestReopenFileDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ill.db")

	s, err := Open(ctx, BackendSQLite, path)
	require.NoError(t, err)
	r := &types.Request{OrderID: "77", Status: "OUT_NY", Direction: types.DirectionOutgoing, Backend: "Libris"}
	require.NoError(t, s.CreateRequest(ctx, r))
	require.NoError(t, s.Close())

	// Second open must tolerate the existing schema and indexes.
	s, err = Open(ctx, BackendSQLite, path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	got, err := s.GetRequestByOrderID(ctx, "77")
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sql backend")
}

func TestRebind(t *testing.T) {
	pg := dialects[BackendPostgres]
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))
	lite := dialects[BackendSQLite]
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestNormalizeMySQLDSN(t *testing.T) {
	my := dialects[BackendMySQL]
	dsn, err := my.normalizeDSN("ill:secret@tcp(db:3306)/ill")
	require.NoError(t, err)
	assert.True(t, strings.Contains(dsn, "parseTime=true"), dsn)

	_, err = my.normalizeDSN("not a dsn")
	assert.Error(t, err)
}

func TestNullTimeScan(t *testing.T) {
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		src  any
		want *time.Time
	}{
		{"nil", nil, nil},
		{"native", want, &want},
		{"sqlite text", want.Format(sqliteTimeLayout), &want},
		{"bytes", []byte("2024-05-01 12:00:00"), &want},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n nullTime
			require.NoError(t, n.Scan(tt.src))
			if tt.want == nil {
				assert.Nil(t, n.t)
				return
			}
			require.NotNil(t, n.t)
			assert.True(t, tt.want.Equal(*n.t), "got %v", n.t)
		})
	}

	var n nullTime
	assert.Error(t, n.Scan(42))
	assert.Error(t, n.Scan("yesterday"))
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, isRetryableError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, isRetryableError(errors.New("driver: bad connection")))
	assert.False(t, isRetryableError(errors.New("syntax error")))
	assert.False(t, isRetryableError(nil))
}

func TestDefaultOrderingNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	defer func() { _ = s.Close() }()

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	for _, id := range []string{"first", "second", "third"} {
		require.NoError(t, s.CreateRequest(ctx, &types.Request{
			OrderID: id, Status: "IN_NY", Direction: types.DirectionIncoming, Backend: "Libris",
		}))
	}
	got, err := s.ListRequests(ctx, types.RequestFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "third", got[0].OrderID)
	assert.Equal(t, "first", got[2].OrderID)
}
