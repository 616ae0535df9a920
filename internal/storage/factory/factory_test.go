package factory

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/steveyegge/illsync/internal/config"
	"github.com/steveyegge/illsync/internal/storage"
	"github.com/steveyegge/illsync/internal/storage/memory"
	"github.com/steveyegge/illsync/internal/telemetry"
	"github.com/steveyegge/illsync/internal/types"
)

func TestNew_SQLiteBackend(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "ill.db")

	store, err := New(ctx, "sqlite", dbPath)
	if err != nil {
		t.Fatalf("New(sqlite) failed: %v", err)
	}
	defer store.Close()

	req := &types.Request{Status: "IN_NY", Direction: types.DirectionIncoming, Backend: "Libris"}
	if err := store.CreateRequest(ctx, req); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	if _, err := store.GetRequest(ctx, req.ID); err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
}

func TestNew_EmptyBackendDefaultsToSQLite(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "ill.db")

	store, err := New(ctx, "", dbPath)
	if err != nil {
		t.Fatalf("New('') failed: %v", err)
	}
	defer store.Close()

	if store == nil {
		t.Fatal("New('') returned nil store")
	}
}

func TestNew_MemoryBackend(t *testing.T) {
	store, err := New(context.Background(), "Memory", "")
	if err != nil {
		t.Fatalf("New(memory) failed: %v", err)
	}
	defer store.Close()

	if _, ok := store.(*memory.MemoryStorage); !ok {
		t.Errorf("New(memory) returned %T, want *memory.MemoryStorage", store)
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(context.Background(), "dolt", "/tmp/fake")
	if err == nil {
		t.Fatal("New(unknown) should return error")
	}
	if !strings.Contains(err.Error(), "unknown storage backend") {
		t.Errorf("error should mention unknown backend, got: %v", err)
	}
	if !strings.Contains(err.Error(), "memory, mysql, postgres, sqlite") {
		t.Errorf("error should list supported backends, got: %v", err)
	}
}

func TestNew_RequiresDSN(t *testing.T) {
	_, err := New(context.Background(), "postgres", "")
	if err == nil || !strings.Contains(err.Error(), "requires a dsn") {
		t.Fatalf("New(postgres, '') error = %v, want dsn error", err)
	}
}

func TestNewFromConfig_Instrumented(t *testing.T) {
	ctx := context.Background()
	store, err := NewFromConfig(ctx, config.DBSettings{Backend: "memory"}, Options{Instrument: true})
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
	defer store.Close()

	// Without ILL_OTEL_ENABLED the wrapper is skipped.
	if !telemetry.Enabled() {
		if _, ok := store.(*memory.MemoryStorage); !ok {
			t.Errorf("store has type %T, want unwrapped memory store", store)
		}
	}
	if _, err := store.GetRequest(ctx, 42); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetRequest(42) error = %v, want ErrNotFound through the wrapper", err)
	}
}

func TestRegisterBackend(t *testing.T) {
	called := ""
	RegisterBackend("fake", func(_ context.Context, dsn string) (storage.Storage, error) {
		called = dsn
		return memory.New(), nil
	})
	defer delete(backendRegistry, "fake")

	store, err := New(context.Background(), "fake", "dsn-value")
	if err != nil {
		t.Fatalf("New(fake) failed: %v", err)
	}
	defer store.Close()
	if called != "dsn-value" {
		t.Errorf("factory got dsn %q, want dsn-value", called)
	}
}
