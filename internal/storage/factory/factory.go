// Package factory opens storage backends by name.
package factory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/steveyegge/illsync/internal/config"
	"github.com/steveyegge/illsync/internal/debug"
	"github.com/steveyegge/illsync/internal/storage"
	"github.com/steveyegge/illsync/internal/storage/memory"
	"github.com/steveyegge/illsync/internal/storage/sqlstore"
	"github.com/steveyegge/illsync/internal/telemetry"
)

// BackendMemory keeps everything in process; nothing survives exit.
const BackendMemory = "memory"

// BackendFactory is a function that creates a storage backend
type BackendFactory func(ctx context.Context, dsn string) (storage.Storage, error)

// backendRegistry holds registered backend factories
var backendRegistry = make(map[string]BackendFactory)

// RegisterBackend registers a storage backend factory
func RegisterBackend(name string, factory BackendFactory) {
	backendRegistry[name] = factory
}

func init() {
	RegisterBackend(BackendMemory, func(context.Context, string) (storage.Storage, error) {
		return memory.New(), nil
	})
	for _, name := range []string{sqlstore.BackendSQLite, sqlstore.BackendMySQL, sqlstore.BackendPostgres} {
		RegisterBackend(name, func(ctx context.Context, dsn string) (storage.Storage, error) {
			return sqlstore.Open(ctx, name, dsn)
		})
	}
}

// Backends lists the registered backend names.
func Backends() []string {
	names := make([]string, 0, len(backendRegistry))
	for name := range backendRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Options configures how the storage backend is opened
type Options struct {
	// Instrument wraps the store with OpenTelemetry spans and metrics.
	Instrument bool
}

// New creates a storage backend based on the backend type.
func New(ctx context.Context, backend, dsn string) (storage.Storage, error) {
	return NewWithOptions(ctx, backend, dsn, Options{})
}

// NewWithOptions creates a storage backend with the specified options.
// An empty backend means sqlite.
func NewWithOptions(ctx context.Context, backend, dsn string, opts Options) (storage.Storage, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" {
		backend = sqlstore.BackendSQLite
	}
	factory, ok := backendRegistry[backend]
	if !ok {
		return nil, fmt.Errorf("unknown storage backend: %s (supported: %s)", backend, strings.Join(Backends(), ", "))
	}
	if backend != BackendMemory && dsn == "" {
		return nil, fmt.Errorf("storage backend %s requires a dsn", backend)
	}

	store, err := factory(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", backend, err)
	}
	debug.Logf("storage: opened %s backend", backend)
	if opts.Instrument {
		store = telemetry.WrapStorage(store)
	}
	return store, nil
}

// NewFromConfig opens the backend named by db.backend / db.dsn.
func NewFromConfig(ctx context.Context, db config.DBSettings, opts Options) (storage.Storage, error) {
	return NewWithOptions(ctx, db.Backend, db.DSN, opts)
}
