// Package sqlstore implements storage.Storage on database/sql. The same
// queries run on sqlite (modernc, the default), mysql and postgres; the
// differences live in dialect.go.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/steveyegge/illsync/internal/debug"
	"github.com/steveyegge/illsync/internal/storage"
)

const defaultRetryMaxElapsed = 10 * time.Second

// Store is a storage.Storage backed by a SQL database.
type Store struct {
	db *sql.DB
	d  dialect

	retryMaxElapsed time.Duration
	now             func() time.Time
}

var _ storage.Storage = (*Store)(nil)

// Open connects to backend using dsn, creating the schema if needed.
// For sqlite, dsn is a file path (parent directories are created) or ":memory:".
func Open(ctx context.Context, backend, dsn string) (*Store, error) {
	d, err := lookupDialect(backend)
	if err != nil {
		return nil, err
	}
	if d.name == BackendSQLite && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}
	conn, err := d.normalizeDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.driver, conn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	if d.name == BackendSQLite {
		// One connection: :memory: databases are per-connection, and sqlite
		// serialises writers anyway.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, d: d, retryMaxElapsed: defaultRetryMaxElapsed, now: time.Now}
	if err := s.withRetry(ctx, func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	debug.Logf("sqlstore: opened %s backend", d.name)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range s.d.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			if strings.HasPrefix(stmt, "CREATE") && strings.Contains(stmt, "INDEX") && isIndexExists(err) {
				continue
			}
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for diagnostics.
func (s *Store) DB() *sql.DB {
	return s.db
}

// isRetryableError reports transient connection or locking errors.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, transient := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"database is locked",
		"sqlite_busy",
	} {
		if strings.Contains(errStr, transient) {
			return true
		}
	}
	return false
}

// withRetry executes op, retrying transient errors with exponential backoff.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = s.retryMaxElapsed
	return backoff.Retry(func() error {
		err := op()
		if err != nil && isRetryableError(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

func (s *Store) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := s.withRetry(ctx, func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, s.d.rebind(query), args...)
		return execErr
	})
	return result, err
}

func (s *Store) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := s.withRetry(ctx, func() error {
		var queryErr error
		rows, queryErr = s.db.QueryContext(ctx, s.d.rebind(query), args...)
		return queryErr
	})
	return rows, err
}

func (s *Store) queryRowContext(ctx context.Context, scan func(*sql.Row) error, query string, args ...any) error {
	return s.withRetry(ctx, func() error {
		return scan(s.db.QueryRowContext(ctx, s.d.rebind(query), args...))
	})
}

// insert runs an INSERT and returns the new row id.
func (s *Store) insert(ctx context.Context, query string, args ...any) (int64, error) {
	if s.d.returning {
		var id int64
		err := s.queryRowContext(ctx, func(row *sql.Row) error {
			return row.Scan(&id)
		}, query+" RETURNING id", args...)
		return id, err
	}
	res, err := s.execContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// wrapDBError adds context and maps sql.ErrNoRows / duplicate keys onto the
// storage sentinels.
func wrapDBError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	op := fmt.Sprintf(format, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w: %v", op, storage.ErrDuplicate, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// nullTime scans timestamps stored either natively or as RFC 3339 text.
type nullTime struct {
	t *time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (n *nullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		n.t = nil
		return nil
	case time.Time:
		t := v.UTC()
		n.t = &t
		return nil
	case []byte:
		return n.parse(string(v))
	case string:
		return n.parse(v)
	}
	return fmt.Errorf("cannot scan %T into timestamp", src)
}

func (n *nullTime) parse(s string) error {
	if s == "" {
		n.t = nil
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			n.t = &t
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
