package sqlstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"github.com/steveyegge/illsync/internal/storage"
)

// Backend names accepted by Open.
const (
	BackendSQLite   = "sqlite"
	BackendMySQL    = "mysql"
	BackendPostgres = "postgres"
)

// dialect captures what differs between the supported SQL engines.
type dialect struct {
	name   string
	driver string

	autoID    string // primary key column definition
	timestamp string // column type for timestamps
	boolean   string
	varchar   string // indexed short strings

	// returning is true when inserts report the new id via RETURNING
	// instead of LastInsertId.
	returning bool
}

var dialects = map[string]dialect{
	BackendSQLite: {
		name:      BackendSQLite,
		driver:    "sqlite",
		autoID:    "INTEGER PRIMARY KEY AUTOINCREMENT",
		timestamp: "TEXT",
		boolean:   "INTEGER",
		varchar:   "TEXT",
	},
	BackendMySQL: {
		name:      BackendMySQL,
		driver:    "mysql",
		autoID:    "BIGINT AUTO_INCREMENT PRIMARY KEY",
		timestamp: "DATETIME(6)",
		boolean:   "BOOLEAN",
		varchar:   "VARCHAR(255)",
	},
	BackendPostgres: {
		name:      BackendPostgres,
		driver:    "pgx",
		autoID:    "BIGSERIAL PRIMARY KEY",
		timestamp: "TIMESTAMPTZ",
		boolean:   "BOOLEAN",
		varchar:   "VARCHAR(255)",
		returning: true,
	},
}

func lookupDialect(backend string) (dialect, error) {
	d, ok := dialects[strings.ToLower(backend)]
	if !ok {
		return dialect{}, fmt.Errorf("unknown sql backend: %s (supported: sqlite, mysql, postgres)", backend)
	}
	return d, nil
}

// normalizeDSN applies per-driver connection defaults.
func (d dialect) normalizeDSN(dsn string) (string, error) {
	switch d.name {
	case BackendSQLite:
		return storage.SQLiteConnString(dsn), nil
	case BackendMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		return cfg.FormatDSN(), nil
	}
	return dsn, nil
}

// rebind rewrites ? placeholders into $n for postgres.
func (d dialect) rebind(query string) string {
	if d.name != BackendPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqliteTimeLayout is fixed-width so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timeArg converts a timestamp into the value the driver stores.
func (d dialect) timeArg(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	if d.name == BackendSQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

func (d dialect) schema() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ill_requests (
    id %s,
    order_id %s,
    status %s NOT NULL,
    direction VARCHAR(8) NOT NULL,
    biblio_id BIGINT NOT NULL DEFAULT 0,
    item_id BIGINT NOT NULL DEFAULT 0,
    patron_id BIGINT NOT NULL DEFAULT 0,
    partner_id BIGINT NOT NULL DEFAULT 0,
    branch %s NOT NULL DEFAULT '',
    placed %s,
    replied %s,
    completed %s,
    updated %s NOT NULL,
    cost %s NOT NULL DEFAULT '',
    backend %s NOT NULL,
    medium %s NOT NULL DEFAULT '',
    notes TEXT
)`, d.autoID, d.varchar, d.varchar, d.varchar, d.timestamp, d.timestamp, d.timestamp, d.timestamp, d.varchar, d.varchar, d.varchar),
		`CREATE UNIQUE INDEX idx_ill_requests_order_id ON ill_requests (order_id)`,
		`CREATE INDEX idx_ill_requests_status ON ill_requests (status)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ill_request_attributes (
    id %s,
    request_id BIGINT NOT NULL,
    attr_type %s NOT NULL,
    value TEXT NOT NULL
)`, d.autoID, d.varchar),
		`CREATE INDEX idx_ill_attributes_request ON ill_request_attributes (request_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS items (
    id %s,
    biblio_id BIGINT NOT NULL DEFAULT 0,
    barcode %s,
    not_for_loan %s NOT NULL DEFAULT FALSE,
    item_type %s NOT NULL DEFAULT ''
)`, d.autoID, d.varchar, d.boolean, d.varchar),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS holds (
    id %s,
    biblio_id BIGINT NOT NULL,
    patron_id BIGINT NOT NULL DEFAULT 0,
    placed %s NOT NULL
)`, d.autoID, d.timestamp),
		`CREATE INDEX idx_holds_biblio ON holds (biblio_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS partners (
    id %s,
    code %s NOT NULL,
    name %s NOT NULL DEFAULT '',
    address1 %s NOT NULL DEFAULT '',
    address2 %s NOT NULL DEFAULT '',
    address3 %s NOT NULL DEFAULT '',
    city %s NOT NULL DEFAULT '',
    zip_code %s NOT NULL DEFAULT ''
)`, d.autoID, d.varchar, d.varchar, d.varchar, d.varchar, d.varchar, d.varchar, d.varchar),
		`CREATE UNIQUE INDEX idx_partners_code ON partners (code)`,
	}
}

// isUniqueViolation recognises duplicate-key errors from all three drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isIndexExists recognises "index already exists" from engines without
// CREATE INDEX IF NOT EXISTS (mysql).
func isIndexExists(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1061 {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P07" {
		return true
	}
	return strings.Contains(err.Error(), "already exists")
}
