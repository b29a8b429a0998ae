// Package database archives computed rankings in SQLite or PostgreSQL.
//
// Each compute run is stored with the digest of the drop data it was computed
// from, so rankings can be compared across wiki snapshots. The archive is
// write-once output: the engine never reads it back as input.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/lawnchairsociety/dropefficiency/internal/logger"
)

// Database wraps the connection and provides archive operations.
type Database struct {
	db      *sql.DB
	dialect Dialect
	qb      *QueryBuilder
}

// Open opens or creates the SQLite archive at the given path.
func Open(path string) (*Database, error) {
	return OpenWithConfig(DefaultConfig(path))
}

// OpenWithConfig connects to the configured backend and creates the schema.
func OpenWithConfig(cfg Config) (*Database, error) {
	dialect := NewDialect(DialectType(cfg.Driver))

	var dsn string
	switch dialect.(type) {
	case *PostgresDialect:
		dsn = cfg.Postgres.DSN()
	default:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite database path is empty")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = cfg.SQLitePath
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, ok := dialect.(*PostgresDialect); ok {
		if cfg.Postgres.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		}
		if cfg.Postgres.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		}
		if cfg.Postgres.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
		}
	} else {
		// PRAGMAs are per connection.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	for _, stmt := range dialect.InitStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize database (%s): %w", stmt, err)
		}
	}

	d := &Database{db: db, dialect: dialect, qb: NewQueryBuilder(dialect)}

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("Run archive opened", "driver", dialect.DriverName())
	return d, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Dialect returns the SQL dialect of the connection.
func (d *Database) Dialect() Dialect {
	return d.dialect
}

// migrate creates the schema if it doesn't exist.
func (d *Database) migrate() error {
	for _, m := range schema(d.dialect) {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

func schema(dialect Dialect) []string {
	id := dialect.SerialPrimaryKey()
	float := dialect.FloatType()

	return []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id ` + id + `,
			digest TEXT NOT NULL,
			policy TEXT NOT NULL,
			threshold ` + float + ` NOT NULL,
			items INTEGER NOT NULL,
			nodes INTEGER NOT NULL,
			unranked INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,

		// Every node's APD for every included item, including nodes below
		// the threshold.
		`CREATE TABLE IF NOT EXISTS run_locations (
			run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			item TEXT NOT NULL,
			node TEXT NOT NULL,
			apd ` + float + ` NOT NULL,
			PRIMARY KEY (run_id, item, node)
		)`,

		`CREATE TABLE IF NOT EXISTS run_best_apd (
			run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			item TEXT NOT NULL,
			apd ` + float + ` NOT NULL,
			node TEXT NOT NULL,
			PRIMARY KEY (run_id, item)
		)`,

		`CREATE TABLE IF NOT EXISTS run_efficiency (
			run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			node TEXT NOT NULL,
			efficiency ` + float + ` NOT NULL,
			PRIMARY KEY (run_id, node)
		)`,

		// position 0 is the best location.
		`CREATE TABLE IF NOT EXISTS run_rankings (
			run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			item TEXT NOT NULL,
			position INTEGER NOT NULL,
			node TEXT NOT NULL,
			efficiency ` + float + ` NOT NULL,
			apd ` + float + ` NOT NULL,
			PRIMARY KEY (run_id, item, position)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_runs_digest ON runs(digest)`,
		`CREATE INDEX IF NOT EXISTS idx_run_rankings_item ON run_rankings(item, position)`,
	}
}

// DB returns the underlying sql.DB for advanced operations.
func (d *Database) DB() *sql.DB {
	return d.db
}
