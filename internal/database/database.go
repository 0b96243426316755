// Package database provides the GORM-backed storage layer shared by the
// catalog, feedback, and model registry stores: connection setup for
// sqlite:// and postgres:// URLs, a generic repository helper, and
// transaction wrappers.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Database wraps a GORM connection, abstracting over the sqlite/postgres
// dialector choice made at startup.
type Database struct {
	db *gorm.DB
}

// NewDatabase opens a connection for url, which must be prefixed
// sqlite:///, postgres://, or postgresql://. GORM activity is logged
// through the default slog logger.
func NewDatabase(ctx context.Context, url string) (Database, error) {
	dialector, err := parseDialector(url)
	if err != nil {
		return Database{}, fmt.Errorf("parse database url: %w", err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: slogGormLogger{},
	})
	if err != nil {
		return Database{}, fmt.Errorf("open database: %w", err)
	}

	return Database{db: db.WithContext(ctx)}, nil
}

// NewDatabaseWithConfig opens a connection like NewDatabase but lets the
// caller supply the full gorm.Config — used by call sites that need to
// silence GORM logging (e.g. the HTTP response cache) rather than route
// it through slogGormLogger.
func NewDatabaseWithConfig(ctx context.Context, url string, cfg *gorm.Config) (Database, error) {
	dialector, err := parseDialector(url)
	if err != nil {
		return Database{}, fmt.Errorf("parse database url: %w", err)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return Database{}, fmt.Errorf("open database: %w", err)
	}

	return Database{db: db.WithContext(ctx)}, nil
}

// parseDialector selects a GORM dialector from a url's scheme.
func parseDialector(url string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(url, "sqlite:///"):
		path := strings.TrimPrefix(url, "sqlite:///")
		return sqlite.Open(path), nil
	case strings.HasPrefix(url, "postgresql://"), strings.HasPrefix(url, "postgres://"):
		return postgres.Open(url), nil
	default:
		return nil, errors.New("unsupported database driver")
	}
}

// Session returns a fresh GORM session bound to ctx. Callers should use a
// fresh session per logical operation rather than reusing a *gorm.DB
// across goroutines, since GORM sessions carry accumulated clauses.
func (d Database) Session(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx).Session(&gorm.Session{})
}

// GORM returns the underlying *gorm.DB for callers that need direct
// access (schema migration, raw SQL).
func (d Database) GORM() *gorm.DB {
	return d.db
}

// Close releases the underlying connection pool.
func (d Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// ConfigurePool sets the connection pool limits.
func (d Database) ConfigurePool(maxOpen, maxIdle int, maxLifetime time.Duration) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(maxLifetime)
	return nil
}

// IsPostgres reports whether the connection is backed by PostgreSQL.
func (d Database) IsPostgres() bool {
	return d.db.Name() == "postgres"
}

// IsSQLite reports whether the connection is backed by SQLite.
func (d Database) IsSQLite() bool {
	return d.db.Name() == "sqlite"
}
