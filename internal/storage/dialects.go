package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/kuhlman-labs/migration-accelerator/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
)

// Database type names accepted in configuration.
const (
	DBTypeSQLite     = "sqlite"
	DBTypeSQLite3    = "sqlite3"
	DBTypePostgres   = "postgres"
	DBTypePostgreSQL = "postgresql"
	DBTypeSQLServer  = "sqlserver"
	DBTypeMSSQL      = "mssql"
)

// DialectDialer creates a GORM dialector based on the database type and
// supplies the SQL fragments that differ between engines.
type DialectDialer interface {
	Dialect() gorm.Dialector
	ConfigureConnection(*gorm.DB) error
	// ContainsIgnoreCase returns a WHERE fragment with one placeholder that
	// matches rows whose column contains the bound pattern, ignoring case.
	ContainsIgnoreCase(column string) string
}

// NewDialectDialer creates a dialect dialer based on the database configuration
func NewDialectDialer(cfg config.DatabaseConfig) (DialectDialer, error) {
	switch cfg.Type {
	case DBTypeSQLite, DBTypeSQLite3:
		return &SQLiteDialect{cfg: cfg}, nil
	case DBTypePostgres, DBTypePostgreSQL:
		return &PostgresDialect{cfg: cfg}, nil
	case DBTypeSQLServer, DBTypeMSSQL:
		return &SQLServerDialect{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// poolSettings applies pool limits, falling back to per-engine defaults
func poolSettings(db *gorm.DB, cfg config.DatabaseConfig, defaultOpen, defaultIdle int) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns := cfg.MaxOpenConns
	if maxOpenConns == 0 {
		maxOpenConns = defaultOpen
	}
	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = defaultIdle
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)

	connMaxLifetime := time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second
	if connMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(connMaxLifetime)
	}
	return nil
}

// SQLiteDialect handles SQLite-specific configuration
type SQLiteDialect struct {
	cfg config.DatabaseConfig
}

func (d *SQLiteDialect) Dialect() gorm.Dialector {
	// _parseTime makes DATETIME columns scan into time.Time
	dsn := d.cfg.DSN
	if !strings.Contains(dsn, "?") {
		dsn += "?_parseTime=true"
	} else if !strings.Contains(dsn, "_parseTime") {
		dsn += "&_parseTime=true"
	}
	return sqlite.Open(dsn)
}

func (d *SQLiteDialect) ConfigureConnection(db *gorm.DB) error {
	// SQLite serializes writers; a single connection also keeps :memory: databases alive
	if err := poolSettings(db, d.cfg, 1, 1); err != nil {
		return err
	}

	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := db.Exec("PRAGMA foreign_keys=ON").Error; err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return nil
}

// LIKE is already case-insensitive for ASCII in SQLite
func (d *SQLiteDialect) ContainsIgnoreCase(column string) string {
	return column + " LIKE ?"
}

// PostgresDialect handles PostgreSQL-specific configuration
type PostgresDialect struct {
	cfg config.DatabaseConfig
}

func (d *PostgresDialect) Dialect() gorm.Dialector {
	return postgres.Open(d.cfg.DSN)
}

func (d *PostgresDialect) ConfigureConnection(db *gorm.DB) error {
	return poolSettings(db, d.cfg, 25, 5)
}

func (d *PostgresDialect) ContainsIgnoreCase(column string) string {
	return column + " ILIKE ?"
}

// SQLServerDialect handles SQL Server-specific configuration
type SQLServerDialect struct {
	cfg config.DatabaseConfig
}

func (d *SQLServerDialect) Dialect() gorm.Dialector {
	return sqlserver.Open(d.cfg.DSN)
}

func (d *SQLServerDialect) ConfigureConnection(db *gorm.DB) error {
	return poolSettings(db, d.cfg, 25, 5)
}

// Default SQL Server collations are case-insensitive; LOWER keeps it true for CS collations
func (d *SQLServerDialect) ContainsIgnoreCase(column string) string {
	return "LOWER(" + column + ") LIKE LOWER(?)"
}
