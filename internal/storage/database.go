package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kuhlman-labs/migration-accelerator/internal/config"
	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database is the relational store behind the management API.
type Database struct {
	db      *gorm.DB
	cfg     config.DatabaseConfig
	dialect DialectDialer
}

// SchemaMigration records an applied schema step.
type SchemaMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"not null"`
	AppliedAt time.Time `gorm:"not null"`
}

// TableName specifies the table name for SchemaMigration model
func (SchemaMigration) TableName() string {
	return "schema_migrations"
}

type schemaStep struct {
	version int
	name    string
	up      func(*gorm.DB) error
}

// schemaSteps are applied in order; never edit a released step, append a new one.
var schemaSteps = []schemaStep{
	{1, "create_users_and_projects", func(db *gorm.DB) error {
		return db.AutoMigrate(&models.User{}, &models.Project{}, &models.UserProject{})
	}},
	{2, "create_migrations", func(db *gorm.DB) error {
		return db.AutoMigrate(&models.Migration{})
	}},
}

func NewDatabase(cfg config.DatabaseConfig) (*Database, error) {
	dialect, err := NewDialectDialer(cfg)
	if err != nil {
		return nil, err
	}

	if isSQLite(cfg.Type) && cfg.DSN != ":memory:" && !strings.HasPrefix(cfg.DSN, "file:") {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(dialect.Dialect(), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := dialect.ConfigureConnection(db); err != nil {
		return nil, err
	}

	return &Database{
		db:      db,
		cfg:     cfg,
		dialect: dialect,
	}, nil
}

func isSQLite(dbType string) bool {
	return dbType == DBTypeSQLite || dbType == DBTypeSQLite3
}

// DB exposes the underlying gorm handle
func (d *Database) DB() *gorm.DB {
	return d.db
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping verifies the connection is usable
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Migrate applies every schema step that has not been recorded yet
func (d *Database) Migrate() error {
	if err := d.db.AutoMigrate(&SchemaMigration{}); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var applied []SchemaMigration
	if err := d.db.Find(&applied).Error; err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, m := range applied {
		done[m.Version] = true
	}

	for _, step := range schemaSteps {
		if done[step.version] {
			continue
		}
		if err := step.up(d.db); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", step.version, step.name, err)
		}
		record := SchemaMigration{Version: step.version, Name: step.name, AppliedAt: time.Now().UTC()}
		if err := d.db.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to record migration %d: %w", step.version, err)
		}
	}

	return nil
}

// translateWriteError maps driver-level unique violations onto ErrConflict
func translateWriteError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", ErrConflict, what)
	}
	return err
}
