// Package migration applies versioned SQL migrations with golang-migrate, either from the
// command line or as a tasklet step.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// DefaultMigrationsTable tracks the applied application migrations.
const DefaultMigrationsTable = "batch_app_migrations"

// Commands accepted by Migrator.Run.
const (
	CommandUp   = "up"
	CommandDown = "down"
)

// Migrator runs migrations against one database.
// It opens a dedicated connection because golang-migrate closes its database on Close.
type Migrator struct {
	cfg   dbconfig.DatabaseConfig
	table string
}

// NewMigrator creates a Migrator. An empty table uses DefaultMigrationsTable.
func NewMigrator(cfg dbconfig.DatabaseConfig, table string) *Migrator {
	if table == "" {
		table = DefaultMigrationsTable
	}
	return &Migrator{cfg: cfg, table: table}
}

// Result describes the schema version after a run.
type Result struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Run applies command with the scripts in dir of fsys. An empty dir uses the database type.
func (m *Migrator) Run(ctx context.Context, fsys fs.FS, dir, command string) (Result, error) {
	if dir == "" {
		dir = m.cfg.Type
	}
	logger.Infof("Running migration '%s' on %s database '%s' (dir %s, table %s).", command, m.cfg.Type, m.cfg.Database, dir, m.table)

	db, err := gormadapter.Open(m.cfg)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open migration connection: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return Result{}, fmt.Errorf("failed to get migration connection: %w", err)
	}

	source, err := iofs.New(fsys, dir)
	if err != nil {
		sqlDB.Close()
		return Result{}, fmt.Errorf("failed to open migration scripts in '%s': %w", dir, err)
	}
	driver, err := m.driver(sqlDB)
	if err != nil {
		source.Close()
		sqlDB.Close()
		return Result{}, err
	}
	instance, err := migrate.NewWithInstance("iofs", source, m.cfg.Type, driver)
	if err != nil {
		source.Close()
		driver.Close()
		return Result{}, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer instance.Close()

	stop := context.AfterFunc(ctx, func() {
		select {
		case instance.GracefulStop <- true:
		default:
		}
	})
	defer stop()

	switch command {
	case CommandUp:
		err = instance.Up()
	case CommandDown:
		err = instance.Down()
	default:
		return Result{}, fmt.Errorf("unsupported migration command: %s", command)
	}
	changed := err == nil
	if errors.Is(err, migrate.ErrNoChange) {
		err = nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("migration '%s' failed: %w", command, err)
	}

	version, dirty, verr := instance.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return Result{}, fmt.Errorf("failed to read schema version: %w", verr)
	}
	logger.Infof("Migration '%s' finished at version %d (changed: %t).", command, version, changed)
	return Result{Version: version, Dirty: dirty, Changed: changed}, nil
}

func (m *Migrator) driver(db *sql.DB) (migratedb.Driver, error) {
	switch m.cfg.Type {
	case "postgres":
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: m.table})
	case "mysql":
		return mysql.WithInstance(db, &mysql.Config{MigrationsTable: m.table})
	case "sqlite", "sqlite3":
		return sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: m.table})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.cfg.Type)
	}
}
