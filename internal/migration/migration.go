package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/smallbiznis/catering/internal/notification/domain"
	"gorm.io/gorm"
)

const (
	ModeVersioned   = "versioned"
	ModeAutoMigrate = "automigrate"
)

var errNilHandle = errors.New("migration database handle is required")

// Result is the schema state after Apply.
type Result struct {
	Mode    string
	Version uint
	Dirty   bool
	Changed bool
	Tables  []string
}

// Apply brings the notification schema up to date. Postgres runs the embedded
// versioned migrations; sqlite and mysql get gorm AutoMigrate of the same
// tables.
func Apply(conn *gorm.DB, driver string) (Result, error) {
	if conn == nil {
		return Result{}, errNilHandle
	}
	tables := tableNames()

	if driver != "postgres" {
		if err := conn.AutoMigrate(domain.Models()...); err != nil {
			return Result{}, fmt.Errorf("auto migrate %s: %w", driver, err)
		}
		return Result{Mode: ModeAutoMigrate, Changed: true, Tables: tables}, nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return Result{}, err
	}
	result, err := RunMigrations(sqlDB)
	if err != nil {
		return Result{}, err
	}
	result.Tables = tables
	return result, nil
}

// RunMigrations applies the embedded schema to a postgres database and
// reports the resulting version.
func RunMigrations(db *sql.DB) (Result, error) {
	if db == nil {
		return Result{}, errNilHandle
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return Result{}, fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return Result{}, fmt.Errorf("create migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return Result{}, fmt.Errorf("create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return Result{}, fmt.Errorf("create migrator: %w", err)
	}
	// migrator.Close would close the shared *sql.DB.

	result := Result{Mode: ModeVersioned, Changed: true}
	if err := migrator.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return Result{}, fmt.Errorf("apply migrations: %w", err)
		}
		result.Changed = false
	}

	version, dirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return Result{}, fmt.Errorf("read migration version: %w", err)
	}
	result.Version = version
	result.Dirty = dirty
	return result, nil
}

func tableNames() []string {
	models := domain.Models()
	names := make([]string, 0, len(models))
	for _, model := range models {
		if tabler, ok := model.(interface{ TableName() string }); ok {
			names = append(names, tabler.TableName())
		}
	}
	return names
}
