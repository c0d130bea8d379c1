// Package persist implements the State Persistor (component C6, spec
// §4.6): durable storage for queued/in-flight collections and the
// terminal history table, plus the startup recovery pass that rebuilds
// the live queue arena from whatever was on disk when the process last
// stopped. Grounded on the teacher's store package for the sqlite +
// golang-migrate + embed.FS wiring mechanism; the schema and every
// query here are new, since the teacher's store persisted an unrelated
// indexer/release domain.
package persist

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/nzbcore/nzbcore/internal/logx"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store is the C6 State Persistor. One Store backs both the in-flight
// collection table (used for crash recovery) and the terminal history
// table the editor's history actions address.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open connects to (creating if absent) the sqlite database at dbPath
// and runs any pending migrations, mirroring the teacher's
// NewPersistentStore/RunMigrations split.
func Open(dbPath string, logger *logx.Logger) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("persist: create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("persist: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("persist: connect sqlite: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) runMigrations() error {
	d, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", d, "sqlite", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
