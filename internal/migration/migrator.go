// Package migration applies the engine's schema against the embedded
// SQLite database. Migrations are forward-only: the store's schema only
// ever grows, so there is no rollback path to maintain.
package migration

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration is one embedded, numbered SQL file.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// MigrationStatus reports whether a known migration has been applied.
type MigrationStatus struct {
	Version int
	Name    string
	Applied bool
}

// MigrationInfo summarizes the migrator's state.
type MigrationInfo struct {
	CurrentVersion    int
	TotalMigrations   int
	AppliedMigrations int
	PendingMigrations int
}

// Migrator applies embedded migrations to a database and reports on
// their status.
type Migrator interface {
	Up(ctx context.Context) error
	Version(ctx context.Context) (int, error)
	Status(ctx context.Context) ([]MigrationStatus, error)
	Info(ctx context.Context) (MigrationInfo, error)
	Close() error
}

// DefaultMigrator applies migrations embedded from the migrations/
// directory, tracking the applied version in a meta table.
type DefaultMigrator struct {
	db         *sql.DB
	migrations []Migration
	ownsDB     bool
}

// NewMigrator loads the embedded migrations and wraps db. The migrator
// does not own db and will not close it.
func NewMigrator(db *sql.DB) (*DefaultMigrator, error) {
	migrations, err := loadEmbeddedMigrations()
	if err != nil {
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}

	return &DefaultMigrator{db: db, migrations: migrations}, nil
}

// NewMigratorFromPath opens path directly with the pure-Go sqlite driver
// and returns a migrator that owns (and will close) that connection.
// Intended for one-shot CLI use outside of the store's own pool.
func NewMigratorFromPath(path string) (*DefaultMigrator, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}

	m, err := NewMigrator(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	m.ownsDB = true
	return m, nil
}

func loadEmbeddedMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}

	migrations := make([]Migration, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, name, err := parseMigrationFilename(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("migration file %q: %w", entry.Name(), err)
		}

		data, err := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{Version: version, Name: name, SQL: string(data)})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// parseMigrationFilename splits "0001_init.sql" into version 1 and name "init".
func parseMigrationFilename(filename string) (int, string, error) {
	base := strings.TrimSuffix(filename, ".sql")
	parts := strings.SplitN(base, "_", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("expected <version>_<name>.sql")
	}

	version, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", fmt.Errorf("invalid version prefix: %w", err)
	}

	return version, parts[1], nil
}

const ensureMetaTableSQL = `
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// Up applies every migration newer than the current schema version, each
// in its own transaction, bumping the stored version as it goes.
func (m *DefaultMigrator) Up(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, ensureMetaTableSQL); err != nil {
		return fmt.Errorf("create meta table: %w", err)
	}

	current, err := m.Version(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}

		if err := m.applyOne(ctx, mig); err != nil {
			return fmt.Errorf("apply migration %d_%s: %w", mig.Version, mig.Name, err)
		}
	}

	return nil
}

func (m *DefaultMigrator) applyOne(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(mig.SQL) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %q: %w", truncateForError(stmt), err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(mig.Version),
	); err != nil {
		return err
	}

	return tx.Commit()
}

// splitStatements breaks a migration file into individual statements,
// respecting SQLite trigger bodies delimited by BEGIN/END.
func splitStatements(script string) []string {
	var stmts []string
	var current strings.Builder
	depth := 0

	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)

		current.WriteString(line)
		current.WriteString("\n")

		if strings.Contains(upper, "BEGIN") {
			depth++
		}
		if strings.HasPrefix(upper, "END;") || upper == "END" {
			depth--
		}

		if depth == 0 && strings.HasSuffix(trimmed, ";") {
			stmts = append(stmts, current.String())
			current.Reset()
		}
	}

	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}

	return stmts
}

func truncateForError(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	const maxLen = 120
	if len(stmt) > maxLen {
		return stmt[:maxLen] + "..."
	}
	return stmt
}

// Version returns the current applied schema version, 0 if no migration
// has run yet.
func (m *DefaultMigrator) Version(ctx context.Context) (int, error) {
	if _, err := m.db.ExecContext(ctx, ensureMetaTableSQL); err != nil {
		return 0, fmt.Errorf("create meta table: %w", err)
	}

	var raw string
	err := m.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}

	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse stored schema version %q: %w", raw, err)
	}
	return version, nil
}

// Status reports, for every known migration, whether it has been applied.
func (m *DefaultMigrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	current, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(m.migrations))
	for _, mig := range m.migrations {
		statuses = append(statuses, MigrationStatus{
			Version: mig.Version,
			Name:    mig.Name,
			Applied: mig.Version <= current,
		})
	}
	return statuses, nil
}

// Info summarizes the migrator's state.
func (m *DefaultMigrator) Info(ctx context.Context) (MigrationInfo, error) {
	current, err := m.Version(ctx)
	if err != nil {
		return MigrationInfo{}, err
	}

	applied := 0
	for _, mig := range m.migrations {
		if mig.Version <= current {
			applied++
		}
	}

	return MigrationInfo{
		CurrentVersion:    current,
		TotalMigrations:   len(m.migrations),
		AppliedMigrations: applied,
		PendingMigrations: len(m.migrations) - applied,
	}, nil
}

// Close closes the underlying connection if the migrator opened it itself.
func (m *DefaultMigrator) Close() error {
	if m.ownsDB {
		return m.db.Close()
	}
	return nil
}
