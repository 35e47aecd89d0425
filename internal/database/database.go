// Package database wires the embedded SQLite store and runs versioned
// migrations, verified against a companion integrity manifest before
// being applied, in the teacher's transaction-per-file migration idiom.
package database

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bromanko/michael/internal/config"
)

// New opens the embedded SQLite database and configures the connection
// pool. SQLite tolerates only one writer at a time; the pool is kept
// small deliberately, as the teacher does for its sqlite-driver path.
func New(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("database: failed to open %s: %w", cfg.Path, err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("database: failed to ping: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("database: failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("database: failed to enable WAL: %w", err)
	}

	return db, nil
}

// manifestEntry is one row of migrations/manifest.json: the filename and
// the expected sha256 hash of its contents.
type manifestEntry struct {
	File string `json:"file"`
	SHA256 string `json:"sha256"`
}

// Migrate verifies the migration manifest, then applies pending
// migrations in version order, each inside its own transaction, and
// records version + description + timestamp in schema_migrations.
func Migrate(db *sql.DB, migrationsPath string) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("database: failed to create schema_migrations: %w", err)
	}

	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("database: failed to query schema_migrations: %w", err)
	}
	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("database: failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Close(); err != nil {
		log.Printf("[MIGRATE] error closing rows: %v", err)
	}

	migrations, err := verifiedMigrations(migrationsPath)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		version, description := splitMigrationName(m)
		if applied[version] {
			continue
		}

		content, err := os.ReadFile(filepath.Join(migrationsPath, m))
		if err != nil {
			return fmt.Errorf("database: failed to read migration %s: %w", m, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("database: failed to begin transaction for %s: %w", m, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("database: failed to apply migration %s: %w", m, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			version, description, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("database: failed to record migration %s: %w", m, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("database: failed to commit migration %s: %w", m, err)
		}

		log.Printf("[MIGRATE] applied %s", version)
	}

	return nil
}

// verifiedMigrations reads migrations/manifest.json, checks every listed
// file's sha256 hash against its on-disk contents, and returns the
// migration filenames in version order. A manifest mismatch is fatal:
// migration tampering or truncation must never be applied silently.
func verifiedMigrations(migrationsPath string) ([]string, error) {
	manifestPath := filepath.Join(migrationsPath, "manifest.json")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("database: failed to read migration manifest: %w", err)
	}

	var entries []manifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("database: invalid migration manifest: %w", err)
	}

	var names []string
	for _, e := range entries {
		content, err := os.ReadFile(filepath.Join(migrationsPath, e.File))
		if err != nil {
			return nil, fmt.Errorf("database: manifest references missing file %s: %w", e.File, err)
		}
		sum := sha256.Sum256(content)
		got := hex.EncodeToString(sum[:])
		if got != e.SHA256 {
			return nil, fmt.Errorf("database: migration %s failed integrity check (manifest=%s actual=%s)", e.File, e.SHA256, got)
		}
		names = append(names, e.File)
	}

	sort.Strings(names)
	return names, nil
}

func splitMigrationName(filename string) (version, description string) {
	name := strings.TrimSuffix(filename, ".up.sql")
	parts := strings.SplitN(name, "_", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return name, name
}
