// Package archive keeps an append-only SQLite history of every write action
// the engine performs. It is audit output only: the JSON state document
// remains the engine's sole source of truth, and archive failures never
// block an action.
package archive

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Entry is one recorded action.
type Entry struct {
	ID         string
	Kind       string
	TargetID   string
	WorkflowID string
	At         time.Time
}

// Archive wraps the SQLite action-history database.
type Archive struct {
	db *sql.DB
}

// Open opens (or creates) the archive database in dataDir and applies
// pending migrations. Pass ":memory:" for an in-memory database (tests).
func Open(dataDir string) (*Archive, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "warble-archive.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening archive database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging archive database: %w", err)
	}

	// Single connection avoids "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return a, nil
}

// Close closes the underlying database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) migrate() error {
	if _, err := a.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := a.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := a.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// Record appends one action row. Satisfies workflow.ActionRecorder.
func (a *Archive) Record(kind, targetID, workflowID string, at time.Time) error {
	_, err := a.db.Exec(`
		INSERT INTO actions (id, kind, target_id, workflow_id, at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), kind, targetID, workflowID, at.UTC().Format(time.RFC3339),
	)
	return err
}

// Recent returns the most recent entries, newest first.
func (a *Archive) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.Query(`
		SELECT id, kind, target_id, workflow_id, at
		FROM actions ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&e.ID, &e.Kind, &e.TargetID, &e.WorkflowID, &at); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, at); err == nil {
			e.At = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByKind returns how many actions of each kind were recorded since the
// given time.
func (a *Archive) CountByKind(since time.Time) (map[string]int, error) {
	rows, err := a.db.Query(`
		SELECT kind, COUNT(*) FROM actions WHERE at >= ? GROUP BY kind`,
		since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}
