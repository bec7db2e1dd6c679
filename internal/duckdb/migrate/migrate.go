// Package migrate keeps the detection index schema in step with the
// binary. Migrations are embedded SQL files named <version>_<name>.sql.
package migrate

import (
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var embedded embed.FS

var (
	// ErrNewerSchema means the index was written by a newer phishcatch.
	ErrNewerSchema = errors.New("migrate: index schema is newer than this binary")

	// ErrChecksumMismatch means an applied migration no longer matches its file.
	ErrChecksumMismatch = errors.New("migrate: applied migration was modified")
)

type migration struct {
	version  int
	name     string
	sql      string
	checksum string
}

type applied struct {
	name     string
	checksum string
}

// Runner applies the embedded migrations to one database.
type Runner struct {
	db   *sql.DB
	migs []migration
	err  error
}

// NewRunner creates a migration runner for the given database connection.
func NewRunner(db *sql.DB) *Runner {
	migs, err := parseMigrations(embedded, "migrations")
	return &Runner{db: db, migs: migs, err: err}
}

func parseMigrations(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("migrate: read %s: %w", dir, err)
	}

	seen := make(map[int]string)
	var migs []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			return nil, fmt.Errorf("migrate: %s: want <version>_<name>.sql", e.Name())
		}
		ver, err := strconv.Atoi(prefix)
		if err != nil || ver <= 0 {
			return nil, fmt.Errorf("migrate: %s: bad version %q", e.Name(), prefix)
		}
		if prev, dup := seen[ver]; dup {
			return nil, fmt.Errorf("migrate: version %d used by %s and %s", ver, prev, e.Name())
		}
		seen[ver] = e.Name()

		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("migrate: read %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(data)
		migs = append(migs, migration{
			version:  ver,
			name:     e.Name(),
			sql:      string(data),
			checksum: hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(migs, func(i, j int) bool { return migs[i].version < migs[j].version })
	return migs, nil
}

func (r *Runner) latest() int {
	if len(r.migs) == 0 {
		return 0
	}
	return r.migs[len(r.migs)-1].version
}

func (r *Runner) bootstrap() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR NOT NULL,
		checksum   VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`)
	if err != nil {
		return fmt.Errorf("migrate: bootstrap schema_migrations: %w", err)
	}
	return nil
}

func (r *Runner) applied() (map[int]applied, error) {
	rows, err := r.db.Query("SELECT version, name, checksum FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate: read applied versions: %w", err)
	}
	defer rows.Close()

	out := make(map[int]applied)
	for rows.Next() {
		var v int
		var a applied
		if err := rows.Scan(&v, &a.name, &a.checksum); err != nil {
			return nil, fmt.Errorf("migrate: scan applied version: %w", err)
		}
		out[v] = a
	}
	return out, rows.Err()
}

// check compares what the database has applied against the embedded set
// and returns the migrations still to run.
func (r *Runner) check(done map[int]applied) ([]migration, error) {
	for v := range done {
		if v > r.latest() {
			return nil, fmt.Errorf("%w: version %d, binary knows %d", ErrNewerSchema, v, r.latest())
		}
	}

	var pending []migration
	for _, m := range r.migs {
		a, ok := done[m.version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if a.checksum != m.checksum {
			return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, m.name)
		}
	}
	return pending, nil
}

// Run verifies the applied history and applies pending migrations in
// version order, each in its own transaction.
func (r *Runner) Run() error {
	if r.err != nil {
		return r.err
	}
	if err := r.bootstrap(); err != nil {
		return err
	}
	done, err := r.applied()
	if err != nil {
		return err
	}
	pending, err := r.check(done)
	if err != nil {
		return err
	}

	for _, m := range pending {
		if err := r.apply(m); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) apply(m migration) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin %s: %w", m.name, err)
	}
	if _, err := tx.Exec(m.sql); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migrate: exec %s: %w", m.name, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version, name, checksum) VALUES (?, ?, ?)",
		m.version, m.name, m.checksum); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migrate: record %s: %w", m.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit %s: %w", m.name, err)
	}
	return nil
}

// Status returns the highest applied version and the number of pending
// migrations. It fails the same way Run would on a foreign history.
func (r *Runner) Status() (current int, pending int, err error) {
	if r.err != nil {
		return 0, 0, r.err
	}
	if err := r.bootstrap(); err != nil {
		return 0, 0, err
	}
	done, err := r.applied()
	if err != nil {
		return 0, 0, err
	}
	for v := range done {
		if v > current {
			current = v
		}
	}
	todo, err := r.check(done)
	if err != nil {
		return current, 0, err
	}
	return current, len(todo), nil
}
