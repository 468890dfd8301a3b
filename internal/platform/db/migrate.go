package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockID keys the advisory lock held while migrating so two
// servers starting together do not race on the same version.
const migrationLockID int64 = 0x6d656463616221

var migrationFile = regexp.MustCompile(`^(\d+)_[A-Za-z0-9_.-]+\.sql$`)

// Migration is one versioned SQL file.
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// MigrationStatus describes a known migration against the database.
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
	// Modified is set when the file changed after it was applied.
	Modified bool
}

// State is the one-word form used by `migrate status`.
func (s MigrationStatus) State() string {
	switch {
	case s.Modified:
		return "modified"
	case s.Applied:
		return "applied"
	default:
		return "pending"
	}
}

type appliedMigration struct {
	at       time.Time
	checksum string
}

// Migrator applies NNN_name.sql files from the root of an fs.FS, which is
// either os.DirFS or the embedded set.
type Migrator struct {
	pool *pgxpool.Pool
	fsys fs.FS
}

func NewMigrator(pool *pgxpool.Pool, fsys fs.FS) *Migrator {
	return &Migrator{pool: pool, fsys: fsys}
}

// LoadMigrations parses the migration set, sorted by version. Files that do
// not look like migrations are ignored; a version claimed twice is an error.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	return loadMigrations(m.fsys)
}

func loadMigrations(fsys fs.FS) ([]Migration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int]Migration, len(names))
	for _, name := range names {
		match := migrationFile.FindStringSubmatch(path.Base(name))
		if match == nil {
			continue
		}
		version, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		if prev, dup := byVersion[version]; dup {
			return nil, fmt.Errorf("migration version %d used by both %s and %s", version, prev.Name, name)
		}

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		sum := sha256.Sum256(body)
		byVersion[version] = Migration{
			Version:  version,
			Name:     name,
			SQL:      string(body),
			Checksum: hex.EncodeToString(sum[:]),
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		out = append(out, mig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

const migrationsTableDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    checksum   TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Up applies every pending migration. It returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	return m.UpTo(ctx, 0)
}

// UpTo applies pending migrations with version <= target; zero means all.
// Each migration runs in its own transaction under the migration lock.
func (m *Migrator) UpTo(ctx context.Context, target int) (int, error) {
	migrations, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return 0, fmt.Errorf("take migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockID)
	}()

	if _, err := conn.Exec(ctx, migrationsTableDDL); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}
	applied, err := readApplied(ctx, conn.Conn())
	if err != nil {
		return 0, err
	}

	n := 0
	for _, mig := range pending(migrations, applied, target) {
		err := pgx.BeginFunc(ctx, conn.Conn(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3)`,
				mig.Version, mig.Name, mig.Checksum)
			return err
		})
		if err != nil {
			return n, fmt.Errorf("apply %s: %w", mig.Name, err)
		}
		n++
	}
	return n, nil
}

// Status reports every migration on disk, applied or not.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	migrations, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, migrationsTableDDL); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	applied, err := readApplied(ctx, conn.Conn())
	if err != nil {
		return nil, err
	}
	return buildStatus(migrations, applied), nil
}

func readApplied(ctx context.Context, conn *pgx.Conn) (map[int]appliedMigration, error) {
	rows, err := conn.Query(ctx, `SELECT version, checksum, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	applied := make(map[int]appliedMigration)
	var (
		version int
		row     appliedMigration
	)
	_, err = pgx.ForEachRow(rows, []any{&version, &row.checksum, &row.at}, func() error {
		applied[version] = row
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan schema_migrations: %w", err)
	}
	return applied, nil
}

func pending(migrations []Migration, applied map[int]appliedMigration, target int) []Migration {
	var out []Migration
	for _, mig := range migrations {
		if target > 0 && mig.Version > target {
			break
		}
		if _, done := applied[mig.Version]; !done {
			out = append(out, mig)
		}
	}
	return out
}

func buildStatus(migrations []Migration, applied map[int]appliedMigration) []MigrationStatus {
	out := make([]MigrationStatus, len(migrations))
	for i, mig := range migrations {
		out[i] = MigrationStatus{Version: mig.Version, Name: mig.Name}
		if a, ok := applied[mig.Version]; ok {
			at := a.at
			out[i].Applied = true
			out[i].AppliedAt = &at
			out[i].Modified = a.checksum != mig.Checksum
		}
	}
	return out
}
