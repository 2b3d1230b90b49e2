package pg

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"log/slog"

	"github.com/jmoiron/sqlx"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// advisory lock на время миграций, одна реплика накатывает, остальные ждут
const migrationLockID int64 = 7_240_118_305

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    BIGINT      PRIMARY KEY,
		name       TEXT        NOT NULL,
		checksum   TEXT        NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

type migration struct {
	Version  int64
	Name     string
	Checksum string
	SQL      string
}

// Migrator накатывает SQL-файлы NNNN_name.sql по возрастанию версии.
// Каждая миграция и запись о ней выполняются в одной транзакции.
type Migrator struct {
	db     *sqlx.DB
	source fs.FS
	log    *slog.Logger
}

func NewMigrator(db *sqlx.DB, log *slog.Logger) *Migrator {
	source, _ := fs.Sub(embeddedMigrations, "migrations")
	return &Migrator{db: db, source: source, log: log}
}

// RunMigrations встроенные миграции
func RunMigrations(ctx context.Context, db *sqlx.DB, log *slog.Logger) error {
	return NewMigrator(db, log).Up(ctx)
}

func (m *Migrator) Up(ctx context.Context) error {
	all, err := loadMigrations(m.source)
	if err != nil {
		return err
	}

	conn, err := m.db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("take migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			m.log.Warn("failed to release migration lock", "error", err)
		}
	}()

	if _, err := conn.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var rows []struct {
		Version  int64  `db:"version"`
		Checksum string `db:"checksum"`
	}
	if err := conn.SelectContext(ctx, &rows, "SELECT version, checksum FROM schema_migrations"); err != nil {
		return fmt.Errorf("load applied migrations: %w", err)
	}
	applied := make(map[int64]string, len(rows))
	for _, r := range rows {
		applied[r.Version] = r.Checksum
	}

	todo, err := pendingMigrations(all, applied)
	if err != nil {
		return err
	}

	for _, mg := range todo {
		if err := apply(ctx, conn, mg); err != nil {
			return fmt.Errorf("migration %04d_%s: %w", mg.Version, mg.Name, err)
		}
		m.log.Info("migration applied", "version", mg.Version, "name", mg.Name)
	}

	m.log.Info("database schema is up to date", "applied", len(todo), "total", len(all))
	return nil
}

func apply(ctx context.Context, conn *sqlx.Conn, mg migration) error {
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, mg.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3)",
		mg.Version, mg.Name, mg.Checksum,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// pendingMigrations неприменённые миграции; изменённый после применения файл - ошибка
func pendingMigrations(all []migration, applied map[int64]string) ([]migration, error) {
	var out []migration
	for _, mg := range all {
		checksum, ok := applied[mg.Version]
		if !ok {
			out = append(out, mg)
			continue
		}
		if checksum != mg.Checksum {
			return nil, fmt.Errorf("migration %04d_%s was modified after it had been applied", mg.Version, mg.Name)
		}
	}
	return out, nil
}

func loadMigrations(source fs.FS) ([]migration, error) {
	files, err := fs.Glob(source, "*.sql")
	if err != nil {
		return nil, err
	}

	out := make([]migration, 0, len(files))
	seen := make(map[int64]string, len(files))
	for _, file := range files {
		version, name, err := parseMigrationName(path.Base(file))
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", file, err)
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", other, file, version)
		}
		seen[version] = file

		content, err := fs.ReadFile(source, file)
		if err != nil {
			return nil, err
		}
		sum := sha256.Sum256(content)
		out = append(out, migration{
			Version:  version,
			Name:     name,
			Checksum: hex.EncodeToString(sum[:]),
			SQL:      string(content),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseMigrationName 0001_init.sql -> 1, init
func parseMigrationName(filename string) (int64, string, error) {
	base := strings.TrimSuffix(filename, ".sql")
	prefix, name, ok := strings.Cut(base, "_")
	if !ok || name == "" {
		return 0, "", fmt.Errorf("expected NNNN_name.sql")
	}
	version, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || version <= 0 {
		return 0, "", fmt.Errorf("invalid version %q", prefix)
	}
	return version, name, nil
}
