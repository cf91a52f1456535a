package store

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const createMigrationsTableSQL = `
CREATE TABLE IF NOT EXISTS interviewer_migrations (
	id         SERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	checksum   TEXT NOT NULL
);`

type migrationFile struct {
	Name     string
	Up       string
	Down     string
	Checksum string
}

// loadMigrations reads the embedded migration files sorted by name.
func loadMigrations() ([]migrationFile, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	up := make(map[string]string)
	down := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			up[strings.TrimSuffix(name, ".up.sql")] = string(data)
		case strings.HasSuffix(name, ".down.sql"):
			down[strings.TrimSuffix(name, ".down.sql")] = string(data)
		}
	}

	migrations := make([]migrationFile, 0, len(up))
	for key, sql := range up {
		migrations = append(migrations, migrationFile{
			Name:     key,
			Up:       sql,
			Down:     down[key],
			Checksum: fmt.Sprintf("%x", sha256.Sum256([]byte(sql))),
		})
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Name < migrations[j].Name
	})
	return migrations, nil
}

func (s *PGStore) appliedMigrations(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.Query(ctx, `SELECT name, checksum FROM interviewer_migrations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var name, checksum string
		if err := rows.Scan(&name, &checksum); err != nil {
			return nil, err
		}
		applied[name] = checksum
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations in order, each in its own transaction.
// An applied migration whose file changed is an error.
func (s *PGStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createMigrationsTableSQL); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if checksum, ok := applied[m.Name]; ok {
			if checksum != m.Checksum {
				return fmt.Errorf("migration %s checksum mismatch (recorded %s, file %s)", m.Name, checksum, m.Checksum)
			}
			continue
		}

		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(ctx, m.Up); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("run migration %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO interviewer_migrations (name, checksum) VALUES ($1, $2)`, m.Name, m.Checksum); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("record migration %s: %w", m.Name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.Name, err)
		}
	}
	return nil
}

// Rollback reverts the most recently applied migration.
func (s *PGStore) Rollback(ctx context.Context) error {
	var id int
	var name string
	err := s.db.QueryRow(ctx, `SELECT id, name FROM interviewer_migrations ORDER BY id DESC LIMIT 1`).Scan(&id, &name)
	if err != nil {
		return fmt.Errorf("get last migration: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	var downSQL string
	for _, m := range migrations {
		if m.Name == name {
			downSQL = m.Down
			break
		}
	}
	if downSQL == "" {
		return fmt.Errorf("no down migration for %s", name)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rollback %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, downSQL); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("run rollback %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM interviewer_migrations WHERE id = $1`, id); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("remove migration record %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rollback %s: %w", name, err)
	}
	return nil
}
