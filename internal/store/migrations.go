package store

import (
	"context"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

// loadMigrations returns the SQL files for a dialect in lexical order.
func loadMigrations(dialect string) ([]string, error) {
	dir := path.Join("migrations", dialect)
	entries, err := migrationFiles.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []string
	for _, name := range names {
		content, err := migrationFiles.ReadFile(path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		if sql := strings.TrimSpace(string(content)); sql != "" {
			out = append(out, sql)
		}
	}
	return out, nil
}

// RunMigrations executes the embedded Postgres migrations in order.
func (s *Postgres) RunMigrations(ctx context.Context) error {
	files, err := loadMigrations("postgres")
	if err != nil {
		return err
	}
	for i, sql := range files {
		if _, err := s.pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("exec postgres migration %d: %w", i+1, err)
		}
	}
	return nil
}

// RunMigrations executes the embedded SQLite migrations, one statement at a time.
func (s *SQLite) RunMigrations(ctx context.Context) error {
	files, err := loadMigrations("sqlite")
	if err != nil {
		return err
	}
	for i, file := range files {
		for _, stmt := range strings.Split(file, ";") {
			if stmt = strings.TrimSpace(stmt); stmt == "" {
				continue
			}
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("exec sqlite migration %d: %w", i+1, err)
			}
		}
	}
	return nil
}
