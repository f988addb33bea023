package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplyMigrations executes every *.sql file under dir in lexical order.
// The scripts must be idempotent; a missing directory is skipped.
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool, dir string) ([]string, error) {
	if pool == nil {
		return nil, ErrNotConfigured
	}
	files, err := migrationFiles(dir)
	if err != nil {
		return nil, err
	}

	for _, path := range files {
		sql, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", path, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return nil, fmt.Errorf("apply migration %s: %w", filepath.Base(path), err)
		}
	}
	return files, nil
}

func migrationFiles(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
