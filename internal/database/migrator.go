package database

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Migrator applies the embedded SQL migrations in filename order and
// records each one in schema_migrations so it runs exactly once.
type Migrator struct {
	pool          *pgxpool.Pool
	migrationsFS  fs.FS
	migrationsDir string
	logger        *zap.Logger
}

// NewMigrator returns a migrator reading *.sql files from dir within
// migrationsFS ("." for the root of an embed.FS).
func NewMigrator(pool *pgxpool.Pool, migrationsFS fs.FS, dir string, logger *zap.Logger) *Migrator {
	return &Migrator{
		pool:          pool,
		migrationsFS:  migrationsFS,
		migrationsDir: dir,
		logger:        logger.With(zap.String("component", "migrator")),
	}
}

// RunMigrations executes every pending migration. Files whose name
// contains "reset" are never run automatically.
func (m *Migrator) RunMigrations(ctx context.Context) error {
	if err := m.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}

	files, err := pendingFiles(m.migrationsFS, m.migrationsDir, applied)
	if err != nil {
		return err
	}

	for _, filename := range files {
		content, err := fs.ReadFile(m.migrationsFS, path.Join(m.migrationsDir, filename))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", filename, err)
		}

		statements := splitSQLStatements(string(content))
		for i, stmt := range statements {
			if _, err := m.pool.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("run migration %s (statement %d): %w", filename, i+1, err)
			}
		}
		if err := m.recordMigration(ctx, filename); err != nil {
			return fmt.Errorf("record migration %s: %w", filename, err)
		}
		m.logger.Info("migration applied",
			zap.String("file", filename),
			zap.Int("statements", len(statements)),
		)
	}

	if len(files) == 0 {
		m.logger.Debug("schema up to date")
	}
	return nil
}

// pendingFiles lists *.sql files in dir, sorted, minus applied and reset
// scripts.
func pendingFiles(fsys fs.FS, dir string, applied map[string]bool) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		if strings.Contains(name, "reset") || applied[name] {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

func (m *Migrator) createMigrationsTable(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			filename VARCHAR(255) UNIQUE NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`)
	return err
}

func (m *Migrator) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := m.pool.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var filename string
		if err := rows.Scan(&filename); err != nil {
			return nil, err
		}
		applied[filename] = true
	}
	return applied, rows.Err()
}

func (m *Migrator) recordMigration(ctx context.Context, filename string) error {
	_, err := m.pool.Exec(ctx,
		`INSERT INTO schema_migrations (filename) VALUES ($1) ON CONFLICT (filename) DO NOTHING`,
		filename)
	return err
}

// splitSQLStatements splits a migration file into statements, keeping
// $$-quoted bodies (functions, DO blocks) intact and dropping
// comment-only fragments.
func splitSQLStatements(content string) []string {
	var statements []string
	var current strings.Builder
	dollarQuotes := 0

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		current.Reset()
		if stmt == "" || stmt == ";" || isCommentOnly(stmt) {
			return
		}
		statements = append(statements, stmt)
	}

	for _, line := range strings.Split(content, "\n") {
		dollarQuotes += strings.Count(line, "$$")
		current.WriteString(line)
		current.WriteString("\n")

		trimmed := strings.TrimSpace(line)
		if dollarQuotes%2 == 0 && strings.HasSuffix(trimmed, ";") && !strings.HasPrefix(trimmed, "--") {
			flush()
		}
	}
	flush()
	return statements
}

func isCommentOnly(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		if t := strings.TrimSpace(line); t != "" && !strings.HasPrefix(t, "--") {
			return false
		}
	}
	return true
}
