package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/amm-analytics/internal/errors"
	"github.com/amm-analytics/internal/logging"
)

// statementExecer runs one DDL statement
type statementExecer interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
}

// RunClickHouseMigrations executes every .sql file in migrationsPath in name order
// and returns the number of statements run. Statements must be idempotent
// (CREATE ... IF NOT EXISTS) since nothing records which files were applied.
func RunClickHouseMigrations(ctx context.Context, db statementExecer, migrationsPath string) (int, error) {
	logger := logging.FromContext(ctx).WithField("component", "clickhouse_migrate")

	files, err := migrationFiles(migrationsPath)
	if err != nil {
		return 0, apperrors.NewStorageError("read clickhouse migrations", err)
	}
	if len(files) == 0 {
		logger.Warn("No migration files found")
		return 0, nil
	}

	executed := 0
	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(migrationsPath, name)) // #nosec G304 - name comes from migrationsPath listing
		if err != nil {
			return executed, apperrors.NewStorageError("read "+name, err)
		}

		for i, stmt := range splitSQLStatements(string(content)) {
			logger.Debugf("Executing %s statement %d: %s", name, i+1, truncate(stmt, 80))

			if err := db.Exec(ctx, stmt); err != nil {
				logger.WithError(err).WithField("statement", truncate(stmt, 200)).Error("Migration statement failed")
				return executed, apperrors.NewStorageError("execute "+name, err)
			}
			executed++
		}

		logger.WithField("file", name).Info("Applied migration")
	}

	return executed, nil
}

// migrationFiles lists the .sql files of a directory, sorted by name
func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// splitSQLStatements splits a script on statement-ending semicolons.
// Comment-only lines are dropped and trailing semicolons removed.
func splitSQLStatements(content string) []string {
	var statements []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSuffix(strings.TrimSpace(current.String()), ";")
		if stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	flush()

	return statements
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
