package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded schema for the given driver.  Every
// statement is idempotent (CREATE ... IF NOT EXISTS), so Migrate can run
// on every start.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	if db == nil {
		return fmt.Errorf("sql db is required")
	}
	var file string
	switch driver {
	case DriverMySQL:
		file = "migrations/mysql.sql"
	case DriverSQLite:
		file = "migrations/sqlite.sql"
	default:
		return fmt.Errorf("unsupported db driver %q", driver)
	}
	content, err := migrationsFS.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read schema %s: %w", file, err)
	}
	for i, stmt := range SplitStatements(string(content)) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema %s statement %d: %w", file, i+1, err)
		}
	}
	return nil
}

// SplitStatements splits a schema file on ';' and drops empty and
// comment-only fragments.  Schema files must not contain ';' inside
// literals.
func SplitStatements(content string) []string {
	var out []string
	for _, part := range strings.Split(content, ";") {
		var lines []string
		for _, line := range strings.Split(part, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "--") {
				continue
			}
			lines = append(lines, line)
		}
		if len(lines) > 0 {
			out = append(out, strings.TrimSpace(strings.Join(lines, "\n")))
		}
	}
	return out
}
