package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"go.uber.org/zap"
)

//go:embed migrations/*.up.sql
var migrationFiles embed.FS

// Execer is satisfied by *sql.DB, *sqlx.DB and their transactions.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// oracleNameInUse is returned when the table or index already exists.
const oracleNameInUse = "ORA-00955"

// RunMigrations executes every embedded .up.sql file in name order. go-ora
// runs one statement per call, so each file holds exactly one statement.
// Objects that already exist are skipped, which makes reruns safe.
func RunMigrations(ctx context.Context, db Execer, logger *zap.Logger) (int, error) {
	names, err := fs.Glob(migrationFiles, "migrations/*.up.sql")
	if err != nil {
		return 0, fmt.Errorf("could not list migrations: %w", err)
	}
	sort.Strings(names)

	applied := 0
	for _, name := range names {
		content, err := migrationFiles.ReadFile(name)
		if err != nil {
			return applied, fmt.Errorf("could not read migration %s: %w", name, err)
		}
		stmt := strings.TrimSuffix(strings.TrimSpace(string(content)), ";")

		if _, err := db.ExecContext(ctx, stmt); err != nil {
			if strings.Contains(err.Error(), oracleNameInUse) {
				logger.Info("Migration already applied", zap.String("file", name))
				continue
			}
			return applied, fmt.Errorf("could not execute migration %s: %w", name, err)
		}
		applied++
		logger.Info("Executed migration", zap.String("file", name))
	}
	return applied, nil
}
