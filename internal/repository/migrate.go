package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationsTable = "schema_migrations"

// Migrate creates the schema if needed and applies pending .up.sql files in
// name order, each in its own transaction.
func Migrate(ctx context.Context, db *sql.DB, schema string) error {
	if schema != "" {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`create schema if not exists %s`, quoteIdent(schema))); err != nil {
			return fmt.Errorf("migrate: create schema %s: %w", schema, err)
		}
	}
	if _, err := db.ExecContext(ctx, `create table if not exists `+migrationsTable+` (
		name text primary key,
		applied_at timestamptz not null default now()
	)`); err != nil {
		return fmt.Errorf("migrate: ensure %s: %w", migrationsTable, err)
	}

	executed := map[string]bool{}
	rows, err := db.QueryContext(ctx, `select name from `+migrationsTable)
	if err != nil {
		return fmt.Errorf("migrate: list executed: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		executed[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	files, err := upFiles()
	if err != nil {
		return err
	}
	for _, name := range files {
		if executed[name] {
			continue
		}
		body, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}
		if err := applyMigration(ctx, db, name, string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, name, body string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `insert into `+migrationsTable+` (name) values ($1)`, name); err != nil {
		return err
	}
	return tx.Commit()
}

func upFiles() ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
