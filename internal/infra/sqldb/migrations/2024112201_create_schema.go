package migrations

import (
	"context"
	_ "embed"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/migrate"
)

//go:embed 2024112201_schema.pg.sql
var createSchemaPG string

//go:embed 2024112201_schema.sqlite.sql
var createSchemaSQLite string

// Tables in dependency order; dropped in reverse.
var tables = []string{"users", "quizzes", "questions", "options", "quiz_results", "question_results", "selected_options"}

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			script := createSchemaPG
			if db.Dialect().Name() == dialect.SQLite {
				script = createSchemaSQLite
			}
			for _, stmt := range strings.Split(script, "--bun:split") {
				if strings.TrimSpace(stmt) == "" {
					continue
				}
				if _, err := db.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			return nil
		},
		func(ctx context.Context, db *bun.DB) error {
			for i := len(tables) - 1; i >= 0; i-- {
				if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+tables[i]); err != nil {
					return err
				}
			}
			return nil
		},
	)
}
