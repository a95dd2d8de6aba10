package cli

import (
	"context"

	"quiz-session-service/internal/config"
	"quiz-session-service/internal/infra/sqldb"
	"quiz-session-service/internal/logger"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger.New(cfg.Log.Level, cfg.Log.Format)
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return db.Close()
		},
	}
}

// openDatabase connects using the configured driver and brings the schema up to date.
func openDatabase(ctx context.Context, cfg config.Config) (*bun.DB, error) {
	db, err := sqldb.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := sqldb.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
