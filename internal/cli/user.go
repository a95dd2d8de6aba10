package cli

import (
	"fmt"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/infra/memory"
	"quiz-session-service/internal/infra/sqldb"
	"quiz-session-service/internal/logger"
	"quiz-session-service/internal/security"
	"github.com/spf13/cobra"
)

// NewUserCmd groups account administration commands.
func NewUserCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUserCreateCmd(configPath))
	return cmd
}

func newUserCreateCmd(configPath *string) *cobra.Command {
	var (
		username string
		email    string
		password string
		admin    bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account, e.g. the first administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log.Level, cfg.Log.Format)
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			store := sqldb.NewStore(db)
			users := app.NewUserService(
				store,
				memory.NewQuizRepository(store, time.Minute),
				security.NewBcryptHasher(cfg.Security.BcryptCost),
				memory.NewResetTokenStore(),
				config.Duration(cfg.Security.ResetTokenTTL, 15*time.Minute),
				log,
			)
			user, err := users.Register(cmd.Context(), username, email, password, admin)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s)\n", user.ID, user.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "initial password (min 6 characters)")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant administrator rights")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
