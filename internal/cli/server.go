package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/infra/memory"
	pgloader "quiz-session-service/internal/infra/postgres"
	infraredis "quiz-session-service/internal/infra/redis"
	"quiz-session-service/internal/infra/sqldb"
	"quiz-session-service/internal/logger"
	"quiz-session-service/internal/security"
	"quiz-session-service/internal/session"
	transport "quiz-session-service/internal/transport/http"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	store := sqldb.NewStore(db)

	var loader memory.QuizLoader = store
	if cfg.Database.Driver == sqldb.DriverPostgres {
		pool, err := pgloader.Connect(ctx, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = pgloader.NewQuizLoader(pool)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 2*time.Hour)
	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)

	var (
		quizRepo app.QuizRepository
		sessions app.SessionRegistry
		tokens   app.ResetTokenStore
	)
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
		sessions = infraredis.NewSessionStore(redisClient, redisTTL)
		tokens = infraredis.NewResetTokenStore(redisClient)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		sessions = memory.NewSessionStore()
		tokens = memory.NewResetTokenStore()
	}

	sessionOpts := session.Options{
		TickInterval: config.Duration(cfg.Session.Tick, time.Second),
		SaveTimeout:  config.Duration(cfg.Session.SaveTimeout, 10*time.Second),
		Logger:       log,
	}
	quizzes := app.NewQuizService(store, quizRepo, log)
	attempts := app.NewAttemptService(quizRepo, store, store, sessions, sessionOpts)
	users := app.NewUserService(
		store,
		quizRepo,
		security.NewBcryptHasher(cfg.Security.BcryptCost),
		tokens,
		config.Duration(cfg.Security.ResetTokenTTL, 15*time.Minute),
		log,
	)

	api := transport.NewAPIHandler(quizzes, attempts, users, db.PingContext, log)
	ws := transport.NewWSHandler(attempts, log)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(api, ws),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz service", "port", finalPort, "driver", cfg.Database.Driver, "redis", redisClient != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
