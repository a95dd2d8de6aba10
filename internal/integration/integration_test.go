package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
	pgloader "quiz-session-service/internal/infra/postgres"
	infraredis "quiz-session-service/internal/infra/redis"
	"quiz-session-service/internal/infra/sqldb"
	"quiz-session-service/internal/logger"
	"quiz-session-service/internal/security"
	"quiz-session-service/internal/session"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
)

func TestAttemptEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db, err := sqldb.Open(ctx, sqldb.DriverPostgres, pgURL)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := sqldb.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := sqldb.NewStore(db)

	user, err := store.CreateUser(ctx, domain.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	quiz, err := store.CreateQuiz(ctx, sampleQuiz(user.ID))
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	pool, err := pgloader.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	quizRepo := infraredis.NewQuizRepository(redisClient, pgloader.NewQuizLoader(pool), 5*time.Minute)
	sessions := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	attempts := app.NewAttemptService(quizRepo, store, store, sessions, session.Options{TickInterval: -1})

	sess, snap, err := attempts.StartAttempt(ctx, quiz.ID, user.ID)
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	defer sess.Close()
	if snap.Total != 1 || snap.QuizTitle != "Arithmetic" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if n, err := redisClient.Exists(ctx, "quiz:session:"+sess.ID()).Result(); err != nil || n != 1 {
		t.Fatalf("expected session key in redis, got %d (%v)", n, err)
	}

	correct := quiz.Questions[0].Options[1].ID
	if _, err := sess.SelectOption(ctx, 0, correct); err != nil {
		t.Fatalf("select: %v", err)
	}
	completion, err := sess.RequestSubmit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if completion.Result.Score != 2 || completion.Result.MaxScore != 2 || completion.Result.ID == 0 {
		t.Fatalf("unexpected completion %+v", completion.Result)
	}

	board, err := attempts.Leaderboard(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 1 || board[0].Username != "alice" || board[0].Score != 2 {
		t.Fatalf("unexpected leaderboard %+v", board)
	}

	saved, err := attempts.Result(ctx, completion.Result.ID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if len(saved.QuestionResults) != 1 || !saved.QuestionResults[0].Correct {
		t.Fatalf("unexpected question results %+v", saved.QuestionResults)
	}

	// Deleting the quiz cascades to its results.
	if _, err := store.DeleteQuiz(ctx, quiz.ID); err != nil {
		t.Fatalf("delete quiz: %v", err)
	}
	if got, err := store.GetQuizResultByID(ctx, completion.Result.ID); err != nil || got != nil {
		t.Fatalf("expected result removed with quiz, got %+v (%v)", got, err)
	}
}

func TestPasswordResetOverRedis(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()
	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	db, err := sqldb.Open(ctx, sqldb.DriverSQLite, t.TempDir()+"/quiz.db")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := sqldb.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := sqldb.NewStore(db)
	users := app.NewUserService(
		store,
		infraredis.NewQuizRepository(redisClient, store, time.Minute),
		security.NewBcryptHasher(bcrypt.MinCost),
		infraredis.NewResetTokenStore(redisClient),
		time.Minute,
		logger.Discard(),
	)
	user, err := users.Register(ctx, "bob", "bob@example.com", "secret1", false)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := users.Register(ctx, "root", "root@example.com", "rootpass", true); err != nil {
		t.Fatalf("register admin: %v", err)
	}
	token, err := users.IssuePasswordReset(ctx, "root", "rootpass", user.ID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if err := users.ResetPassword(ctx, token, "secret2"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := users.ResetPassword(ctx, token, "secret3"); !errors.Is(err, domain.ErrResetTokenInvalid) {
		t.Fatalf("expected token to be single use, got %v", err)
	}
	if _, err := users.Authenticate(ctx, "bob", "secret2"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestQuizCacheFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db, err := sqldb.Open(ctx, sqldb.DriverPostgres, pgURL)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := sqldb.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := sqldb.NewStore(db)
	user, err := store.CreateUser(ctx, domain.User{Username: "carol", Email: "carol@example.com", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	quiz, err := store.CreateQuiz(ctx, sampleQuiz(user.ID))
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	cache := memory.NewQuizRepository(store, time.Minute)
	got, err := cache.GetQuiz(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if got.CreatorName != "carol" || len(got.Questions) != 1 || len(got.Questions[0].Options) != 3 {
		t.Fatalf("unexpected quiz %+v", got)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func sampleQuiz(creatorID int64) domain.Quiz {
	return domain.Quiz{
		Title:     "Arithmetic",
		CreatorID: creatorID,
		Questions: []domain.Question{
			{
				Text:   "What is 2 + 2?",
				Points: 2,
				Options: []domain.Option{
					{Text: "3"},
					{Text: "4", Correct: true},
					{Text: "5"},
				},
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
