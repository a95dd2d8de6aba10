package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
	"quiz-session-service/internal/infra/sqldb"
	"quiz-session-service/internal/logger"
	"quiz-session-service/internal/security"
	"quiz-session-service/internal/session"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	*httptest.Server
	quizzes *app.QuizService
	users   *app.UserService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	db, err := sqldb.Open(ctx, sqldb.DriverSQLite, filepath.Join(t.TempDir(), "http.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := sqldb.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := logger.Discard()
	store := sqldb.NewStore(db)
	cache := memory.NewQuizRepository(store, time.Minute)
	quizzes := app.NewQuizService(store, cache, log)
	attempts := app.NewAttemptService(cache, store, store, memory.NewSessionStore(), session.Options{Logger: log})
	users := app.NewUserService(store, cache, security.NewBcryptHasher(bcrypt.MinCost), memory.NewResetTokenStore(), time.Minute, log)

	api := NewAPIHandler(quizzes, attempts, users, db.PingContext, log)
	ws := NewWSHandler(attempts, log)
	server := httptest.NewServer(NewRouter(api, ws))
	t.Cleanup(server.Close)
	return &testServer{Server: server, quizzes: quizzes, users: users}
}

func (s *testServer) seed(t *testing.T, limitMinutes int) (domain.User, domain.Quiz) {
	t.Helper()
	ctx := context.Background()
	user, err := s.users.Register(ctx, "player", "player@example.com", "secret1", false)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	quiz, err := s.quizzes.CreateQuiz(ctx, domain.Quiz{
		Title:            "Colors",
		CreatorID:        user.ID,
		TimeLimitMinutes: limitMinutes,
		Questions: []domain.Question{
			{
				Text:   "Flag colors",
				Points: 2,
				Options: []domain.Option{
					{Text: "Red", Correct: true},
					{Text: "Green"},
					{Text: "Blue", Correct: true},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	return user, quiz
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}
