package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/session"
	"github.com/go-chi/chi/v5"
)

// APIHandler serves the JSON endpoints for accounts, authoring and results.
type APIHandler struct {
	quizzes  *app.QuizService
	attempts *app.AttemptService
	users    *app.UserService
	ping     func(ctx context.Context) error
	log      *slog.Logger
}

func NewAPIHandler(quizzes *app.QuizService, attempts *app.AttemptService, users *app.UserService, ping func(ctx context.Context) error, log *slog.Logger) *APIHandler {
	if log == nil {
		log = slog.Default()
	}
	return &APIHandler{quizzes: quizzes, attempts: attempts, users: users, ping: ping, log: log}
}

// Register mounts every route on r.
func (h *APIHandler) Register(r chi.Router) {
	r.Get("/healthz", h.health)
	r.Post("/login", h.login)
	r.Post("/password-reset", h.resetPassword)

	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.register)
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.getUser)
		r.Put("/{id}", h.updateUser)
		r.Delete("/{id}", h.deleteUser)
		r.Post("/{id}/reset-token", h.issueResetToken)
		r.Get("/{id}/results", h.userResults)
		r.Get("/{id}/stats", h.userStats)
	})

	r.Route("/quizzes", func(r chi.Router) {
		r.Get("/", h.listQuizzes)
		r.Post("/", h.createQuiz)
		r.Get("/{id}", h.getQuiz)
		r.Put("/{id}", h.updateQuiz)
		r.Delete("/{id}", h.deleteQuiz)
		r.Post("/{id}/questions", h.addQuestion)
		r.Get("/{id}/leaderboard", h.leaderboard)
	})

	r.Route("/questions/{id}", func(r chi.Router) {
		r.Put("/", h.updateQuestion)
		r.Delete("/", h.deleteQuestion)
		r.Post("/options", h.addOption)
	})
	r.Put("/options/{id}", h.updateOption)
	r.Delete("/options/{id}", h.deleteOption)

	r.Get("/results/{id}", h.getResult)
	r.Delete("/results/{id}", h.deleteResult)
	r.Get("/sessions/{id}", h.getSession)
}

func (h *APIHandler) health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			h.log.Warn("health check failed", "err", err)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	_, _ = w.Write([]byte("ok"))
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Admin    bool   `json:"admin"`
}

func (h *APIHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.users.Register(r.Context(), req.Username, req.Email, req.Password, req.Admin)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *APIHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *APIHandler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type updateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Admin    bool   `json:"admin"`
}

func (h *APIHandler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	user := domain.User{ID: id, Username: req.Username, Email: req.Email, Admin: req.Admin}
	if err := h.users.UpdateUser(r.Context(), user); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.users.DeleteUser(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// resetTokenRequest carries the issuing administrator's credentials.
type resetTokenRequest struct {
	AdminUsername string `json:"adminUsername"`
	AdminPassword string `json:"adminPassword"`
}

func (h *APIHandler) issueResetToken(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req resetTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorPayload{Code: "validation", Message: "invalid JSON body"})
		return
	}
	token, err := h.users.IssuePasswordReset(r.Context(), req.AdminUsername, req.AdminPassword, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *APIHandler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.users.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) listQuizzes(w http.ResponseWriter, r *http.Request) {
	var (
		quizzes []domain.Quiz
		err     error
	)
	if raw := r.URL.Query().Get("creator"); raw != "" {
		creatorID, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			h.fail(w, domain.ErrValidation)
			return
		}
		quizzes, err = h.quizzes.ListQuizzesByCreator(r.Context(), creatorID)
	} else {
		quizzes, err = h.quizzes.ListQuizzes(r.Context())
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *APIHandler) createQuiz(w http.ResponseWriter, r *http.Request) {
	var quiz domain.Quiz
	if !h.decode(w, r, &quiz) {
		return
	}
	created, err := h.quizzes.CreateQuiz(r.Context(), quiz)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// quizView is what respondents see: no correctness flags.
type quizView struct {
	ID               int64                  `json:"id"`
	Title            string                 `json:"title"`
	Description      string                 `json:"description"`
	CreatorID        int64                  `json:"creatorId"`
	CreatorName      string                 `json:"creatorName,omitempty"`
	TimeLimitMinutes int                    `json:"timeLimitMinutes"`
	CreatedAt        time.Time              `json:"createdAt"`
	Questions        []session.QuestionView `json:"questions"`
}

func newQuizView(q domain.Quiz) quizView {
	view := quizView{
		ID:               q.ID,
		Title:            q.Title,
		Description:      q.Description,
		CreatorID:        q.CreatorID,
		CreatorName:      q.CreatorName,
		TimeLimitMinutes: q.TimeLimitMinutes,
		CreatedAt:        q.CreatedAt,
		Questions:        make([]session.QuestionView, 0, len(q.Questions)),
	}
	for _, question := range q.Questions {
		view.Questions = append(view.Questions, session.NewQuestionView(question))
	}
	return view
}

func (h *APIHandler) getQuiz(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	quiz, err := h.quizzes.GetQuiz(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuizView(quiz))
}

type quizHeaderRequest struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	TimeLimitMinutes int    `json:"timeLimitMinutes"`
}

func (h *APIHandler) updateQuiz(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req quizHeaderRequest
	if !h.decode(w, r, &req) {
		return
	}
	quiz := domain.Quiz{ID: id, Title: req.Title, Description: req.Description, TimeLimitMinutes: req.TimeLimitMinutes}
	if err := h.quizzes.UpdateQuiz(r.Context(), quiz); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) deleteQuiz(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.quizzes.DeleteQuiz(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) addQuestion(w http.ResponseWriter, r *http.Request) {
	quizID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var question domain.Question
	if !h.decode(w, r, &question) {
		return
	}
	created, err := h.quizzes.AddQuestion(r.Context(), quizID, question)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type questionHeaderRequest struct {
	Text   string `json:"text"`
	Points int    `json:"points"`
}

func (h *APIHandler) updateQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req questionHeaderRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.quizzes.UpdateQuestion(r.Context(), domain.Question{ID: id, Text: req.Text, Points: req.Points}); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.quizzes.DeleteQuestion(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) addOption(w http.ResponseWriter, r *http.Request) {
	questionID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var option domain.Option
	if !h.decode(w, r, &option) {
		return
	}
	created, err := h.quizzes.AddOption(r.Context(), questionID, option)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type optionRequest struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

func (h *APIHandler) updateOption(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req optionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.quizzes.UpdateOption(r.Context(), domain.Option{ID: id, Text: req.Text, Correct: req.Correct}); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) deleteOption(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.quizzes.DeleteOption(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	results, err := h.attempts.Leaderboard(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *APIHandler) userResults(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	results, err := h.attempts.UserResults(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *APIHandler) userStats(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	stats, err := h.attempts.UserStats(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *APIHandler) getResult(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	result, err := h.attempts.Result(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) deleteResult(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.attempts.DeleteResult(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// remoteSession describes an attempt hosted by another instance; only its
// registration is visible here.
type remoteSession struct {
	session.Registration
	Remote bool `json:"remote"`
}

func (h *APIHandler) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if sess, err := h.attempts.Session(id); err == nil {
		writeJSON(w, http.StatusOK, sess.Last())
		return
	}
	reg, err := h.attempts.LiveSession(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remoteSession{Registration: reg, Remote: true})
}

func (h *APIHandler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(w, domain.ErrValidation)
		return 0, false
	}
	return id, true
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Code: "validation", Message: "invalid JSON body"})
		return false
	}
	return true
}

func (h *APIHandler) fail(w http.ResponseWriter, err error) {
	status, _ := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "err", err)
	}
	writeJSON(w, status, newErrorPayload(err))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
