package session_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingSaver struct {
	calls atomic.Int32
	err   error

	mu   sync.Mutex
	last domain.QuizResult
}

func (s *countingSaver) SaveQuizResult(_ context.Context, result domain.QuizResult) (domain.QuizResult, error) {
	s.calls.Add(1)
	if s.err != nil {
		return domain.QuizResult{}, s.err
	}
	s.mu.Lock()
	s.last = result
	s.mu.Unlock()
	return result.WithID(42), nil
}

func testQuiz(limitMinutes int) domain.Quiz {
	return domain.Quiz{
		ID:               7,
		Title:            "Colors",
		TimeLimitMinutes: limitMinutes,
		Questions: []domain.Question{
			{
				ID: 1, QuizID: 7, Text: "Pick the primary colors in the flag", Points: 2,
				Options: []domain.Option{
					{ID: 11, QuestionID: 1, Text: "Red", Correct: true},
					{ID: 12, QuestionID: 1, Text: "Green"},
					{ID: 13, QuestionID: 1, Text: "Blue", Correct: true},
				},
			},
			{
				ID: 2, QuizID: 7, Text: "Color of the sky", Points: 1,
				Options: []domain.Option{
					{ID: 21, QuestionID: 2, Text: "Blue", Correct: true},
					{ID: 22, QuestionID: 2, Text: "Yellow"},
				},
			},
		},
	}
}

func newTestSession(t *testing.T, quiz domain.Quiz, saver session.ResultSaver, clock *fakeClock) *session.Session {
	t.Helper()
	s := session.New("s-1", 3, quiz, saver, session.Options{
		TickInterval: -1,
		Clock:        clock.Now,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(s.Close)
	return s
}

func TestStartRejectsEmptyQuiz(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, domain.Quiz{ID: 1, Title: "Empty"}, &countingSaver{}, newFakeClock())

	if _, err := s.Start(ctx); !errors.Is(err, domain.ErrEmptyQuiz) {
		t.Fatalf("expected empty quiz error, got %v", err)
	}
	if !errors.Is(domain.ErrEmptyQuiz, domain.ErrValidation) {
		t.Fatalf("empty quiz must be a validation error")
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snap.State != session.NotStarted {
		t.Fatalf("expected session to stay not started, got %s", snap.State)
	}
}

func TestIntentsBeforeStartAreRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, testQuiz(0), &countingSaver{}, newFakeClock())

	if _, err := s.Navigate(ctx, session.Next); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for navigate, got %v", err)
	}
	if _, err := s.SelectOption(ctx, 0, 11); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for select, got %v", err)
	}
	if err := s.Cancel(ctx); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for cancel, got %v", err)
	}
	if _, err := s.RequestSubmit(ctx); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for submit, got %v", err)
	}
}

func TestStartInitializesAttempt(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, testQuiz(5), &countingSaver{}, newFakeClock())

	snap, err := s.Start(ctx)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if snap.State != session.InProgress || snap.Index != 0 || snap.Total != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if !snap.TimeLimited || snap.RemainingSeconds != 300 {
		t.Fatalf("expected 300s remaining, got %+v", snap)
	}
	if !snap.Question.MultiSelect || len(snap.Question.Options) != 3 {
		t.Fatalf("expected multi-select first question, got %+v", snap.Question)
	}
	if _, err := s.Start(ctx); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected second start to fail, got %v", err)
	}
}

func TestNavigateClampsToBounds(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, testQuiz(0), &countingSaver{}, newFakeClock())
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	snap, _ := s.Navigate(ctx, session.Previous)
	if snap.Index != 0 {
		t.Fatalf("expected index clamped at 0, got %d", snap.Index)
	}
	snap, _ = s.Navigate(ctx, session.Next)
	snap, _ = s.Navigate(ctx, session.Next)
	if snap.Index != 1 {
		t.Fatalf("expected index clamped at 1, got %d", snap.Index)
	}
	if snap.Question.ID != 2 || snap.Question.MultiSelect {
		t.Fatalf("expected single-answer second question, got %+v", snap.Question)
	}
}

func TestSelectOptionModes(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, testQuiz(0), &countingSaver{}, newFakeClock())
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// multi-answer question toggles
	s.SelectOption(ctx, 0, 11)
	snap, _ := s.SelectOption(ctx, 0, 13)
	if !equalIDs(snap.Selected, []int64{11, 13}) {
		t.Fatalf("expected both options selected, got %v", snap.Selected)
	}
	snap, _ = s.SelectOption(ctx, 0, 11)
	if !equalIDs(snap.Selected, []int64{13}) {
		t.Fatalf("expected toggle to remove 11, got %v", snap.Selected)
	}

	// single-answer question replaces
	s.Navigate(ctx, session.Next)
	s.SelectOption(ctx, 1, 21)
	snap, _ = s.SelectOption(ctx, 1, 22)
	if !equalIDs(snap.Selected, []int64{22}) {
		t.Fatalf("expected exclusive replace, got %v", snap.Selected)
	}
	if snap.Answered != 2 {
		t.Fatalf("expected 2 answered questions, got %d", snap.Answered)
	}

	if _, err := s.SelectOption(ctx, 5, 21); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
	if _, err := s.SelectOption(ctx, 1, 11); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected option not found, got %v", err)
	}
}

func TestSubmitScoresAndSaves(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	saver := &countingSaver{}
	s := newTestSession(t, testQuiz(0), saver, clock)
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	s.SelectOption(ctx, 0, 11)
	s.SelectOption(ctx, 0, 13)
	clock.Advance(45 * time.Second)

	completion, err := s.RequestSubmit(ctx)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if completion.Reason != session.Submitted || completion.Unanswered != 1 {
		t.Fatalf("unexpected completion: %+v", completion)
	}
	result := completion.Result
	if result.ID != 42 || result.UserID != 3 || result.QuizID != 7 {
		t.Fatalf("unexpected result identity: %+v", result)
	}
	if result.Score != 2 || result.MaxScore != 3 || result.DurationSeconds != 45 {
		t.Fatalf("unexpected score: %+v", result)
	}
	if !result.QuestionResults[0].Correct || result.QuestionResults[1].Correct {
		t.Fatalf("unexpected per-question correctness: %+v", result.QuestionResults)
	}
	if saver.calls.Load() != 1 {
		t.Fatalf("expected one save, got %d", saver.calls.Load())
	}

	<-s.Done()
	waited, err := s.Wait(ctx)
	if err != nil || waited.Result.ID != 42 {
		t.Fatalf("wait returned %+v, %v", waited, err)
	}
	if _, err := s.RequestSubmit(ctx); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected submit after completion to fail, got %v", err)
	}
	if _, err := s.Navigate(ctx, session.Next); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected navigate after completion to fail, got %v", err)
	}
}

func TestTimerExpiresExactlyOnce(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	saver := &countingSaver{}
	s := newTestSession(t, testQuiz(1), saver, clock)
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	for i := 0; i < 59; i++ {
		clock.Advance(time.Second)
		snap, err := s.Tick(ctx)
		if err != nil {
			t.Fatalf("tick %d failed: %v", i+1, err)
		}
		if snap.State != session.InProgress {
			t.Fatalf("expired early at tick %d", i+1)
		}
	}

	clock.Advance(time.Second)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Tick(ctx)
	}()
	go func() {
		defer wg.Done()
		s.RequestSubmit(ctx)
	}()
	wg.Wait()

	clock.Advance(time.Second)
	snap, err := s.Tick(ctx)
	if err != nil {
		t.Fatalf("late tick should be ignored, got %v", err)
	}
	if !snap.State.Terminal() {
		t.Fatalf("expected terminal state, got %s", snap.State)
	}
	if got := saver.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one finalize, got %d", got)
	}

	completion, err := s.Wait(ctx)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if completion.Reason != session.TimeExpired && completion.Reason != session.Submitted {
		t.Fatalf("unexpected reason %s", completion.Reason)
	}
	if completion.Result.DurationSeconds != 60 {
		t.Fatalf("expected 60s duration, got %d", completion.Result.DurationSeconds)
	}
}

func TestTickWithoutSubmitExpires(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	saver := &countingSaver{}
	s := newTestSession(t, testQuiz(1), saver, clock)
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	for i := 0; i < 61; i++ {
		clock.Advance(time.Second)
		if _, err := s.Tick(ctx); err != nil {
			t.Fatalf("tick %d failed: %v", i+1, err)
		}
	}
	completion, err := s.Wait(ctx)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if completion.Reason != session.TimeExpired {
		t.Fatalf("expected time expired, got %s", completion.Reason)
	}
	if got := saver.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one finalize, got %d", got)
	}
}

func TestWarningsEscalate(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := newTestSession(t, testQuiz(5), &countingSaver{}, clock)
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	clock.Advance(time.Minute)
	snap, _ := s.Tick(ctx)
	if snap.Warning != session.WarningNone {
		t.Fatalf("expected no warning with 4m left, got %q", snap.Warning)
	}
	clock.Advance(90 * time.Second)
	snap, _ = s.Tick(ctx)
	if snap.Warning != session.WarningLow {
		t.Fatalf("expected low warning with 2m30s left, got %q", snap.Warning)
	}
	clock.Advance(2 * time.Minute)
	snap, _ = s.Tick(ctx)
	if snap.Warning != session.WarningCritical || snap.RemainingSeconds != 30 {
		t.Fatalf("expected critical warning with 30s left, got %+v", snap)
	}
}

func TestUnlimitedQuizReportsElapsed(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	saver := &countingSaver{}
	s := newTestSession(t, testQuiz(0), saver, clock)
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	clock.Advance(2 * time.Hour)
	snap, err := s.Tick(ctx)
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if snap.State != session.InProgress || snap.TimeLimited || snap.ElapsedSeconds != 7200 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if saver.calls.Load() != 0 {
		t.Fatalf("unlimited quiz must not expire")
	}
}

func TestCancelDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	saver := &countingSaver{}
	s := newTestSession(t, testQuiz(0), saver, newFakeClock())
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := s.Cancel(ctx); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if _, err := s.Wait(ctx); !errors.Is(err, domain.ErrSessionCancelled) {
		t.Fatalf("expected cancelled outcome, got %v", err)
	}
	if saver.calls.Load() != 0 {
		t.Fatalf("cancel must not save")
	}
	if err := s.Cancel(ctx); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected second cancel to fail, got %v", err)
	}
}

func TestPersistenceFailureIsTerminal(t *testing.T) {
	ctx := context.Background()
	saver := &countingSaver{err: fmt.Errorf("save quiz result: %w", domain.ErrTransactionFailure)}
	s := newTestSession(t, testQuiz(0), saver, newFakeClock())
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	_, err := s.RequestSubmit(ctx)
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if err.Error() != saver.err.Error() {
		t.Fatalf("expected store error passed through unchanged, got %q", err)
	}
	if _, err := s.Wait(ctx); !errors.Is(err, domain.ErrTransactionFailure) {
		t.Fatalf("expected wait to surface failure, got %v", err)
	}
	if _, err := s.RequestSubmit(ctx); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected no retry after failure, got %v", err)
	}
	if saver.calls.Load() != 1 {
		t.Fatalf("expected a single save attempt, got %d", saver.calls.Load())
	}
}

func TestEventsEndWithCompletion(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, testQuiz(0), &countingSaver{}, newFakeClock())
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	for i := 0; i < 20; i++ {
		s.Navigate(ctx, session.Next)
	}
	if _, err := s.RequestSubmit(ctx); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	var last session.Event
	count := 0
	for ev := range s.Events() {
		last = ev
		count++
	}
	if count == 0 || count > 8 {
		t.Fatalf("expected buffered events to be bounded, got %d", count)
	}
	if last.Type != session.EventCompleted || last.Completion == nil {
		t.Fatalf("expected completion as final event, got %+v", last)
	}
}

func TestInternalTickerExpiresSession(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := newFakeClock()
	saver := &countingSaver{}
	s := session.New("s-ticker", 3, testQuiz(1), saver, session.Options{
		TickInterval: 5 * time.Millisecond,
		Clock:        clock.Now,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	defer s.Close()

	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	clock.Advance(2 * time.Minute)

	completion, err := s.Wait(ctx)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if completion.Reason != session.TimeExpired || saver.calls.Load() != 1 {
		t.Fatalf("expected a single time-expired finalize, got %+v (%d saves)", completion, saver.calls.Load())
	}
}

func TestCloseStopsSession(t *testing.T) {
	ctx := context.Background()
	saver := &countingSaver{}
	s := newTestSession(t, testQuiz(0), saver, newFakeClock())
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	s.Close()
	s.Close()
	if _, err := s.Navigate(ctx, session.Next); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected closed session to reject intents, got %v", err)
	}
	if saver.calls.Load() != 0 {
		t.Fatalf("close must not save")
	}
}

func TestParseDirection(t *testing.T) {
	if d, err := session.ParseDirection("next"); err != nil || d != session.Next {
		t.Fatalf("next: %v %v", d, err)
	}
	if d, err := session.ParseDirection("prev"); err != nil || d != session.Previous {
		t.Fatalf("prev: %v %v", d, err)
	}
	if _, err := session.ParseDirection("sideways"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func equalIDs(got, want []int64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
