package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/scoring"
)

// ResultSaver persists a finalized attempt and returns the id-bearing copy.
type ResultSaver interface {
	SaveQuizResult(ctx context.Context, result domain.QuizResult) (domain.QuizResult, error)
}

// Options tune a session. The zero value ticks once per second against the wall clock.
type Options struct {
	// TickInterval drives the internal ticker. Negative disables it and
	// leaves ticking to the caller.
	TickInterval time.Duration
	SaveTimeout  time.Duration
	Clock        func() time.Time
	Logger       *slog.Logger
}

const (
	defaultTickInterval = time.Second
	defaultSaveTimeout  = 10 * time.Second
	eventBuffer         = 8

	lowTimeThreshold      = 3 * time.Minute
	criticalTimeThreshold = time.Minute
)

func (o Options) withDefaults() Options {
	if o.TickInterval == 0 {
		o.TickInterval = defaultTickInterval
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = defaultSaveTimeout
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

var errClosed = fmt.Errorf("%w: session closed", domain.ErrInvalidTransition)

type intentKind int

const (
	intentStart intentKind = iota
	intentNavigate
	intentSelect
	intentTick
	intentSubmit
	intentCancel
	intentSnapshot
)

type intent struct {
	kind          intentKind
	direction     Direction
	questionIndex int
	optionID      int64
	reply         chan reply
}

type reply struct {
	snapshot   Snapshot
	completion Completion
	err        error
}

// Session is one respondent's attempt at one quiz. A single goroutine owns the
// attempt state; user intents and timer ticks reach it through a channel.
type Session struct {
	id     string
	userID int64
	quiz   domain.Quiz
	saver  ResultSaver
	opts   Options
	log    *slog.Logger

	intents  chan intent
	events   chan Event
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}

	// owned by run
	state     State
	index     int
	answers   [][]int64
	exclusive []bool
	startedAt time.Time
	finalized bool

	mu         sync.RWMutex
	last       Snapshot
	completion Completion
	outcome    error
}

// New creates a session in NotStarted and launches its owner goroutine.
func New(id string, userID int64, quiz domain.Quiz, saver ResultSaver, opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		id:      id,
		userID:  userID,
		quiz:    quiz,
		saver:   saver,
		opts:    opts,
		log:     opts.Logger.With("session_id", id, "quiz_id", quiz.ID, "user_id", userID),
		intents: make(chan intent),
		events:  make(chan Event, eventBuffer),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		state:   NotStarted,
	}
	s.last = s.snapshot()
	go s.run()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) UserID() int64 { return s.userID }

func (s *Session) QuizID() int64 { return s.quiz.ID }

// Events delivers state changes. Slow readers lose intermediate events but the
// terminal event is always the last one before the channel closes.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed once the session reaches a terminal state or is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Last returns the most recent snapshot without going through the owner.
func (s *Session) Last() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Start begins the attempt. An empty quiz is rejected and the session stays NotStarted.
func (s *Session) Start(ctx context.Context) (Snapshot, error) {
	r, err := s.call(ctx, intent{kind: intentStart})
	return r.snapshot, err
}

// Navigate moves the current question by one, clamped to the quiz bounds.
func (s *Session) Navigate(ctx context.Context, direction Direction) (Snapshot, error) {
	r, err := s.call(ctx, intent{kind: intentNavigate, direction: direction})
	return r.snapshot, err
}

// SelectOption replaces the answer of a single-answer question or toggles the
// option in a multi-answer question.
func (s *Session) SelectOption(ctx context.Context, questionIndex int, optionID int64) (Snapshot, error) {
	r, err := s.call(ctx, intent{kind: intentSelect, questionIndex: questionIndex, optionID: optionID})
	return r.snapshot, err
}

// Tick recomputes the clock and expires the attempt when its time is up.
// Ticks after the session has finished are ignored.
func (s *Session) Tick(ctx context.Context) (Snapshot, error) {
	r, err := s.call(ctx, intent{kind: intentTick})
	if errors.Is(err, errClosed) {
		return s.Last(), nil
	}
	return r.snapshot, err
}

// RequestSubmit finalizes the attempt. Unanswered questions do not block it.
func (s *Session) RequestSubmit(ctx context.Context) (Completion, error) {
	r, err := s.call(ctx, intent{kind: intentSubmit})
	return r.completion, err
}

// Cancel abandons an in-progress attempt without saving it.
func (s *Session) Cancel(ctx context.Context) error {
	_, err := s.call(ctx, intent{kind: intentCancel})
	return err
}

// Snapshot reports the current view; after the session is done it returns the final one.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	r, err := s.call(ctx, intent{kind: intentSnapshot})
	if errors.Is(err, errClosed) {
		return s.Last(), nil
	}
	return r.snapshot, err
}

// Wait blocks until the session ends and returns how it ended.
func (s *Session) Wait(ctx context.Context) (Completion, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		return Completion{}, ctx.Err()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completion, s.outcome
}

// Close stops the owner goroutine without saving. Safe to call more than once.
func (s *Session) Close() {
	s.quitOnce.Do(func() { close(s.quit) })
	<-s.done
}

func (s *Session) call(ctx context.Context, in intent) (reply, error) {
	in.reply = make(chan reply, 1)
	select {
	case s.intents <- in:
	case <-s.done:
		return reply{}, errClosed
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
	select {
	case r := <-in.reply:
		return r, r.err
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}

func (s *Session) run() {
	var ticker *time.Ticker
	var ticks <-chan time.Time
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		close(s.events)
		close(s.done)
	}()

	for {
		select {
		case in := <-s.intents:
			r := s.handle(in)
			s.publish()
			in.reply <- r
			if in.kind == intentStart && r.err == nil && s.opts.TickInterval > 0 {
				ticker = time.NewTicker(s.opts.TickInterval)
				ticks = ticker.C
			}
		case <-ticks:
			s.tick()
			s.publish()
		case <-s.quit:
			if !s.state.Terminal() {
				s.mu.Lock()
				s.outcome = errClosed
				s.mu.Unlock()
			}
			return
		}
		if s.state.Terminal() {
			return
		}
	}
}

func (s *Session) publish() {
	snap := s.snapshot()
	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()
}

func (s *Session) handle(in intent) reply {
	switch in.kind {
	case intentStart:
		return s.start()
	case intentNavigate:
		return s.navigate(in.direction)
	case intentSelect:
		return s.selectOption(in.questionIndex, in.optionID)
	case intentTick:
		return s.tick()
	case intentSubmit:
		return s.submit()
	case intentCancel:
		return s.cancel()
	default:
		return reply{snapshot: s.snapshot()}
	}
}

func (s *Session) start() reply {
	if s.state != NotStarted {
		return reply{snapshot: s.snapshot(), err: domain.ErrInvalidTransition}
	}
	if len(s.quiz.Questions) == 0 {
		return reply{snapshot: s.snapshot(), err: domain.ErrEmptyQuiz}
	}

	s.answers = make([][]int64, len(s.quiz.Questions))
	s.exclusive = make([]bool, len(s.quiz.Questions))
	for i, q := range s.quiz.Questions {
		s.answers[i] = []int64{}
		s.exclusive[i] = !q.MultiSelect()
	}
	s.index = 0
	s.startedAt = s.opts.Clock()
	s.state = InProgress
	s.log.Info("quiz attempt started", "questions", len(s.quiz.Questions), "time_limit_minutes", s.quiz.TimeLimitMinutes)

	snap := s.snapshot()
	s.emit(Event{Type: EventSnapshot, Snapshot: snap})
	return reply{snapshot: snap}
}

func (s *Session) navigate(direction Direction) reply {
	if s.state != InProgress {
		return reply{snapshot: s.snapshot(), err: domain.ErrInvalidTransition}
	}
	next := s.index + int(direction)
	if next < 0 {
		next = 0
	}
	if last := len(s.quiz.Questions) - 1; next > last {
		next = last
	}
	s.index = next

	snap := s.snapshot()
	s.emit(Event{Type: EventSnapshot, Snapshot: snap})
	return reply{snapshot: snap}
}

func (s *Session) selectOption(questionIndex int, optionID int64) reply {
	if s.state != InProgress {
		return reply{snapshot: s.snapshot(), err: domain.ErrInvalidTransition}
	}
	if questionIndex < 0 || questionIndex >= len(s.quiz.Questions) {
		return reply{snapshot: s.snapshot(), err: domain.ErrQuestionNotFound}
	}
	if !s.quiz.Questions[questionIndex].HasOption(optionID) {
		return reply{snapshot: s.snapshot(), err: domain.ErrOptionNotFound}
	}

	if s.exclusive[questionIndex] {
		s.answers[questionIndex] = []int64{optionID}
	} else {
		s.answers[questionIndex] = toggle(s.answers[questionIndex], optionID)
	}

	snap := s.snapshot()
	s.emit(Event{Type: EventSnapshot, Snapshot: snap})
	return reply{snapshot: snap}
}

func toggle(selected []int64, optionID int64) []int64 {
	out := make([]int64, 0, len(selected)+1)
	found := false
	for _, id := range selected {
		if id == optionID {
			found = true
			continue
		}
		out = append(out, id)
	}
	if !found {
		out = append(out, optionID)
	}
	return out
}

func (s *Session) tick() reply {
	if s.state != InProgress {
		return reply{snapshot: s.snapshot()}
	}
	if s.quiz.TimeLimitMinutes > 0 && s.remaining() <= 0 {
		s.log.Info("quiz attempt time expired")
		completion, err := s.finalize(TimeExpired)
		return reply{snapshot: s.snapshot(), completion: completion, err: err}
	}
	snap := s.snapshot()
	s.emit(Event{Type: EventTick, Snapshot: snap})
	return reply{snapshot: snap}
}

func (s *Session) submit() reply {
	if s.state != InProgress {
		return reply{snapshot: s.snapshot(), err: domain.ErrInvalidTransition}
	}
	completion, err := s.finalize(Submitted)
	return reply{snapshot: s.snapshot(), completion: completion, err: err}
}

func (s *Session) cancel() reply {
	if s.state != InProgress {
		return reply{snapshot: s.snapshot(), err: domain.ErrInvalidTransition}
	}
	s.state = Cancelled
	s.mu.Lock()
	s.outcome = domain.ErrSessionCancelled
	s.mu.Unlock()
	s.log.Info("quiz attempt cancelled")

	snap := s.snapshot()
	s.emit(Event{Type: EventCancelled, Snapshot: snap, Err: domain.ErrSessionCancelled})
	return reply{snapshot: snap}
}

// finalize scores and saves the attempt. It runs at most once per session.
func (s *Session) finalize(reason State) (Completion, error) {
	if s.finalized {
		s.log.Error("finalize called twice", "reason", reason.String())
		return Completion{}, domain.ErrDoubleFinalize
	}
	s.finalized = true
	s.state = reason

	now := s.opts.Clock()
	byQuestion := make(map[int64][]int64, len(s.quiz.Questions))
	unanswered := 0
	for i, q := range s.quiz.Questions {
		byQuestion[q.ID] = s.answers[i]
		if len(s.answers[i]) == 0 {
			unanswered++
		}
	}
	result := scoring.ComputeResult(s.quiz, byQuestion)
	result.UserID = s.userID
	result.CompletedAt = now
	result.DurationSeconds = int64(now.Sub(s.startedAt) / time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SaveTimeout)
	saved, err := s.saver.SaveQuizResult(ctx, result)
	cancel()

	snap := s.snapshot()
	if err != nil {
		s.log.Error("quiz result not saved", "reason", reason.String(), "err", err)
		s.mu.Lock()
		s.outcome = err
		s.mu.Unlock()
		s.emit(Event{Type: EventFailed, Snapshot: snap, Err: err})
		return Completion{}, err
	}

	saved.QuizTitle = s.quiz.Title
	completion := Completion{
		Reason:     reason,
		Result:     saved,
		Percentage: scoring.Percentage(saved),
		Unanswered: unanswered,
	}
	s.log.Info("quiz attempt finalized",
		"reason", reason.String(),
		"result_id", saved.ID,
		"score", saved.Score,
		"max_score", saved.MaxScore,
		"unanswered", unanswered,
	)
	s.mu.Lock()
	s.completion = completion
	s.mu.Unlock()
	s.emit(Event{Type: EventCompleted, Snapshot: snap, Completion: &completion})
	return completion, nil
}

// emit never blocks the owner: when the buffer is full the oldest event is dropped.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
		return
	default:
	}
	select {
	case <-s.events:
	default:
	}
	select {
	case s.events <- ev:
	default:
	}
}

func (s *Session) elapsed() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	if d := s.opts.Clock().Sub(s.startedAt); d > 0 {
		return d
	}
	return 0
}

func (s *Session) remaining() time.Duration {
	return s.quiz.TimeLimit() - s.elapsed()
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:   s.id,
		QuizID:      s.quiz.ID,
		QuizTitle:   s.quiz.Title,
		State:       s.state,
		Index:       s.index,
		Total:       len(s.quiz.Questions),
		Selected:    []int64{},
		TimeLimited: s.quiz.TimeLimitMinutes > 0,
	}
	if s.index < len(s.quiz.Questions) {
		snap.Question = NewQuestionView(s.quiz.Questions[s.index])
	}
	if s.index < len(s.answers) {
		snap.Selected = append(snap.Selected, s.answers[s.index]...)
		sort.Slice(snap.Selected, func(i, j int) bool { return snap.Selected[i] < snap.Selected[j] })
	}
	for _, a := range s.answers {
		if len(a) > 0 {
			snap.Answered++
		}
	}

	snap.ElapsedSeconds = int64(s.elapsed() / time.Second)
	if snap.TimeLimited {
		remaining := s.remaining()
		if remaining < 0 {
			remaining = 0
		}
		snap.RemainingSeconds = int64(remaining / time.Second)
		if s.state == InProgress {
			switch {
			case remaining < criticalTimeThreshold:
				snap.Warning = WarningCritical
			case remaining < lowTimeThreshold:
				snap.Warning = WarningLow
			}
		}
	}
	return snap
}
