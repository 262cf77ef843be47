package quiz

import (
	"errors"

	"github.com/pavelanni/emailtutor/internal/model"
)

var (
	ErrNoQuiz          = errors.New("no quiz has been generated")
	ErrEmptyQuiz       = errors.New("quiz has no questions")
	ErrComplete        = errors.New("quiz is complete")
	ErrNotComplete     = errors.New("quiz is not complete")
	ErrFeedbackPending = errors.New("answer the current question first")
	ErrUnknownOption   = errors.New("selected answer is not one of the options")
)

// State is the coarse position of a session in the quiz lifecycle.
type State string

const (
	StateNoQuiz     State = "no_quiz"
	StateInProgress State = "in_progress"
	StateComplete   State = "complete"
)

// Feedback is the outcome recorded for the current question.
type Feedback string

const (
	FeedbackNone      Feedback = ""
	FeedbackCorrect   Feedback = "correct"
	FeedbackIncorrect Feedback = "incorrect"
)

// Session is the quiz state of one user. It has a single writer; callers that share
// a Session across goroutines must serialise access themselves.
type Session struct {
	quiz         model.Quiz
	current      int
	score        int
	answered     bool
	showFeedback bool
	feedback     Feedback
	selected     int
	emailText    string
}

// NewSession returns a session in the NoQuiz state.
func NewSession() *Session {
	return &Session{}
}

// Start replaces the quiz and resets all counters.
func (s *Session) Start(q model.Quiz, emailText string) error {
	if len(q) == 0 {
		return ErrEmptyQuiz
	}
	*s = Session{quiz: q, emailText: emailText}
	return nil
}

// State reports where the session is in its lifecycle.
func (s *Session) State() State {
	switch {
	case s.quiz == nil:
		return StateNoQuiz
	case s.current >= len(s.quiz):
		return StateComplete
	default:
		return StateInProgress
	}
}

// Current returns the question being asked and its 0-based index.
func (s *Session) Current() (model.QuizQuestion, int, error) {
	switch s.State() {
	case StateNoQuiz:
		return model.QuizQuestion{}, 0, ErrNoQuiz
	case StateComplete:
		return model.QuizQuestion{}, s.current, ErrComplete
	}
	return s.quiz[s.current], s.current, nil
}

// SubmitIndex grades the option at position idx of the current question. Only
// the first submission per question counts; later ones return the recorded
// feedback unchanged.
func (s *Session) SubmitIndex(idx int) (Feedback, error) {
	q, _, err := s.Current()
	if err != nil {
		return FeedbackNone, err
	}
	if s.answered {
		return s.feedback, nil
	}
	if idx < 0 || idx >= len(q.Options) {
		return FeedbackNone, ErrUnknownOption
	}

	if idx == CorrectIndex(q) {
		s.score++
		s.feedback = FeedbackCorrect
	} else {
		s.feedback = FeedbackIncorrect
	}
	s.selected = idx
	s.answered = true
	s.showFeedback = true
	return s.feedback, nil
}

// Next advances to the following question once feedback has been shown.
func (s *Session) Next() error {
	if _, _, err := s.Current(); err != nil {
		return err
	}
	if !s.showFeedback {
		return ErrFeedbackPending
	}
	s.current++
	s.answered = false
	s.showFeedback = false
	s.feedback = FeedbackNone
	return nil
}

// Result returns the final score. It is only available once the quiz is complete.
func (s *Session) Result() (Result, error) {
	switch s.State() {
	case StateNoQuiz:
		return Result{}, ErrNoQuiz
	case StateInProgress:
		return Result{}, ErrNotComplete
	}
	return NewResult(s.score, len(s.quiz)), nil
}

// Score returns the number of correctly answered questions so far.
func (s *Session) Score() int { return s.score }

// Snapshot is a read-only view of a session for rendering.
type Snapshot struct {
	State        State
	Index        int
	Total        int
	Score        int
	Question     model.QuizQuestion
	Answered     bool
	// Selected is the submitted option index, or -1 before the question is answered.
	Selected     int
	ShowFeedback bool
	Feedback     Feedback
	EmailText    string
	Result       *Result
}

// Number is the 1-based question number.
func (s Snapshot) Number() int { return s.Index + 1 }

// InProgress reports whether a question is being asked.
func (s Snapshot) InProgress() bool { return s.State == StateInProgress }

// Complete reports whether the final evaluation should be shown.
func (s Snapshot) Complete() bool { return s.State == StateComplete }

// Correct reports whether the last submission was graded correct.
func (s Snapshot) Correct() bool { return s.Feedback == FeedbackCorrect }

// Snapshot copies the session state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		State:        s.State(),
		Index:        s.current,
		Total:        len(s.quiz),
		Score:        s.score,
		Answered:     s.answered,
		Selected:     -1,
		ShowFeedback: s.showFeedback,
		Feedback:     s.feedback,
		EmailText:    s.emailText,
	}
	switch snap.State {
	case StateInProgress:
		snap.Question = s.quiz[s.current]
		if s.answered {
			snap.Selected = s.selected
		}
	case StateComplete:
		res := NewResult(s.score, len(s.quiz))
		snap.Result = &res
	}
	return snap
}
