// Package quiz implements the quiz state machine: answer, reveal, advance,
// finish or quit.
package quiz

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	app_errors "github.com/kalambet/prepgen/internal/errors"
)

// NoSelection is passed to SubmitAnswer when the user picked nothing.
const NoSelection = -1

// Phase is where a quiz session stands.
type Phase int

const (
	// Inactive means no quiz has been started on this session.
	Inactive Phase = iota
	AwaitingAnswer
	AnswerRevealed
	// Finished is reached by answering the last question or by quitting.
	Finished
)

func (p Phase) String() string {
	switch p {
	case AwaitingAnswer:
		return "awaiting_answer"
	case AnswerRevealed:
		return "answer_revealed"
	case Finished:
		return "finished"
	default:
		return "inactive"
	}
}

// Feedback is shown after an answer is submitted.
type Feedback struct {
	IsCorrect         bool
	Explanation       string
	CorrectOptionText string
}

// Result is produced once, when the last question is advanced past.
type Result struct {
	SessionID  string
	SourceID   string
	SourceName string
	Score      int
	Total      int
	Percentage int
}

// Percentage returns 100*score/total rounded half up. Zero total gives zero.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*score + total) / (2 * total)
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	ID         string
	SourceID   string
	SourceName string
	Index      int
	Total      int
	Score      int
	Phase      Phase
}

// Session is safe for concurrent use.
type Session struct {
	mu         sync.Mutex
	id         string
	questions  []Question
	index      int
	score      int
	sourceID   string
	sourceName string
	phase      Phase
}

// NewSession returns an Inactive session.
func NewSession() *Session {
	return &Session{}
}

// Start replaces any quiz in progress. It returns the new session id.
func (s *Session) Start(questions []Question, sourceID, sourceName string) (string, error) {
	if len(questions) == 0 {
		return "", app_errors.ErrEmptyQuiz
	}
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return "", fmt.Errorf("question %d: %w", i+1, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = uuid.NewString()
	s.questions = append([]Question(nil), questions...)
	s.index = 0
	s.score = 0
	s.sourceID = sourceID
	s.sourceName = sourceName
	s.phase = AwaitingAnswer
	return s.id, nil
}

// SubmitAnswer grades selected against the current question.
func (s *Session) SubmitAnswer(selected int) (Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != AwaitingAnswer {
		return Feedback{}, fmt.Errorf("submit answer while %s: %w", s.phase, app_errors.ErrInvalidPhase)
	}
	q := s.questions[s.index]
	if selected == NoSelection {
		return Feedback{}, app_errors.Validationf("please select an answer")
	}
	if selected < 0 || selected >= len(q.Options) {
		return Feedback{}, app_errors.Validationf("option %d does not exist", selected+1)
	}

	fb := Feedback{
		IsCorrect:         selected == q.CorrectOptionIndex,
		CorrectOptionText: q.CorrectOption(),
	}
	if q.Explanation != nil {
		fb.Explanation = *q.Explanation
	}
	if fb.IsCorrect {
		s.score++
	}
	s.phase = AnswerRevealed
	return fb, nil
}

// Advance moves past a revealed answer. After the last question it returns
// the final Result and the session is emptied; otherwise it returns nil.
func (s *Session) Advance() (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != AnswerRevealed {
		return nil, fmt.Errorf("advance while %s: %w", s.phase, app_errors.ErrInvalidPhase)
	}
	s.index++
	if s.index < len(s.questions) {
		s.phase = AwaitingAnswer
		return nil, nil
	}

	res := &Result{
		SessionID:  s.id,
		SourceID:   s.sourceID,
		SourceName: s.sourceName,
		Score:      s.score,
		Total:      len(s.questions),
		Percentage: Percentage(s.score, len(s.questions)),
	}
	s.reset(Finished)
	return res, nil
}

// Quit abandons the quiz in progress without producing a result. The session
// is emptied and left Finished.
func (s *Session) Quit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != AwaitingAnswer && s.phase != AnswerRevealed {
		return fmt.Errorf("quit while %s: %w", s.phase, app_errors.ErrInvalidPhase)
	}
	s.reset(Finished)
	return nil
}

func (s *Session) reset(p Phase) {
	s.id = ""
	s.questions = nil
	s.index = 0
	s.score = 0
	s.sourceID = ""
	s.sourceName = ""
	s.phase = p
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Current returns the question being answered or revealed.
func (s *Session) Current() (Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != AwaitingAnswer && s.phase != AnswerRevealed {
		return Question{}, false
	}
	return s.questions[s.index], true
}

// Progress returns the zero-based index and the number of questions.
func (s *Session) Progress() (index, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index, len(s.questions)
}

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:         s.id,
		SourceID:   s.sourceID,
		SourceName: s.sourceName,
		Index:      s.index,
		Total:      len(s.questions),
		Score:      s.score,
		Phase:      s.phase,
	}
}
