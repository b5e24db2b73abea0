package quiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app_errors "github.com/kalambet/prepgen/internal/errors"
)

func ptr(s string) *string { return &s }

func threeQuestions() []Question {
	return []Question{
		{Prompt: "Q1", Options: []string{"a", "b", "c"}, CorrectOptionIndex: 0, Explanation: ptr("because a")},
		{Prompt: "Q2", Options: []string{"a", "b"}, CorrectOptionIndex: 1},
		{Prompt: "Q3", Options: []string{"a", "b", "c", "d"}, CorrectOptionIndex: 3},
	}
}

func checkInvariants(t *testing.T, s *Session) {
	t.Helper()
	snap := s.Snapshot()
	assert.GreaterOrEqual(t, snap.Score, 0)
	assert.LessOrEqual(t, snap.Score, snap.Total)
	assert.GreaterOrEqual(t, snap.Index, 0)
	assert.LessOrEqual(t, snap.Index, snap.Total)
	if snap.Total > 0 && snap.Index == snap.Total {
		assert.Equal(t, Finished, snap.Phase)
	}
}

func TestFullQuiz_TwoOfThree(t *testing.T) {
	s := NewSession()
	id, err := s.Start(threeQuestions(), "abc", "Bio.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	answers := []int{0, 0, 3}
	var res *Result
	for i, a := range answers {
		checkInvariants(t, s)
		require.Equal(t, AwaitingAnswer, s.Phase())
		_, err := s.SubmitAnswer(a)
		require.NoError(t, err)
		checkInvariants(t, s)

		res, err = s.Advance()
		require.NoError(t, err)
		if i < len(answers)-1 {
			assert.Nil(t, res)
		}
	}

	require.NotNil(t, res)
	assert.Equal(t, Result{SessionID: id, SourceID: "abc", SourceName: "Bio.pdf", Score: 2, Total: 3, Percentage: 67}, *res)
	assert.Equal(t, Finished, s.Phase())
	assert.Equal(t, Snapshot{Phase: Finished}, s.Snapshot())
	checkInvariants(t, s)
}

func TestSubmitAnswer_Feedback(t *testing.T) {
	s := NewSession()
	_, err := s.Start(threeQuestions(), "abc", "Bio.pdf")
	require.NoError(t, err)

	fb, err := s.SubmitAnswer(2)
	require.NoError(t, err)
	assert.False(t, fb.IsCorrect)
	assert.Equal(t, "a", fb.CorrectOptionText)
	assert.Equal(t, "because a", fb.Explanation)
	assert.Equal(t, 0, s.Snapshot().Score)
}

func TestSubmitAnswer_TwiceRejected(t *testing.T) {
	s := NewSession()
	_, err := s.Start(threeQuestions(), "abc", "Bio.pdf")
	require.NoError(t, err)

	_, err = s.SubmitAnswer(0)
	require.NoError(t, err)
	_, err = s.SubmitAnswer(0)
	assert.ErrorIs(t, err, app_errors.ErrInvalidPhase)
	assert.Equal(t, 1, s.Snapshot().Score)
}

func TestSubmitAnswer_NoSelection(t *testing.T) {
	s := NewSession()
	_, err := s.Start(threeQuestions(), "abc", "Bio.pdf")
	require.NoError(t, err)
	before := s.Snapshot()

	_, err = s.SubmitAnswer(NoSelection)
	assert.ErrorIs(t, err, app_errors.ErrValidation)
	_, err = s.SubmitAnswer(7)
	assert.ErrorIs(t, err, app_errors.ErrValidation)
	assert.Equal(t, before, s.Snapshot())
}

func TestAdvance_BeforeAnswer(t *testing.T) {
	s := NewSession()
	_, err := s.Start(threeQuestions(), "abc", "Bio.pdf")
	require.NoError(t, err)

	_, err = s.Advance()
	assert.ErrorIs(t, err, app_errors.ErrInvalidPhase)
	idx, total := s.Progress()
	assert.Equal(t, 0, idx)
	assert.Equal(t, 3, total)
}

func TestQuit(t *testing.T) {
	s := NewSession()
	assert.ErrorIs(t, s.Quit(), app_errors.ErrInvalidPhase)

	_, err := s.Start(threeQuestions(), "abc", "Bio.pdf")
	require.NoError(t, err)
	_, err = s.SubmitAnswer(0)
	require.NoError(t, err)

	require.NoError(t, s.Quit())
	assert.Equal(t, Snapshot{Phase: Finished}, s.Snapshot())
	index, total := s.Progress()
	assert.Equal(t, total, index)
	_, ok := s.Current()
	assert.False(t, ok)
	assert.ErrorIs(t, s.Quit(), app_errors.ErrInvalidPhase)
	_, err = s.SubmitAnswer(0)
	assert.ErrorIs(t, err, app_errors.ErrInvalidPhase)

	_, err = s.Start(threeQuestions(), "abc", "Bio.pdf")
	require.NoError(t, err)
	assert.Equal(t, AwaitingAnswer, s.Phase())
}

func TestStart_Empty(t *testing.T) {
	s := NewSession()
	_, err := s.Start(nil, "abc", "Bio.pdf")
	assert.ErrorIs(t, err, app_errors.ErrEmptyQuiz)
	assert.Equal(t, Inactive, s.Phase())
}

func TestStart_EmptyKeepsPreviousQuiz(t *testing.T) {
	s := NewSession()
	id, err := s.Start(threeQuestions(), "abc", "Bio.pdf")
	require.NoError(t, err)

	_, err = s.Start([]Question{}, "def", "Chem.docx")
	assert.ErrorIs(t, err, app_errors.ErrEmptyQuiz)
	assert.Equal(t, id, s.Snapshot().ID)
	assert.Equal(t, "abc", s.Snapshot().SourceID)
}

func TestStart_InvalidQuestions(t *testing.T) {
	tests := []struct {
		name string
		q    Question
	}{
		{"no prompt", Question{Options: []string{"a", "b"}}},
		{"one option", Question{Prompt: "Q", Options: []string{"a"}}},
		{"blank option", Question{Prompt: "Q", Options: []string{"a", ""}}},
		{"index too large", Question{Prompt: "Q", Options: []string{"a", "b"}, CorrectOptionIndex: 2}},
		{"negative index", Question{Prompt: "Q", Options: []string{"a", "b"}, CorrectOptionIndex: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession()
			_, err := s.Start([]Question{tt.q}, "abc", "Bio.pdf")
			assert.ErrorIs(t, err, app_errors.ErrValidation)
			assert.Equal(t, Inactive, s.Phase())
		})
	}
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 67, Percentage(2, 3))
	assert.Equal(t, 33, Percentage(1, 3))
	assert.Equal(t, 13, Percentage(1, 8))
	assert.Equal(t, 100, Percentage(5, 5))
	assert.Equal(t, 0, Percentage(0, 4))
	assert.Equal(t, 0, Percentage(0, 0))
}
