package proctor

import (
	"errors"

	"github.com/stemsi/exstem-proctor/internal/model"
)

var (
	ErrMalformedLetter = errors.New("answer must be a single letter A-Z")
	ErrNegativeIndex   = errors.New("question index must not be negative")
)

// ApplyAnswer sets answers[index] = letter, overwriting any prior value.
func ApplyAnswer(s *model.AssessmentSession, index int, letter string) error {
	if index < 0 {
		return ErrNegativeIndex
	}
	if !model.IsAnswerLetter(letter) {
		return ErrMalformedLetter
	}
	if s.Answers == nil {
		s.Answers = make(map[int]string)
	}
	s.Answers[index] = letter
	return nil
}

// ApplyToggleReview flips membership of index in the review set and returns the
// new membership.
func ApplyToggleReview(s *model.AssessmentSession, index int) (bool, error) {
	if index < 0 {
		return false, ErrNegativeIndex
	}
	if s.MarkedForReview == nil {
		s.MarkedForReview = make(model.IndexSet)
	}
	return s.MarkedForReview.Toggle(index), nil
}

// SetCurrentIndex moves to question i, clamped into [0, len(questions)).
func SetCurrentIndex(s *model.AssessmentSession, i int) int {
	s.CurrentIndex = clampIndex(i, len(s.Questions))
	return s.CurrentIndex
}

func clampIndex(i, n int) int {
	if n <= 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
