// Package assessment is the client of the remote assessment service.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Action is the request discriminator understood by the remote service.
type Action string

const (
	ActionGetQuestions    Action = "get_questions"
	ActionValidateSession Action = "validate_session"
	ActionSubmitAnswers   Action = "submit_answers"
)

var (
	// ErrAlreadySubmitted is returned by GetQuestions when the attempt has
	// already been submitted.
	ErrAlreadySubmitted = errors.New("assessment already submitted")
	// ErrInvalidResponse marks a response that could not be decoded.
	ErrInvalidResponse = errors.New("invalid assessment service response")
	// ErrTimeout marks a call that exceeded the client timeout.
	ErrTimeout = errors.New("assessment service timeout")
)

// RemoteError carries an {error} payload returned by the service.
type RemoteError struct {
	Action  Action
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// Service is the contract of the remote assessment service.
type Service interface {
	GetQuestions(ctx context.Context, assessmentID, userID string) (*QuestionSet, error)
	ValidateSession(ctx context.Context, sessionID string) (*Validation, error)
	SubmitAnswers(ctx context.Context, sessionID string, answers map[int]string) (*SubmitReceipt, error)
}

// QuestionSet is the get_questions response.
type QuestionSet struct {
	SessionID       string           `json:"session_id"`
	Questions       []model.Question `json:"questions"`
	AssessmentName  string           `json:"assessment_name"`
	DurationMinutes float64          `json:"duration_minutes"`
}

// DurationSeconds converts the configured duration to whole seconds.
func (q *QuestionSet) DurationSeconds() int {
	return int(math.Round(q.DurationMinutes * 60))
}

// Validation is the validate_session response. RemainingTime is in seconds.
type Validation struct {
	Valid         bool     `json:"valid"`
	RemainingTime *float64 `json:"remaining_time,omitempty"`
}

// RemainingSeconds returns the server's remaining time, if reported.
func (v *Validation) RemainingSeconds() (int, bool) {
	if v.RemainingTime == nil {
		return 0, false
	}
	s := int(math.Floor(*v.RemainingTime))
	if s < 0 {
		s = 0
	}
	return s, true
}

// SubmitReceipt is the submit_answers response.
type SubmitReceipt struct {
	Success bool     `json:"success"`
	Score   *float64 `json:"score,omitempty"`
}

// Accepted reports whether the service took the submission: either an
// explicit success flag or the presence of a score.
func (r *SubmitReceipt) Accepted() bool {
	return r.Success || r.Score != nil
}
