package proctor

import (
	"context"
	"errors"
	"fmt"

	"github.com/stemsi/exstem-proctor/internal/assessment"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// ErrSubmissionRejected is reported when submit_answers neither succeeds
// nor returns a score.
var ErrSubmissionRejected = errors.New("submission was not accepted")

// Confirmation is the payload of a confirmation_required notice.
type Confirmation struct {
	Unanswered int `json:"unanswered"`
}

// requestSubmit starts a submission unless one is already in flight. An
// auto-submit suppressed by a manual one in flight is issued when that
// manual attempt fails; it is never issued twice.
func (s *Session) requestSubmit(auto, confirmed bool) []Effect {
	if auto && s.autoIssued {
		return nil
	}
	if s.phase != model.PhaseActive {
		if auto {
			return nil
		}
		return s.blocked()
	}
	if s.submitting {
		s.log.Debug().Bool("auto", auto).Msg("Submission already in flight")
		if auto {
			return nil
		}
		return []Effect{Notify{errorNotice(response.ErrSubmissionInProgress)}}
	}

	if !auto && !confirmed && !s.expired {
		if n := s.data.Unanswered(); n > 0 {
			return []Effect{Notify{Notice{
				Kind:    NoticeConfirmation,
				Code:    response.ErrConfirmationRequired,
				Message: response.GetMessage(response.ErrConfirmationRequired),
				Data:    Confirmation{Unanswered: n},
			}}}
		}
	}

	s.submitting = true
	if auto {
		s.autoIssued = true
	}
	s.log.Info().Bool("auto", auto).Int("answered", len(s.data.Answers)).Msg("Submitting answers")
	return []Effect{
		StartSubmission{
			SessionID: s.data.SessionID,
			Answers:   s.data.CopyAnswers(),
			Auto:      auto,
		},
		s.stateNotice(),
	}
}

func (s *Session) finishSubmission(e SubmissionFinished) []Effect {
	s.submitting = false
	if s.phase != model.PhaseActive {
		s.log.Warn().
			Str("phase", string(s.phase)).
			Str("outcome", string(e.Outcome)).
			Msg("Submission finished after session ended")
		return nil
	}

	switch e.Outcome {
	case SubmitSucceeded:
		s.phase = model.PhaseSubmitted
		s.result = &model.SubmissionResult{
			Score:          e.Score,
			TotalQuestions: len(s.data.Questions),
			AssessmentName: s.data.AssessmentName,
		}
		s.log.Info().Bool("auto", e.Auto).Msg("Submission accepted")

		effects := s.shutdown()
		return append(effects,
			ClearSnapshot{},
			Audit{Kind: model.AuditSubmitted, Detail: map[string]any{"auto": e.Auto, "score": e.Score}},
			Notify{Notice{Kind: NoticeResult, Data: *s.result}},
			s.stateNotice(),
			Issue{PlatformCommand{Name: CommandRedirect, Target: TargetResults}},
		)

	case SubmitExpired:
		s.phase = model.PhaseExpired
		s.log.Info().Msg("Session expired at submission")

		effects := s.shutdown()
		return append(effects,
			ClearSnapshot{},
			Audit{Kind: model.AuditExpired, Detail: map[string]any{"auto": e.Auto}},
			Notify{errorNotice(response.ErrSessionExpired)},
			s.stateNotice(),
			Issue{PlatformCommand{Name: CommandRedirect, Target: TargetAssessments}},
		)

	default:
		s.log.Error().Err(e.Err).Bool("auto", e.Auto).Msg("Submission failed")
		n := errorNotice(response.ErrSubmitFailed)
		n.Data = map[string]bool{"retryable": true}
		effects := []Effect{Notify{n}}
		if s.expired && !s.autoIssued {
			return append(effects, s.requestSubmit(true, true)...)
		}
		return append(effects, s.stateNotice())
	}
}

// Submit runs the pre-submit validation and the submission itself.
func Submit(ctx context.Context, remote assessment.Service, req StartSubmission) SubmissionFinished {
	done := SubmissionFinished{Auto: req.Auto}

	v, err := remote.ValidateSession(ctx, req.SessionID)
	if err != nil {
		done.Outcome, done.Err = SubmitFailed, fmt.Errorf("validate session: %w", err)
		return done
	}
	if !v.Valid {
		done.Outcome = SubmitExpired
		return done
	}

	receipt, err := remote.SubmitAnswers(ctx, req.SessionID, req.Answers)
	if err != nil {
		done.Outcome, done.Err = SubmitFailed, fmt.Errorf("submit answers: %w", err)
		return done
	}
	if !receipt.Accepted() {
		done.Outcome, done.Err = SubmitFailed, ErrSubmissionRejected
		return done
	}

	done.Outcome, done.Score = SubmitSucceeded, receipt.Score
	return done
}
