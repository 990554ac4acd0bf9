package proctor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/assessment"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// BootError is a terminal failure while loading or resuming a session.
type BootError struct {
	Code     response.ErrCode
	Target   string
	Redirect bool
	Err      error
}

func (e *BootError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *BootError) Unwrap() error { return e.Err }

// Restoring is pushed before resume validation so progress shows at once.
type Restoring struct {
	SessionID       string         `json:"session_id"`
	Answers         map[int]string `json:"answers"`
	MarkedForReview model.IndexSet `json:"marked_for_review"`
	CurrentIndex    int            `json:"current_index"`
}

// Recovery is the single action offered on a boot failure.
type Recovery struct {
	Target string `json:"target"`
}

// DefaultAttemptUserID returns a fresh identifier per attempt so that
// practice retakes are not rejected as duplicates.
func DefaultAttemptUserID(candidateID string) string {
	if candidateID == "" {
		return "user_" + uuid.NewString()
	}
	return candidateID + "_" + uuid.NewString()
}

// bootstrap resumes from a usable snapshot or fetches a fresh question set.
// fresh reports whether the session was newly created.
func (e *Engine) bootstrap(ctx context.Context) (data model.AssessmentSession, fresh bool, err error) {
	snap, err := e.deps.Snapshots.Load(ctx, e.key)
	if err != nil {
		e.log.Warn().Err(err).Msg("Snapshot unreadable, starting fresh")
		snap = nil
	}

	if snap.Usable() {
		data, err = e.resume(ctx, snap)
		return data, false, err
	}
	if snap != nil {
		e.deps.Writer.Clear(e.key)
	}

	data, err = e.fetch(ctx)
	return data, true, err
}

func (e *Engine) resume(ctx context.Context, snap *model.PersistedSnapshot) (model.AssessmentSession, error) {
	e.log.Info().Str("session_id", snap.SessionID).Msg("Resuming session from snapshot")
	e.deps.Platform.Notify(Notice{Kind: NoticeRestoring, Data: Restoring{
		SessionID:       snap.SessionID,
		Answers:         snap.Answers,
		MarkedForReview: snap.MarkedForReview,
		CurrentIndex:    snap.CurrentIndex,
	}})

	v, err := e.deps.Remote.ValidateSession(ctx, snap.SessionID)
	if err != nil {
		return model.AssessmentSession{}, &BootError{
			Code:   response.ErrLoadFailed,
			Target: TargetAssessments,
			Err:    fmt.Errorf("validate session: %w", err),
		}
	}
	if !v.Valid {
		e.deps.Writer.Clear(e.key)
		return model.AssessmentSession{}, &BootError{
			Code:     response.ErrSessionExpired,
			Target:   TargetAssessments,
			Redirect: true,
		}
	}

	remaining, ok := v.RemainingSeconds()
	if !ok {
		remaining = elapsedRemaining(snap.DurationSeconds, snap.StartedAt, e.deps.Clock.Now())
	}

	return model.AssessmentSession{
		SessionID:        snap.SessionID,
		AssessmentID:     e.assessmentID,
		AssessmentName:   snap.AssessmentName,
		Questions:        snap.Questions,
		DurationSeconds:  snap.DurationSeconds,
		RemainingSeconds: remaining,
		Answers:          snap.Answers,
		MarkedForReview:  snap.MarkedForReview,
		CurrentIndex:     snap.CurrentIndex,
		StartedAt:        snap.StartedAt,
	}, nil
}

func (e *Engine) fetch(ctx context.Context) (model.AssessmentSession, error) {
	userID := e.deps.NewUserID(e.candidateID)
	qs, err := e.deps.Remote.GetQuestions(ctx, e.assessmentID, userID)
	switch {
	case errors.Is(err, assessment.ErrAlreadySubmitted):
		e.deps.Writer.Clear(e.key)
		return model.AssessmentSession{}, &BootError{
			Code:     response.ErrAlreadySubmitted,
			Target:   TargetAssessments,
			Redirect: true,
			Err:      err,
		}
	case err != nil:
		return model.AssessmentSession{}, &BootError{
			Code:   response.ErrLoadFailed,
			Target: TargetAssessments,
			Err:    fmt.Errorf("get questions: %w", err),
		}
	}

	e.log.Info().
		Str("session_id", qs.SessionID).
		Str("user_id", userID).
		Int("questions", len(qs.Questions)).
		Msg("Fetched fresh question set")

	duration := qs.DurationSeconds()
	return model.AssessmentSession{
		SessionID:        qs.SessionID,
		AssessmentID:     e.assessmentID,
		AssessmentName:   qs.AssessmentName,
		Questions:        qs.Questions,
		DurationSeconds:  duration,
		RemainingSeconds: duration,
		StartedAt:        e.deps.Clock.Now(),
	}, nil
}

// elapsedRemaining estimates remaining time when the server omits it.
func elapsedRemaining(duration int, startedAt, now time.Time) int {
	if startedAt.IsZero() {
		return duration
	}
	left := duration - int(now.Sub(startedAt)/time.Second)
	if left < 0 {
		return 0
	}
	return left
}
