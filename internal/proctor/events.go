package proctor

import (
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// Event is one discrete input to Session.Handle.
type Event interface{ isEvent() }

// Tick is one countdown period.
type Tick struct{}

// FrameSample is one raw face count taken on the sampling cadence.
type FrameSample struct{ Faces int }

// VisibilityChanged reports a page-visibility transition.
type VisibilityChanged struct{ Hidden bool }

// FullscreenChanged reports a fullscreen transition.
type FullscreenChanged struct{ Active bool }

// SuppressedAction reports a blocked copy/paste/cut/context-menu attempt.
type SuppressedAction struct{ Kind string }

// SelectAnswer sets the answer letter for a question.
type SelectAnswer struct {
	Index  int
	Letter string
}

// ToggleReview flips the review flag of a question.
type ToggleReview struct{ Index int }

// Navigate moves the displayed question.
type Navigate struct{ Index int }

// SubmitRequested asks for submission. Auto is set by timer expiry;
// Confirmed is the candidate's acknowledgement of unanswered questions.
type SubmitRequested struct {
	Auto      bool
	Confirmed bool
}

// SubmitOutcome classifies a finished submission attempt.
type SubmitOutcome string

const (
	SubmitSucceeded SubmitOutcome = "succeeded"
	SubmitExpired   SubmitOutcome = "expired"
	SubmitFailed    SubmitOutcome = "failed"
)

// SubmissionFinished carries the result of a StartSubmission effect.
type SubmissionFinished struct {
	Auto    bool
	Outcome SubmitOutcome
	Score   *float64
	Err     error
}

// Abandon ends the session at the candidate's request.
type Abandon struct{}

func (Tick) isEvent()               {}
func (FrameSample) isEvent()        {}
func (VisibilityChanged) isEvent()  {}
func (FullscreenChanged) isEvent()  {}
func (SuppressedAction) isEvent()   {}
func (SelectAnswer) isEvent()       {}
func (ToggleReview) isEvent()       {}
func (Navigate) isEvent()           {}
func (SubmitRequested) isEvent()    {}
func (SubmissionFinished) isEvent() {}
func (Abandon) isEvent()            {}

// Effect is an instruction produced by Session.Handle for the Engine.
type Effect interface{ isEffect() }

// PersistSnapshot writes the snapshot to the local store (fire-and-forget).
type PersistSnapshot struct{ Snapshot model.PersistedSnapshot }

// ClearSnapshot removes the stored snapshot.
type ClearSnapshot struct{}

// StartSubmission runs validate_session then submit_answers.
type StartSubmission struct {
	SessionID string
	Answers   map[int]string
	Auto      bool
}

// HaltTimer stops the countdown ticker.
type HaltTimer struct{}

// StopSampling stops the frame-sampling ticker.
type StopSampling struct{}

// Issue sends a command to the candidate's platform surface.
type Issue struct{ Command PlatformCommand }

// Notify pushes a notice to the candidate.
type Notify struct{ Notice Notice }

// Audit records an integrity or lifecycle event.
type Audit struct {
	Kind   model.AuditKind
	Detail map[string]any
}

func (PersistSnapshot) isEffect() {}
func (ClearSnapshot) isEffect()   {}
func (StartSubmission) isEffect() {}
func (HaltTimer) isEffect()       {}
func (StopSampling) isEffect()    {}
func (Issue) isEffect()           {}
func (Notify) isEffect()          {}
func (Audit) isEffect()           {}

// Command names a platform-level action.
type Command string

const (
	CommandEnableLockdown Command = "enable_lockdown"
	CommandExitFullscreen Command = "exit_fullscreen"
	CommandReleaseCapture Command = "release_capture"
	CommandRedirect       Command = "redirect"
)

// Redirect targets.
const (
	TargetDashboard   = "dashboard"
	TargetAssessments = "assessments"
	TargetResults     = "results"
)

// PlatformCommand is a command for the browser. Target is set for redirects.
type PlatformCommand struct {
	Name   Command `json:"name"`
	Target string  `json:"target,omitempty"`
}

// NoticeKind names a candidate-facing notice.
type NoticeKind string

const (
	NoticeState        NoticeKind = "state"
	NoticePaper        NoticeKind = "paper"
	NoticeRestoring    NoticeKind = "restoring"
	NoticeTick         NoticeKind = "tick"
	NoticeFaceStatus   NoticeKind = "face_status"
	NoticeWarning      NoticeKind = "warning"
	NoticeConfirmation NoticeKind = "confirmation_required"
	NoticeResult       NoticeKind = "result"
	NoticeError        NoticeKind = "error"
)

// Notice is pushed to the candidate. Code and Message are set for errors,
// warnings and confirmations.
type Notice struct {
	Kind    NoticeKind       `json:"event"`
	Code    response.ErrCode `json:"code,omitempty"`
	Message string           `json:"message,omitempty"`
	Data    any              `json:"data,omitempty"`
}

func errorNotice(code response.ErrCode) Notice {
	return Notice{Kind: NoticeError, Code: code, Message: response.GetMessage(code)}
}
