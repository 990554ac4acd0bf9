package proctor

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// Session is the authoritative state of one attempt. It is owned by a
// single goroutine; Handle is the only way to change it and never does I/O.
type Session struct {
	policy config.Policy
	log    zerolog.Logger
	now    func() time.Time

	phase      model.Phase
	data       model.AssessmentSession
	violations *Violations
	faces      *FaceClassifier

	timerRunning bool
	sampling     bool
	submitting   bool
	expired      bool // countdown reached zero; answers are frozen
	autoIssued   bool // the one auto-submit has been started
	result       *model.SubmissionResult
}

// NewSession wraps data in a loading session. Call Start to activate it.
func NewSession(data model.AssessmentSession, policy config.Policy, log zerolog.Logger, now func() time.Time) *Session {
	if data.Answers == nil {
		data.Answers = make(map[int]string)
	}
	if data.MarkedForReview == nil {
		data.MarkedForReview = make(model.IndexSet)
	}
	data.CurrentIndex = clampIndex(data.CurrentIndex, len(data.Questions))
	if now == nil {
		now = time.Now
	}

	return &Session{
		policy:     policy,
		log:        log,
		now:        now,
		phase:      model.PhaseLoading,
		data:       data,
		violations: NewViolations(policy),
		faces:      NewFaceClassifier(ThresholdsFrom(policy)),
	}
}

// Paper is the static content pushed once when a session activates.
type Paper struct {
	AssessmentName  string           `json:"assessment_name"`
	DurationSeconds int              `json:"duration_seconds"`
	Questions       []model.Question `json:"questions"`
}

// Start activates the session and starts the countdown and sampling. A
// fresh session is persisted immediately.
func (s *Session) Start(fresh bool) []Effect {
	if s.phase != model.PhaseLoading {
		return nil
	}
	s.phase = model.PhaseActive
	s.timerRunning = true
	s.sampling = true

	effects := []Effect{
		Issue{PlatformCommand{Name: CommandEnableLockdown}},
		Notify{Notice{Kind: NoticePaper, Data: Paper{
			AssessmentName:  s.data.AssessmentName,
			DurationSeconds: s.data.DurationSeconds,
			Questions:       s.data.Questions,
		}}},
	}
	if fresh {
		effects = append(effects, s.persist())
	}
	effects = append(effects, s.stateNotice())

	if s.data.RemainingSeconds <= 0 {
		s.data.RemainingSeconds = 0
		effects = append(effects, s.expireTimer()...)
	}
	return effects
}

// Handle applies one event and returns the effects to execute.
func (s *Session) Handle(ev Event) []Effect {
	switch e := ev.(type) {
	case Tick:
		return s.onTick()
	case FrameSample:
		return s.onFrame(e.Faces)
	case VisibilityChanged:
		return s.onVisibility(e.Hidden)
	case FullscreenChanged:
		return s.onFullscreen(e.Active)
	case SuppressedAction:
		return s.onSuppressed(e.Kind)
	case SelectAnswer:
		return s.mutate(func() error { return ApplyAnswer(&s.data, e.Index, e.Letter) })
	case ToggleReview:
		return s.mutate(func() error {
			_, err := ApplyToggleReview(&s.data, e.Index)
			return err
		})
	case Navigate:
		return s.mutate(func() error {
			SetCurrentIndex(&s.data, e.Index)
			return nil
		})
	case SubmitRequested:
		return s.requestSubmit(e.Auto, e.Confirmed)
	case SubmissionFinished:
		return s.finishSubmission(e)
	case Abandon:
		return s.abandon()
	}
	return nil
}

// Done reports whether the session reached a final phase.
func (s *Session) Done() bool { return s.phase.Final() }

// Phase returns the current lifecycle phase.
func (s *Session) Phase() model.Phase { return s.phase }

// State is the candidate-visible view of a session.
type State struct {
	Phase            model.Phase             `json:"phase"`
	SessionID        string                  `json:"session_id"`
	AssessmentID     string                  `json:"assessment_id"`
	AssessmentName   string                  `json:"assessment_name"`
	TotalQuestions   int                     `json:"total_questions"`
	DurationSeconds  int                     `json:"duration_seconds"`
	RemainingSeconds int                     `json:"remaining_seconds"`
	Answers          map[int]string          `json:"answers"`
	MarkedForReview  model.IndexSet          `json:"marked_for_review"`
	CurrentIndex     int                     `json:"current_index"`
	Unanswered       int                     `json:"unanswered"`
	Counters         model.ViolationCounters `json:"counters"`
	Termination      model.TerminationState  `json:"termination"`
	FaceStatus       model.FaceStatus        `json:"face_status"`
	TimerRunning     bool                    `json:"timer_running"`
	TimeUp           bool                    `json:"time_up"`
	Submitting       bool                    `json:"submitting"`
	Result           *model.SubmissionResult `json:"result,omitempty"`
}

// State returns an independent copy of the current view.
func (s *Session) State() State {
	return State{
		Phase:            s.phase,
		SessionID:        s.data.SessionID,
		AssessmentID:     s.data.AssessmentID,
		AssessmentName:   s.data.AssessmentName,
		TotalQuestions:   len(s.data.Questions),
		DurationSeconds:  s.data.DurationSeconds,
		RemainingSeconds: s.data.RemainingSeconds,
		Answers:          s.data.CopyAnswers(),
		MarkedForReview:  s.data.MarkedForReview.Clone(),
		CurrentIndex:     s.data.CurrentIndex,
		Unanswered:       s.data.Unanswered(),
		Counters:         s.violations.Counters(),
		Termination:      s.violations.Termination(),
		FaceStatus:       s.faces.Status(),
		TimerRunning:     s.timerRunning,
		TimeUp:           s.expired,
		Submitting:       s.submitting,
		Result:           s.result,
	}
}

// Snapshot returns the persisted subset of the session.
func (s *Session) Snapshot() model.PersistedSnapshot {
	return model.SnapshotOf(&s.data, s.now())
}

func (s *Session) stateNotice() Effect {
	return Notify{Notice{Kind: NoticeState, Data: s.State()}}
}

func (s *Session) persist() Effect {
	return PersistSnapshot{Snapshot: s.Snapshot()}
}

func (s *Session) onTick() []Effect {
	if !s.timerRunning || s.phase != model.PhaseActive {
		return nil
	}
	s.data.RemainingSeconds--
	if s.data.RemainingSeconds > 0 {
		return []Effect{Notify{Notice{Kind: NoticeTick, Data: s.data.RemainingSeconds}}}
	}
	s.data.RemainingSeconds = 0
	return s.expireTimer()
}

// expireTimer halts the countdown and requests the one auto-submit.
func (s *Session) expireTimer() []Effect {
	s.timerRunning = false
	s.expired = true
	s.log.Info().Msg("Countdown reached zero, auto-submitting")
	effects := []Effect{
		HaltTimer{},
		Notify{Notice{Kind: NoticeTick, Data: 0}},
	}
	return append(effects, s.requestSubmit(true, true)...)
}

// blocked returns the rejection for a mutation, or nil when allowed.
func (s *Session) blocked() []Effect {
	switch {
	case s.phase == model.PhaseTerminated:
		return []Effect{Notify{errorNotice(response.ErrSessionTerminated)}}
	case s.phase != model.PhaseActive:
		return []Effect{Notify{errorNotice(response.ErrSessionNotActive)}}
	case s.submitting:
		return []Effect{Notify{errorNotice(response.ErrSubmissionInProgress)}}
	case s.expired:
		return []Effect{Notify{errorNotice(response.ErrTimeUp)}}
	}
	return nil
}

func (s *Session) mutate(apply func() error) []Effect {
	if rejected := s.blocked(); rejected != nil {
		return rejected
	}
	if err := apply(); err != nil {
		n := errorNotice(response.ErrInvalidAnswer)
		n.Data = map[string]string{"detail": err.Error()}
		return []Effect{Notify{n}}
	}
	return []Effect{s.persist(), s.stateNotice()}
}

// shutdown stops both periodic tasks and releases platform resources.
func (s *Session) shutdown() []Effect {
	var effects []Effect
	if s.timerRunning {
		s.timerRunning = false
		effects = append(effects, HaltTimer{})
	}
	if s.sampling {
		s.sampling = false
		effects = append(effects, StopSampling{})
	}
	return append(effects,
		Issue{PlatformCommand{Name: CommandExitFullscreen}},
		Issue{PlatformCommand{Name: CommandReleaseCapture}},
	)
}

// terminate ends the session irrecoverably after a violation threshold.
func (s *Session) terminate() []Effect {
	s.phase = model.PhaseTerminated
	term := s.violations.Termination()
	s.log.Warn().
		Str("reason", string(term.Reason)).
		Interface("counters", s.violations.Counters()).
		Msg("Session terminated")

	effects := s.shutdown()
	n := errorNotice(response.ErrSessionTerminated)
	n.Data = term
	return append(effects,
		ClearSnapshot{},
		Audit{Kind: model.AuditTerminated, Detail: map[string]any{
			"reason":   term.Reason,
			"counters": s.violations.Counters(),
		}},
		Notify{n},
		s.stateNotice(),
		Issue{PlatformCommand{Name: CommandRedirect, Target: TargetDashboard}},
	)
}

func (s *Session) abandon() []Effect {
	if s.phase != model.PhaseActive {
		return nil
	}
	s.phase = model.PhaseAbandoned
	s.log.Info().Msg("Session abandoned")

	effects := s.shutdown()
	return append(effects,
		ClearSnapshot{},
		Audit{Kind: model.AuditAbandoned},
		Notify{errorNotice(response.ErrSessionAbandoned)},
		s.stateNotice(),
		Issue{PlatformCommand{Name: CommandRedirect, Target: TargetAssessments}},
	)
}
