package proctor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/assessment"
	"github.com/stemsi/exstem-proctor/internal/clock"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

const auditTimeout = time.Second

// Platform is the candidate's browser surface.
type Platform interface {
	Notify(n Notice)
	Command(c PlatformCommand)
}

// SnapshotLoader reads a stored snapshot; nil, nil means none.
type SnapshotLoader interface {
	Load(ctx context.Context, key string) (*model.PersistedSnapshot, error)
}

// SnapshotSink accepts snapshot writes without blocking the caller.
type SnapshotSink interface {
	Save(key string, snap model.PersistedSnapshot)
	Clear(key string)
}

// AuditSink stores integrity and lifecycle records.
type AuditSink interface {
	Record(ctx context.Context, rec model.AuditRecord) error
}

// Deps are the collaborators of an Engine. Audit and Detector are optional.
type Deps struct {
	Remote    assessment.Service
	Snapshots SnapshotLoader
	Writer    SnapshotSink
	Audit     AuditSink
	Detector  FaceDetector
	Platform  Platform
	Clock     clock.Clock
	Log       zerolog.Logger
	Policy    config.Policy
	NewUserID func(candidateID string) string
}

// Engine runs one session: it owns the Session and drives it from tickers,
// platform events and submission results on a single goroutine.
type Engine struct {
	assessmentID string
	candidateID  string
	key          string
	deps         Deps
	log          zerolog.Logger

	events  chan Event
	results chan SubmissionFinished
	done    chan struct{}

	mu    sync.RWMutex
	state State

	// Owned by the Run goroutine.
	session *Session
	timer   clock.Ticker
	sampler clock.Ticker
}

func NewEngine(assessmentID, candidateID string, deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.NewUserID == nil {
		deps.NewUserID = DefaultAttemptUserID
	}

	log := deps.Log.With().
		Str("assessment_id", assessmentID).
		Str("candidate_id", candidateID).
		Logger()

	return &Engine{
		assessmentID: assessmentID,
		candidateID:  candidateID,
		key:          config.CacheKey.SnapshotKey(candidateID, assessmentID),
		deps:         deps,
		log:          log,
		events:       make(chan Event, 64),
		results:      make(chan SubmissionFinished, 1),
		done:         make(chan struct{}),
		state:        State{Phase: model.PhaseLoading, AssessmentID: assessmentID},
	}
}

// Run bootstraps the session and processes events until it reaches a final
// phase or ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	metrics.SessionOpened()
	defer metrics.SessionClosed()

	data, fresh, err := e.bootstrap(ctx)
	if err != nil {
		e.fail(err)
		return err
	}

	e.log = e.log.With().Str("session_id", data.SessionID).Logger()
	s := NewSession(data, e.deps.Policy, e.log, e.deps.Clock.Now)
	e.session = s

	e.timer = e.deps.Clock.NewTicker(e.deps.Policy.TickInterval)
	e.sampler = e.deps.Clock.NewTicker(e.deps.Policy.SampleInterval)
	defer e.stopTickers()

	e.apply(ctx, s.Start(fresh))

	for !s.Done() {
		select {
		case <-ctx.Done():
			e.teardown(ctx)
			return ctx.Err()
		case <-tick(e.timer):
			e.apply(ctx, s.Handle(Tick{}))
		case at := <-tick(e.sampler):
			if e.deps.Detector == nil {
				continue
			}
			if faces, ok := e.deps.Detector.Sample(at); ok {
				e.apply(ctx, s.Handle(FrameSample{Faces: faces}))
			}
		case ev := <-e.events:
			e.apply(ctx, s.Handle(ev))
		case r := <-e.results:
			metrics.Submission(r.Auto, string(r.Outcome))
			e.apply(ctx, s.Handle(r))
		}
	}

	e.log.Info().Str("phase", string(s.Phase())).Msg("Session finished")
	return nil
}

// Dispatch queues an event for the session. It reports false once the
// engine has stopped.
func (e *Engine) Dispatch(ev Event) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.events <- ev:
		return true
	case <-e.done:
		return false
	}
}

// Done is closed when Run returns.
func (e *Engine) Done() <-chan struct{} { return e.done }

// State returns the latest published session view.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) publish(st State) {
	e.mu.Lock()
	e.state = st
	e.mu.Unlock()
}

func (e *Engine) apply(ctx context.Context, effects []Effect) {
	for _, eff := range effects {
		switch f := eff.(type) {
		case PersistSnapshot:
			e.deps.Writer.Save(e.key, f.Snapshot)
		case ClearSnapshot:
			e.deps.Writer.Clear(e.key)
		case StartSubmission:
			e.startSubmission(ctx, f)
		case HaltTimer:
			stop(&e.timer)
		case StopSampling:
			stop(&e.sampler)
		case Issue:
			e.deps.Platform.Command(f.Command)
		case Notify:
			e.deps.Platform.Notify(f.Notice)
		case Audit:
			e.record(ctx, f)
		}
	}
	if e.session != nil {
		e.publish(e.session.State())
	}
}

// startSubmission runs the remote calls off the loop. A disconnect must
// not abort a submission already sent, so the call ignores cancellation.
func (e *Engine) startSubmission(ctx context.Context, req StartSubmission) {
	sctx := context.WithoutCancel(ctx)
	go func() {
		e.results <- Submit(sctx, e.deps.Remote, req)
	}()
}

func (e *Engine) record(ctx context.Context, a Audit) {
	switch a.Kind {
	case model.AuditTabSwitch, model.AuditFullscreenExit:
		metrics.Violation(string(a.Kind))
	case model.AuditFaceStatus:
		if to, _ := a.Detail["to"].(model.FaceStatus); to != model.FaceOK {
			metrics.Violation(string(to))
		}
	case model.AuditTerminated:
		reason, _ := a.Detail["reason"].(model.TerminationReason)
		metrics.Terminated(string(reason))
	}

	if e.deps.Audit == nil {
		return
	}

	rec := model.AuditRecord{
		AssessmentID: e.assessmentID,
		CandidateID:  e.candidateID,
		Kind:         a.Kind,
		RecordedAt:   e.deps.Clock.Now(),
	}
	if e.session != nil {
		rec.SessionID = e.session.data.SessionID
	}
	if len(a.Detail) > 0 {
		detail, err := json.Marshal(a.Detail)
		if err != nil {
			e.log.Error().Err(err).Str("kind", string(a.Kind)).Msg("Failed to encode audit detail")
			return
		}
		rec.Detail = detail
	}

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := e.deps.Audit.Record(actx, rec); err != nil {
		e.log.Warn().Err(err).Str("kind", string(a.Kind)).Msg("Failed to record audit event")
	}
}

// fail reports a boot failure with its single recovery action.
func (e *Engine) fail(err error) {
	var be *BootError
	if !errors.As(err, &be) {
		be = &BootError{Code: response.ErrLoadFailed, Target: TargetAssessments, Err: err}
	}
	e.log.Error().Err(err).Str("code", string(be.Code)).Msg("Session failed to load")

	n := errorNotice(be.Code)
	n.Data = Recovery{Target: be.Target}
	e.deps.Platform.Notify(n)
	if be.Redirect {
		e.deps.Platform.Command(PlatformCommand{Name: CommandRedirect, Target: be.Target})
	}
	e.publish(State{Phase: model.PhaseFailed, AssessmentID: e.assessmentID})
}

// teardown stops the periodic tasks after a disconnect. The snapshot is
// kept for resume; an in-flight submission is allowed to finish.
func (e *Engine) teardown(ctx context.Context) {
	e.stopTickers()
	if e.session.submitting {
		e.log.Info().Msg("Disconnected during submission, waiting for result")
		r := <-e.results
		metrics.Submission(r.Auto, string(r.Outcome))
		e.apply(context.WithoutCancel(ctx), e.session.Handle(r))
	}
	e.log.Info().Msg("Session engine stopped on disconnect")
}

func (e *Engine) stopTickers() {
	stop(&e.timer)
	stop(&e.sampler)
}

func stop(t *clock.Ticker) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// tick returns a nil channel for a stopped ticker so select skips it.
func tick(t clock.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C()
}
