package proctor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/assessment"
	"github.com/stemsi/exstem-proctor/internal/clock"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

const (
	waitFor = 2 * time.Second
	pollAt  = 5 * time.Millisecond
)

type engineFixture struct {
	engine    *Engine
	remote    *fakeRemote
	platform  *fakePlatform
	snapshots *memSnapshots
	audit     *memAudit
	clock     *clock.Fake
	detector  *LatestFaceCount
	key       string

	cancel context.CancelFunc
	result chan error
}

func newEngineFixture(t *testing.T, remote *fakeRemote, policy config.Policy) *engineFixture {
	t.Helper()
	f := &engineFixture{
		remote:    remote,
		platform:  &fakePlatform{},
		snapshots: newMemSnapshots(),
		audit:     &memAudit{},
		clock:     clock.NewFake(testStart),
		detector:  NewLatestFaceCount(policy.FrameStaleAfter),
		key:       config.CacheKey.SnapshotKey("cand-1", "asm-1"),
		result:    make(chan error, 1),
	}
	f.engine = NewEngine("asm-1", "cand-1", Deps{
		Remote:    remote,
		Snapshots: f.snapshots,
		Writer:    f.snapshots,
		Audit:     f.audit,
		Detector:  f.detector,
		Platform:  f.platform,
		Clock:     f.clock,
		Log:       zerolog.Nop(),
		Policy:    policy,
	})
	return f
}

func (f *engineFixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	t.Cleanup(cancel)
	go func() { f.result <- f.engine.Run(ctx) }()
}

func (f *engineFixture) waitActive(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.engine.State().Phase == model.PhaseActive && f.clock.Tickers() == 2
	}, waitFor, pollAt)
}

func (f *engineFixture) waitPhase(t *testing.T, phase model.Phase) {
	t.Helper()
	require.Eventually(t, func() bool { return f.engine.State().Phase == phase }, waitFor, pollAt)
}

func (f *engineFixture) runErr(t *testing.T) error {
	t.Helper()
	select {
	case err := <-f.result:
		return err
	case <-time.After(waitFor):
		t.Fatal("engine did not stop")
		return nil
	}
}

func freshRemote(n int, minutes float64) *fakeRemote {
	return &fakeRemote{questions: &assessment.QuestionSet{
		SessionID:       "sess-fresh",
		Questions:       questions(n),
		AssessmentName:  "Kimia",
		DurationMinutes: minutes,
	}}
}

func storedSnapshot() model.PersistedSnapshot {
	return model.PersistedSnapshot{
		SessionID:       "sess-old",
		AssessmentName:  "Biologi",
		Questions:       questions(3),
		DurationSeconds: 600,
		StartedAt:       testStart.Add(-5 * time.Minute),
		Answers:         map[int]string{0: "B", 2: "D"},
		MarkedForReview: model.IndexSet{1: {}},
		CurrentIndex:    2,
		Timestamp:       testStart.Add(-time.Minute),
	}
}

func TestEngine_FreshSessionSubmit(t *testing.T) {
	remote := freshRemote(2, 1)
	f := newEngineFixture(t, remote, config.DefaultPolicy())
	f.start(t)
	f.waitActive(t)

	st := f.engine.State()
	assert.Equal(t, "sess-fresh", st.SessionID)
	assert.Equal(t, 60, st.RemainingSeconds)
	require.Len(t, remote.userIDs, 1)
	assert.True(t, strings.HasPrefix(remote.userIDs[0], "cand-1_"))

	_, saved := f.snapshots.get(f.key)
	assert.True(t, saved, "fresh session is persisted immediately")

	require.True(t, f.engine.Dispatch(SelectAnswer{Index: 1, Letter: "C"}))
	require.Eventually(t, func() bool {
		snap, ok := f.snapshots.get(f.key)
		return ok && snap.Answers[1] == "C"
	}, waitFor, pollAt)

	require.True(t, f.engine.Dispatch(SubmitRequested{Confirmed: true}))
	f.waitPhase(t, model.PhaseSubmitted)
	require.NoError(t, f.runErr(t))

	_, _, submits := remote.counts()
	assert.Equal(t, 1, submits)
	assert.Equal(t, map[int]string{1: "C"}, remote.submitted)
	_, saved = f.snapshots.get(f.key)
	assert.False(t, saved)
	assert.Equal(t, 0, f.clock.Tickers())
	assert.Equal(t, []string{TargetResults}, f.platform.redirects())
	assert.Contains(t, f.audit.kinds(), model.AuditSubmitted)

	assert.False(t, f.engine.Dispatch(Tick{}), "stopped engine rejects events")
}

func TestEngine_ResumeUsesServerTime(t *testing.T) {
	remaining := 42.0
	remote := &fakeRemote{validation: &assessment.Validation{Valid: true, RemainingTime: &remaining}}
	f := newEngineFixture(t, remote, config.DefaultPolicy())
	f.snapshots.Save(f.key, storedSnapshot())

	f.start(t)
	f.waitActive(t)

	st := f.engine.State()
	assert.Equal(t, "sess-old", st.SessionID)
	assert.Equal(t, 42, st.RemainingSeconds)
	assert.Equal(t, map[int]string{0: "B", 2: "D"}, st.Answers)
	assert.True(t, st.MarkedForReview.Has(1))
	assert.Equal(t, 2, st.CurrentIndex)
	assert.True(t, f.platform.has(NoticeRestoring))

	questionsCalls, validateCalls, _ := remote.counts()
	assert.Equal(t, 0, questionsCalls)
	assert.Equal(t, 1, validateCalls)

	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return f.engine.State().RemainingSeconds == 41 }, waitFor, pollAt)
}

func TestEngine_ResumeWithoutServerTimeUsesElapsed(t *testing.T) {
	f := newEngineFixture(t, &fakeRemote{}, config.DefaultPolicy())
	f.snapshots.Save(f.key, storedSnapshot())

	f.start(t)
	f.waitActive(t)
	assert.Equal(t, 300, f.engine.State().RemainingSeconds)
}

func TestEngine_ResumeInvalidClearsSnapshot(t *testing.T) {
	remote := &fakeRemote{validation: &assessment.Validation{Valid: false}}
	f := newEngineFixture(t, remote, config.DefaultPolicy())
	f.snapshots.Save(f.key, storedSnapshot())

	f.start(t)
	err := f.runErr(t)

	var be *BootError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, response.ErrSessionExpired, be.Code)

	_, saved := f.snapshots.get(f.key)
	assert.False(t, saved)

	st := f.engine.State()
	assert.Equal(t, model.PhaseFailed, st.Phase)
	assert.Zero(t, st.TotalQuestions)
	assert.Empty(t, st.Answers)

	questionsCalls, _, submits := remote.counts()
	assert.Zero(t, questionsCalls)
	assert.Zero(t, submits)
	assert.Equal(t, []response.ErrCode{response.ErrSessionExpired}, f.platform.errorCodes())
	assert.Equal(t, []string{TargetAssessments}, f.platform.redirects())
}

func TestEngine_ResumeNetworkFailureKeepsSnapshot(t *testing.T) {
	remote := &fakeRemote{validateErr: assessment.ErrTimeout}
	f := newEngineFixture(t, remote, config.DefaultPolicy())
	f.snapshots.Save(f.key, storedSnapshot())

	f.start(t)
	err := f.runErr(t)
	assert.ErrorIs(t, err, assessment.ErrTimeout)

	_, saved := f.snapshots.get(f.key)
	assert.True(t, saved)
	assert.Equal(t, []response.ErrCode{response.ErrLoadFailed}, f.platform.errorCodes())
	assert.Empty(t, f.platform.redirects(), "only a manual return is offered")
}

func TestEngine_UnusableSnapshotFetchesFresh(t *testing.T) {
	remote := freshRemote(2, 1)
	f := newEngineFixture(t, remote, config.DefaultPolicy())
	f.snapshots.Save(f.key, model.PersistedSnapshot{Answers: map[int]string{0: "A"}})

	f.start(t)
	f.waitActive(t)

	questionsCalls, validateCalls, _ := remote.counts()
	assert.Equal(t, 1, questionsCalls)
	assert.Zero(t, validateCalls)
	assert.Equal(t, "sess-fresh", f.engine.State().SessionID)
}

func TestEngine_AlreadySubmitted(t *testing.T) {
	remote := &fakeRemote{questionErr: assessment.ErrAlreadySubmitted}
	f := newEngineFixture(t, remote, config.DefaultPolicy())

	f.start(t)
	err := f.runErr(t)
	assert.ErrorIs(t, err, assessment.ErrAlreadySubmitted)
	assert.Equal(t, []response.ErrCode{response.ErrAlreadySubmitted}, f.platform.errorCodes())
	assert.Equal(t, model.PhaseFailed, f.engine.State().Phase)
}

func TestEngine_ExpiryRacingManualSubmit(t *testing.T) {
	remote := freshRemote(2, 0.05)
	remote.release = make(chan struct{})
	f := newEngineFixture(t, remote, config.DefaultPolicy())
	f.start(t)
	f.waitActive(t)

	f.clock.Advance(3 * time.Second)
	require.Eventually(t, func() bool {
		_, _, submits := remote.counts()
		return submits == 1
	}, waitFor, pollAt)

	require.True(t, f.engine.Dispatch(SubmitRequested{Confirmed: true}))
	require.Eventually(t, func() bool {
		for _, code := range f.platform.errorCodes() {
			if code == response.ErrSubmissionInProgress {
				return true
			}
		}
		return false
	}, waitFor, pollAt)

	close(remote.release)
	f.waitPhase(t, model.PhaseSubmitted)
	require.NoError(t, f.runErr(t))

	_, validateCalls, submits := remote.counts()
	assert.Equal(t, 1, validateCalls)
	assert.Equal(t, 1, submits)
}

func TestEngine_SubmitRejectedAsExpired(t *testing.T) {
	remote := freshRemote(1, 1)
	f := newEngineFixture(t, remote, config.DefaultPolicy())
	f.start(t)
	f.waitActive(t)

	remote.mu.Lock()
	remote.validation = &assessment.Validation{Valid: false}
	remote.mu.Unlock()

	f.engine.Dispatch(SubmitRequested{Confirmed: true})
	f.waitPhase(t, model.PhaseExpired)
	require.NoError(t, f.runErr(t))

	_, _, submits := remote.counts()
	assert.Zero(t, submits, "no submission after failed validation")
}

func TestEngine_FaceSamplingFromDetector(t *testing.T) {
	f := newEngineFixture(t, freshRemote(2, 10), config.DefaultPolicy())
	f.start(t)
	f.waitActive(t)

	f.detector.Report(0, f.clock.Now())
	f.clock.Advance(1500 * time.Millisecond)

	require.Eventually(t, func() bool {
		return f.engine.State().FaceStatus == model.FaceMissing
	}, waitFor, pollAt)
	assert.Equal(t, 1, f.engine.State().Counters.NoFaceCount)
	assert.Contains(t, f.audit.kinds(), model.AuditFaceStatus)
}

func TestEngine_TerminationStopsEverything(t *testing.T) {
	p := config.DefaultPolicy()
	p.TabSwitchLimit = 2
	f := newEngineFixture(t, freshRemote(2, 10), p)
	f.start(t)
	f.waitActive(t)

	f.engine.Dispatch(VisibilityChanged{Hidden: true})
	f.engine.Dispatch(VisibilityChanged{Hidden: false})
	f.engine.Dispatch(VisibilityChanged{Hidden: true})

	f.waitPhase(t, model.PhaseTerminated)
	require.NoError(t, f.runErr(t))

	_, saved := f.snapshots.get(f.key)
	assert.False(t, saved)
	assert.Equal(t, 0, f.clock.Tickers())
	assert.Contains(t, f.audit.kinds(), model.AuditTerminated)
	assert.Equal(t, []string{TargetDashboard}, f.platform.redirects())
}

func TestEngine_DisconnectKeepsSnapshot(t *testing.T) {
	f := newEngineFixture(t, freshRemote(2, 10), config.DefaultPolicy())
	f.start(t)
	f.waitActive(t)

	f.engine.Dispatch(SelectAnswer{Index: 0, Letter: "A"})
	require.Eventually(t, func() bool {
		return f.engine.State().Answers[0] == "A"
	}, waitFor, pollAt)

	f.cancel()
	assert.True(t, errors.Is(f.runErr(t), context.Canceled))

	snap, saved := f.snapshots.get(f.key)
	require.True(t, saved)
	assert.Equal(t, "A", snap.Answers[0])
	assert.Equal(t, 0, f.clock.Tickers())
}
