package proctor

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

func newTestSession(t *testing.T, n, remaining int, policy config.Policy) *Session {
	t.Helper()
	s := NewSession(model.AssessmentSession{
		SessionID:        "sess-1",
		AssessmentID:     "asm-1",
		AssessmentName:   "Fisika Dasar",
		Questions:        questions(n),
		DurationSeconds:  remaining,
		RemainingSeconds: remaining,
		StartedAt:        testStart,
	}, policy, zerolog.Nop(), func() time.Time { return testStart })
	return s
}

func started(t *testing.T, n, remaining int) *Session {
	t.Helper()
	s := newTestSession(t, n, remaining, config.DefaultPolicy())
	require.NotEmpty(t, s.Start(true))
	return s
}

func TestSession_StartFresh(t *testing.T) {
	s := newTestSession(t, 3, 600, config.DefaultPolicy())
	assert.Equal(t, model.PhaseLoading, s.Phase())

	effects := s.Start(true)
	assert.Equal(t, model.PhaseActive, s.Phase())
	assert.Equal(t, []PlatformCommand{{Name: CommandEnableLockdown}}, commands(effects))
	assert.Len(t, ofType[PersistSnapshot](effects), 1)
	assert.Len(t, noticesOf(effects, NoticePaper), 1)
	assert.True(t, s.State().TimerRunning)

	assert.Nil(t, s.Start(true), "second start is a no-op")
}

func TestSession_StartResumedDoesNotPersist(t *testing.T) {
	s := newTestSession(t, 3, 600, config.DefaultPolicy())
	assert.Empty(t, ofType[PersistSnapshot](s.Start(false)))
}

func TestSession_StartWithNoTimeLeftSubmits(t *testing.T) {
	s := newTestSession(t, 3, 0, config.DefaultPolicy())
	effects := s.Start(false)

	subs := ofType[StartSubmission](effects)
	require.Len(t, subs, 1)
	assert.True(t, subs[0].Auto)
	assert.Len(t, ofType[HaltTimer](effects), 1)
}

func TestSession_TickDecrements(t *testing.T) {
	s := started(t, 2, 10)
	effects := s.Handle(Tick{})
	assert.Equal(t, 9, s.State().RemainingSeconds)
	require.Len(t, noticesOf(effects, NoticeTick), 1)
	assert.Equal(t, 9, noticesOf(effects, NoticeTick)[0].Data)
}

func TestSession_ExpiryAutoSubmitsExactlyOnce(t *testing.T) {
	s := started(t, 2, 3)

	var subs []StartSubmission
	var halts int
	for i := 0; i < 10; i++ {
		effects := s.Handle(Tick{})
		subs = append(subs, ofType[StartSubmission](effects)...)
		halts += len(ofType[HaltTimer](effects))
	}

	require.Len(t, subs, 1)
	assert.True(t, subs[0].Auto)
	assert.Equal(t, "sess-1", subs[0].SessionID)
	assert.Equal(t, 1, halts)
	assert.Equal(t, 0, s.State().RemainingSeconds)
	assert.False(t, s.State().TimerRunning)
}

func TestSession_AutoAndManualSubmitRace(t *testing.T) {
	t.Run("expiry first", func(t *testing.T) {
		s := started(t, 1, 1)
		first := ofType[StartSubmission](s.Handle(Tick{}))
		require.Len(t, first, 1)

		effects := s.Handle(SubmitRequested{Confirmed: true})
		assert.Empty(t, ofType[StartSubmission](effects))
		assert.Equal(t, []response.ErrCode{response.ErrSubmissionInProgress}, errorCodes(effects))
	})

	t.Run("manual first", func(t *testing.T) {
		s := started(t, 1, 1)
		require.NoError(t, ApplyAnswer(&s.data, 0, "A"))
		first := ofType[StartSubmission](s.Handle(SubmitRequested{}))
		require.Len(t, first, 1)
		assert.False(t, first[0].Auto)

		assert.Empty(t, ofType[StartSubmission](s.Handle(Tick{})))
	})
}

func TestSession_ManualSubmitNeedsConfirmation(t *testing.T) {
	s := started(t, 3, 600)
	s.Handle(SelectAnswer{Index: 0, Letter: "B"})

	effects := s.Handle(SubmitRequested{})
	assert.Empty(t, ofType[StartSubmission](effects))
	conf := noticesOf(effects, NoticeConfirmation)
	require.Len(t, conf, 1)
	assert.Equal(t, Confirmation{Unanswered: 2}, conf[0].Data)
	assert.False(t, s.State().Submitting)

	effects = s.Handle(SubmitRequested{Confirmed: true})
	subs := ofType[StartSubmission](effects)
	require.Len(t, subs, 1)
	assert.Equal(t, map[int]string{0: "B"}, subs[0].Answers)
	assert.True(t, s.State().Submitting)
}

func TestSession_MutationsBlockedWhileSubmitting(t *testing.T) {
	s := started(t, 1, 600)
	s.Handle(SelectAnswer{Index: 0, Letter: "A"})
	s.Handle(SubmitRequested{})

	effects := s.Handle(SelectAnswer{Index: 0, Letter: "C"})
	assert.Equal(t, []response.ErrCode{response.ErrSubmissionInProgress}, errorCodes(effects))
	assert.Equal(t, "A", s.State().Answers[0])
}

func TestSession_SubmissionSucceeded(t *testing.T) {
	s := started(t, 2, 600)
	s.Handle(SubmitRequested{Confirmed: true})

	score := 87.5
	effects := s.Handle(SubmissionFinished{Outcome: SubmitSucceeded, Score: &score})

	assert.Equal(t, model.PhaseSubmitted, s.Phase())
	assert.True(t, s.Done())
	assert.Len(t, ofType[ClearSnapshot](effects), 1)
	assert.Len(t, ofType[HaltTimer](effects), 1)
	assert.Len(t, ofType[StopSampling](effects), 1)

	results := noticesOf(effects, NoticeResult)
	require.Len(t, results, 1)
	assert.Equal(t, model.SubmissionResult{Score: &score, TotalQuestions: 2, AssessmentName: "Fisika Dasar"}, results[0].Data)
	assert.Contains(t, commands(effects), PlatformCommand{Name: CommandReleaseCapture})
	assert.Contains(t, commands(effects), PlatformCommand{Name: CommandRedirect, Target: TargetResults})
}

func TestSession_SubmissionFailedIsRetryable(t *testing.T) {
	s := started(t, 1, 600)
	s.Handle(SelectAnswer{Index: 0, Letter: "D"})
	s.Handle(SubmitRequested{})

	effects := s.Handle(SubmissionFinished{Outcome: SubmitFailed, Err: errors.New("boom")})
	assert.Equal(t, model.PhaseActive, s.Phase())
	assert.Equal(t, []response.ErrCode{response.ErrSubmitFailed}, errorCodes(effects))
	assert.Empty(t, ofType[ClearSnapshot](effects))
	assert.Equal(t, map[int]string{0: "D"}, s.State().Answers)

	assert.Len(t, ofType[StartSubmission](s.Handle(SubmitRequested{})), 1)
}

func TestSession_ExpiryDuringFailedManualSubmit(t *testing.T) {
	s := started(t, 2, 1)
	s.Handle(SelectAnswer{Index: 0, Letter: "A"})
	require.Len(t, ofType[StartSubmission](s.Handle(SubmitRequested{Confirmed: true})), 1)

	// Countdown reaches zero while the manual attempt is in flight.
	assert.Empty(t, ofType[StartSubmission](s.Handle(Tick{})))
	assert.True(t, s.State().TimeUp)

	effects := s.Handle(SubmissionFinished{Outcome: SubmitFailed, Err: errors.New("network")})
	subs := ofType[StartSubmission](effects)
	require.Len(t, subs, 1, "the suppressed auto-submit runs after the manual failure")
	assert.True(t, subs[0].Auto)
	assert.Equal(t, map[int]string{0: "A"}, subs[0].Answers)
	assert.Equal(t, model.PhaseActive, s.Phase())

	for i := 0; i < 5; i++ {
		assert.Empty(t, s.Handle(Tick{}))
	}
}

func TestSession_AnswersFrozenAfterExpiry(t *testing.T) {
	s := started(t, 2, 1)
	s.Handle(SelectAnswer{Index: 0, Letter: "A"})
	require.Len(t, ofType[StartSubmission](s.Handle(Tick{})), 1)

	effects := s.Handle(SubmissionFinished{Auto: true, Outcome: SubmitFailed, Err: errors.New("network")})
	assert.Empty(t, ofType[StartSubmission](effects), "auto-submit is never issued twice")

	for _, ev := range []Event{SelectAnswer{Index: 1, Letter: "C"}, ToggleReview{Index: 1}, Navigate{Index: 1}} {
		effects := s.Handle(ev)
		assert.Equal(t, []response.ErrCode{response.ErrTimeUp}, errorCodes(effects))
		assert.Empty(t, ofType[PersistSnapshot](effects))
	}
	assert.Equal(t, map[int]string{0: "A"}, s.State().Answers)

	// A manual retry needs no confirmation once time is up.
	retry := ofType[StartSubmission](s.Handle(SubmitRequested{}))
	require.Len(t, retry, 1)
	assert.False(t, retry[0].Auto)
}

func TestSession_SubmissionExpired(t *testing.T) {
	s := started(t, 1, 600)
	s.Handle(SubmitRequested{Confirmed: true})

	effects := s.Handle(SubmissionFinished{Outcome: SubmitExpired})
	assert.Equal(t, model.PhaseExpired, s.Phase())
	assert.Equal(t, []response.ErrCode{response.ErrSessionExpired}, errorCodes(effects))
	assert.Len(t, ofType[ClearSnapshot](effects), 1)
}

func TestSession_MutationsPersist(t *testing.T) {
	s := started(t, 4, 600)

	effects := s.Handle(SelectAnswer{Index: 2, Letter: "C"})
	snaps := ofType[PersistSnapshot](effects)
	require.Len(t, snaps, 1)
	assert.Equal(t, map[int]string{2: "C"}, snaps[0].Snapshot.Answers)

	snaps = ofType[PersistSnapshot](s.Handle(ToggleReview{Index: 1}))
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Snapshot.MarkedForReview.Has(1))

	snaps = ofType[PersistSnapshot](s.Handle(Navigate{Index: 99}))
	require.Len(t, snaps, 1)
	assert.Equal(t, 3, snaps[0].Snapshot.CurrentIndex)
}

func TestSession_InvalidAnswerRejected(t *testing.T) {
	s := started(t, 2, 600)
	effects := s.Handle(SelectAnswer{Index: 0, Letter: "z"})
	assert.Equal(t, []response.ErrCode{response.ErrInvalidAnswer}, errorCodes(effects))
	assert.Empty(t, ofType[PersistSnapshot](effects))
}

func TestSession_TabSwitchTermination(t *testing.T) {
	s := started(t, 2, 600)
	s.Handle(SelectAnswer{Index: 0, Letter: "A"})

	for i := 0; i < 29; i++ {
		effects := s.Handle(VisibilityChanged{Hidden: true})
		assert.Len(t, noticesOf(effects, NoticeWarning), 1)
		s.Handle(VisibilityChanged{Hidden: false})
	}
	require.Equal(t, model.PhaseActive, s.Phase())

	effects := s.Handle(VisibilityChanged{Hidden: true})
	assert.Equal(t, model.PhaseTerminated, s.Phase())
	assert.Equal(t, model.TerminationState{Terminated: true, Reason: model.ReasonTabSwitch}, s.State().Termination)
	assert.Len(t, ofType[ClearSnapshot](effects), 1)
	assert.Len(t, ofType[HaltTimer](effects), 1)
	assert.Len(t, ofType[StopSampling](effects), 1)
	assert.Contains(t, commands(effects), PlatformCommand{Name: CommandExitFullscreen})
	assert.Contains(t, commands(effects), PlatformCommand{Name: CommandRedirect, Target: TargetDashboard})
	assert.Equal(t, []response.ErrCode{response.ErrSessionTerminated}, errorCodes(effects))
}

func TestSession_TerminatedIsFinal(t *testing.T) {
	p := config.DefaultPolicy()
	p.TabSwitchLimit = 1
	s := newTestSession(t, 2, 600, p)
	s.Start(true)
	s.Handle(VisibilityChanged{Hidden: true})
	require.Equal(t, model.PhaseTerminated, s.Phase())

	effects := s.Handle(SelectAnswer{Index: 0, Letter: "A"})
	assert.Equal(t, []response.ErrCode{response.ErrSessionTerminated}, errorCodes(effects))
	assert.Empty(t, s.State().Answers)

	assert.Nil(t, s.Handle(Tick{}))
	assert.Nil(t, s.Handle(VisibilityChanged{Hidden: true}))
	assert.Nil(t, s.Handle(FrameSample{Faces: 0}))
	assert.Nil(t, s.Handle(Abandon{}))
	assert.Equal(t, 1, s.State().Counters.TabSwitchCount)

	assert.Nil(t, s.Handle(SubmissionFinished{Outcome: SubmitSucceeded}), "late result is ignored")
	assert.Equal(t, model.PhaseTerminated, s.Phase())
}

func TestSession_FaceStatusChanges(t *testing.T) {
	s := started(t, 2, 600)

	var faceNotices []Notice
	for _, faces := range []int{0, 0, 0, 0, 1, 1, 2, 2} {
		faceNotices = append(faceNotices, noticesOf(s.Handle(FrameSample{Faces: faces}), NoticeFaceStatus)...)
	}

	require.Len(t, faceNotices, 3)
	assert.Equal(t, FaceEvent{From: model.FaceOK, To: model.FaceMissing}, faceNotices[0].Data)
	assert.Equal(t, FaceEvent{From: model.FaceMissing, To: model.FaceOK}, faceNotices[1].Data)
	assert.Equal(t, FaceEvent{From: model.FaceOK, To: model.FaceMultiple}, faceNotices[2].Data)

	st := s.State()
	assert.Equal(t, 1, st.Counters.NoFaceCount)
	assert.Equal(t, 1, st.Counters.MultipleFacesCount)
	assert.Equal(t, model.FaceMultiple, st.FaceStatus)
	assert.Equal(t, model.PhaseActive, st.Phase)
}

func TestSession_FullscreenExitWarnsOnly(t *testing.T) {
	s := started(t, 2, 600)
	for i := 0; i < 40; i++ {
		effects := s.Handle(FullscreenChanged{Active: false})
		assert.Len(t, noticesOf(effects, NoticeWarning), 1)
	}
	assert.Nil(t, s.Handle(FullscreenChanged{Active: true}))
	assert.Equal(t, model.PhaseActive, s.Phase())
	assert.Equal(t, 40, s.State().Counters.FullscreenExitCount)
}

func TestSession_SuppressedActionHasNoEffect(t *testing.T) {
	s := started(t, 1, 600)
	assert.Nil(t, s.Handle(SuppressedAction{Kind: "copy"}))
}

func TestSession_Abandon(t *testing.T) {
	s := started(t, 2, 600)
	effects := s.Handle(Abandon{})

	assert.Equal(t, model.PhaseAbandoned, s.Phase())
	assert.Len(t, ofType[ClearSnapshot](effects), 1)
	assert.Contains(t, commands(effects), PlatformCommand{Name: CommandReleaseCapture})
	assert.Contains(t, commands(effects), PlatformCommand{Name: CommandRedirect, Target: TargetAssessments})
}

func TestSession_StateIsACopy(t *testing.T) {
	s := started(t, 2, 600)
	s.Handle(SelectAnswer{Index: 0, Letter: "A"})

	st := s.State()
	st.Answers[1] = "B"
	st.MarkedForReview.Toggle(0)

	assert.Equal(t, map[int]string{0: "A"}, s.State().Answers)
	assert.False(t, s.State().MarkedForReview.Has(0))
}
