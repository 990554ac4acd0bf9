package model

import "time"

// Phase enumerates the lifecycle states of an assessment session.
type Phase string

const (
	PhaseLoading    Phase = "LOADING"
	PhaseActive     Phase = "ACTIVE"
	PhaseSubmitted  Phase = "SUBMITTED"
	PhaseExpired    Phase = "EXPIRED"
	PhaseTerminated Phase = "TERMINATED"
	PhaseAbandoned  Phase = "ABANDONED"
	PhaseFailed     Phase = "FAILED"
)

// Final reports whether no further transitions are possible from p.
func (p Phase) Final() bool {
	switch p {
	case PhaseSubmitted, PhaseExpired, PhaseTerminated, PhaseAbandoned, PhaseFailed:
		return true
	}
	return false
}

// AssessmentSession represents one candidate's attempt.
type AssessmentSession struct {
	SessionID        string         `json:"session_id"`
	AssessmentID     string         `json:"assessment_id"`
	AssessmentName   string         `json:"assessment_name"`
	Questions        []Question     `json:"questions"`
	DurationSeconds  int            `json:"duration_seconds"`
	RemainingSeconds int            `json:"remaining_seconds"`
	Answers          map[int]string `json:"answers"`
	MarkedForReview  IndexSet       `json:"marked_for_review"`
	CurrentIndex     int            `json:"current_index"`
	StartedAt        time.Time      `json:"started_at"`
}

// Unanswered counts questions without a selected letter.
func (s *AssessmentSession) Unanswered() int {
	n := 0
	for i := range s.Questions {
		if _, ok := s.Answers[i]; !ok {
			n++
		}
	}
	return n
}

// CopyAnswers returns an independent copy of the answer map.
func (s *AssessmentSession) CopyAnswers() map[int]string {
	out := make(map[int]string, len(s.Answers))
	for k, v := range s.Answers {
		out[k] = v
	}
	return out
}

// PersistedSnapshot is the resumable subset of a session written to the
// local store. Remaining time is not stored; it is
// re-validated against the remote service on resume.
type PersistedSnapshot struct {
	SessionID       string         `json:"session_id"`
	AssessmentName  string         `json:"assessment_name"`
	Questions       []Question     `json:"questions"`
	DurationSeconds int            `json:"duration_seconds"`
	StartedAt       time.Time      `json:"started_at"`
	Answers         map[int]string `json:"answers"`
	MarkedForReview IndexSet       `json:"marked_for_review"`
	CurrentIndex    int            `json:"current_index"`
	Timestamp       time.Time      `json:"timestamp"`
}

// SnapshotOf captures the persisted subset of s at time now.
func SnapshotOf(s *AssessmentSession, now time.Time) PersistedSnapshot {
	return PersistedSnapshot{
		SessionID:       s.SessionID,
		AssessmentName:  s.AssessmentName,
		Questions:       s.Questions,
		DurationSeconds: s.DurationSeconds,
		StartedAt:       s.StartedAt,
		Answers:         s.CopyAnswers(),
		MarkedForReview: s.MarkedForReview.Clone(),
		CurrentIndex:    s.CurrentIndex,
		Timestamp:       now,
	}
}

// Usable reports whether the snapshot carries enough to resume a session.
func (p *PersistedSnapshot) Usable() bool {
	return p != nil && p.SessionID != "" && len(p.Questions) > 0
}

// SubmissionResult is handed to the results view after a successful submit.
type SubmissionResult struct {
	Score          *float64 `json:"score,omitempty"`
	TotalQuestions int      `json:"total_questions"`
	AssessmentName string   `json:"assessment_name"`
}
