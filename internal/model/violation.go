package model

import (
	"encoding/json"
	"time"
)

// FaceStatus is the debounced face-presence classification.
type FaceStatus string

const (
	FaceOK       FaceStatus = "ok"
	FaceMissing  FaceStatus = "missing"
	FaceMultiple FaceStatus = "multiple"
)

// ViolationCounters count stable-state transitions, never raw samples.
// FullscreenExitCount is display-only and never drives termination.
type ViolationCounters struct {
	TabSwitchCount      int `json:"tab_switch_count"`
	MultipleFacesCount  int `json:"multiple_faces_count"`
	NoFaceCount         int `json:"no_face_count"`
	FullscreenExitCount int `json:"fullscreen_exit_count"`
}

// TerminationReason identifies which integrity rule ended a session.
type TerminationReason string

const (
	ReasonTabSwitch     TerminationReason = "tab_switch"
	ReasonMultipleFaces TerminationReason = "multiple_faces"
	ReasonNoFace        TerminationReason = "no_face"
)

// TerminationState is either active (Terminated=false) or Terminated(Reason).
// The transition is one-way.
type TerminationState struct {
	Terminated bool              `json:"terminated"`
	Reason     TerminationReason `json:"reason,omitempty"`
}

// AuditKind enumerates audit trail record kinds.
type AuditKind string

const (
	AuditTabSwitch      AuditKind = "tab_switch"
	AuditFullscreenExit AuditKind = "fullscreen_exit"
	AuditFaceStatus     AuditKind = "face_status"
	AuditTerminated     AuditKind = "terminated"
	AuditSubmitted      AuditKind = "submitted"
	AuditExpired        AuditKind = "expired"
	AuditAbandoned      AuditKind = "abandoned"
)

// AuditRecord is one integrity or lifecycle event kept for later review.
type AuditRecord struct {
	SessionID    string          `json:"session_id"`
	AssessmentID string          `json:"assessment_id"`
	CandidateID  string          `json:"candidate_id"`
	Kind         AuditKind       `json:"kind"`
	Detail       json.RawMessage `json:"detail,omitempty"`
	RecordedAt   time.Time       `json:"recorded_at"`
}
