package websocket

import "github.com/stemsi/exstem-proctor/internal/proctor"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionVisibility   Action = "visibility"
	ActionFullscreen   Action = "fullscreen"
	ActionFaces        Action = "faces"
	ActionClipboard    Action = "clipboard"
	ActionContextMenu  Action = "context_menu"
	ActionSelectAnswer Action = "select_answer"
	ActionToggleReview Action = "toggle_review"
	ActionNavigate     Action = "navigate"
	ActionSubmit       Action = "submit"
	ActionAbandon      Action = "abandon"
	ActionPing         Action = "ping"

	// ActionTick only appears in recorded event logs; live clients never
	// drive the countdown.
	ActionTick Action = "tick"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// VisibilityRequest reports a page-visibility change.
type VisibilityRequest struct {
	Action Action `json:"action"`
	Hidden *bool  `json:"hidden" binding:"required"`
}

// FullscreenRequest reports a fullscreen change.
type FullscreenRequest struct {
	Action Action `json:"action"`
	Active *bool  `json:"active" binding:"required"`
}

// FacesRequest carries the latest face-detector count.
type FacesRequest struct {
	Action Action `json:"action"`
	Count  *int   `json:"count" binding:"required,min=0"`
}

// ClipboardRequest reports a suppressed clipboard attempt.
type ClipboardRequest struct {
	Action Action `json:"action"`
	Kind   string `json:"kind" binding:"required,oneof=copy cut paste"`
}

// SelectAnswerRequest sets the answer of one question.
type SelectAnswerRequest struct {
	Action Action `json:"action"`
	Index  *int   `json:"index" binding:"required,min=0"`
	Letter string `json:"letter" binding:"required,answer_letter"`
}

// IndexRequest targets one question (toggle_review, navigate).
type IndexRequest struct {
	Action Action `json:"action"`
	Index  *int   `json:"index" binding:"required"`
}

// SubmitRequest asks to finish the session. Confirmed acknowledges
// unanswered questions.
type SubmitRequest struct {
	Action    Action `json:"action"`
	Confirmed bool   `json:"confirmed"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventCommand Event = "command"
	EventError   Event = "error"
	EventPong    Event = "pong"
)

// Session notices (state, paper, restoring, tick, face_status, warning,
// confirmation_required, result, error) are written as proctor.Notice.

// CommandEvent instructs the browser to act on a platform surface.
type CommandEvent struct {
	Event  Event           `json:"event"`
	Name   proctor.Command `json:"name"`
	Target string          `json:"target,omitempty"`
}

type ErrorResponse struct {
	Event   Event             `json:"event"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
