package websocket

import (
	"encoding/json"
	"errors"

	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

var (
	ErrMalformed     = errors.New("malformed message")
	ErrUnknownAction = errors.New("unknown action")
)

// ValidationError carries translated field errors of a message.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "invalid message fields" }

// Decoded is one parsed client message. Event is nil for ping and faces;
// Faces is set for faces.
type Decoded struct {
	Action Action
	Event  proctor.Event
	Faces  int
}

// Decode parses and validates one client message.
func Decode(raw []byte) (Decoded, error) {
	var env RequestEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Decoded{}, ErrMalformed
	}
	d := Decoded{Action: env.Action}

	switch env.Action {
	case ActionVisibility:
		var req VisibilityRequest
		if err := parse(raw, &req); err != nil {
			return d, err
		}
		d.Event = proctor.VisibilityChanged{Hidden: *req.Hidden}
	case ActionFullscreen:
		var req FullscreenRequest
		if err := parse(raw, &req); err != nil {
			return d, err
		}
		d.Event = proctor.FullscreenChanged{Active: *req.Active}
	case ActionFaces:
		var req FacesRequest
		if err := parse(raw, &req); err != nil {
			return d, err
		}
		d.Faces = *req.Count
	case ActionClipboard:
		var req ClipboardRequest
		if err := parse(raw, &req); err != nil {
			return d, err
		}
		d.Event = proctor.SuppressedAction{Kind: req.Kind}
	case ActionContextMenu:
		d.Event = proctor.SuppressedAction{Kind: string(ActionContextMenu)}
	case ActionSelectAnswer:
		var req SelectAnswerRequest
		if err := parse(raw, &req); err != nil {
			return d, err
		}
		d.Event = proctor.SelectAnswer{Index: *req.Index, Letter: req.Letter}
	case ActionToggleReview:
		var req IndexRequest
		if err := parse(raw, &req); err != nil {
			return d, err
		}
		d.Event = proctor.ToggleReview{Index: *req.Index}
	case ActionNavigate:
		var req IndexRequest
		if err := parse(raw, &req); err != nil {
			return d, err
		}
		d.Event = proctor.Navigate{Index: *req.Index}
	case ActionSubmit:
		var req SubmitRequest
		if err := parse(raw, &req); err != nil {
			return d, err
		}
		d.Event = proctor.SubmitRequested{Confirmed: req.Confirmed}
	case ActionAbandon:
		d.Event = proctor.Abandon{}
	case ActionTick:
		d.Event = proctor.Tick{}
	case ActionPing:
	default:
		return d, ErrUnknownAction
	}
	return d, nil
}

func parse(raw []byte, dst interface{}) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return ErrMalformed
	}
	if fields := validator.Struct(dst); fields != nil {
		return &ValidationError{Fields: fields}
	}
	return nil
}
