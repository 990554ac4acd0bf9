package proctor

import (
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Warning is the payload of a warning notice.
type Warning struct {
	Violation string `json:"violation"`
	Count     int    `json:"count"`
	Limit     int    `json:"limit,omitempty"`
}

// onVisibility counts every hidden transition; tab switching is a low-noise
// signal and is not debounced.
func (s *Session) onVisibility(hidden bool) []Effect {
	if !hidden || s.phase != model.PhaseActive {
		return nil
	}

	terminated := s.violations.RecordTabSwitch()
	count := s.violations.Counters().TabSwitchCount
	effects := []Effect{
		Audit{Kind: model.AuditTabSwitch, Detail: map[string]any{"count": count}},
	}
	if terminated {
		return append(effects, s.terminate()...)
	}

	return append(effects,
		Notify{Notice{Kind: NoticeWarning, Data: Warning{
			Violation: string(model.AuditTabSwitch),
			Count:     count,
			Limit:     s.policy.TabSwitchLimit,
		}}},
		s.stateNotice(),
	)
}

// onFullscreen logs and counts exits for display; exits never terminate.
func (s *Session) onFullscreen(active bool) []Effect {
	if active || s.phase != model.PhaseActive {
		return nil
	}

	s.violations.RecordFullscreenExit()
	count := s.violations.Counters().FullscreenExitCount
	s.log.Warn().Int("fullscreen_exit_count", count).Msg("Candidate exited fullscreen")

	return []Effect{
		Audit{Kind: model.AuditFullscreenExit, Detail: map[string]any{"count": count}},
		Notify{Notice{Kind: NoticeWarning, Data: Warning{
			Violation: string(model.AuditFullscreenExit),
			Count:     count,
		}}},
		s.stateNotice(),
	}
}

// onSuppressed acknowledges a blocked clipboard or context-menu attempt.
// Suppression happens on the platform; no state changes here.
func (s *Session) onSuppressed(kind string) []Effect {
	s.log.Debug().Str("kind", kind).Msg("Suppressed platform action")
	return nil
}

// onFrame feeds one raw face count through the debouncer.
func (s *Session) onFrame(faces int) []Effect {
	if !s.sampling || s.phase != model.PhaseActive {
		return nil
	}

	events := s.faces.Observe(faces)
	if len(events) == 0 {
		return nil
	}

	var effects []Effect
	for _, ev := range events {
		effects = append(effects,
			Notify{Notice{Kind: NoticeFaceStatus, Data: ev}},
			Audit{Kind: model.AuditFaceStatus, Detail: map[string]any{"from": ev.From, "to": ev.To}},
		)
		if s.violations.RecordFaceEvent(ev) {
			return append(effects, s.terminate()...)
		}
	}
	return append(effects, s.stateNotice())
}
