package proctor

import (
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Violations aggregates integrity counters and owns the one-way
// Active -> Terminated(reason) transition.
type Violations struct {
	policy      config.Policy
	counters    model.ViolationCounters
	termination model.TerminationState
}

// NewViolations creates an active aggregator.
func NewViolations(policy config.Policy) *Violations {
	return &Violations{policy: policy}
}

// Counters returns a copy of the current counters.
func (v *Violations) Counters() model.ViolationCounters { return v.counters }

// Termination returns the termination state.
func (v *Violations) Termination() model.TerminationState { return v.termination }

// Terminated reports whether a limit has been reached.
func (v *Violations) Terminated() bool { return v.termination.Terminated }

// RecordTabSwitch counts one visibility-hidden transition. It reports true
// when this switch reached the limit and terminated the session.
func (v *Violations) RecordTabSwitch() bool {
	if v.termination.Terminated {
		return false
	}
	v.counters.TabSwitchCount++
	if v.counters.TabSwitchCount >= v.policy.TabSwitchLimit {
		v.terminate(model.ReasonTabSwitch)
		return true
	}
	return false
}

// RecordFaceEvent counts a stable multiple/missing transition. Face counters
// only drive termination when the policy sets a non-zero limit.
func (v *Violations) RecordFaceEvent(ev FaceEvent) bool {
	if v.termination.Terminated {
		return false
	}
	switch ev.To {
	case model.FaceMultiple:
		v.counters.MultipleFacesCount++
		if limit := v.policy.MultipleFacesLimit; limit > 0 && v.counters.MultipleFacesCount >= limit {
			v.terminate(model.ReasonMultipleFaces)
			return true
		}
	case model.FaceMissing:
		v.counters.NoFaceCount++
		if limit := v.policy.NoFaceLimit; limit > 0 && v.counters.NoFaceCount >= limit {
			v.terminate(model.ReasonNoFace)
			return true
		}
	}
	return false
}

// RecordFullscreenExit counts a fullscreen exit for display only.
func (v *Violations) RecordFullscreenExit() {
	if v.termination.Terminated {
		return
	}
	v.counters.FullscreenExitCount++
}

func (v *Violations) terminate(reason model.TerminationReason) {
	v.termination = model.TerminationState{Terminated: true, Reason: reason}
}
