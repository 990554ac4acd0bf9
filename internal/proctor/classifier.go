package proctor

import (
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// FrameCounters hold the consecutive-frame run lengths. At most one is
// non-zero after any sample.
type FrameCounters struct {
	Missing  int `json:"missing"`
	Multiple int `json:"multiple"`
	OK       int `json:"ok"`
}

// FaceThresholds are the consecutive frames needed to enter each status.
type FaceThresholds struct {
	Missing  int
	Multiple int
	Recovery int
}

// ThresholdsFrom extracts the face thresholds of a policy.
func ThresholdsFrom(p config.Policy) FaceThresholds {
	return FaceThresholds{
		Missing:  p.MissingFaceFrames,
		Multiple: p.MultipleFaceFrames,
		Recovery: p.RecoveryFrames,
	}
}

// FaceEvent is a change of the emitted stable status.
type FaceEvent struct {
	From model.FaceStatus `json:"from"`
	To   model.FaceStatus `json:"to"`
}

// RawStatus classifies a single detector output.
func RawStatus(faces int) model.FaceStatus {
	switch {
	case faces <= 0:
		return model.FaceMissing
	case faces == 1:
		return model.FaceOK
	default:
		return model.FaceMultiple
	}
}

// Classify advances the debouncer by one raw sample. It returns the new run
// counters, the new emitted status and at most one event. An event is
// produced only when the stable status differs from the last emitted one.
func Classify(faces int, prior FrameCounters, emitted model.FaceStatus, th FaceThresholds) (FrameCounters, model.FaceStatus, []FaceEvent) {
	var next FrameCounters
	switch RawStatus(faces) {
	case model.FaceMissing:
		next.Missing = prior.Missing + 1
	case model.FaceMultiple:
		next.Multiple = prior.Multiple + 1
	default:
		next.OK = prior.OK + 1
	}

	status := emitted
	switch {
	case next.Missing >= th.Missing:
		status = model.FaceMissing
	case next.Multiple >= th.Multiple:
		status = model.FaceMultiple
	case next.OK >= th.Recovery:
		status = model.FaceOK
	}

	if status == emitted {
		return next, emitted, nil
	}
	return next, status, []FaceEvent{{From: emitted, To: status}}
}

// FaceClassifier is the stateful wrapper around Classify. The initial
// emitted status is ok.
type FaceClassifier struct {
	th       FaceThresholds
	counters FrameCounters
	emitted  model.FaceStatus
}

// NewFaceClassifier creates a classifier with the given thresholds.
func NewFaceClassifier(th FaceThresholds) *FaceClassifier {
	return &FaceClassifier{th: th, emitted: model.FaceOK}
}

// Observe feeds one raw face count.
func (c *FaceClassifier) Observe(faces int) []FaceEvent {
	var events []FaceEvent
	c.counters, c.emitted, events = Classify(faces, c.counters, c.emitted, c.th)
	return events
}

// Status returns the last emitted stable status.
func (c *FaceClassifier) Status() model.FaceStatus { return c.emitted }

// Counters returns the current run counters.
func (c *FaceClassifier) Counters() FrameCounters { return c.counters }
