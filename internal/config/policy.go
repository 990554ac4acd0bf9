package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds the integrity-monitoring thresholds and cadences.
type Policy struct {
	// TabSwitchLimit terminates the session when the tab switch count reaches it.
	TabSwitchLimit int `yaml:"tab_switch_limit" json:"tab_switch_limit"`

	// Consecutive raw frames required before the stable face status changes.
	MissingFaceFrames  int `yaml:"missing_face_frames" json:"missing_face_frames"`
	MultipleFaceFrames int `yaml:"multiple_face_frames" json:"multiple_face_frames"`
	RecoveryFrames     int `yaml:"recovery_frames" json:"recovery_frames"`

	// Face-based termination is off unless a limit is set (0 disables).
	MultipleFacesLimit int `yaml:"multiple_faces_limit" json:"multiple_faces_limit"`
	NoFaceLimit        int `yaml:"no_face_limit" json:"no_face_limit"`

	TickInterval    time.Duration `yaml:"tick_interval" json:"tick_interval"`
	SampleInterval  time.Duration `yaml:"sample_interval" json:"sample_interval"`
	FrameStaleAfter time.Duration `yaml:"frame_stale_after" json:"frame_stale_after"`
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		TabSwitchLimit:     30,
		MissingFaceFrames:  3,
		MultipleFaceFrames: 2,
		RecoveryFrames:     2,
		TickInterval:       time.Second,
		SampleInterval:     500 * time.Millisecond,
		FrameStaleAfter:    2 * time.Second,
	}
}

// LoadPolicy returns DefaultPolicy overlaid with the YAML file at path.
// An empty path yields the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("parse policy file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Validate rejects thresholds that would disable the debouncer or timers.
func (p Policy) Validate() error {
	switch {
	case p.TabSwitchLimit < 1:
		return errors.New("policy: tab_switch_limit must be >= 1")
	case p.MissingFaceFrames < 1 || p.MultipleFaceFrames < 1 || p.RecoveryFrames < 1:
		return errors.New("policy: frame thresholds must be >= 1")
	case p.MultipleFacesLimit < 0 || p.NoFaceLimit < 0:
		return errors.New("policy: face limits must be >= 0")
	case p.TickInterval <= 0 || p.SampleInterval <= 0:
		return errors.New("policy: intervals must be positive")
	}
	return nil
}
