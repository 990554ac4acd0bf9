package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPolicy_EmptyPathReturnsDefaults(t *testing.T) {
	p, err := config.LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultPolicy(), p)
	assert.Equal(t, 30, p.TabSwitchLimit)
	assert.Equal(t, 3, p.MissingFaceFrames)
	assert.Equal(t, 2, p.MultipleFaceFrames)
	assert.Equal(t, 2, p.RecoveryFrames)
	assert.Zero(t, p.MultipleFacesLimit)
	assert.Zero(t, p.NoFaceLimit)
}

func TestLoadPolicy_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	body := "tab_switch_limit: 5\nsample_interval: 250ms\nno_face_limit: 4\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	p, err := config.LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 5, p.TabSwitchLimit)
	assert.Equal(t, 250*time.Millisecond, p.SampleInterval)
	assert.Equal(t, 4, p.NoFaceLimit)
	// Untouched fields keep their defaults.
	assert.Equal(t, time.Second, p.TickInterval)
	assert.Equal(t, 3, p.MissingFaceFrames)
}

func TestLoadPolicy_MissingFile(t *testing.T) {
	_, err := config.LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read policy file")
}

func TestLoadPolicy_RejectsInvalidThresholds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recovery_frames: 0\n"), 0o600))

	_, err := config.LoadPolicy(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame thresholds")
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *config.Policy)
		wantErr string
	}{
		{"defaults", func(p *config.Policy) {}, ""},
		{"zero tab limit", func(p *config.Policy) { p.TabSwitchLimit = 0 }, "tab_switch_limit"},
		{"negative face limit", func(p *config.Policy) { p.NoFaceLimit = -1 }, "face limits"},
		{"zero tick", func(p *config.Policy) { p.TickInterval = 0 }, "intervals"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := config.DefaultPolicy()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	cfg := config.Load()
	assert.False(t, cfg.AuditEnabled())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 10*time.Second, cfg.AssessmentAPITimeout)
}

func TestCacheKey_SnapshotKey(t *testing.T) {
	assert.Equal(t,
		"proctor:candidate:c1:assessment:a1:snapshot",
		config.CacheKey.SnapshotKey("c1", "a1"),
	)
}
