package lockin

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merovir/lockin/decide"
	"github.com/merovir/lockin/dsp"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown source", func(c *Config) { c.Source = "telepathy" }},
		{"zero rate", func(c *Config) { c.SampleRate = 0 }},
		{"zero window", func(c *Config) { c.WindowSeconds = 0 }},
		{"negative step", func(c *Config) { c.StepSeconds = -0.1 }},
		{"step exceeds window", func(c *Config) { c.StepSeconds = 3 }},
		{"buffer smaller than window", func(c *Config) { c.BufferSeconds = 1 }},
		{"empty targets", func(c *Config) { c.Targets = nil }},
		{"zero hold", func(c *Config) { c.VoteHoldMS = 0 }},
		{"target above nyquist", func(c *Config) {
			c.Targets = []dsp.Target{{Hz: 70}}
		}},
		{"target outside bandpass", func(c *Config) {
			c.Targets = []dsp.Target{{Hz: 4}, {Hz: 15}}
		}},
		{"overlapping targets", func(c *Config) {
			c.Targets = []dsp.Target{{Hz: 10}, {Hz: 10.5}}
		}},
		{"bad channel index", func(c *Config) { c.ChannelSubset = []int{9} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestOccipitalPreset(t *testing.T) {
	cfg := Default()
	cfg.ChannelSubset = []int{0, 1}
	assert.Equal(t, []int{0, 1}, cfg.channels())

	cfg.OccipitalOnly = true
	assert.Equal(t, OccipitalChannels, cfg.channels())
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lockin.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
window_seconds: 3.0
notch_hz: 50
targets:
  - hz: 8
  - hz: 12
    harmonics: 3
`), 0o644))

	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))

	// Overlaid fields change, the rest keep their defaults.
	assert.Equal(t, 3.0, cfg.WindowSeconds)
	assert.Equal(t, 50.0, cfg.NotchHz)
	require.Len(t, cfg.Targets, 2)
	assert.Equal(t, 8.0, cfg.Targets[0].Hz)
	assert.Equal(t, 3, cfg.Targets[1].Harmonics)
	assert.Equal(t, 0.2, cfg.StepSeconds)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.LoadFile("/nonexistent/lockin.yaml"))
}

func TestRunSyntheticStopsOnCancel(t *testing.T) {
	cfg := Default()
	cfg.SyntheticHz = 10
	cfg.SyntheticSNR = 10
	cfg.LoggingEnabled = false

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	sink := decide.NewChanSink(8)
	err := Run(ctx, cfg, sink, nil, nil)
	assert.NoError(t, err, "cancellation is a graceful stop")
}

func TestRunRejectsBadConfig(t *testing.T) {
	cfg := Default()
	cfg.Targets = nil

	err := Run(context.Background(), cfg, decide.NewChanSink(1), nil, nil)
	assert.Error(t, err)
}
