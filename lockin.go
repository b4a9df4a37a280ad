// Package lockin detects, in real time, which of several flickering
// visual targets a person is attending to, by finding the stimulus
// frequency their EEG is phase-locked to (SSVEP). It wires continuous
// multichannel acquisition, windowed spectral scoring, and a
// stability-gated decision state machine into one pipeline.
package lockin

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/merovir/lockin/decide"
	"github.com/merovir/lockin/dsp"
	"github.com/merovir/lockin/input"
	"github.com/merovir/lockin/input/synthetic"
	"github.com/merovir/lockin/processor"
	"github.com/merovir/lockin/ring"

	_ "github.com/merovir/lockin/input/cyton"
)

// OccipitalChannels is the parietal/occipital subset of the standard
// Cyton montage (P7, P8, O1, O2), the sites most informative for SSVEP.
var OccipitalChannels = []int{4, 5, 6, 7}

// Config is the flat run configuration. Zero values fall back to
// Default(); a YAML file can overlay any subset of fields.
type Config struct {
	// Source selects the backend: "synthetic" or "cyton".
	Source string `yaml:"source"`

	// Port is the serial port of the board dongle, empty for
	// auto-detection.
	Port string `yaml:"port"`

	// Daisy enables the 16-channel Cyton+Daisy mode.
	Daisy bool `yaml:"daisy"`

	SampleRate float64 `yaml:"sampling_rate"`
	Channels   int     `yaml:"channels"`

	// SyntheticHz is the stimulated frequency of the synthetic source;
	// 0 generates pure background noise.
	SyntheticHz   float64 `yaml:"synthetic_hz"`
	SyntheticSNR  float64 `yaml:"synthetic_snr"`
	SyntheticSeed uint64  `yaml:"synthetic_seed"`

	WindowSeconds float64 `yaml:"window_seconds"`
	StepSeconds   float64 `yaml:"step_seconds"`
	BufferSeconds float64 `yaml:"buffer_seconds"`

	BandpassLowHz  float64 `yaml:"bandpass_low_hz"`
	BandpassHighHz float64 `yaml:"bandpass_high_hz"`
	NotchHz        float64 `yaml:"notch_hz"`

	Targets []dsp.Target `yaml:"targets"`

	SNRNeighborBWHz float64 `yaml:"snr_neighbor_bw_hz"`
	SNRGuardBWHz    float64 `yaml:"snr_guard_bw_hz"`
	MinSNRThreshold float64 `yaml:"min_snr_threshold"`
	VoteHoldMS      int     `yaml:"vote_hold_ms"`

	// ChannelSubset selects frame indices to analyze; empty means all.
	// OccipitalOnly overrides it with the occipital preset.
	ChannelSubset []int `yaml:"channel_subset"`
	OccipitalOnly bool  `yaml:"occipital_only"`

	LoggingEnabled bool `yaml:"logging_enabled"`
}

// Default mirrors the parameters that work for a 60 Hz monitor and a
// Cyton at 125 Hz.
func Default() Config {
	return Config{
		Source:          "synthetic",
		SampleRate:      125,
		Channels:        8,
		SyntheticHz:     10,
		SyntheticSNR:    3,
		WindowSeconds:   2.0,
		StepSeconds:     0.2,
		BufferSeconds:   5.0,
		BandpassLowHz:   6,
		BandpassHighHz:  45,
		NotchHz:         60,
		Targets:         []dsp.Target{{Hz: 10}, {Hz: 15}},
		SNRNeighborBWHz: 1.0,
		SNRGuardBWHz:    0.3,
		MinSNRThreshold: 1.5,
		VoteHoldMS:      500,
		LoggingEnabled:  true,
	}
}

// LoadFile overlays c with the fields present in a YAML file.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return errors.Wrapf(err, "failed to parse config %s", path)
	}
	return nil
}

// Validate rejects configurations the pipeline cannot run. All checks
// here are fatal at startup; nothing below this layer re-validates.
func (c *Config) Validate() error {
	if c.Source != "synthetic" && !input.HasBackend(c.Source) {
		return errors.Errorf("unknown source %q", c.Source)
	}
	if c.SampleRate <= 0 {
		return errors.New("sampling rate must be positive")
	}
	if c.WindowSeconds <= 0 || c.StepSeconds <= 0 {
		return errors.New("window and step must be positive")
	}
	if c.StepSeconds > c.WindowSeconds {
		return errors.New("step must not exceed the window")
	}
	if c.BufferSeconds < c.WindowSeconds {
		return errors.New("buffer must hold at least one window")
	}
	if len(c.Targets) == 0 {
		return errors.New("no target frequencies configured")
	}
	if c.VoteHoldMS <= 0 {
		return errors.New("vote hold must be positive")
	}

	nyquist := c.SampleRate / 2
	minSep := 2*c.SNRGuardBWHz + c.SNRNeighborBWHz
	for i, a := range c.Targets {
		if a.Hz <= 0 || a.Hz >= nyquist {
			return errors.Errorf("target %g Hz outside (0, %g)", a.Hz, nyquist)
		}
		if a.Hz < c.BandpassLowHz || a.Hz > c.BandpassHighHz {
			return errors.Errorf("target %g Hz outside bandpass %g-%g Hz",
				a.Hz, c.BandpassLowHz, c.BandpassHighHz)
		}
		for _, b := range c.Targets[i+1:] {
			d := a.Hz - b.Hz
			if d < 0 {
				d = -d
			}
			if d < minSep {
				return errors.Errorf(
					"targets %g and %g Hz closer than the %g Hz sideband exclusion",
					a.Hz, b.Hz, minSep)
			}
		}
	}

	for _, ch := range c.channels() {
		if ch < 0 || ch >= c.Channels {
			return errors.Errorf("channel index %d outside 0-%d", ch, c.Channels-1)
		}
	}

	return nil
}

func (c *Config) channels() []int {
	if c.OccipitalOnly {
		return OccipitalChannels
	}
	return c.ChannelSubset
}

// Run assembles and drives the pipeline until ctx is canceled or
// acquisition fails. Confirmed decisions go to sink; proposals, when
// proposalSink is non-nil, carry the raw per-tick leader.
func Run(ctx context.Context, cfg Config, sink decide.Sink, proposalSink func(decide.Proposal), log *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if log == nil || !cfg.LoggingEnabled {
		log = zap.NewNop()
	}

	filter, err := dsp.NewFilter(dsp.FilterConfig{
		SampleRate: cfg.SampleRate,
		LowHz:      cfg.BandpassLowHz,
		HighHz:     cfg.BandpassHighHz,
		NotchHz:    cfg.NotchHz,
	})
	if err != nil {
		return errors.Wrap(err, "invalid config")
	}

	scorer, err := dsp.NewScorer(cfg.Targets, dsp.ScorerConfig{
		NeighborBW: cfg.SNRNeighborBWHz,
		GuardBW:    cfg.SNRGuardBWHz,
	})
	if err != nil {
		return errors.Wrap(err, "invalid config")
	}

	buf := ring.New(int(cfg.BufferSeconds * cfg.SampleRate))

	proc, err := processor.New(processor.Config{
		SampleRate:    cfg.SampleRate,
		WindowSeconds: cfg.WindowSeconds,
		StepSeconds:   cfg.StepSeconds,
		Channels:      cfg.channels(),
		Ring:          buf,
		Filter:        filter,
		Scorer:        scorer,
		Arbiter:       decide.Arbiter{MinSNR: cfg.MinSNRThreshold},
		Gate:          decide.NewGate(time.Duration(cfg.VoteHoldMS) * time.Millisecond),
		Sink:          sink,
		ProposalSink:  proposalSink,
		Log:           log,
	})
	if err != nil {
		return errors.Wrap(err, "invalid config")
	}

	session, err := newSession(cfg)
	if err != nil {
		return err
	}

	log.Info("pipeline starting",
		zap.String("source", cfg.Source),
		zap.Float64("rate", cfg.SampleRate),
		zap.Int("channels", cfg.Channels),
		zap.Float64("window_s", cfg.WindowSeconds),
		zap.Float64("step_s", cfg.StepSeconds))

	// Acquisition owns the write path; the tick loop only reads
	// snapshots. Cancellation stops acquisition first, then waits out
	// the in-flight tick.
	tickCtx, stopTicks := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		proc.Process(tickCtx)
	}()

	err = session.Start(ctx, buf)

	stopTicks()
	wg.Wait()

	if err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "acquisition failed")
	}
	return nil
}

func newSession(cfg Config) (input.Session, error) {
	if cfg.Daisy && cfg.Channels < 16 {
		cfg.Channels = 16
	}
	if cfg.Source == "synthetic" {
		return synthetic.NewSession(synthetic.Config{
			SampleRate: cfg.SampleRate,
			Channels:   cfg.Channels,
			Freq:       cfg.SyntheticHz,
			SNR:        cfg.SyntheticSNR,
			Seed:       cfg.SyntheticSeed,
		}), nil
	}

	backend, err := input.InitBackend(cfg.Source)
	if err != nil {
		return nil, err
	}

	device, err := input.GetDevice(backend, cfg.Port)
	if err != nil {
		return nil, err
	}

	session, err := backend.Start(input.SessionConfig{
		Device:     device,
		Channels:   cfg.Channels,
		SampleRate: cfg.SampleRate,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to start the input backend")
	}
	return session, nil
}
