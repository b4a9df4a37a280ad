package main

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/merovir/lockin"
	"github.com/merovir/lockin/dsp"
)

// config holds the raw flag values before they are folded into a
// lockin.Config.
type config struct {
	syntheticHz float64
	board       string
	port        string
	daisy       bool

	rate   float64
	window float64
	step   float64

	freqs     string
	harmonics int

	occipitalOnly bool
	channels      string

	holdMS int
	minSNR float64
	notch  float64

	synthSNR  float64
	synthSeed uint64

	configPath string
	quiet      bool
}

// newZeroConfig uses sentinel values so build can tell "flag not given"
// apart from an explicit zero.
func newZeroConfig() config {
	return config{
		syntheticHz: -1,
		rate:        -1,
		window:      -1,
		step:        -1,
		harmonics:   -1,
		holdMS:      -1,
		minSNR:      -1,
		notch:       -1,
		synthSNR:    -1,
	}
}

// build folds defaults, an optional YAML file, and the given flags into
// the run configuration, in that order of precedence.
func (c *config) build() (lockin.Config, error) {
	cfg := lockin.Default()

	if c.configPath != "" {
		if err := cfg.LoadFile(c.configPath); err != nil {
			return cfg, err
		}
	}

	switch {
	case c.syntheticHz >= 0:
		cfg.Source = "synthetic"
		cfg.SyntheticHz = c.syntheticHz
	case c.board != "":
		cfg.Source = c.board
	}

	if c.port != "" {
		cfg.Port = c.port
	}
	if c.daisy {
		cfg.Daisy = true
		cfg.Channels = 16
	}
	if c.rate > 0 {
		cfg.SampleRate = c.rate
	}
	if c.window > 0 {
		cfg.WindowSeconds = c.window
	}
	if c.step > 0 {
		cfg.StepSeconds = c.step
	}
	if c.holdMS >= 0 {
		cfg.VoteHoldMS = c.holdMS
	}
	if c.minSNR >= 0 {
		cfg.MinSNRThreshold = c.minSNR
	}
	if c.notch >= 0 {
		cfg.NotchHz = c.notch
	}
	if c.synthSNR > 0 {
		cfg.SyntheticSNR = c.synthSNR
	}
	if c.synthSeed != 0 {
		cfg.SyntheticSeed = c.synthSeed
	}
	if c.quiet {
		cfg.LoggingEnabled = false
	}
	if c.occipitalOnly {
		cfg.OccipitalOnly = true
	}

	if c.freqs != "" {
		targets, err := parseTargets(c.freqs, c.harmonics)
		if err != nil {
			return cfg, err
		}
		cfg.Targets = targets
	} else if c.harmonics > 0 {
		for i := range cfg.Targets {
			cfg.Targets[i].Harmonics = c.harmonics
		}
	}

	if c.channels != "" {
		subset, err := parseInts(c.channels)
		if err != nil {
			return cfg, errors.Wrap(err, "invalid --channels")
		}
		cfg.ChannelSubset = subset
	}

	// Keep the buffer large enough for the configured window.
	if cfg.BufferSeconds < 2*cfg.WindowSeconds {
		cfg.BufferSeconds = 2 * cfg.WindowSeconds
	}

	return cfg, nil
}

func parseTargets(list string, harmonics int) ([]dsp.Target, error) {
	parts := strings.Split(list, ",")
	targets := make([]dsp.Target, 0, len(parts))
	for _, p := range parts {
		hz, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid frequency %q", p)
		}
		targets = append(targets, dsp.Target{Hz: hz, Harmonics: harmonics})
	}
	return targets, nil
}

func parseInts(list string) ([]int, error) {
	parts := strings.Split(list, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid index %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}
