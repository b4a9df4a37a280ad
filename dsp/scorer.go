package dsp

import (
	"math"

	"github.com/pkg/errors"
)

// noiseFloorEps keeps the SNR denominator away from zero on silent or
// degenerate spectra.
const noiseFloorEps = 1e-12

// Target is one candidate stimulus frequency.
type Target struct {
	Hz        float64 `yaml:"hz"`
	Harmonics int     `yaml:"harmonics"` // 1 = fundamental only; defaults to 2
}

// Score is the per-tick result for one target.
type Score struct {
	Target Target
	SNR    float64 // harmonic-weighted signal-to-sideband ratio
	Power  float64 // raw power at the fundamental bin
}

// ScorerConfig tunes the sideband noise floor: NeighborBW is the width of
// each flanking band, GuardBW the exclusion zone around the peak so the
// signal does not contaminate its own noise estimate.
type ScorerConfig struct {
	NeighborBW float64 // Hz, defaults to 1.0
	GuardBW    float64 // Hz, defaults to 0.3
}

// Scorer computes the SNR of each configured target against a spectrum.
// Harmonics beyond the fundamental contribute at halving weights
// (1, 0.5, 0.25, ...); harmonics at or above Nyquist are skipped.
type Scorer struct {
	targets []Target
	cfg     ScorerConfig
}

func NewScorer(targets []Target, cfg ScorerConfig) (*Scorer, error) {
	if len(targets) == 0 {
		return nil, errors.New("dsp: no target frequencies configured")
	}
	if cfg.NeighborBW == 0 {
		cfg.NeighborBW = 1.0
	}
	if cfg.GuardBW == 0 {
		cfg.GuardBW = 0.3
	}

	ts := make([]Target, len(targets))
	for i, t := range targets {
		if t.Hz <= 0 {
			return nil, errors.Errorf("dsp: target frequency %g Hz invalid", t.Hz)
		}
		if t.Harmonics <= 0 {
			t.Harmonics = 2
		}
		ts[i] = t
	}

	return &Scorer{targets: ts, cfg: cfg}, nil
}

func (s *Scorer) Targets() []Target {
	return s.targets
}

// MinSeparation is the closest two targets may sit before their sideband
// noise estimates overlap each other's peaks.
func (s *Scorer) MinSeparation() float64 {
	return s.cfg.GuardBW*2 + s.cfg.NeighborBW
}

// Score evaluates every target against one spectrum. Results are in
// target configuration order, one per target, every tick.
func (s *Scorer) Score(sp Spectrum) []Score {
	out := make([]Score, len(s.targets))
	nyquist := 0.0
	if n := len(sp.Freqs); n > 0 {
		nyquist = sp.Freqs[n-1]
	}

	for i, t := range s.targets {
		sc := Score{Target: t}

		weight := 1.0
		for h := 1; h <= t.Harmonics; h++ {
			f := float64(h) * t.Hz
			if f > nyquist {
				break
			}
			snr, power := s.binSNR(sp, f)
			sc.SNR += weight * snr
			if h == 1 {
				sc.Power = power
			}
			weight /= 2
		}

		out[i] = sc
	}
	return out
}

// binSNR is the power in the bin nearest f divided by the mean power of
// two symmetric sidebands, excluding the guard band around the peak.
func (s *Scorer) binSNR(sp Spectrum, f float64) (snr, power float64) {
	idx := sp.nearestBin(f)
	if idx < 0 {
		return 0, 0
	}
	power = sp.Pxx[idx]

	guard := int(math.Ceil(s.cfg.GuardBW / sp.Res))
	neighbor := int(math.Ceil(s.cfg.NeighborBW / sp.Res))
	if guard < 1 {
		guard = 1
	}
	if neighbor < 1 {
		neighbor = 1
	}

	var sum float64
	var n int
	for _, b := range [][2]int{
		{idx - guard - neighbor, idx - guard},         // left sideband
		{idx + guard + 1, idx + guard + neighbor + 1}, // right sideband
	} {
		lo, hi := b[0], b[1]
		if lo < 0 {
			lo = 0
		}
		if hi > len(sp.Pxx) {
			hi = len(sp.Pxx)
		}
		for j := lo; j < hi; j++ {
			sum += sp.Pxx[j]
			n++
		}
	}

	if n == 0 {
		return 0, power
	}
	noise := sum / float64(n)
	if noise < noiseFloorEps {
		noise = noiseFloorEps
	}
	return power / noise, power
}
