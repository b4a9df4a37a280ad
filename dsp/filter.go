// Package dsp provides the signal-processing stages of the detection
// pipeline: per-window zero-phase filtering, Welch power spectra, and
// SNR scoring against a fixed set of target frequencies.
package dsp

import (
	"math"

	"github.com/pkg/errors"
)

// ErrUnstable reports that filtering produced non-finite output, usually
// from a corrupt window. The tick that hits it is scored as "none".
var ErrUnstable = errors.New("dsp: filter produced non-finite output")

// biquad is one second-order section, coefficients normalized to a0 = 1.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// apply runs the section over buf in place with zero initial state,
// direct form II transposed.
func (q biquad) apply(buf []float64) {
	var s1, s2 float64
	for i, x := range buf {
		y := q.b0*x + s1
		s1 = q.b1*x - q.a1*y + s2
		s2 = q.b2*x - q.a2*y
		buf[i] = y
	}
}

// butterworthQ returns the section Q values for an even-order
// Butterworth cascade.
func butterworthQ(order int) []float64 {
	qs := make([]float64, order/2)
	for k := range qs {
		theta := math.Pi * float64(2*k+1) / float64(2*order)
		qs[k] = 1.0 / (2.0 * math.Sin(theta))
	}
	return qs
}

func lowpassSection(fs, fc, q float64) biquad {
	w0 := 2 * math.Pi * fc / fs
	cw, alpha := math.Cos(w0), math.Sin(w0)/(2*q)
	a0 := 1 + alpha
	return biquad{
		b0: (1 - cw) / 2 / a0,
		b1: (1 - cw) / a0,
		b2: (1 - cw) / 2 / a0,
		a1: -2 * cw / a0,
		a2: (1 - alpha) / a0,
	}
}

func highpassSection(fs, fc, q float64) biquad {
	w0 := 2 * math.Pi * fc / fs
	cw, alpha := math.Cos(w0), math.Sin(w0)/(2*q)
	a0 := 1 + alpha
	return biquad{
		b0: (1 + cw) / 2 / a0,
		b1: -(1 + cw) / a0,
		b2: (1 + cw) / 2 / a0,
		a1: -2 * cw / a0,
		a2: (1 - alpha) / a0,
	}
}

func notchSection(fs, fc, q float64) biquad {
	w0 := 2 * math.Pi * fc / fs
	cw, alpha := math.Cos(w0), math.Sin(w0)/(2*q)
	a0 := 1 + alpha
	return biquad{
		b0: 1 / a0,
		b1: -2 * cw / a0,
		b2: 1 / a0,
		a1: -2 * cw / a0,
		a2: (1 - alpha) / a0,
	}
}

// FilterConfig describes the per-window preprocessing chain: a Butterworth
// bandpass (highpass at LowHz cascaded with lowpass at HighHz) followed by
// a mains notch.
type FilterConfig struct {
	SampleRate float64
	LowHz      float64
	HighHz     float64
	NotchHz    float64 // 0 disables the notch
	NotchQ     float64 // defaults to 30
	Order      int     // per edge, even, defaults to 4
}

// Filter applies the preprocessing chain to one window of one channel.
// It carries no state between windows: each Apply is zero-phase
// (forward-backward) with fresh section state, so a window is a pure
// function of its samples. Windows shorter than the filter transient will
// show edge distortion; that is a documented limitation, not corrected.
type Filter struct {
	sections []biquad
}

func NewFilter(cfg FilterConfig) (*Filter, error) {
	if cfg.Order == 0 {
		cfg.Order = 4
	}
	if cfg.Order < 2 || cfg.Order%2 != 0 {
		return nil, errors.Errorf("dsp: filter order %d must be even and >= 2", cfg.Order)
	}
	if cfg.NotchQ == 0 {
		cfg.NotchQ = 30
	}

	nyquist := cfg.SampleRate / 2
	if cfg.LowHz <= 0 || cfg.HighHz <= cfg.LowHz || cfg.HighHz >= nyquist {
		return nil, errors.Errorf("dsp: bandpass %g-%g Hz invalid at %g Hz sampling",
			cfg.LowHz, cfg.HighHz, cfg.SampleRate)
	}

	f := &Filter{}
	for _, q := range butterworthQ(cfg.Order) {
		f.sections = append(f.sections, highpassSection(cfg.SampleRate, cfg.LowHz, q))
		f.sections = append(f.sections, lowpassSection(cfg.SampleRate, cfg.HighHz, q))
	}

	if cfg.NotchHz > 0 {
		if cfg.NotchHz >= nyquist {
			return nil, errors.Errorf("dsp: notch %g Hz at or above Nyquist (%g Hz)",
				cfg.NotchHz, nyquist)
		}
		f.sections = append(f.sections, notchSection(cfg.SampleRate, cfg.NotchHz, cfg.NotchQ))
	}

	return f, nil
}

// Apply filters buf in place, zero-phase. Returns ErrUnstable if the
// output contains non-finite values.
func (f *Filter) Apply(buf []float64) error {
	f.pass(buf)
	reverse(buf)
	f.pass(buf)
	reverse(buf)

	for _, v := range buf {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrUnstable
		}
	}
	return nil
}

func (f *Filter) pass(buf []float64) {
	for _, q := range f.sections {
		q.apply(buf)
	}
}

func reverse(buf []float64) {
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
}
