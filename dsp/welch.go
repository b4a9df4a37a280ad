package dsp

import (
	"github.com/mjibson/go-dsp/spectral"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/floats"
)

// Spectrum is one power spectral density estimate, averaged across
// channels.
type Spectrum struct {
	Freqs []float64 // bin center frequencies, Hz
	Pxx   []float64 // power per bin
	Res   float64   // bin spacing, Hz
}

// segmentLength picks the Welch segment size: about one second of data,
// or half the window for short windows, mirroring the usual nperseg
// heuristic.
func segmentLength(n int, fs float64) int {
	seg := int(fs)
	if half := n / 2; seg > half {
		seg = half
	}
	if seg < 8 {
		seg = n
	}
	return seg
}

// WelchPSD estimates the power spectral density of a multichannel window
// (channels x samples) with Hann-windowed, half-overlapping segments and
// averages the per-channel spectra into one. The estimate is a pure
// function of its input.
func WelchPSD(chans [][]float64, fs float64) Spectrum {
	if len(chans) == 0 || len(chans[0]) == 0 {
		return Spectrum{}
	}

	seg := segmentLength(len(chans[0]), fs)
	opts := &spectral.PwelchOptions{
		NFFT:     seg,
		Noverlap: seg / 2,
		Window:   window.Hann,
	}

	var sp Spectrum
	for _, ch := range chans {
		pxx, freqs := spectral.Pwelch(ch, fs, opts)
		if sp.Pxx == nil {
			sp.Freqs = freqs
			sp.Pxx = make([]float64, len(pxx))
		}
		floats.Add(sp.Pxx, pxx)
	}
	floats.Scale(1/float64(len(chans)), sp.Pxx)

	if len(sp.Freqs) > 1 {
		sp.Res = sp.Freqs[1] - sp.Freqs[0]
	}
	return sp
}

// nearestBin returns the index of the bin closest to f, or -1 when f is
// outside the spectrum.
func (sp Spectrum) nearestBin(f float64) int {
	if len(sp.Freqs) == 0 || sp.Res <= 0 {
		return -1
	}
	if f < 0 || f > sp.Freqs[len(sp.Freqs)-1]+sp.Res/2 {
		return -1
	}
	idx := int(f/sp.Res + 0.5)
	if idx >= len(sp.Freqs) {
		return -1
	}
	return idx
}
