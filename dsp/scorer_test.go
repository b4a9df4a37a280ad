package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// toneWindow builds a 2-channel window carrying a tone plus its second
// harmonic at fs for dur seconds.
func toneWindow(freq, fs, dur float64) [][]float64 {
	n := int(dur * fs)
	chans := make([][]float64, 2)
	for ch := range chans {
		buf := make([]float64, n)
		for i := range buf {
			t := float64(i) / fs
			buf[i] = math.Sin(2*math.Pi*freq*t) + 0.3*math.Sin(2*math.Pi*2*freq*t)
		}
		chans[ch] = buf
	}
	return chans
}

func TestWelchPSDShape(t *testing.T) {
	sp := WelchPSD(toneWindow(10, 125, 2), 125)

	require.NotEmpty(t, sp.Pxx)
	require.Len(t, sp.Freqs, len(sp.Pxx))
	assert.InDelta(t, 1.0, sp.Res, 1e-9, "125-sample segments at 125 Hz give 1 Hz bins")

	// The strongest bin is the tone.
	best := 0
	for i, p := range sp.Pxx {
		if p > sp.Pxx[best] {
			best = i
		}
	}
	assert.InDelta(t, 10.0, sp.Freqs[best], sp.Res/2)
}

func TestWelchPSDEmpty(t *testing.T) {
	sp := WelchPSD(nil, 125)
	assert.Empty(t, sp.Pxx)
}

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer([]Target{{Hz: 10}, {Hz: 15}}, ScorerConfig{})
	require.NoError(t, err)
	return s
}

func TestScorerPicksTone(t *testing.T) {
	s := newTestScorer(t)
	sp := WelchPSD(toneWindow(10, 125, 2), 125)

	scores := s.Score(sp)
	require.Len(t, scores, 2)

	assert.Equal(t, 10.0, scores[0].Target.Hz)
	assert.Greater(t, scores[0].SNR, 10.0)
	assert.Greater(t, scores[0].SNR, 3*scores[1].SNR)
	assert.Greater(t, scores[0].Power, 0.0)
}

func TestScorerDeterminism(t *testing.T) {
	s := newTestScorer(t)
	win := toneWindow(15, 125, 2)

	a := s.Score(WelchPSD(win, 125))
	b := s.Score(WelchPSD(win, 125))
	require.Equal(t, a, b, "identical windows must yield byte-identical scores")
}

func TestScorerSilence(t *testing.T) {
	s := newTestScorer(t)

	chans := [][]float64{make([]float64, 250)}
	scores := s.Score(WelchPSD(chans, 125))

	for _, sc := range scores {
		assert.False(t, math.IsNaN(sc.SNR), "%g Hz", sc.Target.Hz)
		assert.False(t, math.IsInf(sc.SNR, 0), "%g Hz", sc.Target.Hz)
	}
}

func TestScorerHarmonicAboveNyquist(t *testing.T) {
	// 40 Hz second harmonic is 80 Hz, above the 62.5 Hz Nyquist; the
	// score must fall back to the fundamental alone without panicking.
	s, err := NewScorer([]Target{{Hz: 40, Harmonics: 2}}, ScorerConfig{})
	require.NoError(t, err)

	sp := WelchPSD(toneWindow(40, 125, 2), 125)
	scores := s.Score(sp)
	require.Len(t, scores, 1)
	assert.Greater(t, scores[0].SNR, 1.0)
}

func TestScorerConfigErrors(t *testing.T) {
	_, err := NewScorer(nil, ScorerConfig{})
	assert.Error(t, err)

	_, err = NewScorer([]Target{{Hz: -5}}, ScorerConfig{})
	assert.Error(t, err)
}

func TestScorerMinSeparation(t *testing.T) {
	s, err := NewScorer([]Target{{Hz: 10}}, ScorerConfig{NeighborBW: 1, GuardBW: 0.3})
	require.NoError(t, err)
	assert.InDelta(t, 1.6, s.MinSeparation(), 1e-9)
}

func BenchmarkScore(b *testing.B) {
	s, _ := NewScorer([]Target{{Hz: 7.5}, {Hz: 10}, {Hz: 12}, {Hz: 15}}, ScorerConfig{})
	sp := WelchPSD(toneWindow(10, 125, 2), 125)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Score(sp)
	}
}

func BenchmarkWelchPSD(b *testing.B) {
	win := toneWindow(10, 125, 2)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		WelchPSD(win, 125)
	}
}
