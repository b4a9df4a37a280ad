// Package decide turns noisy per-tick scores into a single confident,
// debounced selection: the Arbiter picks each tick's leader, the Gate
// only confirms a leader that holds long enough.
package decide

import (
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/merovir/lockin/dsp"
)

// Proposal is one tick's leading candidate. A zero-value Proposal with
// None set means no target cleared the threshold this tick.
type Proposal struct {
	Freq   float64
	SNR    float64
	Margin float64 // 1 - second/best, clamped to [0, 1]
	None   bool
}

// Arbiter selects the top-scoring frequency for one tick.
type Arbiter struct {
	// MinSNR is the floor below which the tick proposes nothing.
	MinSNR float64
}

// Choose picks argmax SNR across scores. Ties within floating-point
// equality go to the lowest frequency so repeated runs are stable.
func (a Arbiter) Choose(scores []dsp.Score) Proposal {
	if len(scores) == 0 {
		return Proposal{None: true}
	}

	best := scores[0]
	for _, sc := range scores[1:] {
		if equalSNR(sc.SNR, best.SNR) {
			if sc.Target.Hz < best.Target.Hz {
				best = sc
			}
			continue
		}
		if sc.SNR > best.SNR {
			best = sc
		}
	}

	if best.SNR < a.MinSNR {
		return Proposal{None: true}
	}

	return Proposal{
		Freq:   best.Target.Hz,
		SNR:    best.SNR,
		Margin: margin(scores, best),
	}
}

func equalSNR(a, b float64) bool {
	return scalar.EqualWithinAbsOrRel(a, b, 1e-12, 1e-9)
}

// margin is the confidence of the winner against the runner-up, the
// ratio-based measure the PSD score line reports.
func margin(scores []dsp.Score, best dsp.Score) float64 {
	second := 0.0
	for _, sc := range scores {
		if sc.Target == best.Target {
			continue
		}
		if sc.SNR > second {
			second = sc.SNR
		}
	}
	if best.SNR <= 0 {
		return 0
	}
	m := 1 - second/best.SNR
	if m < 0 {
		return 0
	}
	if m > 1 {
		return 1
	}
	return m
}
