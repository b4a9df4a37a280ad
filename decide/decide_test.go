package decide

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merovir/lockin/dsp"
)

func scores(snrs map[float64]float64) []dsp.Score {
	out := make([]dsp.Score, 0, len(snrs))
	for hz, snr := range snrs {
		out = append(out, dsp.Score{Target: dsp.Target{Hz: hz}, SNR: snr})
	}
	return out
}

func TestArbiterArgmax(t *testing.T) {
	a := Arbiter{MinSNR: 1.5}

	p := a.Choose(scores(map[float64]float64{10: 8.0, 15: 3.0}))
	require.False(t, p.None)
	assert.Equal(t, 10.0, p.Freq)
	assert.Equal(t, 8.0, p.SNR)
	assert.InDelta(t, 1-3.0/8.0, p.Margin, 1e-12)
}

func TestArbiterTieBreakLowestFrequency(t *testing.T) {
	a := Arbiter{MinSNR: 1.5}

	// Equal SNRs in any map iteration order must always pick 10 Hz.
	for i := 0; i < 50; i++ {
		p := a.Choose(scores(map[float64]float64{15: 4.0, 10: 4.0, 12: 4.0}))
		require.False(t, p.None)
		require.Equal(t, 10.0, p.Freq)
	}
}

func TestArbiterBelowThreshold(t *testing.T) {
	a := Arbiter{MinSNR: 1.5}

	p := a.Choose(scores(map[float64]float64{10: 1.2, 15: 0.9}))
	assert.True(t, p.None)

	p = a.Choose(nil)
	assert.True(t, p.None)
}

const step = 200 * time.Millisecond

func at(tick int) time.Time {
	return time.Unix(0, 0).Add(time.Duration(tick) * step)
}

func propose(f float64) Proposal {
	return Proposal{Freq: f, SNR: 5}
}

func none() Proposal {
	return Proposal{None: true}
}

func TestGateConfirmAfterHold(t *testing.T) {
	g := NewGate(500 * time.Millisecond)
	require.Equal(t, StateNone, g.State())

	// Tick 0: none -> candidate(10, 0).
	_, emit := g.Update(propose(10), step, at(0))
	assert.False(t, emit)
	assert.Equal(t, StateCandidate, g.State())
	assert.Equal(t, time.Duration(0), g.Held())

	// 200 ms, 400 ms: still holding.
	for i := 1; i <= 2; i++ {
		_, emit = g.Update(propose(10), step, at(i))
		assert.False(t, emit, "tick %d", i)
	}

	// 600 ms >= 500 ms: confirmed, exactly one event.
	ev, emit := g.Update(propose(10), step, at(3))
	require.True(t, emit)
	assert.Equal(t, 10.0, ev.Freq)
	assert.False(t, ev.None)
	assert.Equal(t, at(3), ev.At)
	assert.Equal(t, StateConfirmed, g.State())

	// Continued leadership does not re-emit.
	_, emit = g.Update(propose(10), step, at(4))
	assert.False(t, emit)
}

func TestGateLeaderChangeResetsHold(t *testing.T) {
	g := NewGate(500 * time.Millisecond)

	g.Update(propose(10), step, at(0))
	g.Update(propose(10), step, at(1)) // held 200 ms

	_, emit := g.Update(propose(15), step, at(2))
	assert.False(t, emit)
	assert.Equal(t, StateCandidate, g.State())
	assert.Equal(t, 15.0, g.Leader())
	assert.Equal(t, time.Duration(0), g.Held())
}

func TestGateNoneDropsCandidate(t *testing.T) {
	g := NewGate(500 * time.Millisecond)

	g.Update(propose(10), step, at(0))
	ev, emit := g.Update(none(), step, at(1))
	assert.False(t, emit, "an unconfirmed candidate drops silently")
	assert.Equal(t, StateNone, g.State())
	assert.Zero(t, ev)
}

func TestGateConfirmedToNoneEmits(t *testing.T) {
	g := NewGate(200 * time.Millisecond)

	g.Update(propose(10), step, at(0))
	_, emit := g.Update(propose(10), step, at(1))
	require.True(t, emit)

	ev, emit := g.Update(none(), step, at(2))
	require.True(t, emit)
	assert.True(t, ev.None)
	assert.Equal(t, StateNone, g.State())
}

func TestGateConfirmedToNewLeaderIsSilent(t *testing.T) {
	g := NewGate(400 * time.Millisecond)

	g.Update(propose(10), step, at(0))
	g.Update(propose(10), step, at(1))
	_, emit := g.Update(propose(10), step, at(2))
	require.True(t, emit)

	// A new leader must re-earn confirmation; no "none" in between.
	ev, emit := g.Update(propose(15), step, at(3))
	assert.False(t, emit)
	assert.Zero(t, ev)
	assert.Equal(t, StateCandidate, g.State())
	assert.Equal(t, 15.0, g.Leader())

	// And it confirms only after its own full hold.
	_, emit = g.Update(propose(15), step, at(4))
	assert.False(t, emit)
	ev, emit = g.Update(propose(15), step, at(5))
	require.True(t, emit)
	assert.Equal(t, 15.0, ev.Freq)
}

func TestChanSinkDropsOldest(t *testing.T) {
	s := NewChanSink(2)

	s.Publish(Event{Freq: 1})
	s.Publish(Event{Freq: 2})
	s.Publish(Event{Freq: 3}) // evicts 1

	ev := <-s.Events()
	assert.Equal(t, 2.0, ev.Freq)
	ev = <-s.Events()
	assert.Equal(t, 3.0, ev.Freq)

	select {
	case <-s.Events():
		t.Fatal("unexpected extra event")
	default:
	}
}
