package decide

import (
	"time"
)

// State is the gate's position in its hold-time vote.
type State int

const (
	StateNone State = iota
	StateCandidate
	StateConfirmed
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateCandidate:
		return "candidate"
	case StateConfirmed:
		return "confirmed"
	}
	return "unknown"
}

// Event is a consumer-visible decision: a confirmed frequency, or the
// loss of one. Emitted at most once per tick.
type Event struct {
	Freq       float64
	SNR        float64
	Confidence float64
	None       bool
	At         time.Time
}

// Gate is the stability vote: a candidate frequency must lead
// continuously for at least the hold duration before it is confirmed.
// The machine runs for the lifetime of the session; it has no terminal
// state.
type Gate struct {
	hold time.Duration

	state State
	freq  float64
	held  time.Duration
}

func NewGate(hold time.Duration) *Gate {
	return &Gate{hold: hold}
}

func (g *Gate) State() State    { return g.state }
func (g *Gate) Leader() float64 { return g.freq }

// Held reports how long the current candidate has led continuously.
func (g *Gate) Held() time.Duration { return g.held }

// Update advances the gate by one tick of duration step. The returned
// event is valid only when emit is true: once on the transition to
// confirmed, and once when a confirmed selection falls back to none.
func (g *Gate) Update(p Proposal, step time.Duration, now time.Time) (ev Event, emit bool) {
	if p.None {
		wasConfirmed := g.state == StateConfirmed
		g.state = StateNone
		g.freq = 0
		g.held = 0
		if wasConfirmed {
			return Event{None: true, At: now}, true
		}
		return Event{}, false
	}

	switch g.state {
	case StateNone:
		g.state = StateCandidate
		g.freq = p.Freq
		g.held = 0

	case StateCandidate:
		if p.Freq != g.freq {
			g.freq = p.Freq
			g.held = 0
			break
		}
		g.held += step
		if g.held >= g.hold {
			g.state = StateConfirmed
			return Event{
				Freq:       p.Freq,
				SNR:        p.SNR,
				Confidence: p.Margin,
				At:         now,
			}, true
		}

	case StateConfirmed:
		if p.Freq != g.freq {
			// The old selection stands until the new leader re-confirms;
			// no "none" event here.
			g.state = StateCandidate
			g.freq = p.Freq
			g.held = 0
		}
	}

	return Event{}, false
}
