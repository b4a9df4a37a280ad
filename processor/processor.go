// Package processor runs the detection tick: on a fixed hop it snapshots
// the most recent window from the ring, filters it per channel, scores
// every target frequency, arbitrates a leader, and feeds the stability
// gate. Acquisition never waits on a tick and a tick never waits on
// acquisition; the ring snapshot is the only point of contact.
package processor

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/merovir/lockin/decide"
	"github.com/merovir/lockin/dsp"
	"github.com/merovir/lockin/input"
	"github.com/merovir/lockin/ring"
)

type Config struct {
	SampleRate    float64
	WindowSeconds float64
	StepSeconds   float64

	// Channels selects frame indices to analyze; empty means all.
	Channels []int

	Ring    *ring.Buffer
	Filter  *dsp.Filter
	Scorer  *dsp.Scorer
	Arbiter decide.Arbiter
	Gate    *decide.Gate

	// Sink receives confirmed decisions and confirmed-to-none
	// transitions.
	Sink decide.Sink

	// ProposalSink, when set, receives every tick's raw leader. This is
	// the low-confidence stream; most consumers want Sink instead.
	ProposalSink func(decide.Proposal)

	Log *zap.Logger
}

type Processor struct {
	cfg Config

	windowFrames int
	step         time.Duration

	chanBufs [][]float64

	waitLogged time.Time
}

func New(cfg Config) (*Processor, error) {
	if cfg.WindowSeconds <= 0 || cfg.StepSeconds <= 0 {
		return nil, errors.New("processor: window and step must be positive")
	}
	if cfg.Ring == nil || cfg.Filter == nil || cfg.Scorer == nil || cfg.Gate == nil {
		return nil, errors.New("processor: missing pipeline stage")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	windowFrames := int(cfg.WindowSeconds * cfg.SampleRate)
	if windowFrames > cfg.Ring.Cap() {
		return nil, errors.Errorf("processor: window of %d frames exceeds ring capacity %d",
			windowFrames, cfg.Ring.Cap())
	}

	p := &Processor{
		cfg:          cfg,
		windowFrames: windowFrames,
		step:         time.Duration(cfg.StepSeconds * float64(time.Second)),
	}

	n := len(cfg.Channels)
	if n == 0 {
		n = 1 // grown on first tick once the frame width is known
	}
	p.chanBufs = make([][]float64, 0, n)

	return p, nil
}

// Step is the tick period.
func (p *Processor) Step() time.Duration {
	return p.step
}

// Process ticks until ctx is canceled. A tick that overruns simply
// delays the next one; hops are skipped rather than queued.
func (p *Processor) Process(ctx context.Context) {
	ticker := time.NewTicker(p.step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.Tick(now)
		}
	}
}

// Tick runs one detection pass. Exported so tests and simulations can
// drive the pipeline on a synthetic clock.
func (p *Processor) Tick(now time.Time) {
	frames, err := p.cfg.Ring.Snapshot(p.windowFrames)
	if err != nil {
		if errors.Is(err, ring.ErrInsufficientData) {
			// Not fatal; the buffer just has not filled yet. Keep the
			// notice quiet enough to not flood the log.
			if now.Sub(p.waitLogged) >= 2*time.Second {
				p.waitLogged = now
				p.cfg.Log.Info("waiting for data",
					zap.Int("want_frames", p.windowFrames),
					zap.Int("have_frames", p.cfg.Ring.Len()))
			}
			return
		}
		p.cfg.Log.Error("snapshot failed", zap.Error(err))
		return
	}

	window := p.extract(frames)

	for _, ch := range window {
		if err := p.cfg.Filter.Apply(ch); err != nil {
			// A corrupt window scores as "none" instead of killing the
			// session.
			p.cfg.Log.Warn("discarding window", zap.Error(err))
			p.advance(decide.Proposal{None: true}, now)
			return
		}
	}

	spectrum := dsp.WelchPSD(window, p.cfg.SampleRate)
	scores := p.cfg.Scorer.Score(spectrum)
	proposal := p.cfg.Arbiter.Choose(scores)

	p.logTick(proposal, scores)
	p.advance(proposal, now)
}

// advance feeds the gate and publishes whatever it emits.
func (p *Processor) advance(proposal decide.Proposal, now time.Time) {
	if p.cfg.ProposalSink != nil {
		p.cfg.ProposalSink(proposal)
	}

	ev, emit := p.cfg.Gate.Update(proposal, p.step, now)
	if !emit {
		return
	}

	if ev.None {
		p.cfg.Log.Info("selection lost")
	} else {
		p.cfg.Log.Info("SELECT",
			zap.Float64("freq", ev.Freq),
			zap.Float64("snr", ev.SNR),
			zap.Float64("confidence", ev.Confidence))
	}

	if p.cfg.Sink != nil {
		p.cfg.Sink.Publish(ev)
	}
}

// logTick writes one line per tick: the leader and the full
// per-frequency breakdown.
func (p *Processor) logTick(proposal decide.Proposal, scores []dsp.Score) {
	if !p.cfg.Log.Core().Enabled(zap.InfoLevel) {
		return
	}

	fields := make([]zap.Field, 0, len(scores)+2)
	if proposal.None {
		fields = append(fields, zap.String("leader", "none"))
	} else {
		fields = append(fields,
			zap.Float64("leader", proposal.Freq),
			zap.Float64("snr", proposal.SNR))
	}
	for _, sc := range scores {
		fields = append(fields, zap.Float64(fmtHz(sc.Target.Hz), sc.SNR))
	}

	p.cfg.Log.Info("tick", fields...)
}

func fmtHz(hz float64) string {
	return strconv.FormatFloat(hz, 'g', -1, 64) + "Hz"
}

// extract de-interleaves the frame snapshot into per-channel buffers for
// the selected subset, reusing scratch storage across ticks.
func (p *Processor) extract(frames []input.Frame) [][]float64 {
	sel := p.cfg.Channels
	if len(sel) == 0 {
		sel = make([]int, len(frames[0].Data))
		for i := range sel {
			sel[i] = i
		}
	}

	if len(p.chanBufs) != len(sel) {
		p.chanBufs = make([][]float64, len(sel))
		for i := range p.chanBufs {
			p.chanBufs[i] = make([]float64, p.windowFrames)
		}
	}

	for i, ch := range sel {
		buf := p.chanBufs[i]
		for j, f := range frames {
			if ch < len(f.Data) {
				buf[j] = f.Data[ch]
			} else {
				buf[j] = 0
			}
		}
	}
	return p.chanBufs
}
