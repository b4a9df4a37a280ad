// Package synthetic generates deterministic multichannel SSVEP-like
// signals: a fundamental plus decaying harmonics over seeded Gaussian
// noise and background alpha/beta activity. The same seed always yields
// a bit-identical stream, which makes it both the demo source and the
// test fixture for the whole pipeline.
package synthetic

import (
	"context"
	"math"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/merovir/lockin/input"
)

func init() {
	input.RegisterBackend("synthetic", Backend{})
}

type Backend struct{}

func (Backend) Init() error  { return nil }
func (Backend) Close() error { return nil }

func (Backend) Devices() ([]input.Device, error) {
	return []input.Device{Device{}}, nil
}

func (Backend) DefaultDevice() (input.Device, error) {
	return Device{}, nil
}

func (Backend) Start(cfg input.SessionConfig) (input.Session, error) {
	dv, ok := cfg.Device.(Device)
	if !ok {
		dv = Device{}
	}
	gcfg := dv.Config
	gcfg.SampleRate = cfg.SampleRate
	gcfg.Channels = cfg.Channels
	return NewSession(gcfg), nil
}

// Device carries the generator parameters through the backend registry.
type Device struct {
	Config Config
}

func (d Device) String() string { return "synthetic" }

// Step is one entry of a frequency schedule.
type Step struct {
	Freq float64 // 0 = no stimulus
	Dur  time.Duration
}

type Config struct {
	SampleRate float64
	Channels   int

	// Freq is the stimulated target. 0 generates pure background noise.
	Freq      float64
	Harmonics int // harmonics added at halving amplitude, defaults to 2

	// SNR is the amplitude ratio of stimulus to noise, defaults to 3.
	SNR float64

	Seed uint64

	// Schedule, when non-empty, overrides Freq and cycles through its
	// steps, switching the stimulated frequency over time.
	Schedule []Step
}

// Generator produces frames one at a time. It is not safe for concurrent
// use; each pipeline owns its own instance.
type Generator struct {
	cfg   Config
	noise distuv.Normal

	phases []float64 // per-channel phase offsets
	amps   []float64 // per-channel amplitude factors

	alphaHz []float64 // per-channel background alpha component
	betaHz  []float64 // per-channel background beta component

	n        uint64 // frames generated so far
	schedDur time.Duration
}

func New(cfg Config) *Generator {
	if cfg.Channels <= 0 {
		cfg.Channels = 8
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 125
	}
	if cfg.Harmonics <= 0 {
		cfg.Harmonics = 2
	}
	if cfg.SNR <= 0 {
		cfg.SNR = 3
	}

	src := rand.NewSource(cfg.Seed)
	uniform := distuv.Uniform{Min: 0, Max: 1, Src: src}

	g := &Generator{
		cfg:     cfg,
		noise:   distuv.Normal{Mu: 0, Sigma: 1 / cfg.SNR, Src: src},
		phases:  make([]float64, cfg.Channels),
		alphaHz: make([]float64, cfg.Channels),
		betaHz:  make([]float64, cfg.Channels),
		amps:    make([]float64, cfg.Channels),
	}

	// Fixed per-run channel character, drawn before any samples so the
	// sample stream itself is reproducible.
	for ch := 0; ch < cfg.Channels; ch++ {
		g.phases[ch] = uniform.Rand() * 2 * math.Pi
		g.amps[ch] = 0.8 + 0.4*uniform.Rand()
		g.alphaHz[ch] = 8 + 2*uniform.Rand()
		g.betaHz[ch] = 15 + 10*uniform.Rand()
	}

	for _, st := range cfg.Schedule {
		g.schedDur += st.Dur
	}

	return g
}

// activeFreq resolves the stimulated frequency at time t.
func (g *Generator) activeFreq(t float64) float64 {
	if len(g.cfg.Schedule) == 0 || g.schedDur <= 0 {
		return g.cfg.Freq
	}
	rem := time.Duration(math.Mod(t, g.schedDur.Seconds()) * float64(time.Second))
	for _, st := range g.cfg.Schedule {
		if rem < st.Dur {
			return st.Freq
		}
		rem -= st.Dur
	}
	return g.cfg.Schedule[len(g.cfg.Schedule)-1].Freq
}

// Frame produces the next sampling instant. Channel order is fixed, so
// two generators with equal configs produce identical streams.
func (g *Generator) Frame(now time.Time) input.Frame {
	t := float64(g.n) / g.cfg.SampleRate
	freq := g.activeFreq(t)

	data := make([]input.Sample, g.cfg.Channels)
	for ch := range data {
		v := g.noise.Rand()

		// Background rhythms so the spectrum is not flat.
		v += 0.3 * g.amps[ch] * math.Sin(2*math.Pi*g.alphaHz[ch]*t+g.phases[ch])
		v += 0.2 * g.amps[ch] * math.Sin(2*math.Pi*g.betaHz[ch]*t+g.phases[ch]+1)

		if freq > 0 {
			// Occipital-like channels carry the stimulus strongest.
			spatial := 0.7
			if ch >= g.cfg.Channels/2 {
				spatial = 1.5
			}

			amp := g.amps[ch] * spatial
			for h := 1; h <= g.cfg.Harmonics; h++ {
				hf := float64(h) * freq
				if hf >= g.cfg.SampleRate/2 {
					break
				}
				v += amp * math.Sin(2*math.Pi*hf*t+g.phases[ch])
				amp /= 2
			}
		}

		data[ch] = v
	}

	g.n++
	return input.Frame{T: now, Data: data}
}

// Session paces a Generator at its simulated sampling rate and pushes
// frames into the ring, in roughly 40 ms chunks like a real board.
type Session struct {
	gen *Generator
}

func NewSession(cfg Config) *Session {
	return &Session{gen: New(cfg)}
}

func (s *Session) Start(ctx context.Context, dst input.FrameWriter) error {
	rate := s.gen.cfg.SampleRate
	chunk := int(0.04 * rate)
	if chunk < 1 {
		chunk = 1
	}

	period := time.Duration(float64(chunk) / rate * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			for i := 0; i < chunk; i++ {
				dst.Push(s.gen.Frame(now))
			}
		}
	}
}
