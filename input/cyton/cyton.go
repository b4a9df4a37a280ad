// Package cyton reads OpenBCI Cyton and Cyton+Daisy boards over their
// serial dongle: 115200 8N1, 'b' to start streaming, 's' to stop, and
// 33-byte packets framed by 0xA0 ... 0xC0.
package cyton

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"

	"github.com/merovir/lockin/input"
)

func init() {
	input.RegisterBackend("cyton", Backend{})
}

const (
	startByte = 0xA0
	endByte   = 0xC0

	packetLen  = 33
	boardChans = 8

	// 24-bit ADC, 4.5 V reference, gain 24, scaled to microvolts.
	scaleUV = 4.5 / 24 / (1<<23 - 1) * 1e6
)

type Backend struct{}

func (Backend) Init() error  { return nil }
func (Backend) Close() error { return nil }

func (Backend) Devices() ([]input.Device, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list serial ports")
	}

	devices := make([]input.Device, len(ports))
	for i, p := range ports {
		devices[i] = Device(p)
	}
	return devices, nil
}

func (Backend) DefaultDevice() (input.Device, error) {
	devices, err := Backend{}.Devices()
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, errors.New("no serial ports found")
	}
	return devices[0], nil
}

func (Backend) Start(cfg input.SessionConfig) (input.Session, error) {
	dv, ok := cfg.Device.(Device)
	if !ok {
		return nil, errors.Errorf("invalid device type %T", cfg.Device)
	}
	return &Session{
		port:  dv.String(),
		daisy: cfg.Channels > boardChans,
	}, nil
}

// Device is a serial port path.
type Device string

func (d Device) String() string { return string(d) }

// Session is one streaming connection to a board.
type Session struct {
	port  string
	daisy bool
}

func NewSession(port string, daisy bool) *Session {
	return &Session{port: port, daisy: daisy}
}

// Start opens the port, begins streaming, and pushes one frame per
// sampling instant until ctx is canceled. Failing to open or reset the
// board is fatal; the caller treats it as an acquisition error.
func (s *Session) Start(ctx context.Context, dst input.FrameWriter) error {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(s.port, mode)
	if err != nil {
		return errors.Wrapf(err, "failed to open board on %s", s.port)
	}
	defer port.Close()

	// The blocking read loop only unwinds when the port dies, so close
	// it from the side on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			port.Write([]byte{'s'}) // stop stream
			port.Close()
		case <-done:
		}
	}()

	// Reset to defaults, then start streaming.
	if _, err := port.Write([]byte{'v'}); err != nil {
		return errors.Wrap(err, "failed to reset board")
	}
	time.Sleep(time.Second)
	port.ResetInputBuffer()

	if _, err := port.Write([]byte{'b'}); err != nil {
		return errors.Wrap(err, "failed to start stream")
	}

	asm := newAssembler(s.daisy)
	buf := make([]byte, 4096)
	var pending []byte

	for {
		n, err := port.Read(buf)
		if err != nil || n == 0 {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "serial read failed")
		}

		pending = append(pending, buf[:n]...)
		for {
			pkt, rest, ok := nextPacket(pending)
			if !ok {
				pending = rest
				break
			}
			pending = rest

			if frame, ok := asm.feed(pkt, time.Now()); ok {
				dst.Push(frame)
			}
		}
	}
}

// nextPacket scans raw for one framed packet. It returns the packet and
// the unconsumed remainder; ok is false when no complete packet is
// available yet.
func nextPacket(raw []byte) (pkt, rest []byte, ok bool) {
	for i := 0; i < len(raw); i++ {
		if raw[i] != startByte {
			continue
		}
		if len(raw)-i < packetLen {
			return nil, raw[i:], false
		}
		candidate := raw[i : i+packetLen]
		if candidate[packetLen-1] != endByte {
			// Misframed; resync from the next byte.
			continue
		}
		return candidate, raw[i+packetLen:], true
	}
	return nil, nil, false
}

// parseChannels decodes the eight 24-bit big-endian signed channel
// values of one packet into microvolts.
func parseChannels(pkt []byte) [boardChans]float64 {
	var out [boardChans]float64
	for i := 0; i < boardChans; i++ {
		off := 2 + i*3
		v := int32(pkt[off])<<16 | int32(pkt[off+1])<<8 | int32(pkt[off+2])
		if v >= 1<<23 {
			v -= 1 << 24
		}
		out[i] = float64(v) * scaleUV
	}
	return out
}

// assembler turns packets into frames. In Daisy mode the board
// interleaves two packets per sampling instant: the first carries
// channels 1-8, the second channels 9-16.
type assembler struct {
	daisy bool

	half    [boardChans]float64
	haveLow bool
}

func newAssembler(daisy bool) *assembler {
	return &assembler{daisy: daisy}
}

func (a *assembler) feed(pkt []byte, now time.Time) (input.Frame, bool) {
	chans := parseChannels(pkt)

	if !a.daisy {
		data := make([]input.Sample, boardChans)
		copy(data, chans[:])
		return input.Frame{T: now, Data: data}, true
	}

	if !a.haveLow {
		a.half = chans
		a.haveLow = true
		return input.Frame{}, false
	}

	data := make([]input.Sample, 2*boardChans)
	copy(data, a.half[:])
	copy(data[boardChans:], chans[:])
	a.haveLow = false
	return input.Frame{T: now, Data: data}, true
}
