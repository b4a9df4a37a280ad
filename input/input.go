package input

import (
	"context"
	"time"
)

// Sample is one voltage reading, in microvolts.
type Sample = float64

// Frame is one multichannel sampling instant. Frames are immutable once
// produced; sources allocate a fresh Data slice per frame.
type Frame struct {
	T    time.Time
	Data []Sample
}

// FrameWriter receives frames from a running session. Push must be O(1)
// and must never block the acquisition path.
type FrameWriter interface {
	Push(Frame)
}

// SessionConfig is the configuration for starting an acquisition session.
type SessionConfig struct {
	Device Device

	// Channels is the number of values per frame.
	Channels int

	// SampleRate is the rate at which the device produces frames.
	SampleRate float64
}

// Session is an active connection to a sample source. Start blocks,
// continuously pushing frames into dst until ctx is canceled or the
// source fails.
type Session interface {
	Start(ctx context.Context, dst FrameWriter) error
}

// Device is a single acquisition device.
type Device interface {
	// String returns the device identifier, e.g. a serial port path.
	String() string
}
