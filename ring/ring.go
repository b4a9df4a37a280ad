// Package ring provides a fixed-capacity frame store that keeps only the
// most recent samples. A single acquisition goroutine writes, detection
// ticks read via snapshot copies, so neither path ever blocks the other
// for more than the duration of a copy.
package ring

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/merovir/lockin/input"
)

// ErrInsufficientData is returned by Snapshot when fewer frames than
// requested have ever been pushed. Callers treat it as "skip this tick",
// not as a failure.
var ErrInsufficientData = errors.New("ring: not enough frames buffered")

// Buffer is a circular store of the most recent frames.
type Buffer struct {
	mu     sync.Mutex
	frames []input.Frame
	next   int    // slot the next push writes to
	total  uint64 // frames ever pushed
}

func New(capacity int) *Buffer {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Buffer{frames: make([]input.Frame, capacity)}
}

func (b *Buffer) Cap() int {
	return len(b.frames)
}

// Len reports how many frames are currently held, at most Cap.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.total < uint64(len(b.frames)) {
		return int(b.total)
	}
	return len(b.frames)
}

// Total reports how many frames have ever been pushed.
func (b *Buffer) Total() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Push appends one frame, overwriting the oldest once full. O(1), never
// blocks beyond the slot write.
func (b *Buffer) Push(f input.Frame) {
	b.mu.Lock()
	b.frames[b.next] = f
	b.next = (b.next + 1) % len(b.frames)
	b.total++
	b.mu.Unlock()
}

// Snapshot returns copies of the last n frames in push order, oldest
// first. Frames are immutable, so only the slice headers are copied; the
// returned slice is owned by the caller.
func (b *Buffer) Snapshot(n int) ([]input.Frame, error) {
	if n <= 0 || n > len(b.frames) {
		return nil, errors.Errorf("ring: snapshot size %d out of range [1, %d]", n, len(b.frames))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.total < uint64(n) {
		return nil, ErrInsufficientData
	}

	out := make([]input.Frame, n)
	start := (b.next - n + len(b.frames)) % len(b.frames)
	for i := 0; i < n; i++ {
		out[i] = b.frames[(start+i)%len(b.frames)]
	}
	return out, nil
}
