package cyton

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// packet builds a valid 33-byte stream packet with the given raw 24-bit
// channel counts.
func packet(sample byte, counts [boardChans]int32) []byte {
	pkt := make([]byte, packetLen)
	pkt[0] = startByte
	pkt[1] = sample
	for i, v := range counts {
		u := uint32(v) & 0xFFFFFF
		off := 2 + i*3
		pkt[off] = byte(u >> 16)
		pkt[off+1] = byte(u >> 8)
		pkt[off+2] = byte(u)
	}
	pkt[packetLen-1] = endByte
	return pkt
}

func TestParseChannels(t *testing.T) {
	counts := [boardChans]int32{0, 1, -1, 1<<23 - 1, -(1 << 23), 1000, -1000, 42}
	got := parseChannels(packet(0, counts))

	for i, want := range counts {
		assert.InDelta(t, float64(want)*scaleUV, got[i], 1e-9, "channel %d", i)
	}
}

func TestNextPacketResync(t *testing.T) {
	valid := packet(1, [boardChans]int32{})

	// Garbage, a stray start byte, then a valid packet.
	raw := append([]byte{0x00, 0xFF, startByte, 0x13}, valid...)

	pkt, rest, ok := nextPacket(raw)
	require.True(t, ok)
	assert.Equal(t, valid, pkt)
	assert.Empty(t, rest)
}

func TestNextPacketPartial(t *testing.T) {
	valid := packet(2, [boardChans]int32{})

	pkt, rest, ok := nextPacket(valid[:20])
	assert.False(t, ok)
	assert.Nil(t, pkt)
	// The partial tail is kept for the next read.
	assert.Equal(t, valid[:20], rest)

	_, _, ok = nextPacket(append(rest, valid[20:]...))
	assert.True(t, ok)
}

func TestAssemblerCyton(t *testing.T) {
	asm := newAssembler(false)
	now := time.Unix(0, 0)

	frame, ok := asm.feed(packet(0, [boardChans]int32{100}), now)
	require.True(t, ok)
	require.Len(t, frame.Data, boardChans)
	assert.InDelta(t, 100*scaleUV, frame.Data[0], 1e-9)
}

func TestAssemblerDaisyPairsPackets(t *testing.T) {
	asm := newAssembler(true)
	now := time.Unix(0, 0)

	_, ok := asm.feed(packet(0, [boardChans]int32{1, 2, 3, 4, 5, 6, 7, 8}), now)
	assert.False(t, ok, "first half of a daisy pair must not emit")

	frame, ok := asm.feed(packet(1, [boardChans]int32{9, 10, 11, 12, 13, 14, 15, 16}), now)
	require.True(t, ok)
	require.Len(t, frame.Data, 16)
	assert.InDelta(t, 1*scaleUV, frame.Data[0], 1e-12)
	assert.InDelta(t, 9*scaleUV, frame.Data[8], 1e-12)
	assert.InDelta(t, 16*scaleUV, frame.Data[15], 1e-12)
}
