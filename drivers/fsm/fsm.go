// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package fsm implements the byte-level receive buffer shared by the
// UART and SPI drivers: a 16-byte shift register that resyncs to the
// start of a frame whenever it sees the magic byte, no matter where in
// the current frame it was. uart.c and spi.c in the original firmware
// implemented this same rule independently; here it is a single type
// both drivers compose. The I²C driver does not use it: it relies on
// bus addressing and applies no resync rule.
package fsm

import "github.com/epro-lab/firmware/packet"

// PacketBuffer accumulates incoming bytes into one packet.Packet,
// resynchronizing whenever a magic byte arrives, even mid-frame. The
// zero value is ready to use.
type PacketBuffer struct {
	buf packet.Packet
	pos int
}

// PutByte appends c to the buffer. It reports true once a full
// 16-byte frame has been accumulated, at which point Packet returns
// it and the buffer is ready to accumulate the next frame.
//
// Receiving a magic byte at any position resets the write cursor to
// the start of the frame: a corrupted or truncated frame is
// abandoned the instant the next frame's anchor byte appears, rather
// than waiting for a checksum failure to notice.
func (b *PacketBuffer) PutByte(c byte) bool {
	if c == packet.Magic {
		b.pos = 0
	}

	b.buf[b.pos] = c
	b.pos++

	if b.pos >= packet.Size {
		b.pos = 0
		return true
	}

	return false
}

// Packet returns the most recently completed frame. Valid only
// immediately after a PutByte call that returned true.
func (b *PacketBuffer) Packet() *packet.Packet {
	p := b.buf
	return &p
}

// Reset discards any partially accumulated frame.
func (b *PacketBuffer) Reset() {
	b.pos = 0
}
