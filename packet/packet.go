// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package packet implements the 16-byte wire frame shared by all four
// transports: a magic byte, a three-digit ASCII index and total, an
// 8-byte payload, and a mod-256 checksum.
package packet

// Wire layout offsets and sizes, transmission order.
const (
	Magic byte = 0xfe

	BlockLength = 8
	Size        = 1 + 3 + 3 + BlockLength + 1

	offMagic    = 0
	offIndex    = 1
	lenIndex    = 3
	offTotal    = 4
	lenTotal    = 3
	offData     = 7
	offChecksum = 15
)

// Packet is a fixed-size, packed 16-byte frame. The zero value is not
// a valid packet; use New or FromBytes.
type Packet [Size]byte

// New builds a packet carrying data as packet index of total, computing
// and storing its checksum.
func New(index, total uint8, data [BlockLength]byte) *Packet {
	p := &Packet{}
	p[offMagic] = Magic

	putDecimal(p[offIndex:offIndex+lenIndex], index)
	putDecimal(p[offTotal:offTotal+lenTotal], total)

	copy(p[offData:offData+BlockLength], data[:])
	p[offChecksum] = ComputeChecksum(data)

	return p
}

// FromBytes interprets b (which must be at least Size bytes) as a
// packet, copying it into a fresh Packet.
func FromBytes(b []byte) *Packet {
	p := &Packet{}
	copy(p[:], b[:Size])
	return p
}

// Bytes returns the packet's wire representation.
func (p *Packet) Bytes() []byte {
	return p[:]
}

// CopyFrom overwrites p with src's contents, the Go analogue of the
// original firmware's packet_copy.
func (p *Packet) CopyFrom(src *Packet) {
	*p = *src
}

// Index returns the packet's 1-based position within its message.
func (p *Packet) Index() uint8 {
	return parseDecimal(p[offIndex : offIndex+lenIndex])
}

// Total returns the message's total packet count as declared by this
// packet.
func (p *Packet) Total() uint8 {
	return parseDecimal(p[offTotal : offTotal+lenTotal])
}

// Data returns the 8-byte payload.
func (p *Packet) Data() [BlockLength]byte {
	var d [BlockLength]byte
	copy(d[:], p[offData:offData+BlockLength])
	return d
}

// Checksum returns the checksum byte as carried on the wire.
func (p *Packet) Checksum() uint8 {
	return p[offChecksum]
}

// ComputeChecksum is the mod-256 sum of data, with the single
// reserved value Magic bumped to 0xff so the checksum byte can never
// be mistaken for a fresh frame's resync anchor.
func ComputeChecksum(data [BlockLength]byte) uint8 {
	var sum uint8
	for _, b := range data {
		sum += b
	}

	if sum == Magic {
		sum = 0xff
	}

	return sum
}

// putDecimal writes v as ASCII decimal digits into field, zero-filling
// any unused trailing bytes.
func putDecimal(field []byte, v uint8) {
	for i := range field {
		field[i] = 0
	}

	digits := []byte{}
	if v == 0 {
		digits = []byte{'0'}
	}
	for v > 0 {
		digits = append([]byte{'0' + byte(v%10)}, digits...)
		v /= 10
	}

	copy(field, digits)
}

// parseDecimal reads leading ASCII digits from field and returns their
// decimal value, stopping at the first non-digit byte (as a C string
// parser would stop at the first non-digit or NUL).
func parseDecimal(field []byte) uint8 {
	var v uint8
	for _, b := range field {
		if b < '0' || b > '9' {
			break
		}
		v = v*10 + (b - '0')
	}
	return v
}
